// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package verifier holds the predicates that reject malformed or
// unauthorized requests before a token is issued.
package verifier

import (
	"context"
	"slices"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
)

// Verifier checks a token request for the grant types it declares.
type Verifier interface {
	// GrantTypes lists the grant types the verifier applies to.
	GrantTypes() []oauth.GrantType
	// Verify returns an OAuth error when the request must be rejected.
	Verify(ctx context.Context, tctx *reqctx.TokenContext) error
}

// AuthorizationVerifier checks an /authorize request.
type AuthorizationVerifier interface {
	Verify(ctx context.Context, actx *reqctx.AuthorizationContext) error
}

// Registry runs the verifiers of a grant type in registration order.
type Registry struct {
	byGrantType map[oauth.GrantType][]Verifier
}

// NewRegistry groups verifiers by the grant types they declare.
func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{byGrantType: make(map[oauth.GrantType][]Verifier)}
	for _, v := range verifiers {
		for _, gt := range v.GrantTypes() {
			r.byGrantType[gt] = append(r.byGrantType[gt], v)
		}
	}
	return r
}

// For returns the verifiers registered for grantType.
func (r *Registry) For(grantType oauth.GrantType) []Verifier {
	return slices.Clone(r.byGrantType[grantType])
}

// Verify runs every verifier registered for grantType and stops at the first
// failure.
func (r *Registry) Verify(ctx context.Context, grantType oauth.GrantType, tctx *reqctx.TokenContext) error {
	for _, v := range r.byGrantType[grantType] {
		if err := v.Verify(ctx, tctx); err != nil {
			return err
		}
	}
	return nil
}

// VerifyAuthorization runs verifiers in order and stops at the first failure.
func VerifyAuthorization(ctx context.Context, actx *reqctx.AuthorizationContext, verifiers ...AuthorizationVerifier) error {
	for _, v := range verifiers {
		if err := v.Verify(ctx, actx); err != nil {
			return err
		}
	}
	return nil
}

// grants is embedded by verifiers to declare their grant types.
type grants []oauth.GrantType

func (g grants) GrantTypes() []oauth.GrantType {
	return g
}

var allGrants = grants(oauth.GrantTypes)
