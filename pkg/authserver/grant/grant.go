// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package grant implements one processor per supported OAuth grant type on
// top of a shared verification pipeline.
package grant

import (
	"context"
	"fmt"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
	"github.com/stacklok/oauthz/pkg/authserver/verifier"
)

// Processor turns a resolved request into a claim set ready for signing.
type Processor interface {
	// GrantType returns the grant type handled by the processor.
	GrantType() oauth.GrantType
	// ProcessAuthorizationRequest handles the /authorize step. Grant types
	// without one return unsupported_response_type.
	ProcessAuthorizationRequest(ctx context.Context, actx *reqctx.AuthorizationContext) (*oauth.AuthorizationResponse, error)
	// ProcessTokenRequest verifies tctx and returns the claims to sign.
	ProcessTokenRequest(ctx context.Context, tctx *reqctx.TokenContext) (*oauth.TokenClaims, error)
}

// Registry dispatches requests to the processor of their grant type.
type Registry struct {
	processors map[oauth.GrantType]Processor
}

// NewRegistry indexes processors by grant type. A later processor replaces
// an earlier one for the same grant type.
func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[oauth.GrantType]Processor, len(processors))}
	for _, p := range processors {
		r.processors[p.GrantType()] = p
	}
	return r
}

// Get returns the processor for grantType.
func (r *Registry) Get(grantType oauth.GrantType) (Processor, error) {
	p, ok := r.processors[grantType]
	if !ok {
		return nil, oauth.ErrUnsupportedGrantType.WithHintf("Grant type %q is not supported.", grantType)
	}
	return p, nil
}

// preProcessFunc derives the effective context before verification.
type preProcessFunc func(ctx context.Context, tctx *reqctx.TokenContext) (*reqctx.TokenContext, error)

// postVerifyFunc refines the base claims once verification passed.
type postVerifyFunc func(ctx context.Context, tctx *reqctx.TokenContext, claims *oauth.TokenClaims) error

// pipeline is the part of token processing shared by every grant type.
type pipeline struct {
	grantType oauth.GrantType
	verifiers *verifier.Registry
}

func (p pipeline) GrantType() oauth.GrantType {
	return p.grantType
}

// ProcessAuthorizationRequest rejects the /authorize step for grant types
// that do not have one.
func (p pipeline) ProcessAuthorizationRequest(context.Context, *reqctx.AuthorizationContext) (*oauth.AuthorizationResponse, error) {
	return nil, oauth.ErrUnsupportedResponseType.WithHintf("Grant type %q has no authorization step.", p.grantType)
}

// run executes pre-processing, the grant type's verifiers and
// post-verification around the base claims {scope, sub=client id}.
func (p pipeline) run(
	ctx context.Context, tctx *reqctx.TokenContext, pre preProcessFunc, post postVerifyFunc,
) (*oauth.TokenClaims, error) {
	if tctx.Request.GrantType != p.grantType {
		return nil, fmt.Errorf("%s processor received a %q request", p.grantType, tctx.Request.GrantType)
	}

	if pre != nil {
		derived, err := pre(ctx, tctx)
		if err != nil {
			return nil, err
		}
		tctx = derived
	}

	if err := p.verifiers.Verify(ctx, p.grantType, tctx); err != nil {
		return nil, err
	}
	if tctx.Source == nil {
		return nil, oauth.ErrInvalidRequest.WithHint("The 'client_id' parameter is required.")
	}

	claims := &oauth.TokenClaims{
		Scope:   oauth.JoinScope(tctx.Request.Scope),
		Subject: tctx.Source.ClientID,
	}

	if post != nil {
		if err := post(ctx, tctx, claims); err != nil {
			return nil, err
		}
	}
	return claims, nil
}
