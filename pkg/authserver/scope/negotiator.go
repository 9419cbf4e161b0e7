// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scope decides the scope granted at each step of the
// authorization-code flow.
package scope

import (
	"slices"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
)

// Negotiator reconciles requested, authorized and relation-allowed scope.
type Negotiator struct{}

// NewNegotiator returns a Negotiator.
func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

// AtAuthorization picks the scope the subject authorizes for the client.
// Without an explicit request the subject's full authority set is used.
// The client's required scopes and the chosen scope must both be covered by
// the subject's authorities. The boolean reports whether the scope was
// requested explicitly.
func (*Negotiator) AtAuthorization(actx *reqctx.AuthorizationContext) ([]string, bool, error) {
	if actx.Subject == nil {
		return nil, false, oauth.ErrAccessDenied.WithHint("The resource owner is not authenticated.")
	}
	authorities := actx.Subject.Authorities

	if !oauth.IsSubset(actx.Client.RequiredScopes, authorities) {
		return nil, false, oauth.ErrAccessDenied.WithHintf(
			"Client %q requires scopes the resource owner does not hold.", actx.Client.ClientID)
	}

	requested := len(actx.Request.Scope) > 0
	chosen := authorities
	if requested {
		chosen = actx.Request.Scope
	}
	if !oauth.IsSubset(chosen, authorities) {
		return nil, false, oauth.ErrAccessDenied.WithHint("The requested scope exceeds the resource owner's authorities.")
	}
	return slices.Clone(chosen), requested, nil
}

// AtTokenExchange computes the scope granted when an authorization code is
// exchanged. The token request itself must not name a scope. The result is
// the authorized scope narrowed to the relation's ceiling. It is empty when
// no authorization was found or the two sets do not overlap; the grant
// rejects an empty result after the code has been verified.
func (*Negotiator) AtTokenExchange(tctx *reqctx.TokenContext) ([]string, error) {
	if len(tctx.Request.Scope) > 0 {
		return nil, oauth.ErrInvalidScope.WithHint("Scope is fixed at authorization and may not be sent with the code.")
	}
	if tctx.Authorization == nil {
		return nil, nil
	}

	authorized := tctx.Authorization.Scope
	allowed := tctx.AllowedScope()
	if oauth.IsProperSubset(allowed, authorized) {
		return slices.Clone(allowed), nil
	}
	return oauth.Intersect(authorized, allowed), nil
}
