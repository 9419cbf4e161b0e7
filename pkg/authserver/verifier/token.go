// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package verifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
	"github.com/stacklok/oauthz/pkg/storage"
)

// RequiredFields requires client_id and audience on every token request.
type RequiredFields struct{ grants }

// NewRequiredFields returns a RequiredFields verifier for every grant type.
func NewRequiredFields() *RequiredFields {
	return &RequiredFields{grants: allGrants}
}

// Verify implements Verifier.
func (*RequiredFields) Verify(_ context.Context, tctx *reqctx.TokenContext) error {
	if tctx.Request.ClientID == "" {
		return oauth.ErrInvalidRequest.WithHint("The 'client_id' parameter is required.")
	}
	if tctx.Request.Audience == "" {
		return oauth.ErrInvalidRequest.WithHint("The 'audience' parameter is required.")
	}
	return nil
}

// AuthorizationCodeFields requires code and redirect_uri.
type AuthorizationCodeFields struct{ grants }

// NewAuthorizationCodeFields returns an AuthorizationCodeFields verifier.
func NewAuthorizationCodeFields() *AuthorizationCodeFields {
	return &AuthorizationCodeFields{grants: grants{oauth.GrantTypeAuthorizationCode}}
}

// Verify implements Verifier.
func (*AuthorizationCodeFields) Verify(_ context.Context, tctx *reqctx.TokenContext) error {
	if tctx.Request.Code == "" {
		return oauth.ErrInvalidRequest.WithHint("The 'code' parameter is required.")
	}
	if tctx.Request.RedirectURI == "" {
		return oauth.ErrInvalidRequest.WithHint("The 'redirect_uri' parameter is required.")
	}
	return nil
}

// PasswordFields requires username and password.
type PasswordFields struct{ grants }

// NewPasswordFields returns a PasswordFields verifier.
func NewPasswordFields() *PasswordFields {
	return &PasswordFields{grants: grants{oauth.GrantTypePassword}}
}

// Verify implements Verifier.
func (*PasswordFields) Verify(_ context.Context, tctx *reqctx.TokenContext) error {
	if tctx.Request.Username == "" || tctx.Request.Password == "" {
		return oauth.ErrInvalidRequest.WithHint("The 'username' and 'password' parameters are required.")
	}
	return nil
}

// ClientCredentialsScope requires a non-empty scope.
type ClientCredentialsScope struct{ grants }

// NewClientCredentialsScope returns a ClientCredentialsScope verifier.
func NewClientCredentialsScope() *ClientCredentialsScope {
	return &ClientCredentialsScope{grants: grants{oauth.GrantTypeClientCredentials}}
}

// Verify implements Verifier.
func (*ClientCredentialsScope) Verify(_ context.Context, tctx *reqctx.TokenContext) error {
	if len(tctx.Request.Scope) == 0 {
		return oauth.ErrInvalidScope.WithHint("The 'scope' parameter is required.")
	}
	return nil
}

// RelationScope caps the requested scope at the relation's allowed scope.
type RelationScope struct{ grants }

// NewRelationScope returns a RelationScope verifier for every grant type.
func NewRelationScope() *RelationScope {
	return &RelationScope{grants: allGrants}
}

// Verify implements Verifier.
func (*RelationScope) Verify(_ context.Context, tctx *reqctx.TokenContext) error {
	if !oauth.IsSubset(tctx.Request.Scope, tctx.AllowedScope()) {
		return oauth.ErrAccessDenied.WithHintf("Client %q may not request scope %q for audience %q.",
			tctx.Request.ClientID, oauth.JoinScope(tctx.Request.Scope), tctx.Request.Audience)
	}
	return nil
}

// RegisteredScope caps the requested scope at the target's registered scopes.
// Relations are validated against registered scopes when clients are loaded;
// the check is repeated here on every request.
type RegisteredScope struct{ grants }

// NewRegisteredScope returns a RegisteredScope verifier for every grant type.
func NewRegisteredScope() *RegisteredScope {
	return &RegisteredScope{grants: allGrants}
}

// Verify implements Verifier.
func (*RegisteredScope) Verify(_ context.Context, tctx *reqctx.TokenContext) error {
	var registered []string
	if tctx.Target != nil {
		registered = tctx.Target.RegisteredScopes
	}
	if !oauth.IsSubset(tctx.Request.Scope, registered) {
		return oauth.ErrInvalidScope.WithHintf("Audience %q does not offer scope %q.",
			tctx.Request.Audience, oauth.JoinScope(tctx.Request.Scope))
	}
	return nil
}

// OngoingAuthorization checks the authorization a code referred to. Any
// mismatch deletes the authorization so the code cannot be retried with
// different parameters.
type OngoingAuthorization struct {
	grants
	store storage.AuthorizationStore
	now   func() time.Time
}

// NewOngoingAuthorization returns an OngoingAuthorization verifier deleting
// rejected authorizations from store.
func NewOngoingAuthorization(store storage.AuthorizationStore, now func() time.Time) *OngoingAuthorization {
	if now == nil {
		now = time.Now
	}
	return &OngoingAuthorization{
		grants: grants{oauth.GrantTypeAuthorizationCode},
		store:  store,
		now:    now,
	}
}

// Verify implements Verifier.
func (v *OngoingAuthorization) Verify(ctx context.Context, tctx *reqctx.TokenContext) error {
	authz := tctx.Authorization
	if authz == nil {
		return oauth.ErrInvalidGrant.WithHint("The authorization code is unknown or was already used.")
	}

	var hint string
	switch {
	case authz.ClientID != tctx.Request.ClientID:
		hint = "The authorization code was issued to another client."
	case authz.RedirectURI != tctx.Request.RedirectURI:
		hint = "The 'redirect_uri' parameter does not match the authorization request."
	case authz.IsExpired(v.now()):
		hint = "The authorization code has expired."
	default:
		return nil
	}

	if err := v.store.DeleteAuthorization(ctx, authz.Code); err != nil {
		slog.Warn("failed to delete rejected authorization", "client_id", authz.ClientID, "error", err)
	}
	return oauth.ErrInvalidGrant.WithHint(hint)
}
