// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package verifier

import (
	"context"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
)

// ApplicationType admits only UI clients to the authorization endpoint.
type ApplicationType struct{}

// Verify implements AuthorizationVerifier.
func (ApplicationType) Verify(_ context.Context, actx *reqctx.AuthorizationContext) error {
	if actx.Client.Type != oauth.ApplicationTypeUI {
		return oauth.ErrUnauthorizedClient.WithHintf("Client %q is not a UI application.", actx.Client.ClientID)
	}
	return nil
}

// RedirectURI requires a registered callback.
type RedirectURI struct{}

// Verify implements AuthorizationVerifier.
func (RedirectURI) Verify(_ context.Context, actx *reqctx.AuthorizationContext) error {
	if !actx.Client.HasCallback(actx.Request.RedirectURI) {
		return oauth.ErrInvalidRequest.WithHintf("Redirect URI %q is not registered for client %q.",
			actx.Request.RedirectURI, actx.Client.ClientID)
	}
	return nil
}

// ResponseType requires response_type=code.
type ResponseType struct{}

// Verify implements AuthorizationVerifier.
func (ResponseType) Verify(_ context.Context, actx *reqctx.AuthorizationContext) error {
	_, err := oauth.ParseResponseType(actx.Request.ResponseType)
	return err
}

// SubjectScope requires an authenticated subject whose authorities cover the
// requested scope.
type SubjectScope struct{}

// Verify implements AuthorizationVerifier.
func (SubjectScope) Verify(_ context.Context, actx *reqctx.AuthorizationContext) error {
	if actx.Subject == nil {
		return oauth.ErrAccessDenied.WithHint("The resource owner is not authenticated.")
	}
	if !oauth.IsSubset(actx.Request.Scope, actx.Subject.Authorities) {
		return oauth.ErrAccessDenied.WithHint("The requested scope exceeds the resource owner's authorities.")
	}
	return nil
}
