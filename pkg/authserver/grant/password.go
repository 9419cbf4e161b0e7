// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
	"github.com/stacklok/oauthz/pkg/authserver/verifier"
)

// Password issues tokens for resource-owner credentials.
type Password struct {
	pipeline
	authenticator identity.Authenticator
}

// NewPassword creates the password processor.
func NewPassword(verifiers *verifier.Registry, authenticator identity.Authenticator) *Password {
	return &Password{
		pipeline:      pipeline{grantType: oauth.GrantTypePassword, verifiers: verifiers},
		authenticator: authenticator,
	}
}

// ProcessTokenRequest authenticates the resource owner, defaults an empty
// scope to the owner's authorities and stamps the user claims.
func (p *Password) ProcessTokenRequest(ctx context.Context, tctx *reqctx.TokenContext) (*oauth.TokenClaims, error) {
	return p.run(ctx, tctx, p.authenticate, stampUser)
}

func (p *Password) authenticate(ctx context.Context, tctx *reqctx.TokenContext) (*reqctx.TokenContext, error) {
	req := tctx.Request
	if req.Username == "" || req.Password == "" {
		// Reported as invalid_request by the field verifier.
		return tctx, nil
	}

	subject, err := p.authenticator.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return nil, oauth.ErrAccessDenied.WithHint("Bad credentials.").WithWrap(err)
	}
	if err != nil {
		return nil, fmt.Errorf("authenticating %q: %w", req.Username, err)
	}

	if len(req.Scope) == 0 {
		req = req.WithScope(subject.Authorities)
	}
	return tctx.WithRequest(req).WithSubject(subject), nil
}

// stampUser replaces the subject with the user-bound form and adds the user
// claims.
func stampUser(_ context.Context, tctx *reqctx.TokenContext, claims *oauth.TokenClaims) error {
	if tctx.Subject == nil {
		return oauth.ErrAccessDenied.WithHint("The resource owner is not authenticated.")
	}
	claims.SetUser(tctx.Source.ClientID, tctx.Subject)
	return nil
}
