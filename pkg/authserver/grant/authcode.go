// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
	"github.com/stacklok/oauthz/pkg/authserver/scope"
	"github.com/stacklok/oauthz/pkg/authserver/verifier"
	"github.com/stacklok/oauthz/pkg/storage"
)

// DefaultCodeTTL is how long an authorization code can be exchanged.
const DefaultCodeTTL = 5 * time.Minute

// maxCodeAttempts bounds retries when a freshly minted code collides.
const maxCodeAttempts = 3

// AuthorizationCode implements the authorization-code grant.
type AuthorizationCode struct {
	pipeline
	authorizations storage.AuthorizationStore
	negotiator     *scope.Negotiator
	authzVerifiers []verifier.AuthorizationVerifier
	codeTTL        time.Duration
	now            func() time.Time
	newCode        func() string
}

// AuthorizationCodeOption configures an AuthorizationCode processor.
type AuthorizationCodeOption func(*AuthorizationCode)

// WithCodeTTL sets the lifetime of authorization codes.
func WithCodeTTL(ttl time.Duration) AuthorizationCodeOption {
	return func(p *AuthorizationCode) {
		if ttl > 0 {
			p.codeTTL = ttl
		}
	}
}

// WithClock overrides the processor's time source.
func WithClock(now func() time.Time) AuthorizationCodeOption {
	return func(p *AuthorizationCode) {
		p.now = now
	}
}

// WithAuthorizationVerifiers replaces the /authorize verifiers.
func WithAuthorizationVerifiers(verifiers ...verifier.AuthorizationVerifier) AuthorizationCodeOption {
	return func(p *AuthorizationCode) {
		p.authzVerifiers = verifiers
	}
}

// NewAuthorizationCode creates the authorization-code processor.
func NewAuthorizationCode(
	verifiers *verifier.Registry,
	authorizations storage.AuthorizationStore,
	negotiator *scope.Negotiator,
	opts ...AuthorizationCodeOption,
) *AuthorizationCode {
	p := &AuthorizationCode{
		pipeline:       pipeline{grantType: oauth.GrantTypeAuthorizationCode, verifiers: verifiers},
		authorizations: authorizations,
		negotiator:     negotiator,
		authzVerifiers: verifier.DefaultAuthorizationVerifiers(),
		codeTTL:        DefaultCodeTTL,
		now:            time.Now,
		newCode:        rand.Text,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessAuthorizationRequest verifies the request, negotiates the scope and
// records an ongoing authorization under a fresh code.
func (p *AuthorizationCode) ProcessAuthorizationRequest(
	ctx context.Context, actx *reqctx.AuthorizationContext,
) (*oauth.AuthorizationResponse, error) {
	if err := verifier.VerifyAuthorization(ctx, actx, p.authzVerifiers...); err != nil {
		return nil, err
	}

	granted, requested, err := p.negotiator.AtAuthorization(actx)
	if err != nil {
		return nil, err
	}

	authz := &oauth.OngoingAuthorization{
		ClientID:       actx.Client.ClientID,
		RedirectURI:    actx.Request.RedirectURI,
		Subject:        actx.Subject.Clone(),
		ExpiresAt:      p.now().Add(p.codeTTL),
		Scope:          granted,
		ScopeRequested: requested,
	}
	if err := p.storeWithFreshCode(ctx, authz); err != nil {
		return nil, err
	}

	slog.Debug("authorization code issued", "client_id", authz.ClientID, "user_id", authz.Subject.ID)
	return &oauth.AuthorizationResponse{
		RedirectURI: actx.Request.RedirectURI,
		Code:        authz.Code,
		State:       actx.Request.State,
	}, nil
}

func (p *AuthorizationCode) storeWithFreshCode(ctx context.Context, authz *oauth.OngoingAuthorization) error {
	for range maxCodeAttempts {
		authz.Code = p.newCode()
		err := p.authorizations.StoreAuthorization(ctx, authz)
		if errors.Is(err, storage.ErrAlreadyExists) {
			slog.Warn("authorization code collision, retrying", "client_id", authz.ClientID)
			continue
		}
		if err != nil {
			return fmt.Errorf("storing ongoing authorization: %w", err)
		}
		return nil
	}
	return fmt.Errorf("could not mint a unique authorization code after %d attempts", maxCodeAttempts)
}

// ProcessTokenRequest exchanges a code: the negotiated scope is injected into
// a derived request, the user claims are taken from the stored subject and the
// ongoing authorization is deleted last. An empty negotiated scope is
// rejected with invalid_scope once the code itself has been verified.
func (p *AuthorizationCode) ProcessTokenRequest(ctx context.Context, tctx *reqctx.TokenContext) (*oauth.TokenClaims, error) {
	return p.run(ctx, tctx, p.injectScope, p.finish)
}

func (p *AuthorizationCode) injectScope(_ context.Context, tctx *reqctx.TokenContext) (*reqctx.TokenContext, error) {
	granted, err := p.negotiator.AtTokenExchange(tctx)
	if err != nil {
		return nil, err
	}
	if tctx.Authorization == nil {
		return tctx, nil
	}
	return tctx.WithRequest(tctx.Request.WithScope(granted)).WithSubject(tctx.Authorization.Subject), nil
}

func (p *AuthorizationCode) finish(ctx context.Context, tctx *reqctx.TokenContext, claims *oauth.TokenClaims) error {
	if len(tctx.Request.Scope) == 0 {
		if err := p.authorizations.DeleteAuthorization(ctx, tctx.Authorization.Code); err != nil {
			return fmt.Errorf("deleting ongoing authorization: %w", err)
		}
		return oauth.ErrInvalidScope.WithHint("The authorized scope does not overlap the scope allowed for this client.")
	}
	if err := stampUser(ctx, tctx, claims); err != nil {
		return err
	}
	if err := p.authorizations.DeleteAuthorization(ctx, tctx.Authorization.Code); err != nil {
		return fmt.Errorf("deleting ongoing authorization: %w", err)
	}
	return nil
}
