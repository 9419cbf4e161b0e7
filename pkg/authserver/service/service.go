// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package service is the entry point of the grant engine. It resolves
// request contexts, dispatches to grant processors, signs tokens and shapes
// the responses of the authorize, token, introspect and revoke operations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ory/fosite"

	"github.com/stacklok/oauthz/pkg/authserver/grant"
	"github.com/stacklok/oauthz/pkg/authserver/metrics"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
	"github.com/stacklok/oauthz/pkg/authserver/token"
)

// Endpoint labels used for failure metrics.
const (
	EndpointAuthorize  = "authorize"
	EndpointToken      = "token"
	EndpointIntrospect = "introspect"
	EndpointRevoke     = "revoke"
)

// Service orchestrates the grant engine.
type Service struct {
	contexts *reqctx.Factory
	grants   *grant.Registry
	tokens   *token.Handler
	tracker  *token.Tracker
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records issued tokens and failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source used to check tracked expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service.
func New(
	contexts *reqctx.Factory,
	grants *grant.Registry,
	tokens *token.Handler,
	tracker *token.Tracker,
	opts ...Option,
) *Service {
	s := &Service{
		contexts: contexts,
		grants:   grants,
		tokens:   tokens,
		tracker:  tracker,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize runs the authorize step of the authorization-code flow for the
// authenticated subject. A nil subject is rejected as access_denied.
func (s *Service) Authorize(
	ctx context.Context, req oauth.AuthorizationRequest, subject *oauth.Subject,
) (*oauth.AuthorizationResponse, error) {
	processor, err := s.grants.Get(oauth.GrantTypeAuthorizationCode)
	if err != nil {
		return nil, s.fail(EndpointAuthorize, err)
	}

	actx, err := s.contexts.NewAuthorizationContext(ctx, req, subject)
	if err != nil {
		return nil, s.fail(EndpointAuthorize, err)
	}

	resp, err := processor.ProcessAuthorizationRequest(ctx, actx)
	if err != nil {
		return nil, s.fail(EndpointAuthorize, err)
	}

	s.metrics.CodeIssued()
	return resp, nil
}

// Token runs a token request through the processor of its grant type and
// signs the resulting claims. The client secret must already have been
// checked by the caller.
func (s *Service) Token(ctx context.Context, req oauth.TokenRequest) (*oauth.TokenResponse, error) {
	processor, err := s.grants.Get(req.GrantType)
	if err != nil {
		return nil, s.fail(EndpointToken, err)
	}

	tctx, err := s.contexts.NewTokenContext(ctx, req)
	if err != nil {
		return nil, s.fail(EndpointToken, err)
	}

	claims, err := processor.ProcessTokenRequest(ctx, tctx)
	if err != nil {
		return nil, s.fail(EndpointToken, err)
	}

	resp, err := s.tokens.GenerateToken(ctx, req, claims)
	if err != nil {
		return nil, s.fail(EndpointToken, err)
	}

	s.metrics.TokenIssued(string(req.GrantType))
	slog.Debug("token issued", "grant_type", req.GrantType, "client_id", req.ClientID, "audience", req.Audience)
	return resp, nil
}

// Introspect reports whether raw is a valid, tracked, unrevoked and
// unexpired token. Tokens that do not parse are reported inactive.
func (s *Service) Introspect(ctx context.Context, raw string) (*oauth.IntrospectionResponse, error) {
	inactive := &oauth.IntrospectionResponse{Active: false}

	claims, err := s.tokens.ParseToken(ctx, raw)
	if errors.Is(err, token.ErrTokenParse) {
		slog.Debug("introspected token does not parse", "error", err)
		return inactive, nil
	}
	if err != nil {
		return nil, s.fail(EndpointIntrospect, err)
	}

	info, found, err := s.tracker.RetrieveTokenInfo(ctx, claims.TokenID)
	if err != nil {
		return nil, s.fail(EndpointIntrospect, err)
	}
	if !found || info.Status != oauth.TokenStatusActive || info.IsExpired(s.now()) {
		return inactive, nil
	}

	return &oauth.IntrospectionResponse{
		Active:   true,
		Username: claims.Username,
		ClientID: claims.ClientID(),
		Exp:      claims.Expiration.Unix(),
	}, nil
}

// Revoke revokes the token raw. Tokens that do not parse are rejected as
// invalid_request; unknown and already revoked tokens as access_denied.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	claims, err := s.tokens.ParseToken(ctx, raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenParse) {
			err = oauth.ErrInvalidRequest.WithHint("The token could not be parsed.").WithWrap(err)
		}
		return s.fail(EndpointRevoke, err)
	}

	if err := s.tracker.RevokeToken(ctx, claims.TokenID); err != nil {
		return s.fail(EndpointRevoke, err)
	}
	slog.Info("token revoked", "jti", claims.TokenID, "sub", claims.Subject)
	return nil
}

// fail converts err into an OAuth error and records it. Errors outside the
// OAuth taxonomy become server_error and are logged.
func (s *Service) fail(endpoint string, err error) *fosite.RFC6749Error {
	rfcErr := oauth.AsRFC6749(err)
	if rfcErr.ErrorField == fosite.ErrServerError.ErrorField {
		slog.Error("request failed", "endpoint", endpoint, "error", err)
	} else {
		slog.Debug("request rejected", "endpoint", endpoint, "error", rfcErr.ErrorField, "hint", rfcErr.HintField)
	}
	s.metrics.RequestFailed(endpoint, rfcErr.ErrorField)
	return rfcErr
}
