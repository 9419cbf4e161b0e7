// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stacklok/oauthz/pkg/authserver/keys"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// DefaultExpiration is the lifetime of access tokens when none is configured.
const DefaultExpiration = time.Hour

// accessTokenClaims is the wire form of an access token payload.
type accessTokenClaims struct {
	jwt.RegisteredClaims
	Scope    string `json:"scope,omitempty"`
	Username string `json:"name,omitempty"`
	Email    string `json:"usr,omitempty"`
	Role     string `json:"rol,omitempty"`
	UserID   int64  `json:"uid,omitempty"`
}

// Handler signs and parses RS256 access tokens.
type Handler struct {
	issuer     string
	keys       keys.KeyProvider
	tracker    *Tracker
	expiration time.Duration
	now        func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithExpiration sets the default token lifetime.
func WithExpiration(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.expiration = d
		}
	}
}

// WithHandlerClock overrides the handler's time source.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a handler signing with provider's current key and
// recording every issued token in tracker.
func NewHandler(issuer string, provider keys.KeyProvider, tracker *Tracker, opts ...HandlerOption) *Handler {
	h := &Handler{
		issuer:     issuer,
		keys:       provider,
		tracker:    tracker,
		expiration: DefaultExpiration,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Expiration returns the default token lifetime.
func (h *Handler) Expiration() time.Duration {
	return h.expiration
}

// GenerateToken signs claims with the default lifetime.
func (h *Handler) GenerateToken(ctx context.Context, req oauth.TokenRequest, claims *oauth.TokenClaims) (*oauth.TokenResponse, error) {
	return h.GenerateTokenWithExpiration(ctx, req, claims, h.expiration)
}

// GenerateTokenWithExpiration signs claims for req.Audience with a fresh
// token id and records the token before returning it.
func (h *Handler) GenerateTokenWithExpiration(
	ctx context.Context, req oauth.TokenRequest, claims *oauth.TokenClaims, expiration time.Duration,
) (*oauth.TokenResponse, error) {
	key, err := h.keys.SigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}

	now := h.now().Truncate(time.Second)
	expiresAt := now.Add(expiration)
	tokenID := uuid.NewString()

	payload := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    h.issuer,
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Scope:    claims.Scope,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
		UserID:   claims.UserID,
	}
	if req.Audience != "" {
		payload.Audience = jwt.ClaimStrings{req.Audience}
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, payload)
	tok.Header["kid"] = key.KeyID

	signed, err := tok.SignedString(key.Key)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	if err := h.tracker.StoreTokenInfo(ctx, tokenID, claims.Subject, now, expiresAt); err != nil {
		return nil, err
	}

	return &oauth.TokenResponse{
		AccessToken: signed,
		ExpiresIn:   int64(expiration / time.Second),
		Scope:       claims.Scope,
		TokenType:   oauth.TokenTypeBearer,
	}, nil
}

// ParseToken verifies the signature, issuer and lifetime of raw and maps its
// payload back to typed claims. Every failure wraps ErrTokenParse.
func (h *Handler) ParseToken(ctx context.Context, raw string) (*oauth.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(h.now),
		jwt.WithExpirationRequired(),
	}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}

	var payload accessTokenClaims
	_, err := jwt.ParseWithClaims(raw, &payload, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := keys.FindPublicKey(ctx, h.keys, kid)
		if err != nil {
			return nil, err
		}
		return key.PublicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenParse, err)
	}

	claims := &oauth.TokenClaims{
		TokenID:  payload.ID,
		Subject:  payload.Subject,
		Username: payload.Username,
		Email:    payload.Email,
		Role:     payload.Role,
		Scope:    payload.Scope,
		UserID:   payload.UserID,
	}
	if len(payload.Audience) > 0 {
		claims.Audience = payload.Audience[0]
	}
	if payload.IssuedAt != nil {
		claims.IssuedAt = payload.IssuedAt.Time
	}
	if payload.ExpiresAt != nil {
		claims.Expiration = payload.ExpiresAt.Time
	}
	return claims, nil
}
