// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/keys"
	"github.com/stacklok/oauthz/pkg/authserver/registry"
	"github.com/stacklok/oauthz/pkg/authserver/service"
)

// Realm is announced in Basic authentication challenges.
const Realm = "oauthz"

// Handler provides HTTP handlers for the authorization server endpoints.
type Handler struct {
	service  *service.Service
	clients  registry.ClientRegistry
	users    identity.Authenticator
	keys     keys.KeyProvider
	gatherer prometheus.Gatherer
	health   func(ctx context.Context) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithGatherer exposes the collectors of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// WithHealthCheck makes /health report the result of check.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(h *Handler) {
		h.health = check
	}
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(
	svc *service.Service,
	clients registry.ClientRegistry,
	users identity.Authenticator,
	provider keys.KeyProvider,
	opts ...Option,
) *Handler {
	h := &Handler{
		service:  svc,
		clients:  clients,
		users:    users,
		keys:     provider,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns a router with all endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.OAuthRoutes(r)
	h.WellKnownRoutes(r)
	h.OperationalRoutes(r)
	return r
}

// OAuthRoutes registers the OAuth endpoints on r.
func (h *Handler) OAuthRoutes(r chi.Router) {
	r.With(h.authenticateUser).Get("/oauth/authorize", h.AuthorizeHandler)
	r.Post("/oauth/token", h.TokenHandler)
	r.Post("/oauth/introspect", h.IntrospectHandler)
	r.Post("/oauth/revoke", h.RevokeHandler)
}

// WellKnownRoutes registers the JWKS endpoint on r.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get("/.well-known/jwks.json", h.JWKSHandler)
}

// OperationalRoutes registers /health and /metrics on r.
func (h *Handler) OperationalRoutes(r chi.Router) {
	r.Get("/health", h.HealthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}
