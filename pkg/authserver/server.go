// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserver wires the OAuth2 authorization server: configuration,
// storage, client registry, grant flows, token handling and the HTTP surface.
package authserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/oauthz/pkg/authserver/grant"
	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/keys"
	"github.com/stacklok/oauthz/pkg/authserver/metrics"
	"github.com/stacklok/oauthz/pkg/authserver/registry"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
	"github.com/stacklok/oauthz/pkg/authserver/scope"
	"github.com/stacklok/oauthz/pkg/authserver/server/handlers"
	"github.com/stacklok/oauthz/pkg/authserver/service"
	"github.com/stacklok/oauthz/pkg/authserver/token"
	"github.com/stacklok/oauthz/pkg/authserver/verifier"
	"github.com/stacklok/oauthz/pkg/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Server is a fully wired authorization server.
type Server struct {
	cfg      Config
	backends *backends
	importer *registry.Importer
	tracker  *token.Tracker
	service  *service.Service
	handler  *handlers.Handler

	closeOnce sync.Once
	closeErr  error
}

// Option configures New.
type Option func(*options)

type options struct {
	keys     keys.KeyProvider
	registry *prometheus.Registry
}

// WithKeyProvider signs tokens with provider instead of the configured keys.
func WithKeyProvider(provider keys.KeyProvider) Option {
	return func(o *options) {
		o.keys = provider
	}
}

// WithPrometheusRegistry registers the server metrics with reg and serves
// them on /metrics. A private registry is used by default.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// New validates cfg, opens storage and builds the server. The caller must
// Close the returned server.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	c := *cfg
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	provider := o.keys
	if provider == nil {
		if c.Keys.KeyDir == "" {
			logger.Warnw("no key directory configured, signing with an ephemeral key")
		}
		var err error
		if provider, err = keys.NewProviderFromConfig(c.Keys); err != nil {
			return nil, fmt.Errorf("loading signing keys: %w", err)
		}
	}

	users, err := identity.NewStaticAuthenticator(c.Users)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}

	m, err := metrics.New(o.registry)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	b, err := openBackends(ctx, &c)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: c, backends: b}

	var clients registry.ClientRegistry
	switch c.Registry.Backend {
	case registry.BackendPersistent:
		repo, err := b.clientRepository()
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("clients: %w", err)
		}
		clients = registry.NewPersistentRegistry(repo)
		s.importer = registry.NewImporter(repo, c.Clients)
	default:
		static, err := registry.NewStaticRegistry(c.Clients)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("clients: %w", err)
		}
		clients = static
	}

	s.tracker = token.NewTracker(b.store,
		token.WithCleanupInterval(c.Tokens.CleanupInterval),
		token.WithTrackerMetrics(m),
	)
	tokens := token.NewHandler(c.Issuer, provider, s.tracker, token.WithExpiration(c.Tokens.Expiration))

	verifiers := verifier.DefaultRegistry(b.store, nil)
	s.service = service.New(
		reqctx.NewFactory(clients, b.store),
		grant.NewRegistry(
			grant.NewAuthorizationCode(verifiers, b.store, scope.NewNegotiator(),
				grant.WithCodeTTL(c.Tokens.AuthorizationCodeTTL)),
			grant.NewClientCredentials(verifiers),
			grant.NewPassword(verifiers, users),
		),
		tokens, s.tracker,
		service.WithMetrics(m),
	)
	s.handler = handlers.NewHandler(s.service, clients, users, provider,
		handlers.WithGatherer(o.registry),
		handlers.WithHealthCheck(b.Health),
	)

	logger.Infow("authorization server configured",
		"issuer", c.Issuer,
		"storage", c.Storage.Type,
		"registry", c.Registry.Backend,
	)
	return s, nil
}

// Service returns the grant-flow engine.
func (s *Server) Service() *service.Service {
	return s.service
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.handler.Routes()
}

// Import copies the configured clients into an empty database. It reports
// whether clients were imported and is a no-op for the static registry.
func (s *Server) Import(ctx context.Context) (bool, error) {
	return s.importClients(ctx, true)
}

// AutoImport runs Import when registry.autoImport is enabled.
func (s *Server) AutoImport(ctx context.Context) (bool, error) {
	return s.importClients(ctx, s.cfg.Registry.AutoImport)
}

func (s *Server) importClients(ctx context.Context, enabled bool) (bool, error) {
	if s.importer == nil {
		logger.Debugw("static client registry in use, nothing to import")
		return false, nil
	}
	imported, err := s.importer.ImportIfEmpty(ctx, enabled)
	if err != nil {
		return false, fmt.Errorf("importing clients: %w", err)
	}
	return imported, nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln and runs the token cleanup loop until ctx is
// cancelled, then shuts the HTTP server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("authorization server listening", "address", ln.Addr().String(), "issuer", s.cfg.Issuer)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.tracker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("shutting down authorization server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close stops the cleanup loop and releases storage. It is safe to call
// more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.tracker.Close()
		s.closeErr = s.backends.Close()
	})
	return s.closeErr
}
