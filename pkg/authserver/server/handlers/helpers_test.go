// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/oauthz/pkg/authserver/grant"
	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/keys"
	"github.com/stacklok/oauthz/pkg/authserver/metrics"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/registry"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
	"github.com/stacklok/oauthz/pkg/authserver/scope"
	"github.com/stacklok/oauthz/pkg/authserver/service"
	"github.com/stacklok/oauthz/pkg/authserver/token"
	"github.com/stacklok/oauthz/pkg/authserver/verifier"
	"github.com/stacklok/oauthz/pkg/storage"
)

const (
	testIssuer       = "https://auth.example.com"
	testRedirectURI  = "https://portal.example.com/callback"
	testBatchSecret  = "batch secret+/="
	testPortalSecret = "portal-secret"
)

var testKeys = sync.OnceValue(func() *keys.GeneratingProvider { return keys.NewGeneratingProvider(2048) })

type testServer struct {
	*httptest.Server
	handler *Handler
	store   *storage.MemoryStorage
}

// newTestServer wires the full engine behind an httptest server.
func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()

	store := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })

	clients, err := registry.NewStaticRegistry([]oauth.Client{
		{
			Name: "portal", Type: oauth.ApplicationTypeUI, ClientID: "portal", ClientSecret: testPortalSecret,
			Callbacks: []string{testRedirectURI},
		},
		{Name: "batch", Type: oauth.ApplicationTypeService, ClientID: "batch", ClientSecret: testBatchSecret},
		{Name: "public", Type: oauth.ApplicationTypeService, ClientID: "public"},
		{
			Name: "orders", Type: oauth.ApplicationTypeService, ClientID: "orders", Audience: "orders",
			RegisteredScopes: []string{"orders:read", "orders:write"},
			AllowedRelations: []oauth.AllowRelation{
				{ConsumerName: "portal", AllowedScopes: []string{"orders:read", "orders:write"}},
				{ConsumerName: "batch", AllowedScopes: []string{"orders:read"}},
			},
		},
	})
	require.NoError(t, err)

	users, err := identity.NewStaticAuthenticator([]identity.User{{
		ID: 9, Username: "grace", Password: "hopper", Email: "grace@example.com", Role: "admin",
		Authorities: []string{"orders:read", "orders:write"},
	}})
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	require.NoError(t, err)

	tracker := token.NewTracker(store, token.WithTrackerMetrics(m))
	tokens := token.NewHandler(testIssuer, testKeys(), tracker)
	verifiers := verifier.DefaultRegistry(store, nil)
	svc := service.New(
		reqctx.NewFactory(clients, store),
		grant.NewRegistry(
			grant.NewAuthorizationCode(verifiers, store, scope.NewNegotiator()),
			grant.NewClientCredentials(verifiers),
			grant.NewPassword(verifiers, users),
		),
		tokens, tracker, service.WithMetrics(m),
	)

	opts = append([]Option{WithGatherer(promReg), WithHealthCheck(store.Health)}, opts...)
	h := NewHandler(svc, clients, users, testKeys(), opts...)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, handler: h, store: store}
}

// parseToken verifies raw with the server's keys.
func parseToken(t *testing.T, raw string) *oauth.TokenClaims {
	t.Helper()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = store.Close() })
	claims, err := token.NewHandler(testIssuer, testKeys(), token.NewTracker(store)).ParseToken(context.Background(), raw)
	require.NoError(t, err)
	return claims
}
