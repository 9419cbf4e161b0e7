// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/keys"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/registry"
	"github.com/stacklok/oauthz/pkg/storage"
)

const batchSecret = "batch-secret"

var testKeys = sync.OnceValue(func() *keys.GeneratingProvider { return keys.NewGeneratingProvider(2048) })

func testConfig() *Config {
	return &Config{
		Issuer: "https://auth.example.com",
		Clients: []oauth.Client{
			{Name: "batch", Type: oauth.ApplicationTypeService, ClientID: "batch", ClientSecret: batchSecret},
			{
				Name: "orders", Type: oauth.ApplicationTypeService, ClientID: "orders", Audience: "orders",
				RegisteredScopes: []string{"orders:read", "orders:write"},
				AllowedRelations: []oauth.AllowRelation{
					{ConsumerName: "batch", AllowedScopes: []string{"orders:read"}},
				},
			},
		},
		Users: []identity.User{
			{ID: 1, Username: "ada", Password: "lovelace", Authorities: []string{"orders:read"}},
		},
	}
}

func newServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	s, err := New(context.Background(), cfg, WithKeyProvider(testKeys()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fetchToken(t *testing.T, baseURL string) (*oauth2.Token, error) {
	t.Helper()
	cfg := clientcredentials.Config{
		ClientID:       "batch",
		ClientSecret:   batchSecret,
		TokenURL:       baseURL + "/oauth/token",
		Scopes:         []string{"orders:read"},
		EndpointParams: url.Values{"audience": {"orders"}},
		AuthStyle:      oauth2.AuthStyleInHeader,
	}
	return cfg.Token(context.Background())
}

func TestNew_StaticRegistry(t *testing.T) {
	t.Parallel()

	s := newServer(t, testConfig())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	tok, err := fetchToken(t, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "orders:read", tok.Extra("scope"))

	resp, err := s.Service().Introspect(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.True(t, resp.Active)
	assert.Equal(t, "batch", resp.ClientID)

	imported, err := s.Import(context.Background())
	require.NoError(t, err)
	assert.False(t, imported, "static registry has nothing to import")
}

func TestNew_PersistentRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		storageType storage.Type
		noDatabase  bool
	}{
		{name: "sqlite storage", storageType: storage.TypeSQLite},
		{name: "memory storage", storageType: storage.TypeMemory},
		{name: "memory storage without database", storageType: storage.TypeMemory, noDatabase: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			cfg := testConfig()
			cfg.Storage.Type = tt.storageType
			if !tt.noDatabase {
				cfg.Database.Path = filepath.Join(t.TempDir(), "oauthz.db")
			}
			cfg.Registry.Backend = registry.BackendPersistent

			s := newServer(t, cfg)
			assert.Equal(t, !tt.noDatabase, s.backends.database != nil)
			srv := httptest.NewServer(s.Handler())
			t.Cleanup(srv.Close)

			_, err := fetchToken(t, srv.URL)
			var retrieveErr *oauth2.RetrieveError
			require.True(t, errors.As(err, &retrieveErr), "clients are unknown before the import")
			assert.Equal(t, "invalid_client", retrieveErr.ErrorCode)

			imported, err := s.AutoImport(ctx)
			require.NoError(t, err)
			assert.False(t, imported, "autoImport is disabled")

			imported, err = s.Import(ctx)
			require.NoError(t, err)
			assert.True(t, imported)

			imported, err = s.Import(ctx)
			require.NoError(t, err)
			assert.False(t, imported, "a populated database is left alone")

			tok, err := fetchToken(t, srv.URL)
			require.NoError(t, err)
			assert.Equal(t, "orders:read", tok.Extra("scope"))
		})
	}
}

func TestNew_PersistentRegistrySurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := testConfig()
	cfg.Storage.Type = storage.TypeSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "oauthz.db")
	cfg.Registry.Backend = registry.BackendPersistent
	cfg.Registry.AutoImport = true

	first, err := New(ctx, cfg, WithKeyProvider(testKeys()))
	require.NoError(t, err)
	imported, err := first.AutoImport(ctx)
	require.NoError(t, err)
	assert.True(t, imported)

	srv := httptest.NewServer(first.Handler())
	tok, err := fetchToken(t, srv.URL)
	require.NoError(t, err)
	srv.Close()
	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	second := newServer(t, cfg)
	imported, err = second.AutoImport(ctx)
	require.NoError(t, err)
	assert.False(t, imported)

	resp, err := second.Service().Introspect(ctx, tok.AccessToken)
	require.NoError(t, err)
	assert.True(t, resp.Active, "token records are persisted in sqlite")
}

func TestNew_RedisStorage(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Storage.Type = storage.TypeRedis
	cfg.Storage.Redis.Address = mr.Addr()
	cfg.Storage.Redis.KeyPrefix = "srv:"

	s := newServer(t, cfg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	_, err := fetchToken(t, srv.URL)
	require.NoError(t, err)

	stored := mr.Keys()
	require.NotEmpty(t, stored)
	for _, k := range stored {
		assert.Regexp(t, `^srv:`, k)
	}

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "configuration is required"},
		{
			name: "invalid config",
			cfg: func() *Config {
				c := testConfig()
				c.Issuer = ""
				return c
			}(),
			wantErr: "invalid configuration",
		},
		{
			name: "duplicate user",
			cfg: func() *Config {
				c := testConfig()
				c.Users = append(c.Users, c.Users[0])
				return c
			}(),
			wantErr: "users:",
		},
		{
			name: "missing key directory",
			cfg: func() *Config {
				c := testConfig()
				c.Keys.KeyDir = filepath.Join(t.TempDir(), "missing")
				c.Keys.SigningKeyFile = "key.pem"
				return c
			}(),
			wantErr: "loading signing keys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(context.Background(), tt.cfg)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNew_MetricsRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := New(context.Background(), testConfig(), WithKeyProvider(testKeys()), WithPrometheusRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	_, err = fetchToken(t, srv.URL)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "oauthz_tokens_issued_total")

	// The same registry cannot host a second server.
	_, err = New(context.Background(), testConfig(), WithKeyProvider(testKeys()), WithPrometheusRegistry(reg))
	require.ErrorContains(t, err, "registering metrics")
}

func TestConnectStorage_GivesUp(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := connectStorage(ctx, &storage.Config{
		Type:  storage.TypeRedis,
		Redis: storage.RedisConfig{Address: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond},
	})
	require.ErrorContains(t, err, "connecting to redis")
}

func TestServer_Serve(t *testing.T) {
	t.Parallel()

	s := newServer(t, testConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	baseURL := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	_, err = fetchToken(t, baseURL)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
