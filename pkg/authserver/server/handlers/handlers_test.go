// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

func postForm(t *testing.T, srv *testServer, path string, form url.Values, clientID, secret string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientID != "" {
		req.SetBasicAuth(url.QueryEscape(clientID), url.QueryEscape(secret))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestClientCredentials_OAuth2Client(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	for _, style := range []oauth2.AuthStyle{oauth2.AuthStyleInHeader, oauth2.AuthStyleInParams} {
		cfg := clientcredentials.Config{
			ClientID:       "batch",
			ClientSecret:   testBatchSecret,
			TokenURL:       srv.URL + "/oauth/token",
			Scopes:         []string{"orders:read"},
			EndpointParams: url.Values{"audience": {"orders"}},
			AuthStyle:      style,
		}

		tok, err := cfg.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer", tok.TokenType)
		assert.Equal(t, "orders:read", tok.Extra("scope"))

		claims := parseToken(t, tok.AccessToken)
		assert.Equal(t, "batch", claims.Subject)
		assert.Equal(t, "orders", claims.Audience)
	}
}

func TestClientCredentials_Rejected(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	cfg := clientcredentials.Config{
		ClientID:       "batch",
		ClientSecret:   testBatchSecret,
		TokenURL:       srv.URL + "/oauth/token",
		Scopes:         []string{"orders:write"},
		EndpointParams: url.Values{"audience": {"orders"}},
		AuthStyle:      oauth2.AuthStyleInHeader,
	}
	_, err := cfg.Token(context.Background())
	var retrieveErr *oauth2.RetrieveError
	require.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, "access_denied", retrieveErr.ErrorCode)
	assert.Equal(t, http.StatusForbidden, retrieveErr.Response.StatusCode)
}

func TestTokenHandler_ClientAuthentication(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	form := url.Values{"grant_type": {"client_credentials"}, "audience": {"orders"}, "scope": {"orders:read"}}

	tests := []struct {
		name       string
		form       url.Values
		clientID   string
		secret     string
		wantStatus int
		wantError  string
	}{
		{name: "basic", form: form, clientID: "batch", secret: testBatchSecret, wantStatus: http.StatusOK},
		{
			name: "form", wantStatus: http.StatusOK,
			form: url.Values{
				"grant_type": {"client_credentials"}, "audience": {"orders"}, "scope": {"orders:read"},
				"client_id": {"batch"}, "client_secret": {testBatchSecret},
			},
		},
		{name: "wrong secret", form: form, clientID: "batch", secret: "nope", wantStatus: http.StatusUnauthorized, wantError: "invalid_client"},
		{name: "unknown client", form: form, clientID: "ghost", secret: "x", wantStatus: http.StatusUnauthorized, wantError: "invalid_client"},
		{name: "no secret configured", form: form, clientID: "public", secret: "", wantStatus: http.StatusUnauthorized, wantError: "invalid_client"},
		{name: "anonymous", form: form, wantStatus: http.StatusUnauthorized, wantError: "invalid_client"},
		{
			name: "conflicting client id", clientID: "batch", secret: testBatchSecret,
			form:       url.Values{"grant_type": {"client_credentials"}, "client_id": {"portal"}},
			wantStatus: http.StatusBadRequest, wantError: "invalid_request",
		},
		{
			name: "unknown grant type", clientID: "batch", secret: testBatchSecret,
			form:       url.Values{"grant_type": {"implicit"}},
			wantStatus: http.StatusBadRequest, wantError: "unsupported_grant_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := postForm(t, srv, "/oauth/token", tt.form, tt.clientID, tt.secret)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
			if tt.wantError == "" {
				body := decode[oauth.TokenResponse](t, resp)
				assert.NotEmpty(t, body.AccessToken)
				return
			}
			body := decode[errorResponse](t, resp)
			assert.Equal(t, tt.wantError, body.Error)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="oauthz"`, resp.Header.Get("WWW-Authenticate"))
			}
		})
	}
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	client := &http.Client{CheckRedirect: noRedirect}

	authorizeURL := srv.URL + "/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"portal"},
		"redirect_uri":  {testRedirectURI},
		"scope":         {"orders:read"},
		"state":         {"af0ifjsldkj"},
	}.Encode()

	req, err := http.NewRequest(http.MethodGet, authorizeURL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "login is required")
	assert.Equal(t, `Basic realm="oauthz"`, resp.Header.Get("WWW-Authenticate"))

	req.SetBasicAuth("grace", "hopper")
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "portal.example.com", location.Host)
	assert.Equal(t, "af0ifjsldkj", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	exchange := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {testRedirectURI},
		"audience":     {"orders"},
	}
	tokenResp := postForm(t, srv, "/oauth/token", exchange, "portal", testPortalSecret)
	require.Equal(t, http.StatusOK, tokenResp.StatusCode)
	body := decode[oauth.TokenResponse](t, tokenResp)
	assert.Equal(t, "orders:read", body.Scope)

	claims := parseToken(t, body.AccessToken)
	assert.Equal(t, "portal|uid=9", claims.Subject)
	assert.Equal(t, "grace", claims.Username)
	assert.Equal(t, "grace@example.com", claims.Email)

	replay := postForm(t, srv, "/oauth/token", exchange, "portal", testPortalSecret)
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
	assert.Equal(t, "invalid_grant", decode[errorResponse](t, replay).Error)
}

func TestAuthorizeHandler_Errors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	client := &http.Client{CheckRedirect: noRedirect}

	tests := []struct {
		name       string
		params     url.Values
		user       string
		password   string
		wantStatus int
		wantError  string
	}{
		{
			name:       "bad password",
			params:     url.Values{"response_type": {"code"}, "client_id": {"portal"}, "redirect_uri": {testRedirectURI}},
			user:       "grace",
			password:   "wrong",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unregistered redirect",
			params:     url.Values{"response_type": {"code"}, "client_id": {"portal"}, "redirect_uri": {"https://evil.example.com"}},
			user:       "grace",
			password:   "hopper",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name:       "implicit flow",
			params:     url.Values{"response_type": {"token"}, "client_id": {"portal"}, "redirect_uri": {testRedirectURI}},
			user:       "grace",
			password:   "hopper",
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_response_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/oauth/authorize?"+tt.params.Encode(), nil)
			require.NoError(t, err)
			req.SetBasicAuth(tt.user, tt.password)
			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Empty(t, resp.Header.Get("Location"))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode[errorResponse](t, resp).Error)
			}
		})
	}
}

func TestIntrospectAndRevoke(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	issued := postForm(t, srv, "/oauth/token", url.Values{
		"grant_type": {"password"}, "username": {"grace"}, "password": {"hopper"}, "audience": {"orders"},
	}, "portal", testPortalSecret)
	require.Equal(t, http.StatusOK, issued.StatusCode)
	tok := decode[oauth.TokenResponse](t, issued)
	assert.Equal(t, "orders:read orders:write", tok.Scope)

	// Resource servers without a secret cannot introspect.
	resp := postForm(t, srv, "/oauth/introspect", url.Values{"token": {tok.AccessToken}}, "orders", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	introspectAs := func(clientID, secret string) map[string]any {
		resp := postForm(t, srv, "/oauth/introspect", url.Values{"token": {tok.AccessToken}}, clientID, secret)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return decode[map[string]any](t, resp)
	}

	active := introspectAs("batch", testBatchSecret)
	assert.Equal(t, true, active["active"])
	assert.Equal(t, "grace", active["username"])
	assert.Equal(t, "portal", active["client_id"])
	assert.Contains(t, active, "exp")

	revoked := postForm(t, srv, "/oauth/revoke", url.Values{"token": {tok.AccessToken}}, "portal", testPortalSecret)
	assert.Equal(t, http.StatusOK, revoked.StatusCode)

	assert.Equal(t, map[string]any{"active": false}, introspectAs("batch", testBatchSecret))

	again := postForm(t, srv, "/oauth/revoke", url.Values{"token": {tok.AccessToken}}, "portal", testPortalSecret)
	assert.Equal(t, http.StatusForbidden, again.StatusCode)
	assert.Equal(t, "access_denied", decode[errorResponse](t, again).Error)

	missing := postForm(t, srv, "/oauth/introspect", url.Values{}, "batch", testBatchSecret)
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
}

func TestJWKSHandler(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "max-age=")

	jwks := decode[jose.JSONWebKeySet](t, resp)
	require.Len(t, jwks.Keys, 1)
	key := jwks.Keys[0]
	assert.Equal(t, "RS256", key.Algorithm)
	assert.Equal(t, "sig", key.Use)
	assert.True(t, key.IsPublic(), "JWKS should only contain public keys")

	signing, err := testKeys().SigningKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signing.KeyID, key.KeyID)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[healthResponse](t, resp).Status)
	_ = resp.Body.Close()

	issued := postForm(t, srv, "/oauth/token", url.Values{
		"grant_type": {"client_credentials"}, "audience": {"orders"}, "scope": {"orders:read"},
	}, "batch", testBatchSecret)
	require.Equal(t, http.StatusOK, issued.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `oauthz_tokens_issued_total{grant_type="client_credentials"} 1`)
}

func TestHealth_Unavailable(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, WithHealthCheck(func(context.Context) error { return errors.New("redis unreachable") }))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[healthResponse](t, resp)
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "redis unreachable", body.Error)
}
