// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// TokenHandler handles POST /oauth/token requests.
func (h *Handler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, oauth.ErrInvalidRequest.WithHint("The request body could not be parsed.").WithWrap(err))
		return
	}

	client, err := h.authenticateClient(r)
	if err != nil {
		writeError(w, err)
		return
	}

	grantType, err := oauth.ParseGrantType(r.PostForm.Get("grant_type"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.Token(r.Context(), oauth.TokenRequest{
		GrantType:   grantType,
		ClientID:    client.ClientID,
		Code:        r.PostForm.Get("code"),
		RedirectURI: r.PostForm.Get("redirect_uri"),
		Username:    r.PostForm.Get("username"),
		Password:    r.PostForm.Get("password"),
		Audience:    r.PostForm.Get("audience"),
		Scope:       oauth.ParseScope(r.PostForm.Get("scope")),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// IntrospectHandler handles POST /oauth/introspect requests (RFC 7662).
func (h *Handler) IntrospectHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := h.tokenParameter(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Introspect(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RevokeHandler handles POST /oauth/revoke requests.
func (h *Handler) RevokeHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := h.tokenParameter(w, r)
	if !ok {
		return
	}

	if err := h.service.Revoke(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// tokenParameter authenticates the calling client and returns the 'token'
// form parameter. Failures are written to w.
func (h *Handler) tokenParameter(w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseForm(); err != nil {
		writeError(w, oauth.ErrInvalidRequest.WithHint("The request body could not be parsed.").WithWrap(err))
		return "", false
	}
	if _, err := h.authenticateClient(r); err != nil {
		writeError(w, err)
		return "", false
	}

	token := r.PostForm.Get("token")
	if token == "" {
		writeError(w, oauth.ErrInvalidRequest.WithHint("The 'token' parameter is required."))
		return "", false
	}
	return token, true
}
