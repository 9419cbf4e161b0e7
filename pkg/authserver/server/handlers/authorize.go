// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// authenticateUser logs the resource owner in through HTTP Basic and stores
// the subject in the request context. Requests without credentials are
// challenged.
func (h *Handler) authenticateUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			challenge(w)
			return
		}

		subject, err := h.users.Authenticate(r.Context(), username, password)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			slog.Debug("resource owner login failed", "username", username)
			challenge(w)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.WithSubject(r.Context(), subject)))
	})
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", Realm))
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// AuthorizeHandler handles GET /oauth/authorize requests. On success the
// user agent is redirected to the client with the code and state.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := oauth.AuthorizationRequest{
		ResponseType: query.Get("response_type"),
		ClientID:     query.Get("client_id"),
		RedirectURI:  query.Get("redirect_uri"),
		Scope:        oauth.ParseScope(query.Get("scope")),
		State:        query.Get("state"),
	}

	subject, _ := identity.SubjectFromContext(r.Context())
	resp, err := h.service.Authorize(r.Context(), req, subject)
	if err != nil {
		writeError(w, err)
		return
	}

	location, err := url.Parse(resp.RedirectURI)
	if err != nil {
		writeError(w, oauth.ErrInvalidRequest.WithHint("The 'redirect_uri' parameter is malformed.").WithWrap(err))
		return
	}
	params := location.Query()
	params.Set("code", resp.Code)
	if resp.State != "" {
		params.Set("state", resp.State)
	}
	location.RawQuery = params.Encode()

	http.Redirect(w, r, location.String(), http.StatusFound)
}
