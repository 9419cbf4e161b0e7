// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/url"

	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// authenticateClient checks the client credentials sent with r through HTTP
// Basic (client_secret_basic) or the form body (client_secret_post) and
// returns the authenticated client. r.ParseForm must have been called.
func (h *Handler) authenticateClient(r *http.Request) (*oauth.Client, error) {
	clientID, secret, basic := r.BasicAuth()
	if basic {
		// RFC 6749 section 2.3.1 form-encodes the Basic credentials.
		var err error
		if clientID, err = url.QueryUnescape(clientID); err != nil {
			return nil, oauth.ErrInvalidClient.WithHint("The client id in the Authorization header is malformed.")
		}
		if secret, err = url.QueryUnescape(secret); err != nil {
			return nil, oauth.ErrInvalidClient.WithHint("The client secret in the Authorization header is malformed.")
		}
		if formID := r.PostForm.Get("client_id"); formID != "" && formID != clientID {
			return nil, oauth.ErrInvalidRequest.WithHint("The 'client_id' parameter does not match the Authorization header.")
		}
	} else {
		clientID = r.PostForm.Get("client_id")
		secret = r.PostForm.Get("client_secret")
	}

	if clientID == "" {
		return nil, oauth.ErrInvalidClient.WithHint("Client authentication is required.")
	}

	client, found, err := h.clients.GetByClientID(r.Context(), clientID)
	if err != nil {
		return nil, err
	}
	if !found || client.ClientSecret == "" || !identity.CompareSecret(client.ClientSecret, secret) {
		return nil, oauth.ErrInvalidClient.WithHint("Client authentication failed.")
	}
	return client, nil
}
