// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// errorResponse is the RFC 6749 error body.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeError renders err as an RFC 6749 JSON error. Client authentication
// failures carry a Basic challenge.
func writeError(w http.ResponseWriter, err error) {
	rfcErr := oauth.AsRFC6749(err)
	if rfcErr.CodeField == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", Realm))
	}
	writeJSON(w, rfcErr.CodeField, errorResponse{
		Error:       rfcErr.ErrorField,
		Description: rfcErr.GetDescription(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
