// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stacklok/oauthz/pkg/authserver/keys"
)

// DefaultJWKSCacheMaxAge is the Cache-Control max-age of the JWKS endpoint.
const DefaultJWKSCacheMaxAge = 3600

// JWKSHandler handles GET /.well-known/jwks.json requests.
// It returns the public keys used for verifying access tokens.
func (h *Handler) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	jwks, err := keys.JWKS(r.Context(), h.keys)
	if err != nil {
		slog.Error("failed to load public keys", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data, err := json.Marshal(jwks)
	if err != nil {
		slog.Error("failed to encode JWKS", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", DefaultJWKSCacheMaxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}

// healthResponse is the /health body.
type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler handles GET /health requests.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
