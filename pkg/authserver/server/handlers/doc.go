// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers provides the HTTP surface of the authorization server.
//
// It serves:
//   - /oauth/authorize, with the resource owner logging in through HTTP Basic
//   - /oauth/token, /oauth/introspect and /oauth/revoke, with client
//     authentication through HTTP Basic or form parameters
//   - /.well-known/jwks.json
//   - /health and /metrics
//
// Request handling beyond parameter binding and client authentication is
// delegated to the service package.
package handlers
