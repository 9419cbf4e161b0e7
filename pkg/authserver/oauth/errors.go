// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"errors"

	"github.com/ory/fosite"
)

// RFC 6749 errors raised by the engine. Each carries its stable error code
// and HTTP status; call sites refine them with WithHint or WithDescription.
var (
	// ErrInvalidRequest means a mandatory field is missing or malformed.
	ErrInvalidRequest = fosite.ErrInvalidRequest
	// ErrInvalidClient means the source client is unknown.
	ErrInvalidClient = fosite.ErrInvalidClient
	// ErrUnauthorizedClient means the target client is unknown or the source
	// is not allowed by any relation.
	ErrUnauthorizedClient = fosite.ErrUnauthorizedClient
	// ErrAccessDenied covers authentication failures and scope exceeding authority.
	ErrAccessDenied = fosite.ErrAccessDenied
	// ErrInvalidScope means scope is missing where required or outside the allowed set.
	ErrInvalidScope = fosite.ErrInvalidScope
	// ErrInvalidGrant means the authorization code is stale, unknown or mismatched.
	ErrInvalidGrant = fosite.ErrInvalidGrant
	// ErrUnsupportedGrantType is returned for unknown grant_type values.
	ErrUnsupportedGrantType = fosite.ErrUnsupportedGrantType
	// ErrUnsupportedResponseType is returned for unknown response_type values.
	ErrUnsupportedResponseType = fosite.ErrUnsupportedResponseType
	// ErrServerError wraps unexpected internal failures.
	ErrServerError = fosite.ErrServerError
	// ErrTemporarilyUnavailable is reserved; the engine never raises it.
	ErrTemporarilyUnavailable = fosite.ErrTemporarilyUnavailable
)

// AsRFC6749 returns the OAuth error carried by err. Errors outside the
// taxonomy are reported as server_error with the original error as debug
// information.
func AsRFC6749(err error) *fosite.RFC6749Error {
	if err == nil {
		return nil
	}
	var rfcErr *fosite.RFC6749Error
	if errors.As(err, &rfcErr) {
		return rfcErr
	}
	return ErrServerError.WithWrap(err).WithDebug(err.Error())
}

// ErrorCode returns the stable OAuth error code for err, e.g. "invalid_scope".
func ErrorCode(err error) string {
	if rfcErr := AsRFC6749(err); rfcErr != nil {
		return rfcErr.ErrorField
	}
	return ""
}
