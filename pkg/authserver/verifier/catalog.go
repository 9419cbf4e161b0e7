// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package verifier

import (
	"time"

	"github.com/stacklok/oauthz/pkg/storage"
)

// DefaultRegistry returns the token verifiers in the order they run: field
// presence first, then scope policy, then the ongoing authorization.
func DefaultRegistry(authorizations storage.AuthorizationStore, now func() time.Time) *Registry {
	return NewRegistry(
		NewRequiredFields(),
		NewAuthorizationCodeFields(),
		NewPasswordFields(),
		NewClientCredentialsScope(),
		NewOngoingAuthorization(authorizations, now),
		NewRelationScope(),
		NewRegisteredScope(),
	)
}

// DefaultAuthorizationVerifiers returns the /authorize verifiers in order.
func DefaultAuthorizationVerifiers() []AuthorizationVerifier {
	return []AuthorizationVerifier{
		ApplicationType{},
		RedirectURI{},
		ResponseType{},
		SubjectScope{},
	}
}
