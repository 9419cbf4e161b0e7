// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package identity authenticates end users and carries the authenticated
// subject between the HTTP layer and the grant engine.
package identity

import (
	"context"
	"errors"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

//go:generate mockgen -destination=mocks/mock_authenticator.go -package=mocks -source=identity.go Authenticator

// ErrInvalidCredentials is returned when a username/password pair does not
// match a known user.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator verifies resource-owner credentials.
type Authenticator interface {
	// Authenticate returns the subject for username when password matches,
	// or an error wrapping ErrInvalidCredentials.
	Authenticate(ctx context.Context, username, password string) (*oauth.Subject, error)
}

type subjectKey struct{}

// WithSubject returns a copy of ctx carrying the authenticated subject.
func WithSubject(ctx context.Context, subject *oauth.Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject stored by WithSubject.
func SubjectFromContext(ctx context.Context) (*oauth.Subject, bool) {
	subject, ok := ctx.Value(subjectKey{}).(*oauth.Subject)
	return subject, ok && subject != nil
}
