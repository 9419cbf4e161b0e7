// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package reqctx resolves raw authorization and token requests into the
// contexts consumed by grant processors, verifiers and scope negotiation.
package reqctx

import (
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// AuthorizationContext is an /authorize request paired with its client and
// the subject who authenticated for it.
type AuthorizationContext struct {
	Request oauth.AuthorizationRequest
	Client  *oauth.Client
	// Subject is nil when nobody authenticated.
	Subject *oauth.Subject
}

// TokenContext is a /token request paired with the resolved source client,
// target client, the relation between them and, for the authorization-code
// grant, the ongoing authorization the code referred to.
//
// Contexts are not mutated after construction; WithRequest and WithSubject
// derive new values.
type TokenContext struct {
	Request oauth.TokenRequest
	Source  *oauth.Client
	// Target and Relation are nil when the request carries no audience.
	Target   *oauth.Client
	Relation *oauth.AllowRelation
	// Authorization is nil when no code was sent or the code is unknown.
	Authorization *oauth.OngoingAuthorization
	// Subject is the resource owner, set by the password grant after
	// authentication.
	Subject *oauth.Subject
}

// WithRequest returns a copy of c carrying req.
func (c *TokenContext) WithRequest(req oauth.TokenRequest) *TokenContext {
	clone := *c
	clone.Request = req
	return &clone
}

// WithSubject returns a copy of c carrying subject.
func (c *TokenContext) WithSubject(subject *oauth.Subject) *TokenContext {
	clone := *c
	clone.Subject = subject
	return &clone
}

// AllowedScope returns the relation's scope ceiling, or nil without a relation.
func (c *TokenContext) AllowedScope() []string {
	if c.Relation == nil {
		return nil
	}
	return c.Relation.AllowedScopes
}
