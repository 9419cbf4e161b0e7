// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Subject is an authenticated end user.
type Subject struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Authorities []string `json:"authorities"`
}

// Clone returns a deep copy of s.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Authorities = slices.Clone(s.Authorities)
	return &clone
}

// OngoingAuthorization bridges the authorize and token steps of the
// authorization-code flow. It is consumed exactly once.
type OngoingAuthorization struct {
	Code        string
	ClientID    string
	RedirectURI string
	Subject     *Subject
	ExpiresAt   time.Time
	Scope       []string
	// ScopeRequested is true when the client named the scope explicitly
	// rather than receiving the subject's full authority set.
	ScopeRequested bool
}

// Clone returns a deep copy of a.
func (a *OngoingAuthorization) Clone() *OngoingAuthorization {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Subject = a.Subject.Clone()
	clone.Scope = slices.Clone(a.Scope)
	return &clone
}

// IsExpired reports whether the authorization has expired at now.
func (a *OngoingAuthorization) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// TokenStatus is the lifecycle state of an issued token.
type TokenStatus string

const (
	// TokenStatusActive is the state of a token at issuance.
	TokenStatusActive TokenStatus = "ACTIVE"
	// TokenStatusRevoked is terminal; revoked tokens never become active again.
	TokenStatusRevoked TokenStatus = "REVOKED"
)

// AccessTokenInfo is the tracked metadata of an issued token.
type AccessTokenInfo struct {
	TokenID   string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Status    TokenStatus
	RevokedAt *time.Time
}

// Clone returns a deep copy of i.
func (i *AccessTokenInfo) Clone() *AccessTokenInfo {
	if i == nil {
		return nil
	}
	clone := *i
	if i.RevokedAt != nil {
		at := *i.RevokedAt
		clone.RevokedAt = &at
	}
	return &clone
}

// IsExpired reports whether the token has expired at now.
func (i *AccessTokenInfo) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// userSubjectSeparator joins the client id and user id inside "sub".
const userSubjectSeparator = "|uid="

// UserSubject builds the subject used for tokens issued on behalf of a user.
func UserSubject(clientID string, userID int64) string {
	return fmt.Sprintf("%s%s%d", clientID, userSubjectSeparator, userID)
}

// TokenClaims is the typed form of an access token payload.
type TokenClaims struct {
	TokenID    string
	Subject    string
	Username   string
	Email      string
	Role       string
	Audience   string
	Scope      string
	IssuedAt   time.Time
	Expiration time.Time
	UserID     int64
}

// ClientID returns the client part of the subject.
func (c *TokenClaims) ClientID() string {
	clientID, _, _ := strings.Cut(c.Subject, userSubjectSeparator)
	return clientID
}

// SetUser stamps the user-specific claims for a token issued to clientID on
// behalf of user.
func (c *TokenClaims) SetUser(clientID string, user *Subject) {
	c.Subject = UserSubject(clientID, user.ID)
	c.Email = user.Email
	c.Role = user.Role
	c.Username = user.Username
	c.UserID = user.ID
}
