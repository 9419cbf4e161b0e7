// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/crypto/bcrypt"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// User is a statically configured end user.
type User struct {
	ID       int64  `mapstructure:"id" yaml:"id"`
	Username string `mapstructure:"username" yaml:"username"`
	// Password is a bcrypt hash; plaintext values are hashed at load time.
	Password    string   `mapstructure:"password" yaml:"password"`
	Email       string   `mapstructure:"email" yaml:"email"`
	Role        string   `mapstructure:"role" yaml:"role"`
	Authorities []string `mapstructure:"authorities" yaml:"authorities"`
}

// StaticAuthenticator authenticates against a fixed set of users.
type StaticAuthenticator struct {
	users map[string]User
	// dummyHash is compared when the user is unknown. Its cost is the
	// highest cost of any configured password hash.
	dummyHash []byte
}

// NewStaticAuthenticator validates users and hashes plaintext passwords.
func NewStaticAuthenticator(users []User) (*StaticAuthenticator, error) {
	a := &StaticAuthenticator{users: make(map[string]User, len(users))}
	ids := make(map[int64]string, len(users))
	cost := bcrypt.DefaultCost

	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("user %d: username is required", u.ID)
		}
		if _, exists := a.users[u.Username]; exists {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}
		if other, exists := ids[u.ID]; exists {
			return nil, fmt.Errorf("users %q and %q share id %d", other, u.Username, u.ID)
		}
		if u.Password == "" {
			return nil, fmt.Errorf("user %q: password is required", u.Username)
		}
		hash, err := HashSecret(u.Password)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
		if hashCost, err := bcrypt.Cost([]byte(hash)); err == nil && hashCost > cost {
			cost = hashCost
		}
		u.Password = hash
		u.Authorities = slices.Clone(u.Authorities)
		a.users[u.Username] = u
		ids[u.ID] = u.Username
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("unknown-user"), cost)
	if err != nil {
		return nil, fmt.Errorf("hashing dummy secret: %w", err)
	}
	a.dummyHash = dummy

	return a, nil
}

// Authenticate checks the password of username.
func (a *StaticAuthenticator) Authenticate(_ context.Context, username, password string) (*oauth.Subject, error) {
	u, ok := a.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		slog.Debug("authentication failed: unknown user", "username", username)
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	}
	if !CompareSecret(u.Password, password) {
		slog.Debug("authentication failed: wrong password", "username", username)
		return nil, fmt.Errorf("%w: wrong password", ErrInvalidCredentials)
	}

	return &oauth.Subject{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Authorities: slices.Clone(u.Authorities),
	}, nil
}

var _ Authenticator = (*StaticAuthenticator)(nil)
