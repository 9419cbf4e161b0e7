// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the persistence boundary of the authorization
// server: in-flight authorization codes, issued-token tracking and the
// client repository used by the persistent registry.
package storage

import (
	"context"
	"time"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// AuthorizationStore holds ongoing authorizations between the authorize and
// token steps of the authorization-code flow.
type AuthorizationStore interface {
	// StoreAuthorization saves a new ongoing authorization. It never
	// overwrites: an existing code yields ErrAlreadyExists.
	StoreAuthorization(ctx context.Context, authz *oauth.OngoingAuthorization) error
	// GetAuthorization returns the authorization stored under code.
	GetAuthorization(ctx context.Context, code string) (*oauth.OngoingAuthorization, error)
	// TakeAuthorization atomically returns and removes the authorization
	// stored under code. At most one caller observes a given record.
	TakeAuthorization(ctx context.Context, code string) (*oauth.OngoingAuthorization, error)
	// DeleteAuthorization removes code. Deleting a missing code is not an error.
	DeleteAuthorization(ctx context.Context, code string) error
}

// TokenInfoStore records the metadata of issued access tokens.
type TokenInfoStore interface {
	// CreateTokenInfo records a new token. An existing id yields ErrAlreadyExists.
	CreateTokenInfo(ctx context.Context, info *oauth.AccessTokenInfo) error
	// GetTokenInfo returns the record for tokenID.
	GetTokenInfo(ctx context.Context, tokenID string) (*oauth.AccessTokenInfo, error)
	// RevokeTokenInfo moves an ACTIVE record to REVOKED and returns the
	// updated record. It returns ErrNotFound for unknown ids and ErrNotActive
	// when the record is not ACTIVE.
	RevokeTokenInfo(ctx context.Context, tokenID string, at time.Time) (*oauth.AccessTokenInfo, error)
	// ListExpiredTokenInfo returns the ids of records expired at now,
	// regardless of status.
	ListExpiredTokenInfo(ctx context.Context, now time.Time) ([]string, error)
	// DeleteTokenInfo removes tokenID. Deleting a missing id is not an error.
	DeleteTokenInfo(ctx context.Context, tokenID string) error
}

// Permission is a persisted scope name.
type Permission struct {
	ID   int64
	Name string
}

// NewClient describes a client to persist. Scopes and relations reference
// already persisted permissions and clients by id.
type NewClient struct {
	// Client carries the scalar fields. Its scope lists and relations are ignored.
	Client *oauth.Client

	RegisteredPermissions []Permission
	RequiredPermissions   []Permission
	Relations             []NewRelation
}

// NewRelation is a relation from an already persisted consumer client.
type NewRelation struct {
	ConsumerID  int64
	Permissions []Permission
}

// ClientRepository persists registered clients and the permissions they
// reference.
type ClientRepository interface {
	// InTransaction runs fn against a view of the repository whose writes
	// become visible together when fn returns nil and are discarded
	// otherwise. fn must only use the view it is given.
	InTransaction(ctx context.Context, fn func(tx ClientRepository) error) error
	// CountClients returns the number of persisted clients.
	CountClients(ctx context.Context) (int, error)
	// CreatePermissions persists the given names. Existing names are kept.
	CreatePermissions(ctx context.Context, names []string) error
	// FindPermissionsByName returns the permissions matching names. Unknown
	// names are omitted from the result.
	FindPermissionsByName(ctx context.Context, names []string) ([]Permission, error)
	// CreateClient persists a client and returns its internal id. A taken
	// name, client id or audience, or a repeated scope or relation consumer,
	// yields ErrAlreadyExists and nothing is written.
	CreateClient(ctx context.Context, client *NewClient) (int64, error)
	// ClientIDByName returns the internal id of the client named name.
	ClientIDByName(ctx context.Context, name string) (int64, error)
	// GetClientByClientID returns the client with the given public id.
	GetClientByClientID(ctx context.Context, clientID string) (*oauth.Client, error)
	// GetClientByAudience returns the client registered with audience.
	GetClientByAudience(ctx context.Context, audience string) (*oauth.Client, error)
}

// Storage is a backend holding both authorization and token state.
type Storage interface {
	AuthorizationStore
	TokenInfoStore

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
	// Close releases any resources held by the backend.
	Close() error
}
