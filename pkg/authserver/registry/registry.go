// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry resolves registered OAuth clients, either from the static
// configuration or from persistent storage, and imports the static
// configuration into storage.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/storage"
)

//go:generate mockgen -destination=mocks/mock_registry.go -package=mocks -source=registry.go ClientRegistry

// Backend selects the ClientRegistry implementation.
type Backend string

const (
	// BackendStatic serves clients from the configuration file.
	BackendStatic Backend = "static"
	// BackendPersistent serves clients from the storage client repository.
	BackendPersistent Backend = "persistent"
)

// ClientRegistry looks up registered clients. A missing client is reported
// as found=false with a nil error.
type ClientRegistry interface {
	// GetByClientID resolves a client by its public client id.
	GetByClientID(ctx context.Context, clientID string) (*oauth.Client, bool, error)
	// GetByAudience resolves the resource-server client owning audience.
	GetByAudience(ctx context.Context, audience string) (*oauth.Client, bool, error)
}

// PersistentRegistry serves clients from a storage.ClientRepository.
type PersistentRegistry struct {
	repo storage.ClientRepository
}

// NewPersistentRegistry creates a registry over repo.
func NewPersistentRegistry(repo storage.ClientRepository) *PersistentRegistry {
	return &PersistentRegistry{repo: repo}
}

// GetByClientID resolves a client by its public client id.
func (r *PersistentRegistry) GetByClientID(ctx context.Context, clientID string) (*oauth.Client, bool, error) {
	return lookup(r.repo.GetClientByClientID(ctx, clientID))
}

// GetByAudience resolves the resource-server client owning audience.
func (r *PersistentRegistry) GetByAudience(ctx context.Context, audience string) (*oauth.Client, bool, error) {
	return lookup(r.repo.GetClientByAudience(ctx, audience))
}

func lookup(client *oauth.Client, err error) (*oauth.Client, bool, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up client: %w", err)
	}
	return client, true, nil
}

var (
	_ ClientRegistry = (*PersistentRegistry)(nil)
	_ ClientRegistry = (*StaticRegistry)(nil)
)
