// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// clientCatalog holds the clients and permissions of a MemoryStorage. It does
// no locking of its own and enforces the same uniqueness rules as the SQLite
// schema.
type clientCatalog struct {
	// permissions maps scope name -> permission.
	permissions      map[string]Permission
	nextPermissionID int64

	// clients maps internal id -> client; the index maps resolve names,
	// public client ids and audiences to internal ids.
	clients           map[int64]*oauth.Client
	clientsByID       map[string]int64
	clientsByName     map[string]int64
	clientsByAudience map[string]int64
	nextClientID      int64
}

func newClientCatalog() *clientCatalog {
	return &clientCatalog{
		permissions:       make(map[string]Permission),
		clients:           make(map[int64]*oauth.Client),
		clientsByID:       make(map[string]int64),
		clientsByName:     make(map[string]int64),
		clientsByAudience: make(map[string]int64),
	}
}

// clone copies the catalog. Stored clients are never mutated in place, so
// the pointers can be shared.
func (c *clientCatalog) clone() *clientCatalog {
	return &clientCatalog{
		permissions:       maps.Clone(c.permissions),
		nextPermissionID:  c.nextPermissionID,
		clients:           maps.Clone(c.clients),
		clientsByID:       maps.Clone(c.clientsByID),
		clientsByName:     maps.Clone(c.clientsByName),
		clientsByAudience: maps.Clone(c.clientsByAudience),
		nextClientID:      c.nextClientID,
	}
}

// InTransaction runs fn against the catalog itself: a catalog handed to fn
// is already a private copy.
func (c *clientCatalog) InTransaction(_ context.Context, fn func(tx ClientRepository) error) error {
	return fn(c)
}

func (c *clientCatalog) CountClients(_ context.Context) (int, error) {
	return len(c.clients), nil
}

func (c *clientCatalog) CreatePermissions(_ context.Context, names []string) error {
	for _, name := range names {
		if _, exists := c.permissions[name]; exists {
			continue
		}
		c.nextPermissionID++
		c.permissions[name] = Permission{ID: c.nextPermissionID, Name: name}
	}
	return nil
}

func (c *clientCatalog) FindPermissionsByName(_ context.Context, names []string) ([]Permission, error) {
	result := make([]Permission, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if p, ok := c.permissions[name]; ok && !seen[name] {
			result = append(result, p)
			seen[name] = true
		}
	}
	return result, nil
}

func (c *clientCatalog) CreateClient(_ context.Context, nc *NewClient) (int64, error) {
	if nc == nil || nc.Client == nil {
		return 0, errors.New("client cannot be nil")
	}
	in := nc.Client

	if _, exists := c.clientsByName[in.Name]; exists {
		return 0, fmt.Errorf("client %q: %w", in.Name, ErrAlreadyExists)
	}
	if _, exists := c.clientsByID[in.ClientID]; exists {
		return 0, fmt.Errorf("client %q: %w", in.Name, ErrAlreadyExists)
	}
	if _, exists := c.clientsByAudience[in.Audience]; in.Audience != "" && exists {
		return 0, fmt.Errorf("client %q: audience %q: %w", in.Name, in.Audience, ErrAlreadyExists)
	}
	if !in.Type.Valid() {
		return 0, fmt.Errorf("client %q: unknown application type %q", in.Name, in.Type)
	}

	registered, err := c.permissionNames(in.Name, nc.RegisteredPermissions)
	if err != nil {
		return 0, err
	}
	required, err := c.permissionNames(in.Name, nc.RequiredPermissions)
	if err != nil {
		return 0, err
	}

	client := &oauth.Client{
		Name:             in.Name,
		Type:             in.Type,
		ClientID:         in.ClientID,
		ClientSecret:     in.ClientSecret,
		Audience:         in.Audience,
		Callbacks:        slices.Clone(in.Callbacks),
		RegisteredScopes: registered,
		RequiredScopes:   required,
	}

	consumers := make(map[int64]bool, len(nc.Relations))
	for _, rel := range nc.Relations {
		consumer, ok := c.clients[rel.ConsumerID]
		if !ok {
			return 0, fmt.Errorf("consumer client %d: %w", rel.ConsumerID, ErrNotFound)
		}
		if consumers[rel.ConsumerID] {
			return 0, fmt.Errorf("client %q: relation to %q: %w", in.Name, consumer.Name, ErrAlreadyExists)
		}
		consumers[rel.ConsumerID] = true

		allowed, err := c.permissionNames(in.Name, rel.Permissions)
		if err != nil {
			return 0, err
		}
		client.AllowedRelations = append(client.AllowedRelations, oauth.AllowRelation{
			ConsumerName:  consumer.Name,
			AllowedScopes: allowed,
		})
	}

	c.nextClientID++
	id := c.nextClientID
	c.clients[id] = client
	c.clientsByID[client.ClientID] = id
	c.clientsByName[client.Name] = id
	if client.Audience != "" {
		c.clientsByAudience[client.Audience] = id
	}
	return id, nil
}

// permissionNames checks that perms are stored and distinct and returns
// their names.
func (c *clientCatalog) permissionNames(clientName string, perms []Permission) ([]string, error) {
	if len(perms) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		if stored, ok := c.permissions[p.Name]; !ok || stored.ID != p.ID {
			return nil, fmt.Errorf("client %q: permission %q: %w", clientName, p.Name, ErrNotFound)
		}
		if slices.Contains(names, p.Name) {
			return nil, fmt.Errorf("client %q: permission %q: %w", clientName, p.Name, ErrAlreadyExists)
		}
		names = append(names, p.Name)
	}
	return names, nil
}

func (c *clientCatalog) ClientIDByName(_ context.Context, name string) (int64, error) {
	id, ok := c.clientsByName[name]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (c *clientCatalog) GetClientByClientID(_ context.Context, clientID string) (*oauth.Client, error) {
	id, ok := c.clientsByID[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clients[id].Clone(), nil
}

func (c *clientCatalog) GetClientByAudience(_ context.Context, audience string) (*oauth.Client, error) {
	id, ok := c.clientsByAudience[audience]
	if audience == "" || !ok {
		return nil, ErrNotFound
	}
	return c.clients[id].Clone(), nil
}

// -----------------------
// ClientRepository
// -----------------------

// InTransaction runs fn on a private copy of the client catalog and installs
// the copy when fn succeeds. Client writes are serialised while fn runs.
func (s *MemoryStorage) InTransaction(ctx context.Context, fn func(tx ClientRepository) error) error {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	staged := s.catalog.clone()
	if err := staged.InTransaction(ctx, fn); err != nil {
		return err
	}
	s.catalog = staged
	return nil
}

// CountClients returns the number of stored clients.
func (s *MemoryStorage) CountClients(ctx context.Context) (int, error) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.catalog.CountClients(ctx)
}

// CreatePermissions stores the names not stored yet.
func (s *MemoryStorage) CreatePermissions(ctx context.Context, names []string) error {
	return s.InTransaction(ctx, func(tx ClientRepository) error {
		return tx.CreatePermissions(ctx, names)
	})
}

// FindPermissionsByName returns the known permissions among names, in the
// order of names.
func (s *MemoryStorage) FindPermissionsByName(ctx context.Context, names []string) ([]Permission, error) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.catalog.FindPermissionsByName(ctx, names)
}

// CreateClient stores a client and resolves its relations. Nothing is
// stored when any reference is invalid.
func (s *MemoryStorage) CreateClient(ctx context.Context, nc *NewClient) (int64, error) {
	var id int64
	err := s.InTransaction(ctx, func(tx ClientRepository) error {
		var err error
		id, err = tx.CreateClient(ctx, nc)
		return err
	})
	return id, err
}

// ClientIDByName returns the internal id of the named client.
func (s *MemoryStorage) ClientIDByName(ctx context.Context, name string) (int64, error) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.catalog.ClientIDByName(ctx, name)
}

// GetClientByClientID returns the client with the given public id.
func (s *MemoryStorage) GetClientByClientID(ctx context.Context, clientID string) (*oauth.Client, error) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.catalog.GetClientByClientID(ctx, clientID)
}

// GetClientByAudience returns the client registered with audience.
func (s *MemoryStorage) GetClientByAudience(ctx context.Context, audience string) (*oauth.Client, error) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.catalog.GetClientByAudience(ctx, audience)
}

var _ ClientRepository = (*clientCatalog)(nil)
