// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"

	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// StaticRegistry serves the clients of the configuration file from memory.
// It is immutable after construction.
type StaticRegistry struct {
	byClientID map[string]*oauth.Client
	byAudience map[string]*oauth.Client
}

// NewStaticRegistry validates clients and indexes them. Plaintext client
// secrets are hashed.
func NewStaticRegistry(clients []oauth.Client) (*StaticRegistry, error) {
	if err := ValidateClients(clients); err != nil {
		return nil, err
	}

	r := &StaticRegistry{
		byClientID: make(map[string]*oauth.Client, len(clients)),
		byAudience: make(map[string]*oauth.Client, len(clients)),
	}
	for i := range clients {
		c := clients[i].Clone()
		secret, err := identity.HashSecret(c.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", c.Name, err)
		}
		c.ClientSecret = secret

		r.byClientID[c.ClientID] = c
		if c.Audience != "" {
			r.byAudience[c.Audience] = c
		}
	}
	return r, nil
}

// GetByClientID resolves a client by its public client id.
func (r *StaticRegistry) GetByClientID(_ context.Context, clientID string) (*oauth.Client, bool, error) {
	c, ok := r.byClientID[clientID]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

// GetByAudience resolves the client owning audience.
func (r *StaticRegistry) GetByAudience(_ context.Context, audience string) (*oauth.Client, bool, error) {
	c, ok := r.byAudience[audience]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

// ValidateClients checks each client and the references between them. Names,
// client ids and non-empty audiences are unique, relations name configured
// clients and the relation graph has no cycle.
func ValidateClients(clients []oauth.Client) error {
	names := make(map[string]bool, len(clients))
	clientIDs := make(map[string]bool, len(clients))
	audiences := make(map[string]string, len(clients))

	for i := range clients {
		c := &clients[i]
		if err := c.Validate(); err != nil {
			return err
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate client name %q", c.Name)
		}
		if clientIDs[c.ClientID] {
			return fmt.Errorf("duplicate clientId %q", c.ClientID)
		}
		if owner, taken := audiences[c.Audience]; c.Audience != "" && taken {
			return fmt.Errorf("client %q: audience %q is already used by client %q", c.Name, c.Audience, owner)
		}
		names[c.Name] = true
		clientIDs[c.ClientID] = true
		if c.Audience != "" {
			audiences[c.Audience] = c.Name
		}
	}

	for i := range clients {
		for _, dep := range clients[i].Dependencies() {
			if !names[dep] {
				return fmt.Errorf("client %q: relation references unknown client %q", clients[i].Name, dep)
			}
		}
	}

	if _, err := ImportOrder(clients); err != nil {
		return err
	}
	return nil
}
