// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/logger"
	"github.com/stacklok/oauthz/pkg/storage"
)

// ErrImport is returned when the static configuration cannot be imported
// consistently. The server must not serve traffic after it.
var ErrImport = errors.New("client import failed")

// Importer copies the static client configuration into a ClientRepository.
// It is a one-shot, single-writer operation.
type Importer struct {
	repo    storage.ClientRepository
	clients []oauth.Client
}

// NewImporter creates an importer of clients into repo.
func NewImporter(repo storage.ClientRepository, clients []oauth.Client) *Importer {
	return &Importer{repo: repo, clients: clients}
}

// ImportIfEmpty runs Import when enabled and the repository holds no
// clients. Import is all-or-nothing, so a populated repository always holds
// a complete import. It reports whether an import took place.
func (i *Importer) ImportIfEmpty(ctx context.Context, enabled bool) (bool, error) {
	if !enabled {
		logger.Debugw("client auto-import disabled")
		return false, nil
	}

	count, err := i.repo.CountClients(ctx)
	if err != nil {
		return false, fmt.Errorf("counting clients: %w", err)
	}
	if count > 0 {
		logger.Debugw("client repository already populated, skipping import", "clients", count)
		return false, nil
	}

	if err := i.Import(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Import validates the configured clients, then persists every referenced
// scope as a permission and the clients in dependency order. Everything is
// written in a single transaction; on failure nothing is persisted and the
// error wraps ErrImport.
func (i *Importer) Import(ctx context.Context) error {
	if err := ValidateClients(i.clients); err != nil {
		return importError(err)
	}
	order, err := ImportOrder(i.clients)
	if err != nil {
		return importError(err)
	}

	err = i.repo.InTransaction(ctx, func(tx storage.ClientRepository) error {
		return i.importAll(ctx, tx, order)
	})
	if err != nil {
		return importError(err)
	}

	logger.Infow("imported clients", "count", len(order))
	return nil
}

func (i *Importer) importAll(ctx context.Context, tx storage.ClientRepository, order []string) error {
	scopes := distinctScopes(i.clients)
	if err := tx.CreatePermissions(ctx, scopes); err != nil {
		return fmt.Errorf("creating permissions: %w", err)
	}
	logger.Debugw("staged permissions", "count", len(scopes))

	byName := make(map[string]*oauth.Client, len(i.clients))
	for idx := range i.clients {
		byName[i.clients[idx].Name] = &i.clients[idx]
	}

	for _, name := range order {
		if err := importClient(ctx, tx, byName[name]); err != nil {
			return err
		}
	}
	return nil
}

// importError wraps err in ErrImport unless it already is one.
func importError(err error) error {
	if errors.Is(err, ErrImport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrImport, err)
}

func importClient(ctx context.Context, tx storage.ClientRepository, c *oauth.Client) error {
	registered, err := resolvePermissions(ctx, tx, c.Name, c.RegisteredScopes)
	if err != nil {
		return err
	}
	required, err := resolvePermissions(ctx, tx, c.Name, c.RequiredScopes)
	if err != nil {
		return err
	}

	relations := make([]storage.NewRelation, 0, len(c.AllowedRelations))
	for _, rel := range c.AllowedRelations {
		consumerID, err := tx.ClientIDByName(ctx, rel.ConsumerName)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: client %q references missing client %q", ErrImport, c.Name, rel.ConsumerName)
		}
		if err != nil {
			return fmt.Errorf("resolving client %q: %w", rel.ConsumerName, err)
		}
		perms, err := resolvePermissions(ctx, tx, c.Name, rel.AllowedScopes)
		if err != nil {
			return err
		}
		relations = append(relations, storage.NewRelation{ConsumerID: consumerID, Permissions: perms})
	}

	secret, err := identity.HashSecret(c.ClientSecret)
	if err != nil {
		return fmt.Errorf("client %q: %w", c.Name, err)
	}
	record := c.Clone()
	record.ClientSecret = secret

	if _, err := tx.CreateClient(ctx, &storage.NewClient{
		Client:                record,
		RegisteredPermissions: registered,
		RequiredPermissions:   required,
		Relations:             relations,
	}); err != nil {
		return fmt.Errorf("creating client %q: %w", c.Name, err)
	}

	logger.Debugw("imported client", "name", c.Name, "clientId", c.ClientID, "relations", len(relations))
	return nil
}

// resolvePermissions loads the permissions for names and fails when any
// name is unknown.
func resolvePermissions(ctx context.Context, repo storage.ClientRepository, clientName string, names []string) ([]storage.Permission, error) {
	if len(names) == 0 {
		return nil, nil
	}
	perms, err := repo.FindPermissionsByName(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("finding permissions: %w", err)
	}
	if want := len(oauth.Union(names)); len(perms) != want {
		return nil, fmt.Errorf("%w: client %q: found %d of %d permissions %v",
			ErrImport, clientName, len(perms), want, names)
	}
	return perms, nil
}

// distinctScopes returns every scope referenced by clients, in first-seen order.
func distinctScopes(clients []oauth.Client) []string {
	lists := make([][]string, 0, len(clients)*2)
	for _, c := range clients {
		lists = append(lists, c.RegisteredScopes, c.RequiredScopes)
		for _, rel := range c.AllowedRelations {
			lists = append(lists, rel.AllowedScopes)
		}
	}
	return oauth.Union(lists...)
}

// ImportOrder returns the client names ordered so that every client follows
// the clients named in its relations. The order is a depth-first postorder
// over the configured order.
func ImportOrder(clients []oauth.Client) ([]string, error) {
	byName := make(map[string]*oauth.Client, len(clients))
	for idx := range clients {
		byName[clients[idx].Name] = &clients[idx]
	}

	const (
		visiting = iota + 1
		done
	)
	state := make(map[string]int, len(clients))
	order := make([]string, 0, len(clients))

	var visit func(name, referrer string) error
	visit = func(name, referrer string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: relation cycle through client %q", ErrImport, name)
		}
		c, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: client %q references missing client %q", ErrImport, referrer, name)
		}
		state[name] = visiting
		for _, dep := range c.Dependencies() {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for idx := range clients {
		if err := visit(clients[idx].Name, ""); err != nil {
			return nil, err
		}
	}
	return order, nil
}
