// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/storage"
)

const (
	scopeKindRegistered = "registered"
	scopeKindRequired   = "required"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// clientRepo implements storage.ClientRepository. Inside InTransaction it
// is bound to the open transaction and every call joins it.
type clientRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *clientRepo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InTransaction runs fn on a view bound to a single transaction. Nested
// calls join the enclosing transaction.
func (r *clientRepo) InTransaction(ctx context.Context, fn func(tx storage.ClientRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&clientRepo{db: r.db, tx: tx})
	})
}

// withTx runs fn in the enclosing transaction, or in a new one committed
// when fn succeeds.
func (r *clientRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CountClients returns the number of persisted clients.
func (r *clientRepo) CountClients(ctx context.Context) (int, error) {
	var count int
	if err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting clients: %w", err)
	}
	return count, nil
}

// CreatePermissions persists the given names, keeping existing ones.
func (r *clientRepo) CreatePermissions(ctx context.Context, names []string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, name := range names {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO permissions (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name,
			); err != nil {
				return fmt.Errorf("inserting permission %q: %w", name, err)
			}
		}
		return nil
	})
}

// FindPermissionsByName returns the known permissions among names, in the
// order of names.
func (r *clientRepo) FindPermissionsByName(ctx context.Context, names []string) ([]storage.Permission, error) {
	if len(names) == 0 {
		return []storage.Permission{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}

	rows, err := r.q().QueryContext(ctx,
		`SELECT id, name FROM permissions WHERE name IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]storage.Permission, len(names))
	for rows.Next() {
		var p storage.Permission
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		byName[p.Name] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}

	result := make([]storage.Permission, 0, len(byName))
	for _, name := range names {
		if p, ok := byName[name]; ok {
			result = append(result, p)
			delete(byName, name)
		}
	}
	return result, nil
}

// CreateClient persists a client together with its scopes and relations.
func (r *clientRepo) CreateClient(ctx context.Context, nc *storage.NewClient) (int64, error) {
	if nc == nil || nc.Client == nil {
		return 0, errors.New("client cannot be nil")
	}
	c := nc.Client

	callbacksJSON, err := encodeJSONB(c.Callbacks)
	if err != nil {
		return 0, fmt.Errorf("encoding callbacks: %w", err)
	}

	var clientID int64
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO clients (name, client_id, client_secret, application_type, audience, callbacks)
			VALUES (?, ?, ?, ?, ?, jsonb(?))`,
			c.Name, c.ClientID, c.ClientSecret, string(c.Type), c.Audience, callbacksJSON,
		)
		if err != nil {
			return fmt.Errorf("inserting client: %w", err)
		}
		if clientID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("getting client id: %w", err)
		}

		if err := insertClientScopes(ctx, tx, clientID, scopeKindRegistered, nc.RegisteredPermissions); err != nil {
			return err
		}
		if err := insertClientScopes(ctx, tx, clientID, scopeKindRequired, nc.RequiredPermissions); err != nil {
			return err
		}
		for i, rel := range nc.Relations {
			if err := insertRelation(ctx, tx, clientID, i, rel); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("client %q: %w", c.Name, storage.ErrAlreadyExists)
	}
	if err != nil {
		return 0, err
	}
	return clientID, nil
}

func insertClientScopes(ctx context.Context, tx *sql.Tx, clientID int64, kind string, perms []storage.Permission) error {
	for i, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO client_scopes (client_id, permission_id, kind, position) VALUES (?, ?, ?, ?)`,
			clientID, p.ID, kind, i,
		); err != nil {
			return fmt.Errorf("inserting %s scope %q: %w", kind, p.Name, err)
		}
	}
	return nil
}

func insertRelation(ctx context.Context, tx *sql.Tx, targetID int64, position int, rel storage.NewRelation) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO client_relations (target_id, consumer_id, position) VALUES (?, ?, ?)`,
		targetID, rel.ConsumerID, position,
	)
	if err != nil {
		return fmt.Errorf("inserting relation to consumer %d: %w", rel.ConsumerID, err)
	}
	relationID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting relation id: %w", err)
	}
	for i, p := range rel.Permissions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relation_scopes (relation_id, permission_id, position) VALUES (?, ?, ?)`,
			relationID, p.ID, i,
		); err != nil {
			return fmt.Errorf("inserting relation scope %q: %w", p.Name, err)
		}
	}
	return nil
}

// ClientIDByName returns the internal id of the client named name.
func (r *clientRepo) ClientIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.q().QueryRowContext(ctx, `SELECT id FROM clients WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("looking up client %q: %w", name, err)
	}
	return id, nil
}

// GetClientByClientID returns the client with the given public id.
func (r *clientRepo) GetClientByClientID(ctx context.Context, clientID string) (*oauth.Client, error) {
	return r.getClient(ctx, `client_id = ?`, clientID)
}

// GetClientByAudience returns the client registered with audience.
func (r *clientRepo) GetClientByAudience(ctx context.Context, audience string) (*oauth.Client, error) {
	if audience == "" {
		return nil, storage.ErrNotFound
	}
	return r.getClient(ctx, `audience = ?`, audience)
}

func (r *clientRepo) getClient(ctx context.Context, where string, arg any) (*oauth.Client, error) {
	var (
		id            int64
		c             oauth.Client
		appType       string
		callbacksJSON []byte
	)
	err := r.q().QueryRowContext(ctx, `
		SELECT id, name, client_id, client_secret, application_type, audience, json(callbacks)
		FROM clients WHERE `+where+` ORDER BY id LIMIT 1`, arg,
	).Scan(&id, &c.Name, &c.ClientID, &c.ClientSecret, &appType, &c.Audience, &callbacksJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying client: %w", err)
	}
	c.Type = oauth.ApplicationType(appType)
	if err := decodeJSONB(callbacksJSON, &c.Callbacks); err != nil {
		return nil, fmt.Errorf("decoding callbacks: %w", err)
	}

	if err := r.loadClientScopes(ctx, id, &c); err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepo) loadClientScopes(ctx context.Context, clientID int64, c *oauth.Client) error {
	rows, err := r.q().QueryContext(ctx, `
		SELECT cs.kind, p.name FROM client_scopes cs
		JOIN permissions p ON p.id = cs.permission_id
		WHERE cs.client_id = ?
		ORDER BY cs.kind, cs.position`, clientID)
	if err != nil {
		return fmt.Errorf("querying client scopes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			return fmt.Errorf("scanning client scope: %w", err)
		}
		switch kind {
		case scopeKindRegistered:
			c.RegisteredScopes = append(c.RegisteredScopes, name)
		case scopeKindRequired:
			c.RequiredScopes = append(c.RequiredScopes, name)
		}
	}
	return rows.Err()
}

func (r *clientRepo) loadRelations(ctx context.Context, targetID int64, c *oauth.Client) error {
	rows, err := r.q().QueryContext(ctx, `
		SELECT cr.id, consumer.name, p.name FROM client_relations cr
		JOIN clients consumer ON consumer.id = cr.consumer_id
		LEFT JOIN relation_scopes rs ON rs.relation_id = cr.id
		LEFT JOIN permissions p ON p.id = rs.permission_id
		WHERE cr.target_id = ?
		ORDER BY cr.position, rs.position`, targetID)
	if err != nil {
		return fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()

	var lastRelationID int64 = -1
	for rows.Next() {
		var (
			relationID   int64
			consumerName string
			scopeName    sql.NullString
		)
		if err := rows.Scan(&relationID, &consumerName, &scopeName); err != nil {
			return fmt.Errorf("scanning relation: %w", err)
		}
		if relationID != lastRelationID {
			c.AllowedRelations = append(c.AllowedRelations, oauth.AllowRelation{ConsumerName: consumerName})
			lastRelationID = relationID
		}
		if scopeName.Valid {
			rel := &c.AllowedRelations[len(c.AllowedRelations)-1]
			rel.AllowedScopes = append(rel.AllowedScopes, scopeName.String)
		}
	}
	return rows.Err()
}
