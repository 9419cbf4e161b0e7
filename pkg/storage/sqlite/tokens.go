// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/storage"
)

// authorizationColumns is the column list shared by Get and Take.
const authorizationColumns = `code, client_id, redirect_uri, json(subject), json(scope), scope_requested, expires_at`

// StoreAuthorization saves a new ongoing authorization.
func (s *Store) StoreAuthorization(ctx context.Context, authz *oauth.OngoingAuthorization) error {
	if authz == nil || authz.Code == "" {
		return errors.New("authorization code cannot be empty")
	}

	subjectJSON, err := encodeJSONB(authz.Subject)
	if err != nil {
		return fmt.Errorf("encoding subject: %w", err)
	}
	scopeJSON, err := encodeJSONB(authz.Scope)
	if err != nil {
		return fmt.Errorf("encoding scope: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ongoing_authorizations (
			code, client_id, redirect_uri, subject, scope, scope_requested, expires_at
		) VALUES (?, ?, ?, jsonb(?), jsonb(?), ?, ?)`,
		authz.Code,
		authz.ClientID,
		authz.RedirectURI,
		subjectJSON,
		scopeJSON,
		authz.ScopeRequested,
		authz.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting authorization: %w", err)
	}
	return nil
}

// GetAuthorization returns the authorization stored under code.
func (s *Store) GetAuthorization(ctx context.Context, code string) (*oauth.OngoingAuthorization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM ongoing_authorizations WHERE code = ?`, code)
	return scanAuthorization(row)
}

// TakeAuthorization deletes the authorization and returns the deleted row in
// one statement.
func (s *Store) TakeAuthorization(ctx context.Context, code string) (*oauth.OngoingAuthorization, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM ongoing_authorizations WHERE code = ? RETURNING `+authorizationColumns, code)
	return scanAuthorization(row)
}

// DeleteAuthorization removes code if present.
func (s *Store) DeleteAuthorization(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ongoing_authorizations WHERE code = ?`, code); err != nil {
		return fmt.Errorf("deleting authorization: %w", err)
	}
	return nil
}

func scanAuthorization(sc scanner) (*oauth.OngoingAuthorization, error) {
	var (
		authz       oauth.OngoingAuthorization
		subjectJSON []byte
		scopeJSON   []byte
		expiresAt   int64
	)
	err := sc.Scan(
		&authz.Code,
		&authz.ClientID,
		&authz.RedirectURI,
		&subjectJSON,
		&scopeJSON,
		&authz.ScopeRequested,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning authorization: %w", err)
	}

	if err := decodeJSONB(subjectJSON, &authz.Subject); err != nil {
		return nil, fmt.Errorf("decoding subject: %w", err)
	}
	if err := decodeJSONB(scopeJSON, &authz.Scope); err != nil {
		return nil, fmt.Errorf("decoding scope: %w", err)
	}
	authz.ExpiresAt = time.UnixMilli(expiresAt)
	return &authz, nil
}

// tokenInfoColumns is the column list shared by token info queries.
const tokenInfoColumns = `token_id, subject, issued_at, expires_at, status, revoked_at`

// CreateTokenInfo records a new token.
func (s *Store) CreateTokenInfo(ctx context.Context, info *oauth.AccessTokenInfo) error {
	if info == nil || info.TokenID == "" {
		return errors.New("token id cannot be empty")
	}

	var revokedAt sql.NullInt64
	if info.RevokedAt != nil {
		revokedAt = sql.NullInt64{Int64: info.RevokedAt.UnixMilli(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_token_info (`+tokenInfoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		info.TokenID,
		info.Subject,
		info.IssuedAt.UnixMilli(),
		info.ExpiresAt.UnixMilli(),
		string(info.Status),
		revokedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting token info: %w", err)
	}
	return nil
}

// GetTokenInfo returns the record for tokenID.
func (s *Store) GetTokenInfo(ctx context.Context, tokenID string) (*oauth.AccessTokenInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenInfoColumns+` FROM access_token_info WHERE token_id = ?`, tokenID)
	return scanTokenInfo(row)
}

// RevokeTokenInfo moves an ACTIVE record to REVOKED.
func (s *Store) RevokeTokenInfo(ctx context.Context, tokenID string, at time.Time) (*oauth.AccessTokenInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	row := tx.QueryRowContext(ctx, `
		UPDATE access_token_info SET status = ?, revoked_at = ?
		WHERE token_id = ? AND status = ?
		RETURNING `+tokenInfoColumns,
		string(oauth.TokenStatusRevoked), at.UnixMilli(), tokenID, string(oauth.TokenStatusActive),
	)
	info, err := scanTokenInfo(row)
	if errors.Is(err, storage.ErrNotFound) {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM access_token_info WHERE token_id = ?)`, tokenID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking token info: %w", err)
		}
		if exists {
			return nil, storage.ErrNotActive
		}
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return info, nil
}

// ListExpiredTokenInfo returns the ids of records expired at now.
func (s *Store) ListExpiredTokenInfo(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_id FROM access_token_info WHERE expires_at <= ? ORDER BY expires_at`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("listing expired token info: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning token id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating token ids: %w", err)
	}
	return ids, nil
}

// DeleteTokenInfo removes tokenID if present.
func (s *Store) DeleteTokenInfo(ctx context.Context, tokenID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM access_token_info WHERE token_id = ?`, tokenID); err != nil {
		return fmt.Errorf("deleting token info: %w", err)
	}
	return nil
}

func scanTokenInfo(sc scanner) (*oauth.AccessTokenInfo, error) {
	var (
		info      oauth.AccessTokenInfo
		status    string
		issuedAt  int64
		expiresAt int64
		revokedAt sql.NullInt64
	)
	err := sc.Scan(&info.TokenID, &info.Subject, &issuedAt, &expiresAt, &status, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning token info: %w", err)
	}

	info.Status = oauth.TokenStatus(status)
	info.IssuedAt = time.UnixMilli(issuedAt)
	info.ExpiresAt = time.UnixMilli(expiresAt)
	if revokedAt.Valid {
		at := time.UnixMilli(revokedAt.Int64)
		info.RevokedAt = &at
	}
	return &info, nil
}
