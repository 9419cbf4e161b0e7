// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/oauthz/pkg/logger"
	"github.com/stacklok/oauthz/pkg/storage"
	"github.com/stacklok/oauthz/pkg/storage/sqlite"
)

// connectAttempts bounds how often a Redis backend is dialled at startup.
const connectAttempts = 5

// backends holds the storage the server runs on.
type backends struct {
	// store holds authorizations and token records.
	store storage.Storage
	// database is the SQLite store, opened when sqlite storage or the
	// persistent registry is configured. It may be the same value as store.
	database *sqlite.Store
}

// openBackends opens the storage selected by cfg.
func openBackends(ctx context.Context, cfg *Config) (*backends, error) {
	b := &backends{}

	if cfg.needsDatabase() {
		db, err := sqlite.OpenStore(ctx, cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		b.database = db
	}

	if cfg.Storage.Type == storage.TypeSQLite {
		b.store = b.database
		return b, nil
	}

	store, err := connectStorage(ctx, &cfg.Storage)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.store = store
	return b, nil
}

// connectStorage creates a memory or Redis backend. Redis is retried with
// exponential backoff so the server can start alongside its Redis instance.
func connectStorage(ctx context.Context, cfg *storage.Config) (storage.Storage, error) {
	if cfg.Type != storage.TypeRedis {
		return storage.New(ctx, cfg, storage.DefaultCleanupInterval)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second

	store, err := backoff.Retry(ctx, func() (storage.Storage, error) {
		return storage.New(ctx, cfg, 0)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warnw("redis not reachable, retrying", "error", err, "retryIn", d)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return store, nil
}

// clientRepository returns the repository backing the persistent registry:
// the database when one is open, otherwise the memory storage.
func (b *backends) clientRepository() (storage.ClientRepository, error) {
	if b.database != nil {
		return b.database, nil
	}
	repo, ok := b.store.(storage.ClientRepository)
	if !ok {
		return nil, errors.New("the persistent registry requires a database or memory storage")
	}
	logger.Warnw("persistent registry kept in memory storage, clients are re-imported on every start")
	return repo, nil
}

// Health checks every open backend.
func (b *backends) Health(ctx context.Context) error {
	var errs []error
	if b.store != nil {
		errs = append(errs, b.store.Health(ctx))
	}
	if b.database != nil && storage.Storage(b.database) != b.store {
		errs = append(errs, b.database.Health(ctx))
	}
	return errors.Join(errs...)
}

// Close closes every open backend once.
func (b *backends) Close() error {
	var errs []error
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	if b.database != nil && storage.Storage(b.database) != b.store {
		errs = append(errs, b.database.Close())
	}
	return errors.Join(errs...)
}
