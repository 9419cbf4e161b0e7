// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"time"
)

// New creates a memory or Redis backend from cfg. SQLite backends are
// created by the sqlite package, which returns ErrUnsupportedType here.
func New(ctx context.Context, cfg *Config, cleanupInterval time.Duration) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Type {
	case TypeMemory, "":
		var opts []MemoryStorageOption
		if cleanupInterval > 0 {
			opts = append(opts, WithCleanupInterval(cleanupInterval))
		}
		return NewMemoryStorage(opts...), nil
	case TypeRedis:
		return NewRedisStorage(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, cfg.Type)
	}
}
