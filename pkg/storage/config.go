// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import "time"

// Type defines the type of storage backend.
type Type string

const (
	// TypeMemory uses in-memory storage (default).
	TypeMemory Type = "memory"

	// TypeRedis uses a Redis server, shared by every replica.
	TypeRedis Type = "redis"

	// TypeSQLite uses a local SQLite database.
	TypeSQLite Type = "sqlite"

	// DefaultCleanupInterval is how often abandoned authorizations are swept
	// from memory.
	DefaultCleanupInterval = 5 * time.Minute

	// authorizationGrace keeps expired authorizations around long enough for
	// the token step to report them as expired rather than unknown.
	authorizationGrace = time.Minute
)

// Config configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to memory.
	Type Type `mapstructure:"type" yaml:"type"`

	// Redis configures the Redis backend. Required when Type is redis.
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeMemory,
	}
}
