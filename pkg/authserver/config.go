// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/oauthz/pkg/authserver/grant"
	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/keys"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/registry"
	"github.com/stacklok/oauthz/pkg/authserver/token"
	"github.com/stacklok/oauthz/pkg/logger"
	"github.com/stacklok/oauthz/pkg/storage"
)

// DefaultListenAddress is used when listenAddress is not configured.
const DefaultListenAddress = ":8080"

var envKeyReplacer = strings.NewReplacer(".", "_")

// Config is the configuration of the authorization server, as read from the
// YAML configuration file.
type Config struct {
	// Issuer is placed in the "iss" claim of every issued token.
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// ListenAddress is the address the HTTP server binds to.
	ListenAddress string `mapstructure:"listenAddress" yaml:"listenAddress"`

	Tokens   TokensConfig   `mapstructure:"tokens" yaml:"tokens"`
	Keys     keys.Config    `mapstructure:"keys" yaml:"keys"`
	Storage  storage.Config `mapstructure:"storage" yaml:"storage"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`

	// Clients is the static client configuration. It is served directly by
	// the static registry and imported into the database by the persistent one.
	Clients []oauth.Client `mapstructure:"clients" yaml:"clients"`

	// Users are the end users allowed to log in.
	Users []identity.User `mapstructure:"users" yaml:"users"`
}

// TokensConfig controls token and authorization code lifetimes.
type TokensConfig struct {
	// Expiration is the lifetime of access tokens.
	Expiration time.Duration `mapstructure:"expiration" yaml:"expiration"`

	// AuthorizationCodeTTL is how long an issued code can be exchanged.
	AuthorizationCodeTTL time.Duration `mapstructure:"authorizationCodeTTL" yaml:"authorizationCodeTTL"`

	// CleanupInterval is how often expired token records are removed.
	CleanupInterval time.Duration `mapstructure:"cleanupInterval" yaml:"cleanupInterval"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RegistryConfig selects where clients are resolved from.
type RegistryConfig struct {
	Backend registry.Backend `mapstructure:"backend" yaml:"backend"`

	// AutoImport imports the static clients when the database holds none.
	AutoImport bool `mapstructure:"autoImport" yaml:"autoImport"`
}

// LoadConfig reads the configuration file at path and applies defaults.
// Values can be overridden with OAUTHZ_ prefixed environment variables,
// for example OAUTHZ_ISSUER or OAUTHZ_STORAGE_REDIS_PASSWORD.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("no configuration file specified")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("OAUTHZ")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	// Secrets are usually absent from the file, so bind them explicitly.
	if err := v.BindEnv("storage.redis.password"); err != nil {
		return nil, fmt.Errorf("binding environment: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading configuration %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	logger.Debugw("configuration loaded", "path", path, "issuer", cfg.Issuer)
	return cfg, nil
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.Tokens.Expiration == 0 {
		c.Tokens.Expiration = token.DefaultExpiration
	}
	if c.Tokens.AuthorizationCodeTTL == 0 {
		c.Tokens.AuthorizationCodeTTL = grant.DefaultCodeTTL
	}
	if c.Tokens.CleanupInterval == 0 {
		c.Tokens.CleanupInterval = token.DefaultCleanupInterval
	}
	if c.Storage.Type == "" {
		c.Storage.Type = storage.TypeMemory
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = registry.BackendStatic
	}
}

// Validate checks that the Config is valid. Users are checked when the
// authenticator is built.
func (c *Config) Validate() error {
	logger.Debugw("validating authserver config", "issuer", c.Issuer)

	if c.Issuer == "" {
		return errors.New("issuer is required")
	}
	if c.Tokens.Expiration < 0 || c.Tokens.AuthorizationCodeTTL < 0 || c.Tokens.CleanupInterval < 0 {
		return errors.New("token durations must not be negative")
	}

	switch c.Storage.Type {
	case storage.TypeMemory, "":
	case storage.TypeRedis:
		if err := c.Storage.Redis.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	case storage.TypeSQLite:
		if c.Database.Path == "" {
			return errors.New("storage: database.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("storage: %w: %q", storage.ErrUnsupportedType, c.Storage.Type)
	}

	switch c.Registry.Backend {
	case registry.BackendStatic, "":
	case registry.BackendPersistent:
		if c.Database.Path == "" && c.Storage.Type != storage.TypeMemory {
			return errors.New("registry: database.path is required for the persistent registry")
		}
	default:
		return fmt.Errorf("registry: unknown backend %q", c.Registry.Backend)
	}

	if err := registry.ValidateClients(c.Clients); err != nil {
		return fmt.Errorf("clients: %w", err)
	}

	logger.Debugw("authserver config validation passed",
		"issuer", c.Issuer,
		"storage", c.Storage.Type,
		"registry", c.Registry.Backend,
		"clientCount", len(c.Clients),
		"userCount", len(c.Users),
	)
	return nil
}

// needsDatabase reports whether any component is backed by SQLite. Without
// a database path the persistent registry lives in memory storage.
func (c *Config) needsDatabase() bool {
	return c.Storage.Type == storage.TypeSQLite ||
		(c.Registry.Backend == registry.BackendPersistent && c.Database.Path != "")
}

const redacted = "REDACTED"

// Redacted returns a copy of c with every secret masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Storage.Redis.Password != "" {
		out.Storage.Redis.Password = redacted
	}

	out.Clients = make([]oauth.Client, len(c.Clients))
	for i := range c.Clients {
		client := c.Clients[i].Clone()
		if client.ClientSecret != "" {
			client.ClientSecret = redacted
		}
		out.Clients[i] = *client
	}

	out.Users = make([]identity.User, len(c.Users))
	for i, u := range c.Users {
		u.Authorities = slices.Clone(u.Authorities)
		if u.Password != "" {
			u.Password = redacted
		}
		out.Users[i] = u
	}
	return &out
}
