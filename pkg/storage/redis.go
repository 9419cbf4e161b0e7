// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// DefaultKeyPrefix namespaces every key written by the server.
const DefaultKeyPrefix = "oauthz:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Address is a standalone server address ("host:port").
	Address string `mapstructure:"address" yaml:"address"`

	// MasterName and SentinelAddrs select a Sentinel deployment instead of
	// a standalone server.
	MasterName    string   `mapstructure:"masterName" yaml:"masterName"`
	SentinelAddrs []string `mapstructure:"sentinelAddrs" yaml:"sentinelAddrs"`

	// Username and Password authenticate with an ACL user.
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// DB selects the logical database.
	DB int `mapstructure:"db" yaml:"db"`

	// KeyPrefix for multi-tenancy. Defaults to DefaultKeyPrefix.
	KeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix"`

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

// Validate checks that a server or a Sentinel deployment is configured.
func (c *RedisConfig) Validate() error {
	if c.Address == "" && c.MasterName == "" {
		return errors.New("either a redis address or a sentinel master name is required")
	}
	if c.MasterName != "" && len(c.SentinelAddrs) == 0 {
		return errors.New("at least one sentinel address is required")
	}
	return nil
}

// RedisStorage implements Storage on Redis, letting several server replicas
// share in-flight authorizations and token state.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStorage creates Redis-backed storage and checks connectivity.
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	opts := &redis.UniversalOptions{
		MasterName:   cfg.MasterName,
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.MasterName != "" {
		opts.Addrs = cfg.SentinelAddrs
	} else {
		opts.Addrs = []string{cfg.Address}
	}
	client := redis.NewUniversalClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// NewRedisStorageWithClient creates a RedisStorage with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// Health checks Redis connectivity.
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// -----------------------
// AuthorizationStore
// -----------------------

// storedAuthorization is the JSON form of an ongoing authorization.
type storedAuthorization struct {
	Code           string         `json:"code"`
	ClientID       string         `json:"client_id"`
	RedirectURI    string         `json:"redirect_uri"`
	Subject        *oauth.Subject `json:"subject"`
	ExpiresAt      int64          `json:"expires_at"`
	Scope          []string       `json:"scope"`
	ScopeRequested bool           `json:"scope_requested"`
}

// StoreAuthorization saves a new ongoing authorization. The key outlives the
// authorization by a short grace period so that late exchanges are reported
// as expired.
func (s *RedisStorage) StoreAuthorization(ctx context.Context, authz *oauth.OngoingAuthorization) error {
	if authz == nil || authz.Code == "" {
		return errors.New("authorization code cannot be empty")
	}

	data, err := json.Marshal(storedAuthorization{
		Code:           authz.Code,
		ClientID:       authz.ClientID,
		RedirectURI:    authz.RedirectURI,
		Subject:        authz.Subject,
		ExpiresAt:      authz.ExpiresAt.UnixMilli(),
		Scope:          authz.Scope,
		ScopeRequested: authz.ScopeRequested,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal authorization: %w", err)
	}

	ttl := time.Until(authz.ExpiresAt) + authorizationGrace
	if ttl < time.Second {
		ttl = time.Second
	}

	key := redisKey(s.keyPrefix, KeyTypeAuthorization, authz.Code)
	created, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store authorization: %w", err)
	}
	if !created {
		return ErrAlreadyExists
	}
	return nil
}

// GetAuthorization returns the authorization stored under code.
func (s *RedisStorage) GetAuthorization(ctx context.Context, code string) (*oauth.OngoingAuthorization, error) {
	data, err := s.client.Get(ctx, redisKey(s.keyPrefix, KeyTypeAuthorization, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get authorization: %w", err)
	}
	return unmarshalAuthorization(data)
}

// TakeAuthorization atomically reads and deletes the authorization with GETDEL.
func (s *RedisStorage) TakeAuthorization(ctx context.Context, code string) (*oauth.OngoingAuthorization, error) {
	data, err := s.client.GetDel(ctx, redisKey(s.keyPrefix, KeyTypeAuthorization, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to take authorization: %w", err)
	}
	return unmarshalAuthorization(data)
}

// DeleteAuthorization removes code if present.
func (s *RedisStorage) DeleteAuthorization(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, redisKey(s.keyPrefix, KeyTypeAuthorization, code)).Err(); err != nil {
		return fmt.Errorf("failed to delete authorization: %w", err)
	}
	return nil
}

func unmarshalAuthorization(data []byte) (*oauth.OngoingAuthorization, error) {
	var stored storedAuthorization
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization: %w", err)
	}
	return &oauth.OngoingAuthorization{
		Code:           stored.Code,
		ClientID:       stored.ClientID,
		RedirectURI:    stored.RedirectURI,
		Subject:        stored.Subject,
		ExpiresAt:      time.UnixMilli(stored.ExpiresAt),
		Scope:          stored.Scope,
		ScopeRequested: stored.ScopeRequested,
	}, nil
}

// -----------------------
// TokenInfoStore
// -----------------------

// Token records are hashes; an expiry sorted set indexes them by expiration
// for the cleanup sweep.
const (
	fieldTokenID   = "token_id"
	fieldSubject   = "subject"
	fieldIssuedAt  = "issued_at"
	fieldExpiresAt = "expires_at"
	fieldStatus    = "status"
	fieldRevokedAt = "revoked_at"
)

// createTokenScript writes the record and its expiry index entry only when
// the record does not exist yet.
var createTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'token_id', ARGV[1], 'subject', ARGV[2], 'issued_at', ARGV[3],
	'expires_at', ARGV[4], 'status', ARGV[5])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
return 1
`)

// revokeTokenScript returns -1 for a missing record, 0 when the record is
// not ACTIVE and 1 after revoking it.
var revokeTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'status') ~= 'ACTIVE' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'REVOKED', 'revoked_at', ARGV[1])
return 1
`)

// CreateTokenInfo records a new token.
func (s *RedisStorage) CreateTokenInfo(ctx context.Context, info *oauth.AccessTokenInfo) error {
	if info == nil || info.TokenID == "" {
		return errors.New("token id cannot be empty")
	}

	keys := []string{
		redisKey(s.keyPrefix, KeyTypeToken, info.TokenID),
		redisKey(s.keyPrefix, KeyTypeTokenExpiry, ""),
	}
	created, err := createTokenScript.Run(ctx, s.client, keys,
		info.TokenID,
		info.Subject,
		info.IssuedAt.UnixMilli(),
		info.ExpiresAt.UnixMilli(),
		string(info.Status),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to create token info: %w", err)
	}
	if created == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetTokenInfo returns the record for tokenID.
func (s *RedisStorage) GetTokenInfo(ctx context.Context, tokenID string) (*oauth.AccessTokenInfo, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(s.keyPrefix, KeyTypeToken, tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token info: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return tokenInfoFromHash(fields)
}

// RevokeTokenInfo moves an ACTIVE record to REVOKED in a single script call.
func (s *RedisStorage) RevokeTokenInfo(ctx context.Context, tokenID string, at time.Time) (*oauth.AccessTokenInfo, error) {
	key := redisKey(s.keyPrefix, KeyTypeToken, tokenID)
	result, err := revokeTokenScript.Run(ctx, s.client, []string{key}, at.UnixMilli()).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to revoke token info: %w", err)
	}
	switch result {
	case -1:
		return nil, ErrNotFound
	case 0:
		return nil, ErrNotActive
	}
	return s.GetTokenInfo(ctx, tokenID)
}

// ListExpiredTokenInfo returns the ids indexed with an expiration at or before now.
func (s *RedisStorage) ListExpiredTokenInfo(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, redisKey(s.keyPrefix, KeyTypeTokenExpiry, ""), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired token info: %w", err)
	}
	return ids, nil
}

// DeleteTokenInfo removes the record and its index entry.
func (s *RedisStorage) DeleteTokenInfo(ctx context.Context, tokenID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey(s.keyPrefix, KeyTypeToken, tokenID))
		pipe.ZRem(ctx, redisKey(s.keyPrefix, KeyTypeTokenExpiry, ""), tokenID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete token info: %w", err)
	}
	return nil
}

func tokenInfoFromHash(fields map[string]string) (*oauth.AccessTokenInfo, error) {
	issuedAt, err := strconv.ParseInt(fields[fieldIssuedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", fieldIssuedAt, err)
	}
	expiresAt, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", fieldExpiresAt, err)
	}

	info := &oauth.AccessTokenInfo{
		TokenID:   fields[fieldTokenID],
		Subject:   fields[fieldSubject],
		IssuedAt:  time.UnixMilli(issuedAt),
		ExpiresAt: time.UnixMilli(expiresAt),
		Status:    oauth.TokenStatus(fields[fieldStatus]),
	}
	if raw, ok := fields[fieldRevokedAt]; ok {
		revokedAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", fieldRevokedAt, err)
		}
		at := time.UnixMilli(revokedAt)
		info.RevokedAt = &at
	}
	return info, nil
}

var _ Storage = (*RedisStorage)(nil)
