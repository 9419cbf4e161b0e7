// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/logger"
)

// MemoryStorage implements Storage and ClientRepository with in-memory maps.
// It is safe for concurrent use and suited to single-replica deployments
// and tests. Values are copied on the way in and out.
type MemoryStorage struct {
	mu sync.RWMutex

	// authorizations maps authorization code -> ongoing authorization.
	authorizations map[string]*oauth.OngoingAuthorization

	// tokens maps token id (jti) -> tracked token metadata.
	tokens map[string]*oauth.AccessTokenInfo

	// clientMu guards catalog, which is replaced wholesale when a client
	// transaction commits.
	clientMu sync.RWMutex
	catalog  *clientCatalog

	// cleanupInterval is how often the background cleanup runs
	cleanupInterval time.Duration

	// stopCleanup is used to signal the cleanup goroutine to stop
	stopCleanup chan struct{}

	// cleanupDone is closed when the cleanup goroutine has fully stopped
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// MemoryStorageOption configures a MemoryStorage instance.
type MemoryStorageOption func(*MemoryStorage)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStorage creates a new MemoryStorage instance with initialized maps
// and starts the background cleanup goroutine.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		authorizations:  make(map[string]*oauth.OngoingAuthorization),
		tokens:          make(map[string]*oauth.AccessTokenInfo),
		catalog:         newClientCatalog(),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Health is a no-op for in-memory storage since it is always available.
func (*MemoryStorage) Health(_ context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *MemoryStorage) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	<-s.cleanupDone
	return nil
}

// cleanupLoop runs periodic cleanup of abandoned authorizations.
func (s *MemoryStorage) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired(time.Now())
		}
	}
}

// cleanupExpired removes authorizations whose grace period has passed.
// Expired keys are collected under the read lock and deleted under the write
// lock. Token records are swept by the token tracker, not here.
func (s *MemoryStorage) cleanupExpired(now time.Time) {
	s.mu.RLock()
	var expired []string
	for code, authz := range s.authorizations {
		if now.After(authz.ExpiresAt.Add(authorizationGrace)) {
			expired = append(expired, code)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	for _, code := range expired {
		delete(s.authorizations, code)
	}
	s.mu.Unlock()

	logger.Debugw("swept abandoned authorizations", "count", len(expired))
}

// -----------------------
// AuthorizationStore
// -----------------------

// StoreAuthorization saves a new ongoing authorization.
func (s *MemoryStorage) StoreAuthorization(_ context.Context, authz *oauth.OngoingAuthorization) error {
	if authz == nil || authz.Code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.authorizations[authz.Code]; exists {
		return ErrAlreadyExists
	}
	s.authorizations[authz.Code] = authz.Clone()
	return nil
}

// GetAuthorization returns the authorization stored under code.
func (s *MemoryStorage) GetAuthorization(_ context.Context, code string) (*oauth.OngoingAuthorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	authz, ok := s.authorizations[code]
	if !ok {
		return nil, ErrNotFound
	}
	return authz.Clone(), nil
}

// TakeAuthorization returns and removes the authorization stored under code.
func (s *MemoryStorage) TakeAuthorization(_ context.Context, code string) (*oauth.OngoingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	authz, ok := s.authorizations[code]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.authorizations, code)
	return authz, nil
}

// DeleteAuthorization removes code if present.
func (s *MemoryStorage) DeleteAuthorization(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.authorizations, code)
	return nil
}

// -----------------------
// TokenInfoStore
// -----------------------

// CreateTokenInfo records a new token.
func (s *MemoryStorage) CreateTokenInfo(_ context.Context, info *oauth.AccessTokenInfo) error {
	if info == nil || info.TokenID == "" {
		return fmt.Errorf("token id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[info.TokenID]; exists {
		return ErrAlreadyExists
	}
	s.tokens[info.TokenID] = info.Clone()
	return nil
}

// GetTokenInfo returns the record for tokenID.
func (s *MemoryStorage) GetTokenInfo(_ context.Context, tokenID string) (*oauth.AccessTokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.tokens[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	return info.Clone(), nil
}

// RevokeTokenInfo moves an ACTIVE record to REVOKED.
func (s *MemoryStorage) RevokeTokenInfo(_ context.Context, tokenID string, at time.Time) (*oauth.AccessTokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.tokens[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	if info.Status != oauth.TokenStatusActive {
		return nil, ErrNotActive
	}
	info.Status = oauth.TokenStatusRevoked
	info.RevokedAt = &at
	return info.Clone(), nil
}

// ListExpiredTokenInfo returns the ids of records expired at now.
func (s *MemoryStorage) ListExpiredTokenInfo(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []string
	for id, info := range s.tokens {
		if info.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	return expired, nil
}

// DeleteTokenInfo removes tokenID if present.
func (s *MemoryStorage) DeleteTokenInfo(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, tokenID)
	return nil
}

var (
	_ Storage          = (*MemoryStorage)(nil)
	_ ClientRepository = (*MemoryStorage)(nil)
)
