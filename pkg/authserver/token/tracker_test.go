// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/oauthz/pkg/authserver/metrics"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/storage"
)

// flakyStore fails to delete the listed ids.
type flakyStore struct {
	*storage.MemoryStorage
	failDelete map[string]bool
}

func (s *flakyStore) DeleteTokenInfo(ctx context.Context, tokenID string) error {
	if s.failDelete[tokenID] {
		return errors.New("disk full")
	}
	return s.MemoryStorage.DeleteTokenInfo(ctx, tokenID)
}

func newMemory(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	s := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTracker_StoreAndRetrieve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tracker := NewTracker(newMemory(t))
	now := time.Now()

	require.NoError(t, tracker.StoreTokenInfo(ctx, "jti", "web", now, now.Add(time.Hour)))
	require.NoError(t, tracker.StoreTokenInfo(ctx, "jti", "other", now, now.Add(time.Minute)),
		"duplicates are skipped, not reported")

	info, found, err := tracker.RetrieveTokenInfo(ctx, "jti")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "web", info.Subject)
	assert.Equal(t, oauth.TokenStatusActive, info.Status)

	_, found, err = tracker.RetrieveTokenInfo(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTracker_RevokeToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	revokedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tracker := NewTracker(newMemory(t), WithTrackerMetrics(m), WithClock(func() time.Time { return revokedAt }))

	require.NoError(t, tracker.StoreTokenInfo(ctx, "jti", "web", revokedAt, revokedAt.Add(time.Hour)))
	require.NoError(t, tracker.RevokeToken(ctx, "jti"))

	info, _, err := tracker.RetrieveTokenInfo(ctx, "jti")
	require.NoError(t, err)
	assert.Equal(t, oauth.TokenStatusRevoked, info.Status)
	require.NotNil(t, info.RevokedAt)
	assert.True(t, revokedAt.Equal(*info.RevokedAt))

	err = tracker.RevokeToken(ctx, "jti")
	require.ErrorIs(t, err, oauth.ErrAccessDenied)
	assert.Equal(t, "access_denied", oauth.ErrorCode(err))

	err = tracker.RevokeToken(ctx, "unknown")
	assert.ErrorIs(t, err, oauth.ErrAccessDenied)
}

func TestTracker_CleanUpExpiredTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	store := &flakyStore{MemoryStorage: newMemory(t), failDelete: map[string]bool{"stuck": true}}
	tracker := NewTracker(store, WithClock(func() time.Time { return now }))

	require.NoError(t, tracker.StoreTokenInfo(ctx, "expired", "web", now.Add(-2*time.Hour), now.Add(-time.Hour)))
	require.NoError(t, tracker.StoreTokenInfo(ctx, "revoked", "web", now.Add(-2*time.Hour), now.Add(-time.Hour)))
	require.NoError(t, tracker.StoreTokenInfo(ctx, "stuck", "web", now.Add(-2*time.Hour), now.Add(-time.Hour)))
	require.NoError(t, tracker.StoreTokenInfo(ctx, "live", "web", now, now.Add(time.Hour)))
	_, err := store.RevokeTokenInfo(ctx, "revoked", now)
	require.NoError(t, err)

	deleted, err := tracker.CleanUpExpiredTokens(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck")
	assert.Equal(t, 2, deleted)

	for id, wantFound := range map[string]bool{"expired": false, "revoked": false, "stuck": true, "live": true} {
		_, found, err := tracker.RetrieveTokenInfo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, wantFound, found, id)
	}
}

func TestTracker_RunStops(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	store := newMemory(t)
	tracker := NewTracker(store, WithCleanupInterval(10*time.Millisecond))
	require.NoError(t, tracker.StoreTokenInfo(ctx, "expired", "web", now.Add(-time.Hour), now.Add(-time.Minute)))

	done := make(chan error, 1)
	go func() { done <- tracker.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := store.GetTokenInfo(ctx, "expired")
		return errors.Is(err, storage.ErrNotFound)
	}, time.Second, 10*time.Millisecond)

	tracker.Close()
	tracker.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestTracker_RunHonoursContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	tracker := NewTracker(newMemory(t))

	done := make(chan error, 1)
	go func() { done <- tracker.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleanup loop ignored cancellation")
	}
}
