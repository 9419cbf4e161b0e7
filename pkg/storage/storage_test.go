// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
)

// runStorageSuite exercises the Storage contract against a backend.
func runStorageSuite(t *testing.T, newStorage func(t *testing.T) Storage) {
	t.Helper()

	t.Run("authorization round trip", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		ctx := context.Background()
		authz := testAuthorization("code-1", time.Now().Add(time.Minute))

		require.NoError(t, s.StoreAuthorization(ctx, authz))

		got, err := s.GetAuthorization(ctx, "code-1")
		require.NoError(t, err)
		assert.Equal(t, authz.ClientID, got.ClientID)
		assert.Equal(t, authz.RedirectURI, got.RedirectURI)
		assert.Equal(t, authz.Scope, got.Scope)
		assert.True(t, got.ScopeRequested)
		assert.Equal(t, "ada", got.Subject.Username)
		assert.Equal(t, []string{"read", "write"}, got.Subject.Authorities)
		assert.WithinDuration(t, authz.ExpiresAt, got.ExpiresAt, time.Millisecond)
	})

	t.Run("store never overwrites", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		ctx := context.Background()

		require.NoError(t, s.StoreAuthorization(ctx, testAuthorization("dup", time.Now().Add(time.Minute))))
		err := s.StoreAuthorization(ctx, testAuthorization("dup", time.Now().Add(time.Hour)))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("take removes the authorization", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		ctx := context.Background()
		require.NoError(t, s.StoreAuthorization(ctx, testAuthorization("take", time.Now().Add(time.Minute))))

		got, err := s.TakeAuthorization(ctx, "take")
		require.NoError(t, err)
		assert.Equal(t, "take", got.Code)

		_, err = s.TakeAuthorization(ctx, "take")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetAuthorization(ctx, "take")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent take is observed once", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		ctx := context.Background()
		require.NoError(t, s.StoreAuthorization(ctx, testAuthorization("race", time.Now().Add(time.Minute))))

		var (
			wg    sync.WaitGroup
			taken atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.TakeAuthorization(ctx, "race"); err == nil {
					taken.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), taken.Load())
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		ctx := context.Background()
		require.NoError(t, s.StoreAuthorization(ctx, testAuthorization("del", time.Now().Add(time.Minute))))

		require.NoError(t, s.DeleteAuthorization(ctx, "del"))
		require.NoError(t, s.DeleteAuthorization(ctx, "del"))
		_, err := s.GetAuthorization(ctx, "del")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("token info lifecycle", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		ctx := context.Background()
		info := testTokenInfo("jti-1", time.Now().Add(time.Hour))

		require.NoError(t, s.CreateTokenInfo(ctx, info))
		assert.ErrorIs(t, s.CreateTokenInfo(ctx, info), ErrAlreadyExists)

		got, err := s.GetTokenInfo(ctx, "jti-1")
		require.NoError(t, err)
		assert.Equal(t, oauth.TokenStatusActive, got.Status)
		assert.Equal(t, "portal|uid=7", got.Subject)
		assert.Nil(t, got.RevokedAt)

		revokedAt := time.Now()
		revoked, err := s.RevokeTokenInfo(ctx, "jti-1", revokedAt)
		require.NoError(t, err)
		assert.Equal(t, oauth.TokenStatusRevoked, revoked.Status)
		require.NotNil(t, revoked.RevokedAt)
		assert.WithinDuration(t, revokedAt, *revoked.RevokedAt, time.Millisecond)

		_, err = s.RevokeTokenInfo(ctx, "jti-1", time.Now())
		assert.ErrorIs(t, err, ErrNotActive)
		_, err = s.RevokeTokenInfo(ctx, "unknown", time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("expired token listing ignores status", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		ctx := context.Background()
		now := time.Now()

		require.NoError(t, s.CreateTokenInfo(ctx, testTokenInfo("expired-active", now.Add(-time.Minute))))
		require.NoError(t, s.CreateTokenInfo(ctx, testTokenInfo("expired-revoked", now.Add(-time.Minute))))
		require.NoError(t, s.CreateTokenInfo(ctx, testTokenInfo("live", now.Add(time.Hour))))
		_, err := s.RevokeTokenInfo(ctx, "expired-revoked", now)
		require.NoError(t, err)

		expired, err := s.ListExpiredTokenInfo(ctx, now)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"expired-active", "expired-revoked"}, expired)

		for _, id := range expired {
			require.NoError(t, s.DeleteTokenInfo(ctx, id))
		}
		require.NoError(t, s.DeleteTokenInfo(ctx, "expired-active"))

		expired, err = s.ListExpiredTokenInfo(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, expired)
		_, err = s.GetTokenInfo(ctx, "live")
		assert.NoError(t, err)
	})
}

func testAuthorization(code string, expiresAt time.Time) *oauth.OngoingAuthorization {
	return &oauth.OngoingAuthorization{
		Code:        code,
		ClientID:    "portal",
		RedirectURI: "https://portal.example.com/callback",
		Subject: &oauth.Subject{
			ID:          7,
			Username:    "ada",
			Email:       "ada@example.com",
			Role:        "admin",
			Authorities: []string{"read", "write"},
		},
		ExpiresAt:      expiresAt,
		Scope:          []string{"read"},
		ScopeRequested: true,
	}
}

func testTokenInfo(id string, expiresAt time.Time) *oauth.AccessTokenInfo {
	return &oauth.AccessTokenInfo{
		TokenID:   id,
		Subject:   "portal|uid=7",
		IssuedAt:  expiresAt.Add(-time.Hour),
		ExpiresAt: expiresAt,
		Status:    oauth.TokenStatusActive,
	}
}
