// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/oauthz/pkg/authserver/metrics"
	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/storage"
)

// DefaultCleanupInterval is how often expired token records are removed.
const DefaultCleanupInterval = time.Hour

// Tracker records issued tokens so they can be introspected and revoked,
// and periodically removes expired records.
type Tracker struct {
	store    storage.TokenInfoStore
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithCleanupInterval sets how often the cleanup loop runs.
func WithCleanupInterval(interval time.Duration) TrackerOption {
	return func(t *Tracker) {
		if interval > 0 {
			t.interval = interval
		}
	}
}

// WithTrackerMetrics records revocations and cleanups in m.
func WithTrackerMetrics(m *metrics.Metrics) TrackerOption {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithClock overrides the tracker's time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker over store.
func NewTracker(store storage.TokenInfoStore, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:    store,
		interval: DefaultCleanupInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StoreTokenInfo records a newly issued token as ACTIVE. A record with the
// same id is left untouched.
func (t *Tracker) StoreTokenInfo(ctx context.Context, tokenID, subject string, issuedAt, expiresAt time.Time) error {
	err := t.store.CreateTokenInfo(ctx, &oauth.AccessTokenInfo{
		TokenID:   tokenID,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Status:    oauth.TokenStatusActive,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		slog.Warn("token already tracked, keeping existing record", "jti", tokenID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("recording token %s: %w", tokenID, err)
	}
	return nil
}

// RetrieveTokenInfo returns the record for tokenID, or found=false.
func (t *Tracker) RetrieveTokenInfo(ctx context.Context, tokenID string) (*oauth.AccessTokenInfo, bool, error) {
	info, err := t.store.GetTokenInfo(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("retrieving token %s: %w", tokenID, err)
	}
	return info, true, nil
}

// RevokeToken moves an ACTIVE token to REVOKED. Unknown and already revoked
// tokens are reported as access_denied.
func (t *Tracker) RevokeToken(ctx context.Context, tokenID string) error {
	_, err := t.store.RevokeTokenInfo(ctx, tokenID, t.now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return oauth.ErrAccessDenied.WithHint("The token is not known.").WithWrap(err)
	case errors.Is(err, storage.ErrNotActive):
		return oauth.ErrAccessDenied.WithHint("The token is not active.").WithWrap(err)
	case err != nil:
		return fmt.Errorf("revoking token %s: %w", tokenID, err)
	}

	t.metrics.TokenRevoked()
	slog.Debug("token revoked", "jti", tokenID)
	return nil
}

// CleanUpExpiredTokens deletes every expired record regardless of status.
// Per-record failures are logged and returned joined once the sweep is done.
func (t *Tracker) CleanUpExpiredTokens(ctx context.Context) (int, error) {
	expired, err := t.store.ListExpiredTokenInfo(ctx, t.now())
	if err != nil {
		return 0, fmt.Errorf("listing expired tokens: %w", err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, id := range expired {
		if err := t.store.DeleteTokenInfo(ctx, id); err != nil {
			slog.Error("failed to delete expired token", "jti", id, "error", err)
			errs = append(errs, fmt.Errorf("deleting token %s: %w", id, err))
			continue
		}
		deleted++
	}

	t.metrics.TokensCleaned(deleted)
	if deleted > 0 {
		slog.Debug("expired tokens cleaned up", "deleted", deleted, "failed", len(errs))
	}
	return deleted, errors.Join(errs...)
}

// Run removes expired records every interval until ctx is cancelled or
// Close is called.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.stop:
			return nil
		case <-ticker.C:
			if _, err := t.CleanUpExpiredTokens(ctx); err != nil {
				slog.Warn("token cleanup finished with errors", "error", err)
			}
		}
	}
}

// Close stops a running cleanup loop.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}
