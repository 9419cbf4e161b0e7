// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stacklok/toolhive-core/httperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("default is memory", func(t *testing.T) {
		t.Parallel()
		s, err := New(ctx, nil, 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		assert.IsType(t, &MemoryStorage{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		s, err := New(ctx, &Config{Type: TypeRedis, Redis: RedisConfig{Address: mr.Addr()}}, 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		assert.IsType(t, &RedisStorage{}, s)
	})

	t.Run("sqlite is not built here", func(t *testing.T) {
		t.Parallel()
		_, err := New(ctx, &Config{Type: TypeSQLite}, 0)
		require.ErrorIs(t, err, ErrUnsupportedType)
		assert.Equal(t, http.StatusBadRequest, httperr.Code(err))
	})
}

func TestErrorCodes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusNotFound, httperr.Code(ErrNotFound))
	assert.Equal(t, http.StatusConflict, httperr.Code(ErrAlreadyExists))
	assert.Equal(t, http.StatusConflict, httperr.Code(ErrNotActive))
}
