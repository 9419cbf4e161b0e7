// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenClaims_ClientID(t *testing.T) {
	t.Parallel()

	bare := TokenClaims{Subject: "billing"}
	assert.Equal(t, "billing", bare.ClientID())

	user := TokenClaims{Subject: UserSubject("portal", 42)}
	assert.Equal(t, "portal|uid=42", user.Subject)
	assert.Equal(t, "portal", user.ClientID())
}

func TestTokenClaims_SetUser(t *testing.T) {
	t.Parallel()

	claims := TokenClaims{Subject: "portal", Scope: "read"}
	claims.SetUser("portal", &Subject{ID: 7, Username: "ada", Email: "ada@example.com", Role: "admin"})

	assert.Equal(t, "portal|uid=7", claims.Subject)
	assert.Equal(t, "ada", claims.Username)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "read", claims.Scope)
}

func TestOngoingAuthorization_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	a := &OngoingAuthorization{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, a.IsExpired(now))
	assert.True(t, a.IsExpired(now.Add(time.Minute)))
}

func TestParseGrantType(t *testing.T) {
	t.Parallel()

	for _, gt := range GrantTypes {
		got, err := ParseGrantType(string(gt))
		require.NoError(t, err)
		assert.Equal(t, gt, got)
	}

	_, err := ParseGrantType("implicit")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedGrantType)
	assert.Equal(t, "unsupported_grant_type", ErrorCode(err))
}

func TestParseResponseType(t *testing.T) {
	t.Parallel()

	got, err := ParseResponseType("code")
	require.NoError(t, err)
	assert.Equal(t, ResponseTypeCode, got)

	_, err = ParseResponseType("token")
	assert.ErrorIs(t, err, ErrUnsupportedResponseType)
}

func TestAsRFC6749(t *testing.T) {
	t.Parallel()

	assert.Nil(t, AsRFC6749(nil))

	hinted := ErrInvalidScope.WithHint("scope is required")
	assert.Equal(t, "invalid_scope", AsRFC6749(hinted).ErrorField)

	internal := AsRFC6749(errors.New("disk on fire"))
	assert.Equal(t, "server_error", internal.ErrorField)
	assert.Equal(t, 500, internal.StatusCode())
}

func TestTokenRequest_WithScope(t *testing.T) {
	t.Parallel()

	original := TokenRequest{ClientID: "a", Scope: []string{"x"}}
	derived := original.WithScope([]string{"y", "z"})

	assert.Equal(t, []string{"x"}, original.Scope)
	assert.Equal(t, []string{"y", "z"}, derived.Scope)
	assert.Equal(t, "a", derived.ClientID)
}
