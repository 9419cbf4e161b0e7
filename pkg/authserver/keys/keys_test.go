// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeys = sync.OnceValue(func() []*rsa.PrivateKey {
	keys := make([]*rsa.PrivateKey, 2)
	for i := range keys {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		keys[i] = key
	}
	return keys
})

func writePEM(t *testing.T, dir, name, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func TestLoadSigningKey(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	key := testKeys()[0]

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalPKCS8PrivateKey(ecKey)
	require.NoError(t, err)

	writePEM(t, dir, "pkcs1.pem", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
	writePEM(t, dir, "pkcs8.pem", "PRIVATE KEY", pkcs8)
	writePEM(t, dir, "ec.pem", "PRIVATE KEY", ecDER)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.pem"), []byte("not pem"), 0o600))

	for _, name := range []string{"pkcs1.pem", "pkcs8.pem"} {
		loaded, err := LoadSigningKey(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.True(t, key.Equal(loaded), name)
	}

	_, err = LoadSigningKey(filepath.Join(dir, "ec.pem"))
	assert.ErrorContains(t, err, "must be RSA")
	_, err = LoadSigningKey(filepath.Join(dir, "garbage.pem"))
	assert.ErrorContains(t, err, "failed to decode PEM")
	_, err = LoadSigningKey(filepath.Join(dir, "missing.pem"))
	assert.ErrorContains(t, err, "failed to read")
}

func TestDeriveKeyID(t *testing.T) {
	t.Parallel()
	first, err := DeriveKeyID(testKeys()[0])
	require.NoError(t, err)
	again, err := DeriveKeyID(testKeys()[0])
	require.NoError(t, err)
	other, err := DeriveKeyID(testKeys()[1])
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 43)
}

func TestFileProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	writePEM(t, dir, "current.pem", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(testKeys()[0]))
	writePEM(t, dir, "previous.pem", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(testKeys()[1]))

	provider, err := NewProviderFromConfig(Config{
		KeyDir:           dir,
		SigningKeyFile:   "current.pem",
		FallbackKeyFiles: []string{"previous.pem"},
	})
	require.NoError(t, err)
	require.IsType(t, &FileProvider{}, provider)

	signing, err := provider.SigningKey(ctx)
	require.NoError(t, err)
	assert.True(t, testKeys()[0].Equal(signing.Key))

	pubKeys, err := provider.PublicKeys(ctx)
	require.NoError(t, err)
	require.Len(t, pubKeys, 2)
	assert.Equal(t, signing.KeyID, pubKeys[0].KeyID)

	found, err := FindPublicKey(ctx, provider, pubKeys[1].KeyID)
	require.NoError(t, err)
	assert.True(t, testKeys()[1].PublicKey.Equal(found.PublicKey))

	_, err = FindPublicKey(ctx, provider, "nope")
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = NewFileProvider(Config{KeyDir: dir})
	assert.ErrorContains(t, err, "signing key file is required")
	_, err = NewFileProvider(Config{KeyDir: dir, SigningKeyFile: "current.pem", FallbackKeyFiles: []string{"gone.pem"}})
	assert.ErrorContains(t, err, "fallback key gone.pem")
}

func TestGeneratingProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	provider, err := NewProviderFromConfig(Config{})
	require.NoError(t, err)
	require.IsType(t, &GeneratingProvider{}, provider)

	first, err := provider.SigningKey(ctx)
	require.NoError(t, err)
	second, err := provider.SigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.KeyID, second.KeyID)
	assert.Equal(t, GeneratedKeyBits, first.Key.N.BitLen())

	jwks, err := JWKS(ctx, provider)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, first.KeyID, jwks.Keys[0].KeyID)
	assert.Equal(t, Algorithm, jwks.Keys[0].Algorithm)
	assert.Equal(t, "sig", jwks.Keys[0].Use)
	assert.True(t, jwks.Keys[0].IsPublic())
}
