// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keys manages the RSA keys access tokens are signed with: loading
// them from PEM files, generating ephemeral ones and publishing the public
// halves as a JWK set.
package keys

import (
	"crypto/rsa"
	"time"
)

// Algorithm is the JWS algorithm every access token is signed with.
const Algorithm = "RS256"

// GeneratedKeyBits is the modulus size of ephemeral keys.
const GeneratedKeyBits = 2048

// SigningKeyData represents a signing key with its metadata.
// This contains private key material and should not be exposed externally.
type SigningKeyData struct {
	// KeyID is the unique identifier for this key (RFC 7638 thumbprint).
	KeyID string

	// Key is the private key used for signing.
	Key *rsa.PrivateKey

	// CreatedAt is when this key was generated or loaded.
	CreatedAt time.Time
}

// PublicKeyData represents the public portion of a signing key.
type PublicKeyData struct {
	KeyID     string
	PublicKey *rsa.PublicKey
	CreatedAt time.Time
}

func (k *SigningKeyData) public() *PublicKeyData {
	return &PublicKeyData{
		KeyID:     k.KeyID,
		PublicKey: &k.Key.PublicKey,
		CreatedAt: k.CreatedAt,
	}
}

func (k *SigningKeyData) clone() *SigningKeyData {
	return &SigningKeyData{
		KeyID:     k.KeyID,
		Key:       k.Key,
		CreatedAt: k.CreatedAt,
	}
}
