// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// ErrUnknownKey is returned when no loaded key matches a key id.
var ErrUnknownKey = errors.New("unknown signing key")

// KeyProvider provides the signing key and the verification keys.
type KeyProvider interface {
	// SigningKey returns the current signing key.
	SigningKey(ctx context.Context) (*SigningKeyData, error)

	// PublicKeys returns all verification keys, the signing key first.
	PublicKeys(ctx context.Context) ([]*PublicKeyData, error)
}

// FileProvider loads signing keys from PEM files in a directory.
// Keys are loaded once at construction time; changes require restart.
type FileProvider struct {
	signingKey *SigningKeyData
	allKeys    []*SigningKeyData
}

// NewFileProvider loads the signing key and any fallback keys kept for
// verifying tokens signed before a rotation.
func NewFileProvider(cfg Config) (*FileProvider, error) {
	if cfg.SigningKeyFile == "" {
		return nil, fmt.Errorf("signing key file is required")
	}

	signingKey, err := loadKeyFromFile(filepath.Join(cfg.KeyDir, cfg.SigningKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	allKeys := []*SigningKeyData{signingKey}
	for _, filename := range cfg.FallbackKeyFiles {
		key, err := loadKeyFromFile(filepath.Join(cfg.KeyDir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to load fallback key %s: %w", filename, err)
		}
		allKeys = append(allKeys, key)
	}

	return &FileProvider{
		signingKey: signingKey,
		allKeys:    allKeys,
	}, nil
}

func loadKeyFromFile(keyPath string) (*SigningKeyData, error) {
	key, err := LoadSigningKey(keyPath)
	if err != nil {
		return nil, err
	}

	keyID, err := DeriveKeyID(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key ID: %w", err)
	}

	return &SigningKeyData{
		KeyID:     keyID,
		Key:       key,
		CreatedAt: time.Now(),
	}, nil
}

// SigningKey returns a copy of the primary signing key.
func (p *FileProvider) SigningKey(_ context.Context) (*SigningKeyData, error) {
	return p.signingKey.clone(), nil
}

// PublicKeys returns public keys for the signing key and every fallback key.
func (p *FileProvider) PublicKeys(_ context.Context) ([]*PublicKeyData, error) {
	pubKeys := make([]*PublicKeyData, 0, len(p.allKeys))
	for _, key := range p.allKeys {
		pubKeys = append(pubKeys, key.public())
	}
	return pubKeys, nil
}

// GeneratingProvider generates an ephemeral RSA key on first access.
// Generated keys are lost on restart, invalidating all issued tokens.
type GeneratingProvider struct {
	bits int
	mu   sync.Mutex
	key  *SigningKeyData
}

// NewGeneratingProvider creates a provider generating an RSA key of the
// given size. Zero selects GeneratedKeyBits.
func NewGeneratingProvider(bits int) *GeneratingProvider {
	if bits == 0 {
		bits = GeneratedKeyBits
	}
	return &GeneratingProvider{bits: bits}
}

// SigningKey returns the signing key, generating one if needed.
func (p *GeneratingProvider) SigningKey(_ context.Context) (*SigningKeyData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key.clone(), nil
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, p.bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	keyID, err := DeriveKeyID(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key ID: %w", err)
	}

	slog.Warn("generated ephemeral signing key - tokens will be invalid after restart",
		"algorithm", Algorithm,
		"key_id", keyID,
	)

	p.key = &SigningKeyData{KeyID: keyID, Key: privateKey, CreatedAt: time.Now()}
	return p.key.clone(), nil
}

// PublicKeys returns the public key, generating the signing key if needed.
func (p *GeneratingProvider) PublicKeys(ctx context.Context) ([]*PublicKeyData, error) {
	key, err := p.SigningKey(ctx)
	if err != nil {
		return nil, err
	}
	return []*PublicKeyData{key.public()}, nil
}

// FindPublicKey returns the verification key with the given id.
func FindPublicKey(ctx context.Context, provider KeyProvider, keyID string) (*PublicKeyData, error) {
	pubKeys, err := provider.PublicKeys(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range pubKeys {
		if key.KeyID == keyID {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, keyID)
}

// Compile-time interface checks.
var (
	_ KeyProvider = (*FileProvider)(nil)
	_ KeyProvider = (*GeneratingProvider)(nil)
)
