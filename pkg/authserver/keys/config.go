// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

// Config holds configuration for creating a KeyProvider.
type Config struct {
	// KeyDir is the directory containing PEM-encoded private key files.
	// All key filenames are relative to this directory.
	KeyDir string `mapstructure:"keyDir" yaml:"keyDir"`

	// SigningKeyFile is the filename of the key new tokens are signed with.
	SigningKeyFile string `mapstructure:"signingKeyFile" yaml:"signingKeyFile"`

	// FallbackKeyFiles are filenames of retired keys still accepted for
	// verification and published in the JWK set.
	//
	// Rotation: add the new key here and roll out, promote it to
	// SigningKeyFile while moving the old one here, then drop the old one
	// after its tokens have expired.
	FallbackKeyFiles []string `mapstructure:"fallbackKeyFiles" yaml:"fallbackKeyFiles"`
}

// NewProviderFromConfig loads keys from KeyDir when set and otherwise
// generates an ephemeral key for development.
func NewProviderFromConfig(cfg Config) (KeyProvider, error) {
	if cfg.KeyDir != "" {
		return NewFileProvider(cfg)
	}
	return NewGeneratingProvider(GeneratedKeyBits), nil
}
