// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"

	"github.com/go-jose/go-jose/v4"
)

// JWKS renders the provider's verification keys as a JWK set.
func JWKS(ctx context.Context, provider KeyProvider) (*jose.JSONWebKeySet, error) {
	pubKeys, err := provider.PublicKeys(ctx)
	if err != nil {
		return nil, err
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(pubKeys))}
	for _, key := range pubKeys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       key.PublicKey,
			KeyID:     key.KeyID,
			Algorithm: Algorithm,
			Use:       "sig",
		})
	}
	return set, nil
}
