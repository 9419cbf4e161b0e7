// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

// Key types namespacing the Redis keyspace below the configured prefix.
const (
	KeyTypeAuthorization = "authz"
	KeyTypeToken         = "token"
	KeyTypeTokenExpiry   = "token-expiry"
)

// redisKey builds "{prefix}{keyType}:{id}". The expiry index has no id.
func redisKey(prefix, keyType, id string) string {
	if id == "" {
		return prefix + keyType
	}
	return prefix + keyType + ":" + id
}
