// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package token signs, parses and tracks JWT access tokens.
package token

import "errors"

// ErrTokenParse is returned when a token cannot be verified or decoded. It
// signals a corrupt or forged token rather than a policy decision and is
// therefore outside the OAuth error taxonomy.
var ErrTokenParse = errors.New("failed to parse access token")
