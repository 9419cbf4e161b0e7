// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth defines the data model shared by every stage of the grant-flow
// engine: registered clients and their relations, raw authorization and token
// requests, the transient authorization-code record, tracked token metadata,
// JWT claim sets, and the RFC 6749 error taxonomy.
//
// The package has no dependencies on storage or transport so that every other
// authserver package can import it.
package oauth
