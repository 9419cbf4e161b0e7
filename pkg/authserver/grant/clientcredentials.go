// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/reqctx"
	"github.com/stacklok/oauthz/pkg/authserver/verifier"
)

// ClientCredentials issues tokens to clients acting on their own behalf.
type ClientCredentials struct {
	pipeline
}

// NewClientCredentials creates the client-credentials processor.
func NewClientCredentials(verifiers *verifier.Registry) *ClientCredentials {
	return &ClientCredentials{pipeline: pipeline{grantType: oauth.GrantTypeClientCredentials, verifiers: verifiers}}
}

// ProcessTokenRequest runs the shared pipeline without extra steps.
func (p *ClientCredentials) ProcessTokenRequest(ctx context.Context, tctx *reqctx.TokenContext) (*oauth.TokenClaims, error) {
	return p.run(ctx, tctx, nil, nil)
}
