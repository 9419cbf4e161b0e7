// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package reqctx

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/oauthz/pkg/authserver/oauth"
	"github.com/stacklok/oauthz/pkg/authserver/registry"
	"github.com/stacklok/oauthz/pkg/storage"
)

// Factory builds request contexts from raw requests.
type Factory struct {
	clients        registry.ClientRegistry
	authorizations storage.AuthorizationStore
}

// NewFactory creates a factory resolving clients through clients and ongoing
// authorizations through authorizations.
func NewFactory(clients registry.ClientRegistry, authorizations storage.AuthorizationStore) *Factory {
	return &Factory{clients: clients, authorizations: authorizations}
}

// NewAuthorizationContext resolves the client named by req. The subject is
// whoever the transport authenticated; it may be nil.
func (f *Factory) NewAuthorizationContext(
	ctx context.Context, req oauth.AuthorizationRequest, subject *oauth.Subject,
) (*AuthorizationContext, error) {
	if req.ClientID == "" {
		return nil, oauth.ErrInvalidRequest.WithHint("The 'client_id' parameter is required.")
	}

	client, found, err := f.clients.GetByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, oauth.ErrInvalidClient.WithHintf("Client %q is not registered.", req.ClientID)
	}

	return &AuthorizationContext{
		Request: req,
		Client:  client,
		Subject: subject.Clone(),
	}, nil
}

// NewTokenContext resolves the source client, the target client owning the
// requested audience and the relation allowing the source to target it.
// Empty identifiers are left unresolved for the field verifiers to report.
//
// For authorization-code requests the ongoing authorization is taken out of
// the store, so a code is consumed by the first request presenting it
// whatever the outcome. An unknown code leaves Authorization nil.
func (f *Factory) NewTokenContext(ctx context.Context, req oauth.TokenRequest) (*TokenContext, error) {
	tctx := &TokenContext{Request: req}

	if req.ClientID != "" {
		source, found, err := f.clients.GetByClientID(ctx, req.ClientID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, oauth.ErrInvalidClient.WithHintf("Client %q is not registered.", req.ClientID)
		}
		tctx.Source = source
	}

	if req.Audience != "" {
		target, found, err := f.clients.GetByAudience(ctx, req.Audience)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, oauth.ErrUnauthorizedClient.WithHintf("No client serves audience %q.", req.Audience)
		}
		tctx.Target = target

		if tctx.Source != nil {
			relation, ok := target.RelationFor(tctx.Source.Name)
			if !ok {
				return nil, oauth.ErrUnauthorizedClient.WithHintf(
					"Client %q may not request tokens for audience %q.", req.ClientID, req.Audience)
			}
			tctx.Relation = relation
		}
	}

	if req.GrantType == oauth.GrantTypeAuthorizationCode && req.Code != "" {
		authz, err := f.authorizations.TakeAuthorization(ctx, req.Code)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("taking ongoing authorization: %w", err)
		default:
			tctx.Authorization = authz
		}
	}

	return tctx, nil
}
