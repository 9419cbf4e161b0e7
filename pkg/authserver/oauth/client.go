// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"slices"
)

// ApplicationType distinguishes interactive applications from back-end services.
type ApplicationType string

const (
	// ApplicationTypeUI is an interactive application that sends users
	// through the authorization-code flow.
	ApplicationTypeUI ApplicationType = "UI"
	// ApplicationTypeService is a machine client or resource server.
	ApplicationTypeService ApplicationType = "SERVICE"
)

// Valid reports whether t is a known application type.
func (t ApplicationType) Valid() bool {
	return t == ApplicationTypeUI || t == ApplicationTypeService
}

// AllowRelation is a directional edge on a target client: the consumer named
// here may request tokens for the target, capped at AllowedScopes.
type AllowRelation struct {
	// ConsumerName is the internal name of the consumer client.
	ConsumerName string `json:"consumerName" yaml:"consumerName" mapstructure:"consumerName"`

	// AllowedScopes is the ceiling on scope the consumer may obtain.
	AllowedScopes []string `json:"allowedScopes" yaml:"allowedScopes" mapstructure:"allowedScopes"`
}

// Client is a registered OAuth application.
type Client struct {
	// Name is the internal, unique name used by relations to reference clients.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Type is the application type.
	Type ApplicationType `json:"type" yaml:"type" mapstructure:"type"`

	// ClientID is the public OAuth client identifier.
	ClientID string `json:"clientId" yaml:"clientId" mapstructure:"clientId"`

	// ClientSecret is the bcrypt hash of the client secret.
	ClientSecret string `json:"clientSecret,omitempty" yaml:"clientSecret,omitempty" mapstructure:"clientSecret"`

	// Audience identifies this client when it acts as a resource server.
	Audience string `json:"audience" yaml:"audience" mapstructure:"audience"`

	// RegisteredScopes are the scopes this client offers as a resource server.
	RegisteredScopes []string `json:"registeredScopes,omitempty" yaml:"registeredScopes,omitempty" mapstructure:"registeredScopes"`

	// RequiredScopes is the minimum a subject must hold to authorize this client.
	RequiredScopes []string `json:"requiredScopes,omitempty" yaml:"requiredScopes,omitempty" mapstructure:"requiredScopes"`

	// AllowedRelations lists the consumers allowed to obtain tokens for this client.
	AllowedRelations []AllowRelation `json:"allowedRelations,omitempty" yaml:"allowedRelations,omitempty" mapstructure:"allowedRelations"`

	// Callbacks are the registered redirect URIs.
	Callbacks []string `json:"callbacks,omitempty" yaml:"callbacks,omitempty" mapstructure:"callbacks"`
}

// RelationFor returns the relation allowing consumerName to target c.
func (c *Client) RelationFor(consumerName string) (*AllowRelation, bool) {
	for i := range c.AllowedRelations {
		if c.AllowedRelations[i].ConsumerName == consumerName {
			return &c.AllowedRelations[i], true
		}
	}
	return nil, false
}

// HasCallback reports whether uri is one of the registered callbacks.
func (c *Client) HasCallback(uri string) bool {
	return slices.Contains(c.Callbacks, uri)
}

// Dependencies returns the names of the clients referenced by c's relations.
func (c *Client) Dependencies() []string {
	names := make([]string, 0, len(c.AllowedRelations))
	for _, rel := range c.AllowedRelations {
		names = append(names, rel.ConsumerName)
	}
	return names
}

// Validate checks the structural invariants of a single client definition.
// Cross-client checks (relation targets exist) are done by the registry.
func (c *Client) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client %q: clientId is required", c.Name)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("client %q: unknown application type %q", c.Name, c.Type)
	}
	if c.Type == ApplicationTypeUI && len(c.Callbacks) == 0 {
		return fmt.Errorf("client %q: UI clients need at least one callback", c.Name)
	}
	consumers := make(map[string]bool, len(c.AllowedRelations))
	for _, rel := range c.AllowedRelations {
		if rel.ConsumerName == "" {
			return fmt.Errorf("client %q: relation without consumerName", c.Name)
		}
		if consumers[rel.ConsumerName] {
			return fmt.Errorf("client %q: duplicate relation for consumer %q", c.Name, rel.ConsumerName)
		}
		consumers[rel.ConsumerName] = true
		if !IsSubset(rel.AllowedScopes, c.RegisteredScopes) {
			return fmt.Errorf("client %q: relation %q allows scopes outside the registered scopes",
				c.Name, rel.ConsumerName)
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.RegisteredScopes = slices.Clone(c.RegisteredScopes)
	clone.RequiredScopes = slices.Clone(c.RequiredScopes)
	clone.Callbacks = slices.Clone(c.Callbacks)
	if c.AllowedRelations != nil {
		clone.AllowedRelations = make([]AllowRelation, len(c.AllowedRelations))
		for i, rel := range c.AllowedRelations {
			clone.AllowedRelations[i] = AllowRelation{
				ConsumerName:  rel.ConsumerName,
				AllowedScopes: slices.Clone(rel.AllowedScopes),
			}
		}
	}
	return &clone
}
