// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"slices"
)

// GrantType is the OAuth2 flow variant of a token request.
type GrantType string

const (
	// GrantTypeAuthorizationCode exchanges an authorization code for a token.
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	// GrantTypeClientCredentials issues a token to a client acting on its own behalf.
	GrantTypeClientCredentials GrantType = "client_credentials"
	// GrantTypePassword issues a token for resource-owner credentials.
	GrantTypePassword GrantType = "password"
)

// GrantTypes lists every supported grant type.
var GrantTypes = []GrantType{
	GrantTypeAuthorizationCode,
	GrantTypeClientCredentials,
	GrantTypePassword,
}

// ParseGrantType converts the grant_type parameter into a GrantType.
func ParseGrantType(raw string) (GrantType, error) {
	gt := GrantType(raw)
	if !slices.Contains(GrantTypes, gt) {
		return "", ErrUnsupportedGrantType.WithHintf("Grant type %q is not supported.", raw)
	}
	return gt, nil
}

// ResponseTypeCode is the only supported response_type.
const ResponseTypeCode = "code"

// ParseResponseType validates the response_type parameter.
func ParseResponseType(raw string) (string, error) {
	if raw != ResponseTypeCode {
		return "", ErrUnsupportedResponseType.WithHintf("Response type %q is not supported.", raw)
	}
	return raw, nil
}

// AuthorizationRequest carries the parameters of an /authorize call.
type AuthorizationRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        []string
	State        string
}

// TokenRequest carries the parameters of a /token call. The client secret is
// authenticated by the transport before the request reaches the engine.
type TokenRequest struct {
	GrantType   GrantType
	ClientID    string
	Code        string
	RedirectURI string
	Username    string
	Password    string
	Audience    string
	Scope       []string
}

// WithScope returns a copy of r with its scope replaced.
func (r TokenRequest) WithScope(scope []string) TokenRequest {
	r.Scope = slices.Clone(scope)
	return r
}

// AuthorizationResponse is rendered as a redirect to RedirectURI carrying
// code and state as query parameters.
type AuthorizationResponse struct {
	RedirectURI string `json:"redirect_uri"`
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
}

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// TokenResponse is the successful /token response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// IntrospectionResponse is the /introspect response body. Every field except
// Active is omitted for inactive tokens.
type IntrospectionResponse struct {
	Active   bool   `json:"active"`
	Username string `json:"username,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}
