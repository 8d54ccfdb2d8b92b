package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is the default margin when checking token expiry.
// This accounts for clock skew and network latency.
const DefaultExpiryMargin = 30 * time.Second

// ProviderMetadata is the subset of an OpenID Connect discovery document the
// proxy depends on. The first four fields are required; discovery fails when
// any of them is absent.
type ProviderMetadata struct {
	// Issuer is the expected "iss" claim of tokens issued by the provider.
	Issuer string `json:"issuer" yaml:"issuer"`

	// AuthorizationEndpoint is where users are redirected to log in.
	AuthorizationEndpoint string `json:"authorization_endpoint" yaml:"authorization_endpoint"`

	// TokenEndpoint is where authorization codes are exchanged for tokens.
	TokenEndpoint string `json:"token_endpoint" yaml:"token_endpoint"`

	// JWKSURI is the URL of the provider's JSON Web Key Set.
	JWKSURI string `json:"jwks_uri" yaml:"jwks_uri"`

	// UserinfoEndpoint is the URL of the userinfo endpoint.
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty" yaml:"userinfo_endpoint,omitempty"`

	// ScopesSupported lists the scope values the provider advertises.
	ScopesSupported []string `json:"scopes_supported,omitempty" yaml:"scopes_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE methods the provider advertises.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty" yaml:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE returns true if the provider supports S256 PKCE.
// Providers that do not advertise methods are assumed to support S256.
func (m *ProviderMetadata) SupportsPKCE() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return len(m.CodeChallengeMethodsSupported) == 0
}

// missingFields returns the names of required fields that are empty.
func (m *ProviderMetadata) missingFields() []string {
	var missing []string
	if m.AuthorizationEndpoint == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if m.TokenEndpoint == "" {
		missing = append(missing, "token_endpoint")
	}
	if m.JWKSURI == "" {
		missing = append(missing, "jwks_uri")
	}
	if m.Issuer == "" {
		missing = append(missing, "issuer")
	}
	return missing
}

// Token is the set of tokens returned by a successful code exchange or
// refresh. It is held in memory only.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is the absolute expiry of the access token.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`

	// IDToken is the OIDC ID token (if available).
	IDToken string `json:"id_token,omitempty"`
}

// IsExpired checks if the token has expired or will within DefaultExpiryMargin.
func (t *Token) IsExpired(now time.Time) bool {
	return t.IsExpiredWithMargin(now, DefaultExpiryMargin)
}

// IsExpiredWithMargin checks if the token has expired or will expire within the margin.
func (t *Token) IsExpiredWithMargin(now time.Time, margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(margin).After(t.ExpiresAt)
}

// ExpiresIn returns the remaining lifetime in whole seconds, or 0 when the
// token has no expiry or has already expired.
func (t *Token) ExpiresIn(now time.Time) int {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	remaining := int(t.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Scopes returns the scope as a slice of individual scopes.
func (t *Token) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// ToOAuth2Token converts the Token to an oauth2.Token.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}

	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}

	return token
}

// FromOAuth2Token converts a token returned by golang.org/x/oauth2, pulling
// id_token and scope out of the raw response fields.
func FromOAuth2Token(t *oauth2.Token) *Token {
	if t == nil {
		return nil
	}
	token := &Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.Type(),
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
	if idToken, ok := t.Extra("id_token").(string); ok {
		token.IDToken = idToken
	}
	if scope, ok := t.Extra("scope").(string); ok {
		token.Scope = scope
	}
	return token
}

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
type PKCEChallenge struct {
	// CodeVerifier is the random secret kept by the party that started the flow.
	CodeVerifier string

	// CodeChallenge is the S256 hash of the verifier (base64url-encoded).
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer").
	Scheme string

	// Realm is the protection realm.
	Realm string

	// ResourceMetadataURL points at the RFC 9728 protected resource metadata.
	ResourceMetadataURL string

	// Scope is the space-separated list of required OAuth scopes.
	Scope string

	// Error is the error code from the header (if any).
	Error string

	// ErrorDescription is a human-readable error description (if any).
	ErrorDescription string
}

// IsOAuthChallenge returns true if this represents an OAuth bearer challenge.
func (c *AuthChallenge) IsOAuthChallenge() bool {
	if c == nil {
		return false
	}
	if !strings.EqualFold(c.Scheme, "Bearer") {
		return false
	}
	return c.Realm != "" || c.ResourceMetadataURL != ""
}

// AuthorizationServerMetadata is the RFC 8414 document the proxy publishes
// about itself so MCP clients can find its authorize and token endpoints.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// ProtectedResourceMetadata is the RFC 9728 document describing the MCP
// endpoint and the authorization servers that protect it.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceName           string   `json:"resource_name,omitempty"`
}
