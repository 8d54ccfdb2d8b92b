// Package oauth holds the protocol-level OAuth 2.0 / OpenID Connect pieces
// that do not depend on newsroom's proxy state: provider discovery, token
// and metadata types, PKCE helpers and WWW-Authenticate handling.
//
// # Discovery
//
// Discover fetches an OpenID configuration document and insists on the four
// fields the proxy cannot run without (authorization_endpoint,
// token_endpoint, jwks_uri and issuer):
//
//	url := oauth.DiscoveryURL(oauth.DefaultAuthority, tenantID)
//	metadata, err := oauth.Discover(ctx, http.DefaultClient, url)
//	if errors.Is(err, oauth.ErrDiscovery) {
//		// fatal at startup
//	}
//
// The fetch is bounded by DiscoveryTimeout (5s).
//
// # PKCE and state
//
// GeneratePKCE produces an S256 verifier/challenge pair, GenerateState and
// GenerateCode return 256-bit URL-safe random values.
package oauth
