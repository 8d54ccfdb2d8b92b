// Package oauth implements the OAuth proxy that protects the Newsroom MCP
// endpoint with Microsoft Entra ID (Azure AD) v2.0.
//
// # Architecture
//
// The proxy sits between MCP clients and the upstream identity provider:
//
//  1. A client (or browser) calls /authorize on this server
//  2. The proxy creates a login attempt keyed by a random state nonce and
//     redirects to the provider's authorization endpoint
//  3. The provider redirects back to the callback with a code
//  4. The proxy exchanges the code at the provider's token endpoint
//  5. The client receives the tokens through a one-time handoff code, or the
//     browser is shown a result page
//  6. Every request to the MCP endpoint presents the access token, which the
//     verifier checks against the provider's signing keys
//
// # Login state machine
//
// Each attempt moves Initialized → AuthorizationPending → ExchangingCode →
// Authenticated, or to Failed with a Reason from any non-terminal state.
// The state nonce is removed from the AttemptStore before the callback is
// processed, so a nonce is honoured at most once.
//
// # The resource parameter
//
// Entra ID v2.0 rejects the RFC 8707 "resource" parameter with AADSTS901002.
// AzureProvider never derives a resource URL and always strips the parameter
// from the upstream authorization request. The two guards are independent.
// GenericProvider keeps the standard behaviour for providers that accept it.
//
// # Components
//
//   - UpstreamProvider: builds authorization parameters and talks to the
//     token endpoint (GenericProvider, AzureProvider)
//   - Verifier and KeySet: JWT validation with a cached JWKS
//   - AttemptStore and HandoffStore: in-memory login and handoff state
//   - Proxy: orchestrates the flow
//   - Handler: HTTP endpoints for authorize, callback, token and metadata
//
// # Security
//
// Tokens are held in memory only and released to the client exactly once.
// Provider-supplied error text is never rendered back to the browser.
// Nonces, attempt IDs and subjects are truncated in logs, and the client
// secret is redacted wherever it is printed.
package oauth
