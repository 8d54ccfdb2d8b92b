// Package login implements the client side of the proxy's OAuth flow for
// the newsroom CLI.
//
// A login runs the way an MCP client does it:
//
//  1. An unauthenticated request to the MCP endpoint returns 401 with a
//     WWW-Authenticate challenge naming the protected resource metadata.
//  2. The protected resource metadata lists the authorization server; its
//     RFC 8414 document gives the authorize and token endpoints.
//  3. A loopback callback server is started and the browser is sent to the
//     authorize endpoint with a PKCE S256 challenge.
//  4. The proxy redirects back with a one-time code, which is redeemed at
//     the token endpoint together with the code verifier.
//
// Tokens are kept in a TokenStore, one file per server URL with 0600
// permissions. Client.Token refreshes an expired token when a refresh
// token is available and otherwise returns ErrLoginRequired.
package login
