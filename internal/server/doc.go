// Package server is the HTTP front of the Newsroom MCP server.
//
// It mounts, on a single mux:
//
//   - the OAuth proxy endpoints (/authorize, the provider callback, /token and
//     the RFC 9728 / RFC 8414 metadata documents)
//   - the streamable-HTTP MCP endpoint (/mcp), wrapped by RequireBearer
//   - /health and /metrics, both unauthenticated
//
// RequireBearer verifies the Authorization header against the provider's
// signing keys. A missing or invalid token is answered with 401 and a
// WWW-Authenticate challenge pointing at the protected resource metadata,
// which is how MCP clients discover where to log in:
//
//	WWW-Authenticate: Bearer error="invalid_token", error_description="...",
//	    resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"
//
// A verified identity travels in the request context; MCP handlers read it
// with oauth.IdentityFromContext.
package server
