// Package mcpserver registers the Newsroom MCP capabilities on an mcp-go
// server and exposes it over the streamable-HTTP transport.
//
// # Capabilities
//
// Tools:
//   - echo: returns "Echo: <message>"
//   - server_info: server name, version, authentication mode and features
//
// Resources:
//   - sample://data (sample_data): a static JSON document stamped with the
//     current UTC time
//
// Prompts:
//   - greeting_template: a greeting instruction for name in a formal or
//     casual style, rendered with text/template and sprig
//
// All capabilities are read-only. Authentication is enforced in front of the
// transport by the HTTP layer; handlers can read the caller identity with
// oauth.IdentityFromContext.
package mcpserver
