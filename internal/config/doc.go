// Package config loads newsroom's runtime configuration from environment
// variables and optional dotenv files.
//
// Three variables are required and their absence is fatal:
//
//	FASTMCP_SERVER_AUTH_AZURE_CLIENT_ID
//	FASTMCP_SERVER_AUTH_AZURE_CLIENT_SECRET
//	FASTMCP_SERVER_AUTH_AZURE_TENANT_ID
//
// Everything else has a default (see defaults.go). Defaults are applied from
// `default` struct tags with creasty/defaults, constraints are declared as
// `validate` tags and checked with go-playground/validator. Validation errors
// name the offending environment variable.
//
// A Config is never modified after it is returned:
//
//	loader := config.NewLoader()
//	cfg, err := loader.Load()
//	...
//	fresh, err := loader.Reload() // dotenv values now win over the environment
//
// Unparsable integers for MCP_SERVER_PORT and
// FASTMCP_SERVER_AUTH_AZURE_TIMEOUT_SECONDS fall back to their defaults with
// a warning rather than failing.
package config
