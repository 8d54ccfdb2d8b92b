// Package app provides application bootstrap and lifecycle management for
// the Newsroom MCP server.
//
// # Architecture Overview
//
//  1. **Configuration (`config.go`)**: runtime overrides for the bootstrap
//     (debug logging, dotenv files, environment lookup, listener)
//  2. **Bootstrap (`bootstrap.go`)**: loads the configuration, initializes
//     logging and builds the services
//  3. **Services (`services.go`)**: creates the metrics registry, OAuth proxy,
//     OAuth handler, MCP capability registry and HTTP server in order
//  4. **Modes (`modes.go`)**: serves until interrupted, then shuts down
//  5. **Banner (`banner.go`)**: the startup summary printed by `newsroom serve`
//
// # Startup Failures
//
// Startup is all-or-nothing. A missing or invalid configuration value
// yields *config.ConfigurationError; a failed OpenID discovery yields
// *oauth.DiscoveryError. Both stay reachable with errors.As through the
// wrapping added here, and the CLI turns them into distinct exit codes.
//
// Discovery runs exactly once per process. The resulting provider metadata
// is immutable for the lifetime of the server; picking up a changed tenant
// or authority requires a restart.
//
// # Usage Example
//
//	cfg := app.NewConfig(false, []string{".env"})
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
