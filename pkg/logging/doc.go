// Package logging provides the structured logging used across newsroom.
//
// It is a thin layer over log/slog. Every record carries a subsystem
// attribute so output from the OAuth proxy, the MCP capability registry and
// the HTTP layer can be told apart:
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("OAuth", "Discovered endpoints for tenant %s", tenantID)
//	logging.Debug("Config", "Loaded .env from %s", path)
//	logging.Warn("Config", "Invalid MCP_SERVER_PORT %q, using default", raw)
//	logging.Error("Server", err, "Listener stopped")
//
// # Levels
//
// ParseLevel understands the names accepted by MCP_LOG_LEVEL: DEBUG, INFO,
// WARNING, ERROR and CRITICAL. CRITICAL is treated as ERROR.
//
// # Audit events
//
// Audit records security events (login start, callback outcome, rejected
// bearer tokens) with a fixed attribute set and an "[AUDIT]" message prefix.
// Identifiers are shortened with TruncateID; secrets and raw tokens must
// never be passed to any logging function.
package logging
