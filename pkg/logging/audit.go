package logging

import (
	"context"
	"log/slog"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEvent describes a security-relevant event such as a login attempt or a
// rejected bearer token. Values are logged as structured attributes.
type AuditEvent struct {
	// Action names what happened, e.g. "authorize", "callback", "token", "bearer".
	Action string
	// Outcome is OutcomeSuccess or OutcomeFailure.
	Outcome string
	// Subject is the authenticated principal when known.
	Subject string
	// Attempt is the login attempt identifier when the event belongs to one.
	Attempt string
	// Reason explains a failure.
	Reason string
	// RemoteAddr is the client address of the HTTP request.
	RemoteAddr string
}

// Audit writes an audit record at INFO (success) or WARN (failure) level.
// Subjects and attempt identifiers are truncated before logging.
func Audit(event AuditEvent) {
	level := slog.LevelInfo
	if event.Outcome == OutcomeFailure {
		level = slog.LevelWarn
	}

	logger := Logger()
	if !logger.Enabled(context.Background(), level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("subsystem", "Audit"),
		slog.String("action", event.Action),
		slog.String("outcome", event.Outcome),
	}
	if event.Subject != "" {
		attrs = append(attrs, slog.String("subject", TruncateID(event.Subject)))
	}
	if event.Attempt != "" {
		attrs = append(attrs, slog.String("attempt", TruncateID(event.Attempt)))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}

	logger.LogAttrs(context.Background(), level, "[AUDIT] "+event.Action, attrs...)
}

// truncatedIDLength is the number of characters kept by TruncateID.
const truncatedIDLength = 8

// TruncateID shortens identifiers (subjects, nonces, attempt IDs) for logs.
func TruncateID(id string) string {
	if len(id) <= truncatedIDLength {
		return id
	}
	return id[:truncatedIDLength] + "..."
}
