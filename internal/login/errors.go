package login

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginRequired is returned when no usable token is stored for a
	// server and none could be refreshed.
	ErrLoginRequired = errors.New("login required")

	// ErrStateMismatch is returned when the callback state does not match
	// the state sent with the authorization request.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrNotProtected is returned when the MCP endpoint answers without an
	// OAuth challenge.
	ErrNotProtected = errors.New("server did not request OAuth authentication")
)

// CallbackError is an OAuth error delivered to the loopback callback.
type CallbackError struct {
	Code        string
	Description string
}

func (e *CallbackError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return "authorization failed: " + e.Code
}
