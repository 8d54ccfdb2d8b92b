package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenInvalid covers every reason a bearer token is rejected:
	// malformed, bad signature, unknown signing key, wrong issuer or
	// audience, expired.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrKeyFetch means the provider's signing keys could not be retrieved.
	ErrKeyFetch = errors.New("signing key fetch failed")

	// ErrAuthorizationFailed is matched by every AuthorizationError.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrTokenExchangeFailed is matched by every TokenExchangeError.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
)

// Reason explains why a login attempt ended in the Failed state.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonStateMismatch      Reason = "state_mismatch"
	ReasonAccessDenied       Reason = "access_denied"
	ReasonMissingCode        Reason = "missing_code"
	ReasonCodeExchangeFailed Reason = "code_exchange_failed"
	ReasonTimeout            Reason = "timeout"
	ReasonCancelled          Reason = "cancelled"
)

// AuthorizationError is returned when a callback cannot proceed to a token
// exchange, or when the exchange ended the attempt.
type AuthorizationError struct {
	Reason Reason
	// Description carries the provider's error_description when present.
	Description string
	Err         error
}

func (e *AuthorizationError) Error() string {
	msg := fmt.Sprintf("authorization failed: %s", e.Reason)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorizationFailed
}

// TokenExchangeError describes a failed call to the provider token endpoint.
type TokenExchangeError struct {
	// Status is the HTTP status returned by the token endpoint, 0 for
	// transport failures.
	Status int
	// ErrorCode is the OAuth "error" field, e.g. invalid_grant.
	ErrorCode string
	// Description is the OAuth "error_description" field.
	Description string
	Err         error
}

func (e *TokenExchangeError) Error() string {
	msg := "token exchange failed"
	if e.Status != 0 {
		msg += fmt.Sprintf(" with status %d", e.Status)
	}
	if e.ErrorCode != "" {
		msg += ": " + e.ErrorCode
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Status == 0 && e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

func (e *TokenExchangeError) Is(target error) bool {
	return target == ErrTokenExchangeFailed
}

// OAuthErrorCode maps an error to an RFC 6749 error code for client-facing
// responses.
func OAuthErrorCode(err error) string {
	var exchangeErr *TokenExchangeError
	if errors.As(err, &exchangeErr) && exchangeErr.ErrorCode != "" {
		return exchangeErr.ErrorCode
	}
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		switch authErr.Reason {
		case ReasonAccessDenied:
			return "access_denied"
		case ReasonTimeout, ReasonCancelled:
			return "temporarily_unavailable"
		case ReasonStateMismatch, ReasonMissingCode:
			return "invalid_request"
		}
	}
	if errors.Is(err, ErrInvalidGrant) {
		return "invalid_grant"
	}
	return "server_error"
}
