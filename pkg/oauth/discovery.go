package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DiscoveryTimeout bounds the OpenID configuration fetch.
	DiscoveryTimeout = 5 * time.Second

	// DefaultAuthority is the Microsoft Entra ID login host.
	DefaultAuthority = "https://login.microsoftonline.com"

	// maxDiscoveryBodyBytes caps the size of a discovery document.
	maxDiscoveryBodyBytes = 1 << 20
)

// ErrDiscovery is matched by every DiscoveryError via errors.Is.
var ErrDiscovery = errors.New("identity provider discovery failed")

// DiscoveryError reports why the OpenID configuration could not be used.
type DiscoveryError struct {
	// URL is the discovery document location.
	URL string
	// Reason is a short human readable explanation.
	Reason string
	// Missing lists required fields absent from an otherwise valid document.
	Missing []string
	// Err is the underlying transport or decode error, if any.
	Err error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("discovery of %s failed: %s", e.URL, e.Reason)
	if len(e.Missing) > 0 {
		msg += " (" + strings.Join(e.Missing, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDiscovery) true for any DiscoveryError.
func (e *DiscoveryError) Is(target error) bool {
	return target == ErrDiscovery
}

// DiscoveryURL returns the Azure AD v2.0 OpenID configuration location for a
// tenant: {authority}/{tenant}/v2.0/.well-known/openid-configuration.
func DiscoveryURL(authority, tenantID string) string {
	if authority == "" {
		authority = DefaultAuthority
	}
	return strings.TrimRight(authority, "/") + "/" + tenantID + "/v2.0/.well-known/openid-configuration"
}

// Discover fetches and validates the OpenID configuration document at
// discoveryURL. The request is bounded by DiscoveryTimeout regardless of the
// client's own timeout. No metadata is returned unless all required fields
// are present.
func Discover(ctx context.Context, client *http.Client, discoveryURL string) (*ProviderMetadata, error) {
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, &DiscoveryError{URL: discoveryURL, Reason: "invalid discovery URL", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		reason := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", DiscoveryTimeout)
		}
		return nil, &DiscoveryError{URL: discoveryURL, Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DiscoveryError{
			URL:    discoveryURL,
			Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBodyBytes))
	if err != nil {
		return nil, &DiscoveryError{URL: discoveryURL, Reason: "failed to read response", Err: err}
	}

	var metadata ProviderMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, &DiscoveryError{URL: discoveryURL, Reason: "invalid JSON document", Err: err}
	}

	if missing := metadata.missingFields(); len(missing) > 0 {
		return nil, &DiscoveryError{
			URL:     discoveryURL,
			Reason:  "required fields missing",
			Missing: missing,
		}
	}

	return &metadata, nil
}
