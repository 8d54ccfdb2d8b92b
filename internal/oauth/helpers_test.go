package oauth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsroom/internal/config"
	"newsroom/internal/testing/mock"
	pkgoauth "newsroom/pkg/oauth"
)

const (
	testClientID     = "11111111-2222-3333-4444-555555555555"
	testClientSecret = "client-secret-value"
	testRedirectURI  = "http://localhost:8000/auth/callback"
)

var testStart = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func startIdP(t *testing.T, clock mock.Clock) *mock.AzureIdP {
	t.Helper()
	return mock.StartAzureIdP(t, mock.AzureIdPConfig{
		TenantID:     "abc123",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Clock:        clock,
	})
}

func azureConfig(idp *mock.AzureIdP) config.AzureOAuthConfig {
	return config.AzureOAuthConfig{
		ClientID:       testClientID,
		ClientSecret:   pkgoauth.NewSecret(testClientSecret),
		TenantID:       idp.TenantID(),
		BaseURL:        "http://localhost:8000",
		RedirectPath:   "/auth/callback",
		RequiredScopes: []string{"openid", "profile", "email"},
		TimeoutSeconds: 5,
		Authority:      idp.Authority(),
	}
}

func newTestProxy(t *testing.T, idp *mock.AzureIdP, cfg config.AzureOAuthConfig, opts ...ProxyOption) *Proxy {
	t.Helper()
	proxy, err := NewAzureProxy(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(proxy.Close)
	return proxy
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// approveAtIdP follows an upstream authorization URL as a browser would
// and returns the provider's redirect back to the callback.
func approveAtIdP(t *testing.T, authURL string) url.Values {
	t.Helper()
	resp, err := noRedirectClient().Get(authURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return location.Query()
}
