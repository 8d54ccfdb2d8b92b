package app

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsroom/internal/config"
	"newsroom/internal/testing/mock"
	pkgoauth "newsroom/pkg/oauth"
)

const (
	testTenantID     = "abc123-newsroom-tenant"
	testClientID     = "11111111-2222-3333-4444-555555555555"
	testClientSecret = "client-secret-value"
)

func lookupFrom(env map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func testAppConfig(t *testing.T, env map[string]string) *Config {
	t.Helper()
	return &Config{
		EnvFiles:  []string{filepath.Join(t.TempDir(), ".env")},
		Lookup:    lookupFrom(env),
		LogOutput: &bytes.Buffer{},
	}
}

func idpEnv(idp *mock.AzureIdP) map[string]string {
	return map[string]string{
		config.EnvClientID:     testClientID,
		config.EnvClientSecret: testClientSecret,
		config.EnvTenantID:     idp.TenantID(),
		config.EnvAuthority:    idp.Authority(),
	}
}

func startIdP(t *testing.T) *mock.AzureIdP {
	t.Helper()
	return mock.StartAzureIdP(t, mock.AzureIdPConfig{
		TenantID:     testTenantID,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	})
}

func TestNewApplication_MissingClientID(t *testing.T) {
	cfg := testAppConfig(t, map[string]string{
		config.EnvClientSecret: testClientSecret,
		config.EnvTenantID:     testTenantID,
	})

	_, err := NewApplication(context.Background(), cfg)
	require.Error(t, err)

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{config.EnvClientID}, cfgErr.Missing)
	assert.Contains(t, err.Error(), config.EnvClientID)
}

func TestNewApplication_DiscoveryFailure(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(broken.Close)

	cfg := testAppConfig(t, map[string]string{
		config.EnvClientID:     testClientID,
		config.EnvClientSecret: testClientSecret,
		config.EnvTenantID:     testTenantID,
		config.EnvAuthority:    broken.URL,
	})

	_, err := NewApplication(context.Background(), cfg)
	require.Error(t, err)

	var discoveryErr *pkgoauth.DiscoveryError
	require.True(t, errors.As(err, &discoveryErr))
	assert.True(t, errors.Is(err, pkgoauth.ErrDiscovery))
}

func TestNewApplication_UsesPreloadedConfig(t *testing.T) {
	idp := startIdP(t)

	loaded, err := config.NewLoader(
		config.WithEnvFiles(filepath.Join(t.TempDir(), ".env")),
		config.WithLookup(lookupFrom(idpEnv(idp))),
	).Load()
	require.NoError(t, err)

	cfg := &Config{
		Newsroom: loaded,
		// A lookup that would fail loading proves it is not consulted.
		Lookup:    lookupFrom(nil),
		LogOutput: &bytes.Buffer{},
	}
	application, err := NewApplication(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(application.Services().Close)

	assert.Same(t, loaded, application.Config())
	assert.Equal(t, idp.Issuer(), application.Services().Proxy.Metadata().Issuer)
}

func TestNewApplication_InvalidLogLevel(t *testing.T) {
	loaded := &config.Config{Server: config.ServerConfig{LogLevel: "LOUD"}}
	_, err := NewApplication(context.Background(), &Config{Newsroom: loaded})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to configure logging")
}

func TestApplication_Run(t *testing.T) {
	idp := startIdP(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := testAppConfig(t, idpEnv(idp))
	cfg.Listener = listener

	application, err := NewApplication(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	baseURL := "http://" + listener.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(baseURL+"/mcp", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
}

func TestInitializeServices_RegistersRuntimeMetrics(t *testing.T) {
	idp := startIdP(t)

	loaded, err := config.NewLoader(
		config.WithEnvFiles(filepath.Join(t.TempDir(), ".env")),
		config.WithLookup(lookupFrom(idpEnv(idp))),
	).Load()
	require.NoError(t, err)

	services, err := InitializeServices(context.Background(), loaded)
	require.NoError(t, err)
	t.Cleanup(services.Close)

	families, err := services.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["newsroom_oauth_pending_attempts"])
}

func TestBanner(t *testing.T) {
	loaded := &config.Config{
		Server: config.ServerConfig{Name: "Newsroom MCP", Version: "1.0.0", Host: "localhost", Port: 8000},
		Azure: config.AzureOAuthConfig{
			ClientID:       testClientID,
			ClientSecret:   pkgoauth.NewSecret(testClientSecret),
			TenantID:       testTenantID,
			BaseURL:        "http://localhost:8000/",
			RedirectPath:   "/auth/callback",
			RequiredScopes: []string{"openid", "profile", "email"},
		},
	}

	record := Banner(loaded)
	assert.Equal(t, "Newsroom MCP", record.Title)

	fields := map[string]string{}
	for _, f := range record.Fields {
		fields[f.Key] = f.Value
		assert.NotContains(t, f.Value, testClientSecret)
	}
	assert.Equal(t, "localhost:8000", fields["Listen address"])
	assert.Equal(t, "http://localhost:8000/mcp", fields["MCP endpoint"])
	assert.Equal(t, "http://localhost:8000/auth/callback", fields["Redirect URI"])
	assert.Equal(t, "openid profile email", fields["Scopes"])
	assert.Equal(t, "false", fields["PKCE"])
}
