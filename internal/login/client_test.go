package login

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsroom/internal/config"
	"newsroom/internal/mcpserver"
	"newsroom/internal/oauth"
	"newsroom/internal/server"
	"newsroom/internal/testing/mock"
	pkgoauth "newsroom/pkg/oauth"
)

const (
	testClientID     = "11111111-2222-3333-4444-555555555555"
	testClientSecret = "client-secret-value"
)

type testServer struct {
	idp    *mock.AzureIdP
	proxy  *oauth.Proxy
	mcpURL string
	base   string
}

// startServer runs the proxy and MCP endpoint with its public base URL set
// to the address it actually listens on.
func startServer(t *testing.T) *testServer {
	t.Helper()

	idp := mock.StartAzureIdP(t, mock.AzureIdPConfig{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	})

	var handler http.Handler
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	base := "http://" + ts.Listener.Addr().String()

	cfg := config.AzureOAuthConfig{
		ClientID:       testClientID,
		ClientSecret:   pkgoauth.NewSecret(testClientSecret),
		TenantID:       idp.TenantID(),
		BaseURL:        base,
		RedirectPath:   "/auth/callback",
		RequiredScopes: []string{"openid", "profile", "email"},
		TimeoutSeconds: 5,
		Authority:      idp.Authority(),
	}
	proxy, err := oauth.NewAzureProxy(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(proxy.Close)

	handler = server.New(server.Options{
		Verifier: proxy,
		OAuth: oauth.NewHandler(proxy, oauth.HandlerConfig{
			BaseURL:      cfg.BaseURL,
			RedirectPath: cfg.RedirectPath,
			ServerName:   "Newsroom MCP",
			Scopes:       cfg.RequiredScopes,
		}),
		MCP: mcpserver.New(mcpserver.Info{Name: "Newsroom MCP", Version: "1.0.0"}),
	}).Handler()

	ts.Start()
	t.Cleanup(ts.Close)

	return &testServer{idp: idp, proxy: proxy, mcpURL: base + "/mcp", base: base}
}

// followRedirects stands in for the browser: it walks the redirect chain
// from the proxy through the identity provider to the loopback callback.
func followRedirects() URLOpener {
	return func(authURL string) error {
		resp, err := http.Get(authURL)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Body.Close()
	}
}

func newTestClient(t *testing.T, opener URLOpener) (*Client, *TokenStore) {
	t.Helper()
	store, err := NewTokenStore(t.TempDir())
	require.NoError(t, err)
	c, err := NewClient(ClientConfig{
		Store:           store,
		Opener:          opener,
		CallbackTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	return c, store
}

func TestClient_Discover(t *testing.T) {
	srv := startServer(t)
	c, _ := newTestClient(t, followRedirects())

	ep, err := c.Discover(context.Background(), srv.mcpURL)
	require.NoError(t, err)

	assert.Equal(t, srv.base+oauth.ProtectedResourceMetadataPath, ep.ResourceMetadataURL)
	assert.Equal(t, srv.base, ep.Issuer)
	assert.Equal(t, srv.base+oauth.AuthorizePath, ep.AuthorizationEndpoint)
	assert.Equal(t, srv.base+oauth.TokenPath, ep.TokenEndpoint)
	assert.Equal(t, []string{"openid", "profile", "email"}, ep.Scopes)
}

func TestClient_DiscoverUnprotected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	c, _ := newTestClient(t, nil)
	_, err := c.Discover(context.Background(), ts.URL+"/mcp")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotProtected)
}

func TestClient_Login(t *testing.T) {
	srv := startServer(t)

	var notified string
	c, store := newTestClient(t, followRedirects())
	c.cfg.Notify = func(authURL string) { notified = authURL }

	stored, err := c.Login(context.Background(), srv.mcpURL)
	require.NoError(t, err)

	assert.Contains(t, notified, srv.base+oauth.AuthorizePath)
	assert.Contains(t, notified, "code_challenge_method=S256")
	assert.NotContains(t, notified, "resource=")

	assert.NotEmpty(t, stored.AccessToken)
	assert.NotEmpty(t, stored.RefreshToken)
	assert.Equal(t, srv.base, stored.IssuerURL)
	assert.True(t, stored.Valid(time.Now()))

	subject, name := stored.Identity()
	assert.Equal(t, "user-123", subject)
	assert.Equal(t, "Test User", name)

	identity, err := srv.proxy.VerifyBearer(context.Background(), stored.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.Subject)

	loaded, err := store.Load(srv.mcpURL)
	require.NoError(t, err)
	assert.Equal(t, stored.AccessToken, loaded.AccessToken)

	token, err := c.Token(context.Background(), srv.mcpURL)
	require.NoError(t, err)
	assert.Equal(t, stored.AccessToken, token.AccessToken)
}

func TestClient_LoginDenied(t *testing.T) {
	srv := startServer(t)
	srv.idp.SetErrors(&mock.IdPErrorSimulation{AuthorizeError: "access_denied"})

	c, store := newTestClient(t, followRedirects())
	_, err := c.Login(context.Background(), srv.mcpURL)
	require.Error(t, err)

	var callbackErr *CallbackError
	require.ErrorAs(t, err, &callbackErr)
	assert.NotEmpty(t, callbackErr.Code)

	_, err = store.Load(srv.mcpURL)
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestClient_LoginStateMismatch(t *testing.T) {
	srv := startServer(t)

	// A redirect carrying somebody else's state.
	opener := func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=stolen&state=other")
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
	c, _ := newTestClient(t, opener)

	_, err := c.Login(context.Background(), srv.mcpURL)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestClient_LoginTimeout(t *testing.T) {
	srv := startServer(t)

	c, _ := newTestClient(t, func(string) error { return errors.New("no browser") })
	c.cfg.CallbackTimeout = 200 * time.Millisecond

	_, err := c.Login(context.Background(), srv.mcpURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_TokenRefreshesExpired(t *testing.T) {
	srv := startServer(t)
	c, store := newTestClient(t, followRedirects())

	stored, err := c.Login(context.Background(), srv.mcpURL)
	require.NoError(t, err)

	expireStoredToken(t, store, srv.mcpURL)

	refreshed, err := c.Token(context.Background(), srv.mcpURL)
	require.NoError(t, err)
	assert.True(t, refreshed.Valid(time.Now()))
	assert.NotEmpty(t, refreshed.RefreshToken)
	assert.Equal(t, stored.IssuerURL, refreshed.IssuerURL)
}

func TestClient_TokenRequiresLogin(t *testing.T) {
	c, store := newTestClient(t, nil)

	_, err := c.Token(context.Background(), "http://127.0.0.1:1/mcp")
	assert.ErrorIs(t, err, ErrLoginRequired)

	// Expired without a refresh token.
	_, err = store.Save("http://127.0.0.1:1/mcp", "http://127.0.0.1:1", "", expiredToken())
	require.NoError(t, err)
	_, err = c.Token(context.Background(), "http://127.0.0.1:1/mcp")
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestClient_TokenRefreshRejected(t *testing.T) {
	srv := startServer(t)
	c, store := newTestClient(t, followRedirects())

	_, err := c.Login(context.Background(), srv.mcpURL)
	require.NoError(t, err)
	expireStoredToken(t, store, srv.mcpURL)

	srv.idp.SetErrors(&mock.IdPErrorSimulation{InvalidGrant: true})
	_, err = c.Token(context.Background(), srv.mcpURL)
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestClient_Logout(t *testing.T) {
	c, store := newTestClient(t, nil)
	_, err := store.Save("https://mcp.example.com/mcp", "https://mcp.example.com", "", validToken())
	require.NoError(t, err)

	require.NoError(t, c.Logout("https://mcp.example.com/mcp"))
	_, err = store.Load("https://mcp.example.com/mcp")
	assert.ErrorIs(t, err, ErrLoginRequired)

	// Logging out twice is fine.
	assert.NoError(t, c.Logout("https://mcp.example.com/mcp"))
}

func TestNewClient_RequiresStore(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func expireStoredToken(t *testing.T, store *TokenStore, serverURL string) {
	t.Helper()
	stored, err := store.Load(serverURL)
	require.NoError(t, err)
	stored.Expiry = time.Now().Add(-time.Minute)
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.path(serverURL), data, 0o600))
}
