package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsroom/internal/config"
	"newsroom/internal/mcpserver"
	"newsroom/internal/oauth"
	"newsroom/internal/testing/mock"
	pkgoauth "newsroom/pkg/oauth"
)

const (
	testClientID     = "11111111-2222-3333-4444-555555555555"
	testClientSecret = "client-secret-value"
	testBaseURL      = "http://localhost:8000"
)

type testStack struct {
	idp    *mock.AzureIdP
	server *httptest.Server
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	idp := mock.StartAzureIdP(t, mock.AzureIdPConfig{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	})

	cfg := config.AzureOAuthConfig{
		ClientID:       testClientID,
		ClientSecret:   pkgoauth.NewSecret(testClientSecret),
		TenantID:       idp.TenantID(),
		BaseURL:        testBaseURL,
		RedirectPath:   "/auth/callback",
		RequiredScopes: []string{"openid", "profile", "email"},
		TimeoutSeconds: 5,
		Authority:      idp.Authority(),
	}

	registry := prometheus.NewRegistry()
	proxy, err := oauth.NewAzureProxy(context.Background(), cfg, oauth.WithMetrics(oauth.NewMetrics(registry)))
	require.NoError(t, err)
	t.Cleanup(proxy.Close)

	handler := oauth.NewHandler(proxy, oauth.HandlerConfig{
		BaseURL:      cfg.BaseURL,
		RedirectPath: cfg.RedirectPath,
		ServerName:   "Newsroom MCP",
		Scopes:       cfg.RequiredScopes,
	})

	srv := New(Options{
		Verifier: proxy,
		OAuth:    handler,
		MCP:      mcpserver.New(mcpserver.Info{Name: "Newsroom MCP", Version: "1.0.0"}),
		Gatherer: registry,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testStack{idp: idp, server: ts}
}

func (s *testStack) get(t *testing.T, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testStack) postMCP(t *testing.T, authorization string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	stack := newTestStack(t)

	resp := stack.get(t, HealthPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Newsroom MCP", body["name"])
	assert.Equal(t, "1.0.0", body["version"])
}

func TestServer_MCPRequiresBearer(t *testing.T) {
	stack := newTestStack(t)

	expired := stack.idp.DefaultClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	expiredToken, err := stack.idp.SignToken(expired)
	require.NoError(t, err)

	unknownKeyToken, err := stack.idp.SignTokenWithUnknownKey(stack.idp.DefaultClaims())
	require.NoError(t, err)

	wrongAudience := stack.idp.DefaultClaims()
	wrongAudience["aud"] = "api://someone-else"
	wrongAudienceToken, err := stack.idp.SignToken(wrongAudience)
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		description   string
	}{
		{name: "missing header", authorization: "", description: "missing bearer token"},
		{name: "basic scheme", authorization: "Basic dXNlcjpwYXNz", description: "missing bearer token"},
		{name: "empty bearer", authorization: "Bearer ", description: "missing bearer token"},
		{name: "malformed token", authorization: "Bearer not-a-jwt", description: "token is invalid or expired"},
		{name: "expired token", authorization: "Bearer " + expiredToken, description: "token is invalid or expired"},
		{name: "unknown signing key", authorization: "Bearer " + unknownKeyToken, description: "token is invalid or expired"},
		{name: "wrong audience", authorization: "Bearer " + wrongAudienceToken, description: "token is invalid or expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := stack.postMCP(t, tt.authorization)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			challenge := pkgoauth.ParseWWWAuthenticateFromResponse(resp)
			require.NotNil(t, challenge)
			assert.Equal(t, "Bearer", challenge.Scheme)
			assert.Equal(t, "invalid_token", challenge.Error)
			assert.Equal(t, tt.description, challenge.ErrorDescription)
			assert.Equal(t, testBaseURL+oauth.ProtectedResourceMetadataPath, challenge.ResourceMetadataURL)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "invalid_token", body["error"])
		})
	}
}

func TestServer_MCPWithValidToken(t *testing.T) {
	stack := newTestStack(t)

	token, err := stack.idp.IssueAccessToken()
	require.NoError(t, err)

	c, err := client.NewStreamableHttpClient(stack.server.URL+"/mcp",
		transport.WithHTTPHeaders(map[string]string{"Authorization": "Bearer " + token}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "newsroom-test", Version: "1.0.0"}
	result, err := c.Initialize(ctx, initRequest)
	require.NoError(t, err)
	assert.Equal(t, "Newsroom MCP", result.ServerInfo.Name)

	req := mcp.CallToolRequest{}
	req.Params.Name = mcpserver.ToolEcho
	req.Params.Arguments = map[string]any{"message": "through the proxy"}
	toolResult, err := c.CallTool(ctx, req)
	require.NoError(t, err)
	require.Len(t, toolResult.Content, 1)
	text, ok := mcp.AsTextContent(toolResult.Content[0])
	require.True(t, ok)
	assert.Equal(t, "Echo: through the proxy", text.Text)
}

func TestServer_OAuthEndpointsMounted(t *testing.T) {
	stack := newTestStack(t)

	resp := stack.get(t, oauth.ProtectedResourceMetadataPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var prm pkgoauth.ProtectedResourceMetadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prm))
	assert.Equal(t, testBaseURL+"/mcp", prm.Resource)

	resp = stack.get(t, oauth.AuthorizationServerPath, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	stack := newTestStack(t)

	// One rejected verification so the counter is exported.
	stack.postMCP(t, "Bearer not-a-jwt")

	resp := stack.get(t, MetricsPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "newsroom_oauth_pending_attempts")
	assert.Contains(t, string(body), `newsroom_token_verifications_total{result="invalid"} 1`)
}

func TestServer_MetricsDisabledWithoutGatherer(t *testing.T) {
	srv := New(Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubVerifier struct {
	identity *oauth.VerifiedIdentity
	err      error
	raw      string
}

func (s *stubVerifier) VerifyBearer(_ context.Context, rawToken string) (*oauth.VerifiedIdentity, error) {
	s.raw = rawToken
	return s.identity, s.err
}

func TestRequireBearer_PassesIdentity(t *testing.T) {
	verifier := &stubVerifier{identity: &oauth.VerifiedIdentity{Subject: "user-123", Email: "test.user@example.com"}}

	var seen *oauth.VerifiedIdentity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = oauth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "bearer  abc.def.ghi ")
	rec := httptest.NewRecorder()
	RequireBearer(verifier, "https://mcp.example.com/.well-known/oauth-protected-resource", next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc.def.ghi", verifier.raw)
	require.NotNil(t, seen)
	assert.Equal(t, "user-123", seen.Subject)
}

func TestRequireBearer_KeyFetchFailure(t *testing.T) {
	verifier := &stubVerifier{err: errors.Join(oauth.ErrKeyFetch, errors.New("connection refused"))}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	rec := httptest.NewRecorder()
	RequireBearer(verifier, "", next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer error="invalid_token", error_description="signing keys are unavailable"`,
		rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "BEARER abc", want: "abc", ok: true},
		{header: "  Bearer   abc  ", want: "abc", ok: true},
		{header: "Bearer", ok: false},
		{header: "Bearer ", ok: false},
		{header: "Basic abc", ok: false},
		{header: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := bearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + HealthPath)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_RunReportsListenError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	srv := New(Options{Addr: listener.Addr().String()})
	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
