package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsroom/internal/testing/mock"
	pkgoauth "newsroom/pkg/oauth"
)

func newTestHandler(t *testing.T, idp *mock.AzureIdP, opts ...ProxyOption) (*Handler, *http.ServeMux) {
	t.Helper()
	proxy := newTestProxy(t, idp, azureConfig(idp), opts...)
	h := NewHandler(proxy, HandlerConfig{
		BaseURL:      "http://localhost:8000/",
		RedirectPath: "/auth/callback",
		ServerName:   "Newsroom MCP",
		Scopes:       []string{"openid", "profile", "email"},
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux
}

func serve(mux http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func locationQuery(t *testing.T, rec *httptest.ResponseRecorder) (*url.URL, url.Values) {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u, u.Query()
}

func assertSecurityHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestHandler_BrowserLogin(t *testing.T) {
	idp := startIdP(t, nil)
	_, mux := newTestHandler(t, idp)

	rec := serve(mux, http.MethodGet, "/authorize?resource="+url.QueryEscape("http://localhost:8000/mcp"), nil)
	upstream, q := locationQuery(t, rec)
	assert.Equal(t, idp.AuthorizeURL(), upstream.Scheme+"://"+upstream.Host+upstream.Path)
	assert.False(t, q.Has("resource"))

	callback := approveAtIdP(t, upstream.String())
	rec = serve(mux, http.MethodGet, "/auth/callback?"+callback.Encode(), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication Successful")
	assert.Contains(t, rec.Body.String(), "Newsroom MCP")
	assertSecurityHeaders(t, rec)
	assert.Len(t, idp.TokenRequests(), 1)
}

func TestHandler_ClientLoginAndTokenEndpoint(t *testing.T) {
	idp := startIdP(t, nil)
	_, mux := newTestHandler(t, idp)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)
	clientRedirect := "http://127.0.0.1:33418/callback"

	authorize := url.Values{
		"response_type":         {"code"},
		"redirect_uri":          {clientRedirect},
		"state":                 {"client-state"},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {"S256"},
	}
	rec := serve(mux, http.MethodGet, "/authorize?"+authorize.Encode(), nil)
	upstream, _ := locationQuery(t, rec)

	callback := approveAtIdP(t, upstream.String())
	rec = serve(mux, http.MethodGet, "/auth/callback?"+callback.Encode(), nil)
	back, q := locationQuery(t, rec)
	assert.Equal(t, "127.0.0.1:33418", back.Host)
	assert.Equal(t, "client-state", q.Get("state"))
	code := q.Get("code")
	require.NotEmpty(t, code)

	rec = serve(mux, http.MethodPost, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {clientRedirect},
		"code_verifier": {pkce.CodeVerifier},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var tokens tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Greater(t, tokens.ExpiresIn, 0)
	assert.NotEmpty(t, tokens.RefreshToken)

	// Codes are single use.
	rec = serve(mux, http.MethodPost, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {clientRedirect},
		"code_verifier": {pkce.CodeVerifier},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_grant")

	rec = serve(mux, http.MethodPost, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// clientHandoffCode runs a client login through /authorize and the
// provider callback and returns the one-time code sent to clientRedirect.
func clientHandoffCode(t *testing.T, mux http.Handler, clientRedirect string, pkce *pkgoauth.PKCEChallenge) string {
	t.Helper()
	authorize := url.Values{
		"redirect_uri":          {clientRedirect},
		"state":                 {"client-state"},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {"S256"},
	}
	rec := serve(mux, http.MethodGet, "/authorize?"+authorize.Encode(), nil)
	upstream, _ := locationQuery(t, rec)

	rec = serve(mux, http.MethodGet, "/auth/callback?"+approveAtIdP(t, upstream.String()).Encode(), nil)
	_, q := locationQuery(t, rec)
	require.NotEmpty(t, q.Get("code"))
	return q.Get("code")
}

func TestHandler_TokenBindsRedirectAndVerifier(t *testing.T) {
	idp := startIdP(t, nil)
	_, mux := newTestHandler(t, idp)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)
	clientRedirect := "http://127.0.0.1:33418/callback"

	tests := []struct {
		name string
		form func(code string) url.Values
	}{
		{"redirect_uri omitted", func(code string) url.Values {
			return url.Values{"grant_type": {"authorization_code"}, "code": {code}, "code_verifier": {pkce.CodeVerifier}}
		}},
		{"redirect_uri differs", func(code string) url.Values {
			return url.Values{"grant_type": {"authorization_code"}, "code": {code}, "redirect_uri": {"http://127.0.0.1:1/other"}, "code_verifier": {pkce.CodeVerifier}}
		}},
		{"code_verifier omitted", func(code string) url.Values {
			return url.Values{"grant_type": {"authorization_code"}, "code": {code}, "redirect_uri": {clientRedirect}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := clientHandoffCode(t, mux, clientRedirect, pkce)

			rec := serve(mux, http.MethodPost, "/token", tt.form(code))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid_grant")
			assert.NotContains(t, rec.Body.String(), "access_token")

			// The failed attempt burns the code.
			rec = serve(mux, http.MethodPost, "/token", url.Values{
				"grant_type":    {"authorization_code"},
				"code":          {code},
				"redirect_uri":  {clientRedirect},
				"code_verifier": {pkce.CodeVerifier},
			})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandler_TokenErrors(t *testing.T) {
	idp := startIdP(t, nil)
	_, mux := newTestHandler(t, idp)

	tests := []struct {
		name     string
		form     url.Values
		wantCode int
		wantErr  string
	}{
		{"missing code", url.Values{"grant_type": {"authorization_code"}}, http.StatusBadRequest, "invalid_request"},
		{"unknown code", url.Values{"grant_type": {"authorization_code"}, "code": {"nope"}}, http.StatusBadRequest, "invalid_grant"},
		{"unsupported grant", url.Values{"grant_type": {"client_credentials"}}, http.StatusBadRequest, "unsupported_grant_type"},
		{"bad refresh token", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"nope"}}, http.StatusBadRequest, "invalid_grant"},
		{"empty refresh token", url.Values{"grant_type": {"refresh_token"}}, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(mux, http.MethodPost, "/token", tt.form)
			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}

	t.Run("provider outage", func(t *testing.T) {
		idp.SetErrors(&mock.IdPErrorSimulation{TokenEndpointError: "down"})
		defer idp.SetErrors(nil)
		rec := serve(mux, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"x"}})
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "server_error", body["error"])
	})
}

func TestHandler_AuthorizeRejections(t *testing.T) {
	idp := startIdP(t, nil)
	_, mux := newTestHandler(t, idp)

	t.Run("untrusted redirect renders a page", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/authorize?redirect_uri="+url.QueryEscape("http://evil.example/cb"), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Authentication Failed")
		assertSecurityHeaders(t, rec)
	})

	t.Run("bad response type goes back to the client", func(t *testing.T) {
		target := "/authorize?response_type=token&state=s1&redirect_uri=" + url.QueryEscape("http://localhost:9999/cb")
		rec := serve(mux, http.MethodGet, target, nil)
		_, q := locationQuery(t, rec)
		assert.Equal(t, "unsupported_response_type", q.Get("error"))
		assert.Equal(t, "s1", q.Get("state"))
	})

	t.Run("plain PKCE", func(t *testing.T) {
		target := "/authorize?code_challenge=abc&code_challenge_method=plain&redirect_uri=" + url.QueryEscape("http://localhost:9999/cb")
		rec := serve(mux, http.MethodGet, target, nil)
		_, q := locationQuery(t, rec)
		assert.Equal(t, "invalid_request", q.Get("error"))
	})

	t.Run("foreign https redirect renders a page", func(t *testing.T) {
		authorize := url.Values{
			"redirect_uri":          {"https://attacker.example/steal"},
			"state":                 {"s1"},
			"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
			"code_challenge_method": {"S256"},
		}
		rec := serve(mux, http.MethodGet, "/authorize?"+authorize.Encode(), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
		assert.Contains(t, rec.Body.String(), "Authentication Failed")
	})

	t.Run("redirect without code challenge", func(t *testing.T) {
		target := "/authorize?state=s2&redirect_uri=" + url.QueryEscape("http://127.0.0.1:9999/cb")
		rec := serve(mux, http.MethodGet, target, nil)
		back, q := locationQuery(t, rec)
		assert.Equal(t, "127.0.0.1:9999", back.Host)
		assert.Equal(t, "invalid_request", q.Get("error"))
		assert.Contains(t, q.Get("error_description"), "code_challenge")
		assert.Equal(t, "s2", q.Get("state"))
	})

	assert.Empty(t, idp.AuthorizeRequests())
}

func TestHandler_CallbackFailures(t *testing.T) {
	idp := startIdP(t, nil)
	_, mux := newTestHandler(t, idp)

	t.Run("unknown state", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/auth/callback?code=abc&state=forged", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid or was already used")
		assertSecurityHeaders(t, rec)
		assert.Empty(t, idp.TokenRequests())
	})

	t.Run("provider error text is not echoed", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/authorize", nil)
		upstream, _ := locationQuery(t, rec)

		callback := url.Values{
			"state":             {upstream.Query().Get("state")},
			"error":             {"access_denied"},
			"error_description": {"<script>alert(1)</script>"},
		}
		rec = serve(mux, http.MethodGet, "/auth/callback?"+callback.Encode(), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotContains(t, rec.Body.String(), "<script>")
		assert.Contains(t, rec.Body.String(), "denied")
	})

	t.Run("exchange failure is a bad gateway", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/authorize", nil)
		upstream, _ := locationQuery(t, rec)
		callback := approveAtIdP(t, upstream.String())

		idp.SetErrors(&mock.IdPErrorSimulation{InvalidGrant: true})
		defer idp.SetErrors(nil)
		rec = serve(mux, http.MethodGet, "/auth/callback?"+callback.Encode(), nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("client redirect receives the error", func(t *testing.T) {
		authorize := url.Values{
			"redirect_uri":          {"http://localhost:9999/cb"},
			"state":                 {"cs"},
			"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
			"code_challenge_method": {"S256"},
		}
		rec := serve(mux, http.MethodGet, "/authorize?"+authorize.Encode(), nil)
		upstream, _ := locationQuery(t, rec)

		rec = serve(mux, http.MethodGet, "/auth/callback?state="+url.QueryEscape(upstream.Query().Get("state")), nil)
		back, q := locationQuery(t, rec)
		assert.Equal(t, "localhost:9999", back.Host)
		assert.Equal(t, "invalid_request", q.Get("error"))
		assert.Equal(t, "cs", q.Get("state"))
	})
}

func TestHandler_Metadata(t *testing.T) {
	idp := startIdP(t, nil)
	h, mux := newTestHandler(t, idp)

	assert.Equal(t, "http://localhost:8000/mcp", h.ResourceURL())
	assert.Equal(t, "http://localhost:8000/.well-known/oauth-protected-resource", h.ResourceMetadataURL())

	for _, path := range []string{ProtectedResourceMetadataPath, ProtectedResourceMetadataPath + "/mcp"} {
		rec := serve(mux, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var prm pkgoauth.ProtectedResourceMetadata
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prm))
		assert.Equal(t, "http://localhost:8000/mcp", prm.Resource)
		assert.Equal(t, []string{"http://localhost:8000"}, prm.AuthorizationServers)
		assert.Equal(t, []string{"header"}, prm.BearerMethodsSupported)
		assert.Equal(t, "Newsroom MCP", prm.ResourceName)
	}

	rec := serve(mux, http.MethodGet, AuthorizationServerPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var asm pkgoauth.AuthorizationServerMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asm))
	assert.Equal(t, "http://localhost:8000", asm.Issuer)
	assert.Equal(t, "http://localhost:8000/authorize", asm.AuthorizationEndpoint)
	assert.Equal(t, "http://localhost:8000/token", asm.TokenEndpoint)
	assert.Equal(t, []string{"S256"}, asm.CodeChallengeMethodsSupported)
	assert.Equal(t, []string{"none"}, asm.TokenEndpointAuthMethodsSupported)
}
