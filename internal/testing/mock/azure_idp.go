package mock

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgoauth "newsroom/pkg/oauth"
)

// AADSTS901002 is the error Entra ID v2.0 returns when a token or
// authorization request carries the v1 "resource" parameter.
const AADSTS901002 = "AADSTS901002: The 'resource' request parameter is not supported."

// AzureIdPConfig configures the mock Microsoft Entra ID tenant.
type AzureIdPConfig struct {
	// TenantID is the tenant path segment. Defaults to "abc123".
	TenantID string

	// ClientID and ClientSecret are the expected client credentials.
	ClientID     string
	ClientSecret string

	// TokenLifetime is how long issued tokens remain valid.
	TokenLifetime time.Duration

	// Subject, Name and Email populate the claims of issued tokens.
	Subject string
	Name    string
	Email   string

	// RequirePKCE rejects authorization requests without a code_challenge.
	RequirePKCE bool

	// Clock is the clock used for token timestamps (defaults to RealClock).
	Clock Clock

	// Debug enables debug output on stderr.
	Debug bool
}

// IdPErrorSimulation makes the mock tenant misbehave.
type IdPErrorSimulation struct {
	// DiscoveryStatus replaces the discovery response with this status code.
	DiscoveryStatus int
	// OmitDiscoveryFields removes these keys from the discovery document.
	OmitDiscoveryFields []string
	// DiscoveryDelay delays the discovery response.
	DiscoveryDelay time.Duration

	// JWKSStatus replaces the JWKS response with this status code.
	JWKSStatus int

	// AuthorizeError redirects back with this OAuth error instead of a code.
	AuthorizeError string

	// TokenEndpointError is returned as a server_error description.
	TokenEndpointError string
	// InvalidGrant rejects every token request with invalid_grant.
	InvalidGrant bool
	// TokenDelay delays token responses.
	TokenDelay time.Duration
}

type signingKey struct {
	kid string
	key *rsa.PrivateKey
}

type idpAuthCode struct {
	redirectURI   string
	scope         string
	codeChallenge string
	createdAt     time.Time
}

// AzureIdP is a mock Entra ID v2.0 tenant: OIDC discovery, RS256 JWKS,
// authorize and token endpoints.
type AzureIdP struct {
	config     AzureIdPConfig
	clock      Clock
	httpServer *http.Server
	listener   net.Listener
	baseURL    string
	running    bool

	mu            sync.RWMutex
	current       signingKey
	errors        *IdPErrorSimulation
	authCodes     map[string]*idpAuthCode
	refreshTokens map[string]string
	authorizeReqs []url.Values
	tokenReqs     []url.Values
	jwksRequests  int
}

// NewAzureIdP creates a mock tenant. Call Start before use.
func NewAzureIdP(config AzureIdPConfig) (*AzureIdP, error) {
	if config.TenantID == "" {
		config.TenantID = "abc123"
	}
	if config.ClientID == "" {
		config.ClientID = "test-client-id"
	}
	if config.TokenLifetime == 0 {
		config.TokenLifetime = time.Hour
	}
	if config.Subject == "" {
		config.Subject = "user-123"
	}
	if config.Name == "" {
		config.Name = "Test User"
	}
	if config.Email == "" {
		config.Email = "test.user@example.com"
	}
	clock := config.Clock
	if clock == nil {
		clock = RealClock{}
	}

	key, err := newSigningKey()
	if err != nil {
		return nil, err
	}

	return &AzureIdP{
		config:        config,
		clock:         clock,
		current:       key,
		authCodes:     make(map[string]*idpAuthCode),
		refreshTokens: make(map[string]string),
	}, nil
}

func newSigningKey() (signingKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return signingKey{}, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return signingKey{kid: randomString(8), key: key}, nil
}

// Start listens on a random loopback port.
func (s *AzureIdP) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.baseURL = "http://" + listener.Addr().String()

	tenant := "/" + s.config.TenantID
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+tenant+"/v2.0/.well-known/openid-configuration", s.handleDiscovery)
	mux.HandleFunc("GET "+tenant+"/discovery/v2.0/keys", s.handleJWKS)
	mux.HandleFunc("GET "+tenant+"/oauth2/v2.0/authorize", s.handleAuthorize)
	mux.HandleFunc("POST "+tenant+"/oauth2/v2.0/token", s.handleToken)

	s.httpServer = &http.Server{
		Handler:  mux,
		ErrorLog: log.New(io.Discard, "", 0),
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.debugf("mock IdP error: %v", err)
		}
	}()

	s.running = true
	s.debugf("mock Entra ID tenant %s started at %s", s.config.TenantID, s.baseURL)
	return nil
}

// Stop shuts the server down.
func (s *AzureIdP) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	server := s.httpServer
	s.mu.Unlock()

	return server.Shutdown(ctx)
}

// Authority is the base URL to configure as the provider authority.
func (s *AzureIdP) Authority() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL
}

// TenantID returns the tenant path segment.
func (s *AzureIdP) TenantID() string { return s.config.TenantID }

// ClientID returns the expected client ID.
func (s *AzureIdP) ClientID() string { return s.config.ClientID }

func (s *AzureIdP) tenantURL() string {
	return s.Authority() + "/" + s.config.TenantID
}

// Issuer is the v2.0 issuer identifier.
func (s *AzureIdP) Issuer() string { return s.tenantURL() + "/v2.0" }

// DiscoveryURL is the OpenID configuration URL.
func (s *AzureIdP) DiscoveryURL() string {
	return s.Issuer() + "/.well-known/openid-configuration"
}

// AuthorizeURL is the authorization endpoint.
func (s *AzureIdP) AuthorizeURL() string { return s.tenantURL() + "/oauth2/v2.0/authorize" }

// TokenURL is the token endpoint.
func (s *AzureIdP) TokenURL() string { return s.tenantURL() + "/oauth2/v2.0/token" }

// JWKSURL is the signing key endpoint.
func (s *AzureIdP) JWKSURL() string { return s.tenantURL() + "/discovery/v2.0/keys" }

// Metadata returns the discovery document as served.
func (s *AzureIdP) Metadata() *pkgoauth.ProviderMetadata {
	return &pkgoauth.ProviderMetadata{
		Issuer:                        s.Issuer(),
		AuthorizationEndpoint:         s.AuthorizeURL(),
		TokenEndpoint:                 s.TokenURL(),
		JWKSURI:                       s.JWKSURL(),
		ScopesSupported:               []string{"openid", "profile", "email", "offline_access"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
}

// SetErrors replaces the error simulation. Pass nil to clear it.
func (s *AzureIdP) SetErrors(sim *IdPErrorSimulation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = sim
}

func (s *AzureIdP) simulation() IdPErrorSimulation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.errors == nil {
		return IdPErrorSimulation{}
	}
	return *s.errors
}

// RotateKey replaces the signing key. Tokens signed with the old key no
// longer verify against the served JWKS.
func (s *AzureIdP) RotateKey() error {
	key, err := newSigningKey()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = key
	s.mu.Unlock()
	return nil
}

// KeyID returns the kid of the current signing key.
func (s *AzureIdP) KeyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.kid
}

// AuthorizeRequests returns the query of every authorize request received.
func (s *AzureIdP) AuthorizeRequests() []url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.authorizeReqs)
}

// TokenRequests returns the form of every token request received.
func (s *AzureIdP) TokenRequests() []url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tokenReqs)
}

// JWKSRequests returns how many times the key set was fetched.
func (s *AzureIdP) JWKSRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jwksRequests
}

// DefaultClaims returns the claims of a valid access token for the
// configured client.
func (s *AzureIdP) DefaultClaims() jwt.MapClaims {
	now := s.clock.Now()
	return jwt.MapClaims{
		"iss":                s.Issuer(),
		"aud":                s.config.ClientID,
		"sub":                s.config.Subject,
		"tid":                s.config.TenantID,
		"name":               s.config.Name,
		"email":              s.config.Email,
		"preferred_username": s.config.Email,
		"scp":                "openid profile email",
		"iat":                now.Unix(),
		"nbf":                now.Unix(),
		"exp":                now.Add(s.config.TokenLifetime).Unix(),
	}
}

// SignToken signs claims with the current key.
func (s *AzureIdP) SignToken(claims jwt.MapClaims) (string, error) {
	s.mu.RLock()
	key := s.current
	s.mu.RUnlock()
	return signWith(key, claims)
}

// SignTokenWithUnknownKey signs claims with a key the JWKS never lists.
func (s *AzureIdP) SignTokenWithUnknownKey(claims jwt.MapClaims) (string, error) {
	key, err := newSigningKey()
	if err != nil {
		return "", err
	}
	return signWith(key, claims)
}

func signWith(key signingKey, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.kid
	return token.SignedString(key.key)
}

// IssueAccessToken returns a valid access token for the configured client.
func (s *AzureIdP) IssueAccessToken() (string, error) {
	return s.SignToken(s.DefaultClaims())
}

// IssueAuthCode registers an authorization code as if a user had approved
// the request.
func (s *AzureIdP) IssueAuthCode(redirectURI, scope, codeChallenge string) string {
	code := randomString(32)
	s.mu.Lock()
	s.authCodes[code] = &idpAuthCode{
		redirectURI:   redirectURI,
		scope:         scope,
		codeChallenge: codeChallenge,
		createdAt:     s.clock.Now(),
	}
	s.mu.Unlock()
	return code
}

func (s *AzureIdP) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	sim := s.simulation()
	if sim.DiscoveryDelay > 0 {
		select {
		case <-time.After(sim.DiscoveryDelay):
		case <-r.Context().Done():
			return
		}
	}
	if sim.DiscoveryStatus != 0 {
		http.Error(w, http.StatusText(sim.DiscoveryStatus), sim.DiscoveryStatus)
		return
	}

	doc := map[string]any{
		"issuer":                                s.Issuer(),
		"authorization_endpoint":                s.AuthorizeURL(),
		"token_endpoint":                        s.TokenURL(),
		"jwks_uri":                              s.JWKSURL(),
		"userinfo_endpoint":                     "https://graph.microsoft.com/oidc/userinfo",
		"response_types_supported":              []string{"code", "id_token", "code id_token"},
		"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
		"subject_types_supported":               []string{"pairwise"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic"},
		"code_challenge_methods_supported":      []string{"S256"},
	}
	for _, field := range sim.OmitDiscoveryFields {
		delete(doc, field)
	}

	writeIdPJSON(w, http.StatusOK, doc)
}

func (s *AzureIdP) handleJWKS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.jwksRequests++
	key := s.current
	s.mu.Unlock()

	if status := s.simulation().JWKSStatus; status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	pub := key.key.PublicKey
	writeIdPJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"use": "sig",
			"kid": key.kid,
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (s *AzureIdP) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	s.authorizeReqs = append(s.authorizeReqs, q)
	s.mu.Unlock()

	s.debugf("authorize request: %s", q.Encode())

	if q.Has("resource") {
		writeIdPError(w, http.StatusBadRequest, "invalid_request", AADSTS901002)
		return
	}
	if q.Get("response_type") != "code" {
		writeIdPError(w, http.StatusBadRequest, "unsupported_response_type", "AADSTS70005: response_type must be code")
		return
	}
	if q.Get("client_id") != s.config.ClientID {
		writeIdPError(w, http.StatusBadRequest, "unauthorized_client", "AADSTS700016: application not found in tenant")
		return
	}
	if s.config.RequirePKCE && q.Get("code_challenge") == "" {
		writeIdPError(w, http.StatusBadRequest, "invalid_request", "AADSTS50148: code_challenge is required")
		return
	}

	redirectURL, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirectURL.Host == "" {
		writeIdPError(w, http.StatusBadRequest, "invalid_request", "AADSTS50011: invalid redirect_uri")
		return
	}

	params := redirectURL.Query()
	if sim := s.simulation(); sim.AuthorizeError != "" {
		params.Set("error", sim.AuthorizeError)
		params.Set("error_description", "AADSTS65004: User declined to consent to access the app.")
	} else {
		params.Set("code", s.IssueAuthCode(redirectURL.String(), q.Get("scope"), q.Get("code_challenge")))
	}
	params.Set("state", q.Get("state"))
	redirectURL.RawQuery = params.Encode()

	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

func (s *AzureIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeIdPError(w, http.StatusBadRequest, "invalid_request", "AADSTS900144: malformed request body")
		return
	}
	form := r.PostForm
	s.mu.Lock()
	s.tokenReqs = append(s.tokenReqs, form)
	s.mu.Unlock()

	sim := s.simulation()
	if sim.TokenDelay > 0 {
		select {
		case <-time.After(sim.TokenDelay):
		case <-r.Context().Done():
			return
		}
	}

	if form.Has("resource") {
		writeIdPError(w, http.StatusBadRequest, "invalid_request", AADSTS901002)
		return
	}
	if sim.TokenEndpointError != "" {
		writeIdPError(w, http.StatusInternalServerError, "server_error", sim.TokenEndpointError)
		return
	}
	if sim.InvalidGrant {
		writeIdPError(w, http.StatusBadRequest, "invalid_grant", "AADSTS70000: the provided grant is invalid or malformed")
		return
	}
	if form.Get("client_id") != s.config.ClientID ||
		(s.config.ClientSecret != "" && form.Get("client_secret") != s.config.ClientSecret) {
		writeIdPError(w, http.StatusUnauthorized, "invalid_client", "AADSTS7000215: invalid client secret provided")
		return
	}

	switch form.Get("grant_type") {
	case "authorization_code":
		s.exchangeAuthCode(w, form)
	case "refresh_token":
		s.exchangeRefreshToken(w, form)
	default:
		writeIdPError(w, http.StatusBadRequest, "unsupported_grant_type", "AADSTS70003: unsupported grant_type")
	}
}

func (s *AzureIdP) exchangeAuthCode(w http.ResponseWriter, form url.Values) {
	code := form.Get("code")
	s.mu.Lock()
	entry, ok := s.authCodes[code]
	delete(s.authCodes, code)
	s.mu.Unlock()

	if !ok {
		writeIdPError(w, http.StatusBadRequest, "invalid_grant", "AADSTS70008: the provided authorization code is invalid or expired")
		return
	}
	if entry.redirectURI != "" && form.Get("redirect_uri") != entry.redirectURI {
		writeIdPError(w, http.StatusBadRequest, "invalid_grant", "AADSTS50011: redirect_uri does not match")
		return
	}
	if entry.codeChallenge != "" && !pkgoauth.VerifyPKCE(entry.codeChallenge, "S256", form.Get("code_verifier")) {
		writeIdPError(w, http.StatusBadRequest, "invalid_grant", "AADSTS501481: the code_verifier does not match the code_challenge")
		return
	}

	s.writeTokens(w, entry.scope)
}

func (s *AzureIdP) exchangeRefreshToken(w http.ResponseWriter, form url.Values) {
	rt := form.Get("refresh_token")
	s.mu.Lock()
	scope, ok := s.refreshTokens[rt]
	delete(s.refreshTokens, rt)
	s.mu.Unlock()

	if !ok {
		writeIdPError(w, http.StatusBadRequest, "invalid_grant", "AADSTS700082: the refresh token has expired or is invalid")
		return
	}
	s.writeTokens(w, scope)
}

func (s *AzureIdP) writeTokens(w http.ResponseWriter, scope string) {
	claims := s.DefaultClaims()
	if scope != "" {
		claims["scp"] = scope
	}
	accessToken, err := s.SignToken(claims)
	if err != nil {
		writeIdPError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	idClaims := s.DefaultClaims()
	delete(idClaims, "scp")
	idToken, err := s.SignToken(idClaims)
	if err != nil {
		writeIdPError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	refreshToken := randomString(32)
	s.mu.Lock()
	s.refreshTokens[refreshToken] = scope
	s.mu.Unlock()

	writeIdPJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    int(s.config.TokenLifetime.Seconds()),
		"scope":         scope,
		"refresh_token": refreshToken,
		"id_token":      idToken,
	})
}

func (s *AzureIdP) debugf(format string, args ...any) {
	if s.config.Debug {
		fmt.Fprintf(os.Stderr, "[mock-idp] "+format+"\n", args...)
	}
}

func writeIdPError(w http.ResponseWriter, status int, code, description string) {
	writeIdPJSON(w, status, map[string]any{
		"error":             code,
		"error_description": description,
		"error_codes":       []int{aadstsCode(description)},
	})
}

func aadstsCode(description string) int {
	var code int
	if strings.HasPrefix(description, "AADSTS") {
		fmt.Sscanf(description, "AADSTS%d", &code)
	}
	return code
}

func writeIdPJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// StartAzureIdP starts a mock tenant and stops it when the test ends.
func StartAzureIdP(t testing.TB, config AzureIdPConfig) *AzureIdP {
	t.Helper()

	idp, err := NewAzureIdP(config)
	if err != nil {
		t.Fatalf("failed to create mock IdP: %v", err)
	}
	if err := idp.Start(context.Background()); err != nil {
		t.Fatalf("failed to start mock IdP: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = idp.Stop(ctx)
	})
	return idp
}
