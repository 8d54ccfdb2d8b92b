package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"newsroom/internal/oauth"
	"newsroom/pkg/logging"
	pkgoauth "newsroom/pkg/oauth"
)

// ClientID identifies the CLI at the proxy's authorize endpoint. The proxy
// does not register clients; the value only shows up in its logs.
const ClientID = "newsroom-cli"

// DefaultHTTPTimeout bounds each metadata and token request.
const DefaultHTTPTimeout = 30 * time.Second

// Endpoints is what discovery learns about a protected MCP server.
type Endpoints struct {
	ServerURL             string
	ResourceMetadataURL   string
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	Scopes                []string
}

func (e *Endpoints) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    ClientID,
		RedirectURL: redirectURI,
		Scopes:      e.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   e.AuthorizationEndpoint,
			TokenURL:  e.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ClientConfig configures a login Client.
type ClientConfig struct {
	// Store persists tokens. Required.
	Store *TokenStore

	// HTTPClient is used for discovery and token requests.
	HTTPClient *http.Client

	// Opener sends the user to the authorization URL. Defaults to
	// OpenBrowser.
	Opener URLOpener

	// Notify, when set, receives the authorization URL before Opener runs
	// so it can be printed for manual use.
	Notify func(authURL string)

	// CallbackPort is the loopback port; 0 picks a free one.
	CallbackPort int

	// CallbackTimeout bounds the wait for the browser redirect.
	CallbackTimeout time.Duration
}

// Client logs in to protected MCP servers and hands out their tokens.
type Client struct {
	cfg ClientConfig
	now func() time.Time
}

// NewClient creates a login client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Store == nil {
		return nil, errors.New("token store is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if cfg.Opener == nil {
		cfg.Opener = OpenBrowser
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = DefaultCallbackTimeout
	}
	return &Client{cfg: cfg, now: time.Now}, nil
}

// Discover follows the 401 challenge of serverURL to the authorization
// server that protects it.
func (c *Client) Discover(ctx context.Context, serverURL string) (*Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", serverURL, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	challenge := pkgoauth.ParseWWWAuthenticateFromResponse(resp)
	if resp.StatusCode != http.StatusUnauthorized || !challenge.IsOAuthChallenge() {
		return nil, fmt.Errorf("%w (status %d)", ErrNotProtected, resp.StatusCode)
	}

	ep := &Endpoints{ServerURL: serverURL, ResourceMetadataURL: challenge.ResourceMetadataURL}
	if ep.ResourceMetadataURL == "" {
		origin, err := originOf(serverURL)
		if err != nil {
			return nil, err
		}
		ep.ResourceMetadataURL = origin + oauth.ProtectedResourceMetadataPath
	}

	var resource pkgoauth.ProtectedResourceMetadata
	if err := c.getJSON(ctx, ep.ResourceMetadataURL, &resource); err != nil {
		return nil, fmt.Errorf("failed to fetch protected resource metadata: %w", err)
	}
	if len(resource.AuthorizationServers) == 0 {
		return nil, fmt.Errorf("protected resource metadata at %s lists no authorization server", ep.ResourceMetadataURL)
	}
	ep.Issuer = strings.TrimRight(resource.AuthorizationServers[0], "/")

	var server pkgoauth.AuthorizationServerMetadata
	if err := c.getJSON(ctx, ep.Issuer+oauth.AuthorizationServerPath, &server); err != nil {
		return nil, fmt.Errorf("failed to fetch authorization server metadata: %w", err)
	}
	if server.AuthorizationEndpoint == "" || server.TokenEndpoint == "" {
		return nil, fmt.Errorf("authorization server %s does not publish its endpoints", ep.Issuer)
	}
	if len(server.CodeChallengeMethodsSupported) > 0 && !slices.Contains(server.CodeChallengeMethodsSupported, "S256") {
		return nil, fmt.Errorf("authorization server %s does not support PKCE S256", ep.Issuer)
	}
	ep.AuthorizationEndpoint = server.AuthorizationEndpoint
	ep.TokenEndpoint = server.TokenEndpoint
	ep.Scopes = resource.ScopesSupported
	if len(ep.Scopes) == 0 {
		ep.Scopes = server.ScopesSupported
	}

	logging.Debug("Login", "Discovered authorization server %s for %s", ep.Issuer, serverURL)
	return ep, nil
}

// Login runs the browser flow for serverURL and stores the result.
func (c *Client) Login(ctx context.Context, serverURL string) (*StoredToken, error) {
	ep, err := c.Discover(ctx, serverURL)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.CallbackTimeout)
	defer cancel()

	callback := NewCallbackServer(c.cfg.CallbackPort)
	redirectURI, err := callback.Start(waitCtx)
	if err != nil {
		return nil, err
	}
	defer callback.Stop()

	state, err := pkgoauth.GenerateState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	conf := ep.oauth2Config(redirectURI)
	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	if c.cfg.Notify != nil {
		c.cfg.Notify(authURL)
	}
	if err := c.cfg.Opener(authURL); err != nil {
		logging.Warn("Login", "Could not open a browser: %v", err)
	}

	result, err := callback.Wait(waitCtx)
	if err != nil {
		return nil, fmt.Errorf("no login callback received: %w", err)
	}
	if result.State != state {
		logging.Audit(logging.AuditEvent{
			Action:  "login",
			Outcome: logging.OutcomeFailure,
			Reason:  ErrStateMismatch.Error(),
		})
		return nil, ErrStateMismatch
	}
	if result.IsError() {
		logging.Audit(logging.AuditEvent{
			Action:  "login",
			Outcome: logging.OutcomeFailure,
			Reason:  result.Error,
		})
		return nil, &CallbackError{Code: result.Error, Description: result.ErrorDescription}
	}

	token, err := conf.Exchange(c.oauthContext(ctx), result.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	stored, err := c.cfg.Store.Save(serverURL, ep.Issuer, ep.TokenEndpoint, token)
	if err != nil {
		return nil, err
	}
	subject, _ := stored.Identity()
	logging.Audit(logging.AuditEvent{Action: "login", Outcome: logging.OutcomeSuccess, Subject: subject})
	return stored, nil
}

// Token returns a usable token for serverURL, refreshing an expired one
// when possible. It returns ErrLoginRequired when a new login is needed.
func (c *Client) Token(ctx context.Context, serverURL string) (*StoredToken, error) {
	stored, err := c.cfg.Store.Load(serverURL)
	if err != nil {
		return nil, err
	}
	if stored.Valid(c.now()) {
		return stored, nil
	}
	if stored.RefreshToken == "" || stored.TokenURL == "" {
		return nil, fmt.Errorf("%w: stored token expired", ErrLoginRequired)
	}

	conf := &oauth2.Config{
		ClientID: ClientID,
		Endpoint: oauth2.Endpoint{TokenURL: stored.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	// Without an access token the source always refreshes.
	refreshed, err := conf.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: stored.RefreshToken}).Token()
	if err != nil {
		logging.Warn("Login", "Refreshing the token for %s failed: %v", serverURL, err)
		return nil, fmt.Errorf("%w: refresh failed: %v", ErrLoginRequired, err)
	}

	logging.Debug("Login", "Refreshed token for %s", serverURL)
	return c.cfg.Store.Save(serverURL, stored.IssuerURL, stored.TokenURL, refreshed)
}

// Logout forgets the token stored for serverURL.
func (c *Client) Logout(serverURL string) error {
	return c.cfg.Store.Delete(serverURL)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

func (c *Client) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", target, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s returned invalid JSON: %w", target, err)
	}
	return nil
}

func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Identity returns the subject and display name carried by the access
// token. The claims are read without verification and only shown to the
// user; the server verifies the token on every request.
func (t *StoredToken) Identity() (subject, name string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, claims); err != nil {
		return "", ""
	}
	subject, _ = claims["sub"].(string)
	for _, key := range []string{"name", "preferred_username", "email"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return subject, v
		}
	}
	return subject, ""
}
