package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/config"
	"newsroom/pkg/logging"
	pkgoauth "newsroom/pkg/oauth"
)

// DefaultMCPPath is where the protected MCP endpoint is mounted.
const DefaultMCPPath = "/mcp"

// ErrInvalidRequest is returned for malformed client authorization requests.
var ErrInvalidRequest = errors.New("invalid request")

type proxyOptions struct {
	httpClient      *http.Client
	clock           Clock
	metrics         *Metrics
	mcpPath         string
	attemptTTL      time.Duration
	handoffTTL      time.Duration
	exchangeTimeout time.Duration
	usePKCE         bool
	leeway          time.Duration
	minKeyRefresh   time.Duration
	allowedRedirect map[string]bool
}

// ProxyOption configures a Proxy.
type ProxyOption func(*proxyOptions)

// WithHTTPClient sets the client used for discovery, JWKS and token calls.
func WithHTTPClient(c *http.Client) ProxyOption {
	return func(o *proxyOptions) { o.httpClient = c }
}

// WithClock injects the time source.
func WithClock(c Clock) ProxyOption {
	return func(o *proxyOptions) { o.clock = c }
}

// WithMetrics records proxy activity in m.
func WithMetrics(m *Metrics) ProxyOption {
	return func(o *proxyOptions) { o.metrics = m }
}

// WithMCPPath sets the path of the protected MCP endpoint.
func WithMCPPath(path string) ProxyOption {
	return func(o *proxyOptions) { o.mcpPath = path }
}

// WithAttemptTTL bounds how long a login may wait for its callback.
func WithAttemptTTL(d time.Duration) ProxyOption {
	return func(o *proxyOptions) { o.attemptTTL = d }
}

// WithHandoffTTL bounds how long a client has to redeem its code.
func WithHandoffTTL(d time.Duration) ProxyOption {
	return func(o *proxyOptions) { o.handoffTTL = d }
}

// WithExchangeTimeout bounds each upstream token request.
func WithExchangeTimeout(d time.Duration) ProxyOption {
	return func(o *proxyOptions) { o.exchangeTimeout = d }
}

// WithPKCE toggles PKCE towards the upstream provider.
func WithPKCE(enabled bool) ProxyOption {
	return func(o *proxyOptions) { o.usePKCE = enabled }
}

// WithLeeway tolerates clock skew when validating bearer tokens.
func WithLeeway(d time.Duration) ProxyOption {
	return func(o *proxyOptions) { o.leeway = d }
}

// WithMinKeyRefreshInterval sets how long a key ID still missing after a
// JWKS refresh is rejected without another refresh.
func WithMinKeyRefreshInterval(d time.Duration) ProxyOption {
	return func(o *proxyOptions) { o.minKeyRefresh = d }
}

// WithAllowedRedirectURIs registers non-loopback client redirect URIs.
// Entries are matched exactly, ignoring the query string.
func WithAllowedRedirectURIs(uris ...string) ProxyOption {
	return func(o *proxyOptions) {
		if o.allowedRedirect == nil {
			o.allowedRedirect = make(map[string]bool)
		}
		for _, uri := range uris {
			o.allowedRedirect[withoutQuery(uri)] = true
		}
	}
}

func newProxyOptions(opts []ProxyOption) proxyOptions {
	o := proxyOptions{
		httpClient:      http.DefaultClient,
		clock:           realClock{},
		mcpPath:         DefaultMCPPath,
		attemptTTL:      DefaultAttemptTTL,
		handoffTTL:      DefaultHandoffTTL,
		exchangeTimeout: time.Duration(config.DefaultTimeoutSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Proxy runs the login state machine between MCP clients and an upstream
// identity provider, and verifies the bearer tokens clients present.
type Proxy struct {
	provider UpstreamProvider
	verifier TokenVerifier
	attempts *AttemptStore
	handoffs *HandoffStore
	opts     proxyOptions
}

// NewAzureProxy discovers the tenant's provider metadata and builds a proxy
// for Microsoft Entra ID. Discovery runs exactly once; its failure is
// returned as a *pkgoauth.DiscoveryError and no proxy is created.
func NewAzureProxy(ctx context.Context, cfg config.AzureOAuthConfig, opts ...ProxyOption) (*Proxy, error) {
	o := newProxyOptions(append([]ProxyOption{
		WithExchangeTimeout(cfg.Timeout()),
		WithPKCE(cfg.UsePKCE),
		WithAllowedRedirectURIs(cfg.AllowedRedirectURIs...),
	}, opts...))

	metadata, err := pkgoauth.Discover(ctx, o.httpClient, cfg.DiscoveryURL())
	if err != nil {
		return nil, err
	}
	logging.Info("OAuth", "Discovered provider %s (authorize: %s, token: %s)",
		metadata.Issuer, metadata.AuthorizationEndpoint, metadata.TokenEndpoint)

	provider := NewAzureProvider(metadata, ProviderConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI(),
		Scopes:       cfg.RequiredScopes,
		BaseURL:      cfg.BaseURL,
		MCPPath:      o.mcpPath,
		HTTPClient:   o.httpClient,
	})

	verifier, err := NewVerifier(VerifierConfig{
		JWKSURI:            metadata.JWKSURI,
		Issuer:             metadata.Issuer,
		Audience:           cfg.ClientID,
		HTTPClient:         o.httpClient,
		Leeway:             o.leeway,
		Clock:              o.clock,
		MinRefreshInterval: o.minKeyRefresh,
		Metrics:            o.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}

	return newProxy(provider, verifier, o), nil
}

// NewProxy builds a proxy around any upstream provider and verifier.
func NewProxy(provider UpstreamProvider, verifier TokenVerifier, opts ...ProxyOption) *Proxy {
	return newProxy(provider, verifier, newProxyOptions(opts))
}

func newProxy(provider UpstreamProvider, verifier TokenVerifier, o proxyOptions) *Proxy {
	return &Proxy{
		provider: provider,
		verifier: verifier,
		attempts: NewAttemptStore(o.attemptTTL, o.clock, o.metrics),
		handoffs: NewHandoffStore(o.handoffTTL, o.clock),
		opts:     o,
	}
}

// Provider returns the upstream provider.
func (p *Proxy) Provider() UpstreamProvider { return p.provider }

// Metadata returns the discovered upstream metadata.
func (p *Proxy) Metadata() *pkgoauth.ProviderMetadata { return p.provider.Metadata() }

// MCPPath returns the path of the protected MCP endpoint.
func (p *Proxy) MCPPath() string { return p.opts.mcpPath }

// PendingAttempts returns the number of logins waiting for a callback.
func (p *Proxy) PendingAttempts() int { return p.attempts.Len() }

// Close stops the background cleanup loops.
func (p *Proxy) Close() {
	p.attempts.Close()
	p.handoffs.Close()
}

// ClientRequest is an MCP client's request to start a login.
type ClientRequest struct {
	// RedirectURI receives the one-time handoff code. Optional; without it
	// the browser is shown a result page instead. It must be a loopback or
	// registered URI and comes with an S256 CodeChallenge.
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	// Resource is accepted for RFC 8707 clients but only forwarded to
	// providers that support it.
	Resource   string
	RemoteAddr string
}

// AuthorizationRedirect tells the caller where to send the browser.
type AuthorizationRedirect struct {
	URL       string
	State     string
	AttemptID string
	ExpiresAt time.Time
}

// StartAuthorization creates a pending attempt and returns the upstream
// authorization URL.
func (p *Proxy) StartAuthorization(ctx context.Context, req ClientRequest) (*AuthorizationRedirect, error) {
	if err := p.validateClientRequest(req); err != nil {
		return nil, err
	}

	state, err := pkgoauth.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	now := p.opts.clock.Now()
	attempt := &Attempt{
		ID:                  uuid.NewString(),
		State:               state,
		Status:              StatusInitialized,
		ClientRedirectURI:   req.RedirectURI,
		ClientState:         req.State,
		ClientCodeChallenge: req.CodeChallenge,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	upstream := UpstreamRequest{State: state, Resource: req.Resource}
	if p.opts.usePKCE {
		pkce, err := pkgoauth.GeneratePKCE()
		if err != nil {
			return nil, err
		}
		attempt.CodeVerifier = pkce.CodeVerifier
		upstream.CodeChallenge = pkce.CodeChallenge
	}

	params := p.provider.BuildUpstreamAuthorizationParams(upstream)
	authURL, err := params.URL(p.provider.Metadata().AuthorizationEndpoint)
	if err != nil {
		return nil, err
	}

	if err := attempt.transition(StatusAuthorizationPending, now); err != nil {
		return nil, err
	}
	if err := p.attempts.Put(attempt); err != nil {
		return nil, err
	}

	logging.Audit(logging.AuditEvent{
		Action:     "oauth_login_start",
		Outcome:    logging.OutcomeSuccess,
		Attempt:    attempt.ID,
		RemoteAddr: req.RemoteAddr,
	})

	return &AuthorizationRedirect{
		URL:       authURL,
		State:     state,
		AttemptID: attempt.ID,
		ExpiresAt: now.Add(p.attempts.TTL()),
	}, nil
}

// CallbackParams are the query parameters the provider sends to the
// redirect URI.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	RemoteAddr       string
}

// HandleCallback completes the attempt identified by the state nonce. The
// nonce is consumed whatever the outcome. An unknown state returns a nil
// attempt and an AuthorizationError without contacting the provider.
func (p *Proxy) HandleCallback(ctx context.Context, cb CallbackParams) (*Attempt, error) {
	attempt, ok := p.attempts.Take(cb.State)
	if !ok || cb.State == "" {
		p.opts.metrics.attemptFinished(StatusFailed, ReasonStateMismatch)
		logging.Audit(logging.AuditEvent{
			Action:     "oauth_login",
			Outcome:    logging.OutcomeFailure,
			Reason:     string(ReasonStateMismatch),
			RemoteAddr: cb.RemoteAddr,
		})
		return nil, &AuthorizationError{Reason: ReasonStateMismatch}
	}

	now := p.opts.clock.Now()
	if attempt.Expired(now, p.attempts.TTL()) {
		return p.failAttempt(attempt, cb.RemoteAddr, &AuthorizationError{Reason: ReasonTimeout})
	}
	if cb.Error != "" {
		return p.failAttempt(attempt, cb.RemoteAddr, &AuthorizationError{
			Reason:      ReasonAccessDenied,
			Description: cb.ErrorDescription,
			Err:         fmt.Errorf("provider returned %s", cb.Error),
		})
	}
	if cb.Code == "" {
		return p.failAttempt(attempt, cb.RemoteAddr, &AuthorizationError{Reason: ReasonMissingCode})
	}

	if err := attempt.transition(StatusExchangingCode, now); err != nil {
		return nil, err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, p.opts.exchangeTimeout)
	defer cancel()

	token, err := p.provider.ExchangeCode(exchangeCtx, cb.Code, attempt.CodeVerifier)
	if err != nil {
		reason := ReasonCodeExchangeFailed
		switch {
		case ctx.Err() != nil:
			reason = ReasonCancelled
		case errors.Is(exchangeCtx.Err(), context.DeadlineExceeded):
			reason = ReasonTimeout
		}
		return p.failAttempt(attempt, cb.RemoteAddr, &AuthorizationError{Reason: reason, Err: err})
	}
	if token == nil || token.AccessToken == "" {
		return p.failAttempt(attempt, cb.RemoteAddr, &AuthorizationError{
			Reason: ReasonCodeExchangeFailed,
			Err:    &TokenExchangeError{Description: "response contained no access token"},
		})
	}

	attempt.Token = token
	if err := attempt.transition(StatusAuthenticated, p.opts.clock.Now()); err != nil {
		return nil, err
	}
	p.opts.metrics.attemptFinished(attempt.Status, ReasonNone)

	logging.Audit(logging.AuditEvent{
		Action:     "oauth_login",
		Outcome:    logging.OutcomeSuccess,
		Attempt:    attempt.ID,
		RemoteAddr: cb.RemoteAddr,
	})

	return attempt, nil
}

func (p *Proxy) failAttempt(attempt *Attempt, remoteAddr string, authErr *AuthorizationError) (*Attempt, error) {
	if err := attempt.fail(authErr.Reason, authErr, p.opts.clock.Now()); err != nil {
		return nil, err
	}
	p.opts.metrics.attemptFinished(attempt.Status, attempt.Reason)

	logging.Audit(logging.AuditEvent{
		Action:     "oauth_login",
		Outcome:    logging.OutcomeFailure,
		Attempt:    attempt.ID,
		Reason:     string(authErr.Reason),
		RemoteAddr: remoteAddr,
	})
	if authErr.Err != nil {
		logging.Debug("OAuth", "Login attempt %s failed: %v", attempt.ID, authErr)
	}

	return attempt, authErr
}

// IssueClientCode hands an authenticated attempt's tokens to the handoff
// store and returns the one-time code for the client.
func (p *Proxy) IssueClientCode(attempt *Attempt) (string, error) {
	return p.handoffs.Issue(attempt)
}

// RedeemClientCode releases the tokens behind a handoff code exactly once.
func (p *Proxy) RedeemClientCode(code, redirectURI, verifier string) (*pkgoauth.Token, error) {
	token, err := p.handoffs.Redeem(code, redirectURI, verifier)
	p.opts.metrics.tokenRequest("authorization_code", err)
	return token, err
}

// Refresh forwards a refresh token to the upstream provider.
func (p *Proxy) Refresh(ctx context.Context, refreshToken string) (*pkgoauth.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.exchangeTimeout)
	defer cancel()

	token, err := p.provider.Refresh(ctx, refreshToken)
	p.opts.metrics.tokenRequest("refresh_token", err)
	return token, err
}

// VerifyBearer validates a bearer token presented to the MCP endpoint.
func (p *Proxy) VerifyBearer(ctx context.Context, rawToken string) (*VerifiedIdentity, error) {
	return p.verifier.Verify(ctx, rawToken)
}

// validateClientRequest requires a PKCE S256 challenge whenever a client
// redirect is given, so a handoff code is useless to anyone but the client
// that started the login.
func (p *Proxy) validateClientRequest(req ClientRequest) error {
	if req.RedirectURI == "" {
		if req.CodeChallenge != "" {
			return fmt.Errorf("%w: code_challenge requires redirect_uri", ErrInvalidRequest)
		}
		return nil
	}
	if err := p.ValidateClientRedirectURI(req.RedirectURI); err != nil {
		return err
	}
	if req.CodeChallenge == "" {
		return fmt.Errorf("%w: code_challenge is required with redirect_uri", ErrInvalidRequest)
	}
	if req.CodeChallengeMethod != "S256" {
		return fmt.Errorf("%w: code_challenge_method must be S256", ErrInvalidRequest)
	}
	return nil
}

// ValidateClientRedirectURI accepts loopback redirects (http or https, any
// port) as used by native MCP clients, and the registered redirect URIs.
func (p *Proxy) ValidateClientRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: redirect_uri must be an absolute URL", ErrInvalidRequest)
	}
	if u.Fragment != "" {
		return fmt.Errorf("%w: redirect_uri must not contain a fragment", ErrInvalidRequest)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: unsupported redirect_uri scheme %q", ErrInvalidRequest, u.Scheme)
	}
	if isLoopback(u.Hostname()) || p.opts.allowedRedirect[withoutQuery(raw)] {
		return nil
	}
	return fmt.Errorf("%w: redirect_uri must be a loopback address or a registered redirect URI", ErrInvalidRequest)
}

func withoutQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
