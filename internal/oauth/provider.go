package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"newsroom/pkg/logging"
	pkgoauth "newsroom/pkg/oauth"
)

// UpstreamRequest carries the per-attempt inputs for an upstream
// authorization request.
type UpstreamRequest struct {
	State         string
	Scopes        []string
	CodeChallenge string
	// Resource is an RFC 8707 resource indicator supplied by the MCP client.
	Resource string
}

// UpstreamProvider is an identity provider the proxy can delegate login to.
type UpstreamProvider interface {
	Name() string
	Metadata() *pkgoauth.ProviderMetadata
	// ResourceURL returns the resource indicator the provider should receive
	// for the MCP endpoint at mcpPath, if any.
	ResourceURL(mcpPath string) (string, bool)
	BuildUpstreamAuthorizationParams(req UpstreamRequest) AuthorizationParams
	ExchangeCode(ctx context.Context, code, verifier string) (*pkgoauth.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*pkgoauth.Token, error)
}

// ProviderConfig describes a client registration with an upstream provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret pkgoauth.Secret
	RedirectURI  string
	Scopes       []string
	// BaseURL is the public URL of this server; used to derive resource
	// indicators.
	BaseURL string
	// MCPPath is the path of the protected MCP endpoint.
	MCPPath    string
	HTTPClient *http.Client
}

type resolveResource func(mcpPath string) (string, bool)

// GenericProvider is a standards-following OAuth 2.0 / OIDC provider. It
// sends RFC 8707 resource indicators when it can derive one.
type GenericProvider struct {
	name       string
	metadata   *pkgoauth.ProviderMetadata
	config     ProviderConfig
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewGenericProvider builds a provider from discovered metadata.
func NewGenericProvider(name string, metadata *pkgoauth.ProviderMetadata, cfg ProviderConfig) *GenericProvider {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GenericProvider{
		name:     name,
		metadata: metadata,
		config:   cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Value(),
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   metadata.AuthorizationEndpoint,
				TokenURL:  metadata.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

func (p *GenericProvider) Name() string { return p.name }

func (p *GenericProvider) Metadata() *pkgoauth.ProviderMetadata { return p.metadata }

// ResourceURL derives the resource indicator from the public base URL.
func (p *GenericProvider) ResourceURL(mcpPath string) (string, bool) {
	if p.config.BaseURL == "" {
		return "", false
	}
	return strings.TrimRight(p.config.BaseURL, "/") + mcpPath, true
}

func (p *GenericProvider) BuildUpstreamAuthorizationParams(req UpstreamRequest) AuthorizationParams {
	return p.buildParams(req, p.ResourceURL)
}

func (p *GenericProvider) buildParams(req UpstreamRequest, resolve resolveResource) AuthorizationParams {
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = p.config.Scopes
	}

	params := AuthorizationParams{
		"client_id":     p.config.ClientID,
		"redirect_uri":  p.config.RedirectURI,
		"response_type": "code",
		"state":         req.State,
		"scope":         strings.Join(scopes, " "),
	}
	if req.CodeChallenge != "" {
		params["code_challenge"] = req.CodeChallenge
		params["code_challenge_method"] = "S256"
	}

	if req.Resource != "" {
		params[ParamResource] = req.Resource
	} else if resource, ok := resolve(p.config.MCPPath); ok {
		params[ParamResource] = resource
	}
	return params
}

func (p *GenericProvider) ExchangeCode(ctx context.Context, code, verifier string) (*pkgoauth.Token, error) {
	return p.exchange(ctx, code, verifier, p.ResourceURL)
}

func (p *GenericProvider) exchange(ctx context.Context, code, verifier string, resolve resolveResource) (*pkgoauth.Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	if resource, ok := resolve(p.config.MCPPath); ok {
		opts = append(opts, oauth2.SetAuthURLParam(ParamResource, resource))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, toExchangeError(err)
	}
	return pkgoauth.FromOAuth2Token(token), nil
}

func (p *GenericProvider) Refresh(ctx context.Context, refreshToken string) (*pkgoauth.Token, error) {
	if refreshToken == "" {
		return nil, &TokenExchangeError{ErrorCode: "invalid_request", Description: "refresh token is required"}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, toExchangeError(err)
	}
	return pkgoauth.FromOAuth2Token(token), nil
}

func toExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		exchangeErr := &TokenExchangeError{
			ErrorCode:   retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
			Err:         err,
		}
		if retrieveErr.Response != nil {
			exchangeErr.Status = retrieveErr.Response.StatusCode
		}
		return exchangeErr
	}
	return &TokenExchangeError{Err: err}
}

// AzureProvider targets Microsoft Entra ID v2.0, which rejects the resource
// parameter when scopes are present (AADSTS901002). Two guards keep it off
// the wire: ResourceURL never yields a value, and every parameter set built
// for the upstream is passed through StripResource.
type AzureProvider struct {
	*GenericProvider
}

// NewAzureProvider builds an Entra ID provider from discovered metadata.
func NewAzureProvider(metadata *pkgoauth.ProviderMetadata, cfg ProviderConfig) *AzureProvider {
	return &AzureProvider{GenericProvider: NewGenericProvider("azure", metadata, cfg)}
}

// ResourceURL always reports no resource for Azure v2.0.
func (p *AzureProvider) ResourceURL(string) (string, bool) {
	return "", false
}

func (p *AzureProvider) BuildUpstreamAuthorizationParams(req UpstreamRequest) AuthorizationParams {
	params := p.buildParams(req, p.ResourceURL)
	if params.Has(ParamResource) {
		logging.Debug("OAuth", "Removed resource parameter from Azure authorization request for state %s",
			logging.TruncateID(req.State))
	}
	return StripResource(params)
}

func (p *AzureProvider) ExchangeCode(ctx context.Context, code, verifier string) (*pkgoauth.Token, error) {
	return p.exchange(ctx, code, verifier, p.ResourceURL)
}
