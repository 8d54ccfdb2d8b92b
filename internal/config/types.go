package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"newsroom/pkg/oauth"
)

// Config is the complete, immutable runtime configuration. A new value is
// produced by every Loader.Load or Loader.Reload call; nothing mutates an
// existing Config after it is returned.
type Config struct {
	Server ServerConfig     `yaml:"server"`
	Azure  AzureOAuthConfig `yaml:"azure"`

	// EnvFiles lists the dotenv files that contributed values.
	EnvFiles []string `yaml:"env_files,omitempty"`
}

// ServerConfig holds the MCP server identity and listener settings.
type ServerConfig struct {
	Name      string `yaml:"name" env:"MCP_SERVER_NAME" default:"Newsroom MCP" validate:"required"`
	Version   string `yaml:"version" env:"MCP_SERVER_VERSION" default:"1.0.0" validate:"required"`
	Host      string `yaml:"host" env:"MCP_SERVER_HOST" default:"localhost" validate:"required"`
	Port      int    `yaml:"port" env:"MCP_SERVER_PORT" default:"8000" validate:"min=1,max=65535"`
	LogLevel  string `yaml:"log_level" env:"MCP_LOG_LEVEL" default:"INFO" validate:"oneof=DEBUG INFO WARNING ERROR CRITICAL"`
	LogFormat string `yaml:"log_format" env:"MCP_LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AzureOAuthConfig holds the OAuth client registration and proxy settings
// for Microsoft Entra ID.
type AzureOAuthConfig struct {
	ClientID       string       `yaml:"client_id" env:"FASTMCP_SERVER_AUTH_AZURE_CLIENT_ID" validate:"required,min=10"`
	ClientSecret   oauth.Secret `yaml:"client_secret" env:"FASTMCP_SERVER_AUTH_AZURE_CLIENT_SECRET" validate:"required,min=10"`
	TenantID       string       `yaml:"tenant_id" env:"FASTMCP_SERVER_AUTH_AZURE_TENANT_ID" validate:"required,min=10"`
	BaseURL        string       `yaml:"base_url" env:"FASTMCP_SERVER_AUTH_AZURE_BASE_URL" default:"http://localhost:8000" validate:"required,http_url"`
	RedirectPath   string       `yaml:"redirect_path" env:"FASTMCP_SERVER_AUTH_AZURE_REDIRECT_PATH" default:"/auth/callback" validate:"required,startswith=/"`
	RequiredScopes []string     `yaml:"required_scopes" env:"FASTMCP_SERVER_AUTH_AZURE_REQUIRED_SCOPES" default:"[\"openid\",\"profile\",\"email\"]" validate:"min=1,dive,required"`
	TimeoutSeconds int          `yaml:"timeout_seconds" env:"FASTMCP_SERVER_AUTH_AZURE_TIMEOUT_SECONDS" default:"30" validate:"min=1,max=300"`
	Authority      string       `yaml:"authority" env:"FASTMCP_SERVER_AUTH_AZURE_AUTHORITY" default:"https://login.microsoftonline.com" validate:"required,http_url"`
	UsePKCE        bool         `yaml:"use_pkce" env:"FASTMCP_SERVER_AUTH_AZURE_USE_PKCE"`

	// AllowedRedirectURIs are non-loopback client redirect URIs that may
	// receive handoff codes. Loopback redirects are always accepted.
	AllowedRedirectURIs []string `yaml:"allowed_redirect_uris,omitempty" env:"FASTMCP_SERVER_AUTH_AZURE_ALLOWED_REDIRECT_URIS" validate:"omitempty,dive,https_url"`
}

// RedirectURI is the absolute callback URL registered with the provider.
func (a AzureOAuthConfig) RedirectURI() string {
	return strings.TrimRight(a.BaseURL, "/") + a.RedirectPath
}

// PublicURL joins the base URL with an absolute path.
func (a AzureOAuthConfig) PublicURL(path string) string {
	return strings.TrimRight(a.BaseURL, "/") + path
}

// Timeout is TimeoutSeconds as a duration.
func (a AzureOAuthConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// DiscoveryURL is the OpenID configuration document for the tenant.
func (a AzureOAuthConfig) DiscoveryURL() string {
	return oauth.DiscoveryURL(a.Authority, a.TenantID)
}
