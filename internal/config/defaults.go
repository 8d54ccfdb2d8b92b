package config

// Environment variables read by the loader.
const (
	EnvClientID            = "FASTMCP_SERVER_AUTH_AZURE_CLIENT_ID"
	EnvClientSecret        = "FASTMCP_SERVER_AUTH_AZURE_CLIENT_SECRET"
	EnvTenantID            = "FASTMCP_SERVER_AUTH_AZURE_TENANT_ID"
	EnvBaseURL             = "FASTMCP_SERVER_AUTH_AZURE_BASE_URL"
	EnvRedirectPath        = "FASTMCP_SERVER_AUTH_AZURE_REDIRECT_PATH"
	EnvRequiredScopes      = "FASTMCP_SERVER_AUTH_AZURE_REQUIRED_SCOPES"
	EnvTimeoutSeconds      = "FASTMCP_SERVER_AUTH_AZURE_TIMEOUT_SECONDS"
	EnvAuthority           = "FASTMCP_SERVER_AUTH_AZURE_AUTHORITY"
	EnvUsePKCE             = "FASTMCP_SERVER_AUTH_AZURE_USE_PKCE"
	EnvAllowedRedirectURIs = "FASTMCP_SERVER_AUTH_AZURE_ALLOWED_REDIRECT_URIS"

	EnvServerName    = "MCP_SERVER_NAME"
	EnvServerVersion = "MCP_SERVER_VERSION"
	EnvServerHost    = "MCP_SERVER_HOST"
	EnvServerPort    = "MCP_SERVER_PORT"
	EnvLogLevel      = "MCP_LOG_LEVEL"
	EnvLogFormat     = "MCP_LOG_FORMAT"
)

// RequiredEnvVars lists the variables without which the server cannot start.
var RequiredEnvVars = []string{EnvClientID, EnvClientSecret, EnvTenantID}

const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultRedirectPath   = "/auth/callback"
	DefaultRequiredScopes = "openid,profile,email"
	DefaultTimeoutSeconds = 30
	DefaultAuthority      = "https://login.microsoftonline.com"

	DefaultServerName    = "Newsroom MCP"
	DefaultServerVersion = "1.0.0"
	DefaultServerHost    = "localhost"
	DefaultServerPort    = 8000
	DefaultLogLevel      = "INFO"
	DefaultLogFormat     = "text"

	// DefaultEnvFile is read from the working directory when present.
	DefaultEnvFile = ".env"
)
