package app

import (
	"io"
	"net"

	"newsroom/internal/config"
	"newsroom/internal/oauth"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of MCP_LOG_LEVEL.
	Debug bool

	// Silent discards all log output.
	Silent bool

	// LogOutput receives log records. Defaults to stderr.
	LogOutput io.Writer

	// EnvFiles overrides the dotenv files read by the loader.
	EnvFiles []string

	// Lookup overrides the environment lookup, mainly for tests.
	Lookup config.LookupFunc

	// Newsroom is the loaded configuration. When set before NewApplication,
	// loading is skipped.
	Newsroom *config.Config

	// Listener, when set, is used instead of listening on the configured
	// host and port.
	Listener net.Listener

	// ProxyOptions are appended to the options NewApplication passes to
	// oauth.NewAzureProxy.
	ProxyOptions []oauth.ProxyOption
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, envFiles []string) *Config {
	return &Config{
		Debug:    debug,
		EnvFiles: envFiles,
	}
}

// loaderOptions translates the overrides into config.Loader options.
func (c *Config) loaderOptions() []config.LoaderOption {
	var opts []config.LoaderOption
	if len(c.EnvFiles) > 0 {
		opts = append(opts, config.WithEnvFiles(c.EnvFiles...))
	}
	if c.Lookup != nil {
		opts = append(opts, config.WithLookup(c.Lookup))
	}
	return opts
}
