package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"newsroom/internal/config"
	"newsroom/internal/formatting"
)

// newConfigCmd creates the config command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		output string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Long: `Loads the configuration from the environment and dotenv files, applies
defaults and validation, and prints the result. The client secret is always
redacted.

Environment variables:
  FASTMCP_SERVER_AUTH_AZURE_CLIENT_ID        (required)
  FASTMCP_SERVER_AUTH_AZURE_CLIENT_SECRET    (required)
  FASTMCP_SERVER_AUTH_AZURE_TENANT_ID        (required)
  FASTMCP_SERVER_AUTH_AZURE_BASE_URL         default http://localhost:8000
  FASTMCP_SERVER_AUTH_AZURE_REDIRECT_PATH    default /auth/callback
  FASTMCP_SERVER_AUTH_AZURE_REQUIRED_SCOPES  default openid,profile,email
  FASTMCP_SERVER_AUTH_AZURE_TIMEOUT_SECONDS  default 30
  FASTMCP_SERVER_AUTH_AZURE_AUTHORITY        default https://login.microsoftonline.com
  FASTMCP_SERVER_AUTH_AZURE_USE_PKCE         default false
  FASTMCP_SERVER_AUTH_AZURE_ALLOWED_REDIRECT_URIS
                                             non-loopback client redirect URIs (https)
  MCP_SERVER_NAME, MCP_SERVER_VERSION, MCP_SERVER_HOST, MCP_SERVER_PORT,
  MCP_LOG_LEVEL, MCP_LOG_FORMAT

With --watch the command keeps running and prints the configuration again
each time a dotenv file changes. Reloaded values from dotenv files take
precedence over the process environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := newFormatter(cmd, output)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := formatter.FormatRecord(configRecord(cfg)); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchConfig(ctx, cmd, formatter)
		},
	}

	addOutputFlag(cmd, &output)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and print the configuration again when a dotenv file changes")
	return cmd
}

// watchConfig prints every reloaded configuration until ctx is done.
func watchConfig(ctx context.Context, cmd *cobra.Command, formatter formatting.Formatter) error {
	watcher, err := config.NewWatcher(config.WatcherConfig{
		Loader: newLoader(),
		OnReload: func(cfg *config.Config, err error) {
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Reload failed: %v\n", err)
				return
			}
			if err := formatter.FormatRecord(configRecord(cfg)); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to print configuration: %v\n", err)
			}
		},
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	<-ctx.Done()
	return nil
}

// configRecord lists every effective setting under its environment
// variable name.
func configRecord(cfg *config.Config) formatting.Record {
	return formatting.Record{
		Title: "Effective configuration",
		Fields: []formatting.Field{
			{Key: config.EnvClientID, Value: cfg.Azure.ClientID},
			{Key: config.EnvClientSecret, Value: cfg.Azure.ClientSecret.String()},
			{Key: config.EnvTenantID, Value: cfg.Azure.TenantID},
			{Key: config.EnvBaseURL, Value: cfg.Azure.BaseURL},
			{Key: config.EnvRedirectPath, Value: cfg.Azure.RedirectPath},
			{Key: config.EnvRequiredScopes, Value: strings.Join(cfg.Azure.RequiredScopes, ",")},
			{Key: config.EnvTimeoutSeconds, Value: strconv.Itoa(cfg.Azure.TimeoutSeconds)},
			{Key: config.EnvAuthority, Value: cfg.Azure.Authority},
			{Key: config.EnvUsePKCE, Value: strconv.FormatBool(cfg.Azure.UsePKCE)},
			{Key: config.EnvAllowedRedirectURIs, Value: strings.Join(cfg.Azure.AllowedRedirectURIs, ",")},
			{Key: config.EnvServerName, Value: cfg.Server.Name},
			{Key: config.EnvServerVersion, Value: cfg.Server.Version},
			{Key: config.EnvServerHost, Value: cfg.Server.Host},
			{Key: config.EnvServerPort, Value: strconv.Itoa(cfg.Server.Port)},
			{Key: config.EnvLogLevel, Value: cfg.Server.LogLevel},
			{Key: config.EnvLogFormat, Value: cfg.Server.LogFormat},
			{Key: "redirect_uri", Value: cfg.Azure.RedirectURI()},
			{Key: "env_files", Value: strings.Join(cfg.EnvFiles, ",")},
		},
		Data: cfg,
	}
}
