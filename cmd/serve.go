package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"newsroom/internal/app"
	"newsroom/internal/formatting"
)

// newServeCmd creates the command that runs the MCP server.
func newServeCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server behind the Entra ID OAuth proxy",
		Long: `Starts the Newsroom MCP server.

On startup newsroom loads its configuration, discovers the tenant's OpenID
configuration exactly once and then serves:

  /authorize, /token, the provider callback    OAuth proxy endpoints
  /.well-known/oauth-protected-resource        RFC 9728 metadata
  /.well-known/oauth-authorization-server      RFC 8414 metadata
  /mcp                                         MCP over streamable HTTP (bearer required)
  /health, /metrics                            unauthenticated

The server stops gracefully on SIGINT or SIGTERM.

Exit codes:
  2  configuration is missing or invalid
  3  OpenID discovery failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg := app.NewConfig(debug, envFiles)
			application, err := app.NewApplication(ctx, cfg)
			if err != nil {
				return err
			}

			if !quiet {
				banner := formatting.NewTableFormatter(formatting.Options{
					Output: cmd.OutOrStdout(),
					Color:  isTerminal(cmd),
				})
				if err := banner.FormatRecord(application.Banner()); err != nil {
					return err
				}
			}

			return application.Run(ctx)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the startup banner")
	return cmd
}
