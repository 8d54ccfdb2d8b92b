package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"newsroom/internal/formatting"
	pkgoauth "newsroom/pkg/oauth"
)

// newCheckCmd creates the command that verifies provider discovery without
// starting the server.
func newCheckCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Discover the tenant's OpenID configuration and print its endpoints",
		Long: `Loads the configuration and runs OpenID discovery against
{authority}/{tenant}/v2.0/.well-known/openid-configuration, exactly as
'newsroom serve' does at startup, then prints the discovered endpoints.

Use it to diagnose discovery failures (exit code 3) without starting the
server.`,
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

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			metadata, err := pkgoauth.Discover(ctx, nil, cfg.Azure.DiscoveryURL())
			if err != nil {
				return err
			}

			return formatter.FormatRecord(formatting.Record{
				Title: "OpenID configuration",
				Fields: []formatting.Field{
					{Key: "Discovery URL", Value: cfg.Azure.DiscoveryURL()},
					{Key: "Issuer", Value: metadata.Issuer},
					{Key: "Authorization endpoint", Value: metadata.AuthorizationEndpoint},
					{Key: "Token endpoint", Value: metadata.TokenEndpoint},
					{Key: "JWKS URI", Value: metadata.JWKSURI},
					{Key: "Redirect URI", Value: cfg.Azure.RedirectURI()},
				},
				Data: metadata,
			})
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}
