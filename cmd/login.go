package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"newsroom/internal/formatting"
	"newsroom/internal/login"
)

// DefaultServerURL is the MCP endpoint the client commands talk to.
const DefaultServerURL = "http://localhost:8000/mcp"

var (
	// tokenDir overrides where login stores tokens.
	tokenDir string

	// openURL sends the user to the authorization page.
	openURL login.URLOpener = login.OpenBrowser
)

type loginOptions struct {
	url          string
	noBrowser    bool
	callbackPort int
	timeout      time.Duration
	quiet        bool
	output       string
}

// loginResult is the structured output of a successful login.
type loginResult struct {
	Server          string    `json:"server" yaml:"server"`
	Issuer          string    `json:"issuer" yaml:"issuer"`
	Subject         string    `json:"subject" yaml:"subject"`
	Name            string    `json:"name,omitempty" yaml:"name,omitempty"`
	Expiry          time.Time `json:"expiry" yaml:"expiry"`
	HasRefreshToken bool      `json:"has_refresh_token" yaml:"has_refresh_token"`
	TokenDir        string    `json:"token_dir" yaml:"token_dir"`
}

func newLoginClient(cmd *cobra.Command, opts loginOptions, waiting func()) (*login.Client, *login.TokenStore, error) {
	store, err := login.NewTokenStore(tokenDir)
	if err != nil {
		return nil, nil, err
	}

	opener := openURL
	if opts.noBrowser {
		opener = func(string) error { return nil }
	}
	client, err := login.NewClient(login.ClientConfig{
		Store:           store,
		Opener:          opener,
		CallbackPort:    opts.callbackPort,
		CallbackTimeout: opts.timeout,
		Notify: func(authURL string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL to log in:\n\n  %s\n\n", authURL)
			if waiting != nil {
				waiting()
			}
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return client, store, nil
}

// newLoginCmd creates the command that logs in through the proxy.
func newLoginCmd() *cobra.Command {
	opts := loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a running server through its OAuth proxy",
		Long: `Logs in to a newsroom server the way an MCP client does: the 401
challenge of the /mcp endpoint leads to the proxy's authorization server,
the browser is sent to /authorize with a PKCE challenge, and the one-time
code returned to a loopback callback is exchanged at /token.

The token is stored per server URL and used by 'newsroom probe' when no
--token is given. Expired tokens are refreshed automatically.

Examples:
  newsroom login
  newsroom login --url https://mcp.example.com/mcp --no-browser`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := newFormatter(cmd, opts.output)
			if err != nil {
				return err
			}
			var s *spinner.Spinner
			if !opts.quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
				s.Suffix = " Waiting for the browser login..."
			}
			client, store, err := newLoginClient(cmd, opts, func() {
				if s != nil {
					s.Start()
				}
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			stored, err := client.Login(ctx, opts.url)
			if s != nil {
				s.Stop()
			}
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			subject, name := stored.Identity()
			result := loginResult{
				Server:          stored.ServerURL,
				Issuer:          stored.IssuerURL,
				Subject:         subject,
				Name:            name,
				Expiry:          stored.Expiry,
				HasRefreshToken: stored.RefreshToken != "",
				TokenDir:        store.Dir(),
			}
			return formatter.FormatRecord(formatting.Record{
				Title: "Logged in",
				Fields: []formatting.Field{
					{Key: "Server", Value: result.Server},
					{Key: "Authorization server", Value: result.Issuer},
					{Key: "Subject", Value: result.Subject},
					{Key: "Name", Value: result.Name},
					{Key: "Expires", Value: result.Expiry.Local().Format(time.RFC1123)},
					{Key: "Refresh token", Value: yesNo(result.HasRefreshToken)},
					{Key: "Stored in", Value: result.TokenDir},
				},
				Data: result,
			})
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", DefaultServerURL, "MCP endpoint URL")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	cmd.Flags().IntVar(&opts.callbackPort, "callback-port", 0, "Loopback port for the login redirect (0 picks a free port)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", login.DefaultCallbackTimeout, "How long to wait for the browser login")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not show a progress spinner")
	addOutputFlag(cmd, &opts.output)
	return cmd
}

// newLogoutCmd creates the command that forgets a stored token.
func newLogoutCmd() *cobra.Command {
	opts := loginOptions{}

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the token stored for a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newLoginClient(cmd, opts, nil)
			if err != nil {
				return err
			}
			if err := client.Logout(opts.url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", opts.url)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", DefaultServerURL, "MCP endpoint URL")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
