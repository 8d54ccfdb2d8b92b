package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"newsroom/internal/config"
	"newsroom/internal/formatting"
	pkgoauth "newsroom/pkg/oauth"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigError indicates missing or invalid configuration.
	ExitCodeConfigError = 2
	// ExitCodeDiscoveryFailed indicates the identity provider's OpenID
	// configuration could not be discovered.
	ExitCodeDiscoveryFailed = 3
)

var (
	// envFiles are the dotenv files consulted when loading configuration.
	envFiles []string

	// debug enables verbose logging across the application.
	debug bool
)

// rootCmd represents the base command for the newsroom application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "newsroom",
	Short: "MCP server protected by Microsoft Entra ID",
	Long: `newsroom runs a Model Context Protocol server over HTTP and protects it
with an OAuth proxy in front of Microsoft Entra ID (Azure AD v2.0).

MCP clients discover the proxy through the protected resource metadata,
log in through the browser and then call the /mcp endpoint with a bearer
token that newsroom verifies against the tenant's signing keys.

Configuration is read from the environment and from a .env file; see
'newsroom config show'.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "newsroom version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfigError
	}

	if errors.Is(err, pkgoauth.ErrDiscovery) {
		return ExitCodeDiscoveryFailed
	}

	// Default to general error
	return ExitCodeError
}

// newLoader creates a loader for the environment and envFiles.
func newLoader() *config.Loader {
	var opts []config.LoaderOption
	if len(envFiles) > 0 {
		opts = append(opts, config.WithEnvFiles(envFiles...))
	}
	return config.NewLoader(opts...)
}

// loadConfig reads the configuration from the environment and envFiles.
func loadConfig() (*config.Config, error) {
	return newLoader().Load()
}

// addOutputFlag registers the shared --output flag.
func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", string(formatting.FormatTable), "Output format: table, json or yaml")
}

// newFormatter builds a formatter writing to the command's stdout.
func newFormatter(cmd *cobra.Command, output string) (formatting.Formatter, error) {
	format, err := formatting.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	return formatting.NewFactory().CreateFormatter(formatting.Options{
		Format: format,
		Output: cmd.OutOrStdout(),
		Color:  isTerminal(cmd),
	}), nil
}

// isTerminal reports whether the command writes to an interactive terminal.
func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// init adds subcommands and global flags to the root command.
func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{config.DefaultEnvFile}, "Dotenv files to read; later files win, missing files are skipped")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&tokenDir, "token-dir", "", "Directory for tokens stored by 'newsroom login' (default: user config dir)")
}
