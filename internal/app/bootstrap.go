package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"newsroom/internal/config"
	"newsroom/pkg/logging"
)

// Application represents the main application structure that bootstraps and
// runs the Newsroom MCP server.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: load configuration, initialize logging, discover the
//     identity provider and build the services
//  2. Execution phase: serve HTTP until interrupted
//
// Example usage:
//
//	application, err := app.NewApplication(ctx, app.NewConfig(false, nil))
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads the configuration (unless cfg.Newsroom is already
// set), initializes logging and builds every service. Provider discovery
// happens here, once; its failure aborts startup.
//
// Configuration and discovery failures keep their types in the error chain
// (*config.ConfigurationError, *pkgoauth.DiscoveryError) so the CLI can map
// them to exit codes.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.Newsroom == nil {
		loaded, err := config.NewLoader(cfg.loaderOptions()...).Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.Newsroom = loaded
	}

	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	logging.Info("Bootstrap", "Starting %s %s", cfg.Newsroom.Server.Name, cfg.Newsroom.Server.Version)

	services, err := InitializeServices(ctx, cfg.Newsroom, cfg.ProxyOptions...)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

func initLogging(cfg *Config) error {
	level, err := logging.ParseLevel(cfg.Newsroom.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var output io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		output = cfg.LogOutput
	}
	if cfg.Silent {
		output = io.Discard
	}

	logging.Init(level, logging.Format(cfg.Newsroom.Server.LogFormat), output)
	return nil
}

// Config returns the loaded configuration.
func (a *Application) Config() *config.Config {
	return a.config.Newsroom
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer a.services.Close()
	return runServer(ctx, a.config, a.services)
}
