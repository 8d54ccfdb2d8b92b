package app

import (
	"context"
	"os/signal"
	"syscall"

	"newsroom/pkg/logging"
)

// runServer blocks serving HTTP until ctx is cancelled or an interrupt
// arrives.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
func runServer(ctx context.Context, config *Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("Server", "MCP endpoint ready at %s", services.OAuthHandler.ResourceURL())

	var err error
	if config.Listener != nil {
		err = services.HTTP.Serve(ctx, config.Listener)
	} else {
		err = services.HTTP.Run(ctx)
	}
	if err != nil {
		logging.Error("Server", err, "Server stopped with error")
		return err
	}

	logging.Info("Server", "Server stopped")
	return nil
}
