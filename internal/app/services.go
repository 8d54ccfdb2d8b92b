package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"newsroom/internal/config"
	"newsroom/internal/mcpserver"
	"newsroom/internal/oauth"
	"newsroom/internal/server"
	"newsroom/pkg/logging"
)

// Services holds every component the running server is built from.
//
// The services are created in dependency order:
//  1. Metrics registry (shared by the proxy and /metrics)
//  2. OAuth proxy, which runs provider discovery exactly once
//  3. OAuth HTTP handler
//  4. MCP capability registry
//  5. HTTP server tying them together
type Services struct {
	// Registry collects the proxy metrics and the Go runtime collectors.
	Registry *prometheus.Registry

	// Proxy drives logins against Microsoft Entra ID and verifies bearers.
	Proxy *oauth.Proxy

	// OAuthHandler serves the client-facing OAuth endpoints.
	OAuthHandler *oauth.Handler

	// MCP is the capability registry.
	MCP *mcpserver.Server

	// HTTP is the server exposing everything above.
	HTTP *server.Server
}

// InitializeServices creates all services for cfg. A failed discovery is
// returned unwrapped as *pkgoauth.DiscoveryError so callers can map it to
// an exit code.
func InitializeServices(ctx context.Context, cfg *config.Config, proxyOpts ...oauth.ProxyOption) (*Services, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append([]oauth.ProxyOption{
		oauth.WithMetrics(oauth.NewMetrics(registry)),
	}, proxyOpts...)

	proxy, err := oauth.NewAzureProxy(ctx, cfg.Azure, opts...)
	if err != nil {
		return nil, err
	}

	handler := oauth.NewHandler(proxy, oauth.HandlerConfig{
		BaseURL:      cfg.Azure.BaseURL,
		RedirectPath: cfg.Azure.RedirectPath,
		ServerName:   cfg.Server.Name,
		Scopes:       cfg.Azure.RequiredScopes,
	})

	mcp := mcpserver.New(mcpserver.Info{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	})

	httpServer := server.New(server.Options{
		Addr:     cfg.Server.Addr(),
		Verifier: proxy,
		OAuth:    handler,
		MCP:      mcp,
		MCPPath:  proxy.MCPPath(),
		Gatherer: registry,
	})

	logging.Debug("Services", "Initialized services for %s %s", cfg.Server.Name, cfg.Server.Version)

	return &Services{
		Registry:     registry,
		Proxy:        proxy,
		OAuthHandler: handler,
		MCP:          mcp,
		HTTP:         httpServer,
	}, nil
}

// Close releases background resources held by the services.
func (s *Services) Close() {
	if s == nil || s.Proxy == nil {
		return
	}
	s.Proxy.Close()
}
