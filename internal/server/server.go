package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"newsroom/internal/mcpserver"
	"newsroom/internal/oauth"
	"newsroom/pkg/logging"
)

const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"

	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 120 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultShutdownTimeout bounds how long in-flight requests may take to
	// finish once shutdown starts.
	DefaultShutdownTimeout = 10 * time.Second
)

// Options wires the components served over HTTP.
type Options struct {
	// Addr is the host:port to listen on.
	Addr string
	// Verifier checks bearer tokens on the MCP endpoint.
	Verifier BearerVerifier
	// OAuth serves the client-facing OAuth endpoints.
	OAuth *oauth.Handler
	// MCP is the capability registry exposed at MCPPath.
	MCP *mcpserver.Server
	// MCPPath defaults to oauth.DefaultMCPPath.
	MCPPath string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP front of the MCP server: OAuth endpoints, the
// bearer-protected MCP endpoint, health and metrics.
type Server struct {
	opts       Options
	handler    http.Handler
	httpServer *http.Server
}

// New builds the HTTP server. Nothing listens until Run or Serve is called.
func New(opts Options) *Server {
	if opts.MCPPath == "" {
		opts.MCPPath = oauth.DefaultMCPPath
	}

	s := &Server{opts: opts}
	s.handler = s.createMux()
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) createMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+HealthPath, s.handleHealth)

	if s.opts.Gatherer != nil {
		mux.Handle("GET "+MetricsPath, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	resourceMetadataURL := ""
	if s.opts.OAuth != nil {
		s.opts.OAuth.Register(mux)
		resourceMetadataURL = s.opts.OAuth.ResourceMetadataURL()
		logging.Info("HTTP", "Registered OAuth endpoints")
	}

	if s.opts.MCP != nil {
		mcpHandler := s.opts.MCP.StreamableHTTP(s.opts.MCPPath)
		mux.Handle(s.opts.MCPPath, RequireBearer(s.opts.Verifier, resourceMetadataURL, mcpHandler))
		logging.Info("HTTP", "Protected MCP endpoint %s with bearer authentication", s.opts.MCPPath)
	}

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.opts.MCP != nil {
		info := s.opts.MCP.Info()
		body["name"] = info.Name
		body["version"] = info.Version
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("HTTP", "Listening on %s", listener.Addr())
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logging.Info("HTTP", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}
