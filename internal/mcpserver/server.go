package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"newsroom/internal/oauth"
	"newsroom/pkg/logging"
)

// Framework is reported by server_info.
const Framework = "mcp-go"

// Info identifies the server to MCP clients.
type Info struct {
	Name    string
	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the time source for timestamps in resource payloads.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server wraps an mcp-go server with the Newsroom tools, resources and
// prompts registered.
type Server struct {
	info      Info
	mcpServer *server.MCPServer
	now       func() time.Time
}

// New creates the MCP server and registers every capability.
func New(info Info, opts ...Option) *Server {
	s := &Server{
		info: info,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	hooks := &server.Hooks{}
	hooks.AddBeforeAny(func(ctx context.Context, id any, method mcp.MCPMethod, message any) {
		subject := "anonymous"
		if identity, ok := oauth.IdentityFromContext(ctx); ok {
			subject = logging.TruncateID(identity.Subject)
		}
		logging.Debug("MCP", "Request %v: %s (subject %s)", id, method, subject)
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logging.Warn("MCP", "Request %v (%s) failed: %v", id, method, err)
	})

	s.mcpServer = server.NewMCPServer(
		info.Name,
		info.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	logging.Info("MCP", "Tools registered: %s, %s", ToolEcho, ToolServerInfo)
	logging.Info("MCP", "Resources registered: %s", ResourceSampleDataName)
	logging.Info("MCP", "Prompts registered: %s", PromptGreeting)

	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Info returns the server identity.
func (s *Server) Info() Info {
	return s.info
}

// StreamableHTTP returns the streamable-HTTP transport for the server,
// mounted at endpointPath. The request context is passed through so handlers
// can see the caller identity stored by the bearer middleware.
func (s *Server) StreamableHTTP(endpointPath string) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath(endpointPath),
		server.WithStateLess(true),
		server.WithLogger(logging.MCPLogger{Subsystem: "MCP"}),
	)
}

// Features lists the registered capabilities by kind.
type Features struct {
	Resources []string `json:"resources"`
	Tools     []string `json:"tools"`
	Prompts   []string `json:"prompts"`
}

// Features returns the names of the registered capabilities.
func (s *Server) Features() Features {
	return Features{
		Resources: []string{ResourceSampleDataName},
		Tools:     []string{ToolEcho, ToolServerInfo},
		Prompts:   []string{PromptGreeting},
	}
}
