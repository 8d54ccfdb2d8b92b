package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	ToolEcho       = "echo"
	ToolServerInfo = "server_info"
)

// ServerInfo is the payload returned by the server_info tool.
type ServerInfo struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Authentication string   `json:"authentication"`
	Features       Features `json:"features"`
	Transport      string   `json:"transport"`
	Protocol       string   `json:"protocol"`
	Framework      string   `json:"framework"`
}

func (s *Server) registerTools() {
	echoTool := mcp.NewTool(ToolEcho,
		mcp.WithDescription("A simple echo tool that returns the input message"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The message to echo back"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	s.mcpServer.AddTool(echoTool, s.handleEcho)

	infoTool := mcp.NewTool(ToolServerInfo,
		mcp.WithDescription("Returns metadata about the MCP server and its capabilities"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	s.mcpServer.AddTool(infoTool, s.handleServerInfo)
}

func (s *Server) handleEcho(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required"), nil
	}
	return mcp.NewToolResultText(Echo(message)), nil
}

// Echo returns the echo tool's reply for message.
func Echo(message string) string {
	return "Echo: " + message
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(s.ServerInfo(), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format server info: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

// ServerInfo describes this server for the server_info tool.
func (s *Server) ServerInfo() ServerInfo {
	return ServerInfo{
		Name:           s.info.Name,
		Version:        s.info.Version,
		Authentication: "Azure OAuth (Microsoft Entra ID)",
		Features:       s.Features(),
		Transport:      "HTTP",
		Protocol:       "MCP (Model Context Protocol)",
		Framework:      Framework,
	}
}
