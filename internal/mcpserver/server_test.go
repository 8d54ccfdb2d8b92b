package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 15, 10, 30, 0, 123, time.FixedZone("CET", 3600))

func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	srv := New(Info{Name: "Newsroom MCP", Version: "1.0.0"}, WithClock(func() time.Time { return fixedNow }))

	c, err := client.NewInProcessClient(srv.MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "newsroom-test", Version: "1.0.0"}
	result, err := c.Initialize(ctx, initRequest)
	require.NoError(t, err)
	assert.Equal(t, "Newsroom MCP", result.ServerInfo.Name)

	return c
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestServer_ListsCapabilities(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	names := map[string]mcp.Tool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = tool
	}
	require.Contains(t, names, ToolEcho)
	require.Contains(t, names, ToolServerInfo)

	for _, name := range []string{ToolEcho, ToolServerInfo} {
		annotations := names[name].Annotations
		require.NotNil(t, annotations.ReadOnlyHint, name)
		assert.True(t, *annotations.ReadOnlyHint, name)
		require.NotNil(t, annotations.IdempotentHint, name)
		assert.True(t, *annotations.IdempotentHint, name)
	}
	assert.Contains(t, names[ToolEcho].InputSchema.Required, "message")

	resources, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	require.NoError(t, err)
	require.Len(t, resources.Resources, 1)
	assert.Equal(t, ResourceSampleDataURI, resources.Resources[0].URI)
	assert.Equal(t, ResourceSampleDataName, resources.Resources[0].Name)
	assert.Equal(t, "application/json", resources.Resources[0].MIMEType)

	prompts, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	require.NoError(t, err)
	require.Len(t, prompts.Prompts, 1)
	assert.Equal(t, PromptGreeting, prompts.Prompts[0].Name)
	require.Len(t, prompts.Prompts[0].Arguments, 2)
	assert.True(t, prompts.Prompts[0].Arguments[0].Required)
}

func TestServer_Echo(t *testing.T) {
	c := newTestClient(t)

	result := callTool(t, c, ToolEcho, map[string]any{"message": "Hello, MCP!"})
	assert.False(t, result.IsError)
	assert.Equal(t, "Echo: Hello, MCP!", resultText(t, result))

	result = callTool(t, c, ToolEcho, map[string]any{"message": ""})
	assert.Equal(t, "Echo: ", resultText(t, result))

	result = callTool(t, c, ToolEcho, map[string]any{})
	assert.True(t, result.IsError)
}

func TestServer_ServerInfo(t *testing.T) {
	c := newTestClient(t)

	result := callTool(t, c, ToolServerInfo, nil)
	require.False(t, result.IsError)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &info))
	assert.Equal(t, "Newsroom MCP", info["name"])
	assert.Equal(t, "1.0.0", info["version"])
	assert.Equal(t, "Azure OAuth (Microsoft Entra ID)", info["authentication"])
	assert.Equal(t, "HTTP", info["transport"])
	assert.Equal(t, "MCP (Model Context Protocol)", info["protocol"])
	assert.Equal(t, Framework, info["framework"])
	assert.Equal(t, map[string]any{
		"resources": []any{"sample_data"},
		"tools":     []any{"echo", "server_info"},
		"prompts":   []any{"greeting_template"},
	}, info["features"])
}

func TestServer_SampleData(t *testing.T) {
	c := newTestClient(t)

	req := mcp.ReadResourceRequest{}
	req.Params.URI = ResourceSampleDataURI
	result, err := c.ReadResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)

	contents, ok := mcp.AsTextResourceContents(result.Contents[0])
	require.True(t, ok)
	assert.Equal(t, "application/json", contents.MIMEType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &doc))
	assert.Equal(t, "This is sample data from an MCP resource", doc["message"])
	assert.Equal(t, "2024-01-15T09:30:00Z", doc["timestamp"])

	data := doc["data"].(map[string]any)
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, "Sample Resource", data["name"])
	assert.Equal(t, "demonstration", data["type"])
	assert.Len(t, data["features"], 3)

	metadata := doc["metadata"].(map[string]any)
	assert.Equal(t, "1.0.0", metadata["version"])
	assert.Equal(t, "Newsroom MCP Server", metadata["source"])
	assert.Equal(t, true, metadata["read_only"])
}

func TestServer_GreetingPrompt(t *testing.T) {
	c := newTestClient(t)

	tests := []struct {
		name string
		args map[string]string
		want string
	}{
		{
			name: "formal",
			args: map[string]string{"name": "Alice", "style": "formal"},
			want: "Generate a formal greeting for Alice.\nThe greeting should be professional and respectful.",
		},
		{
			name: "casual default",
			args: map[string]string{"name": "Bob"},
			want: "Generate a casual greeting for Bob.\nThe greeting should be friendly and warm.",
		},
		{
			name: "style is case insensitive",
			args: map[string]string{"name": "Carol", "style": "FORMAL"},
			want: "Generate a formal greeting for Carol.\nThe greeting should be professional and respectful.",
		},
		{
			name: "unknown style falls back to casual",
			args: map[string]string{"name": "Dan", "style": "pirate"},
			want: "Generate a casual greeting for Dan.\nThe greeting should be friendly and warm.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mcp.GetPromptRequest{}
			req.Params.Name = PromptGreeting
			req.Params.Arguments = tt.args

			result, err := c.GetPrompt(context.Background(), req)
			require.NoError(t, err)
			require.Len(t, result.Messages, 1)
			assert.Equal(t, mcp.RoleUser, result.Messages[0].Role)
			text, ok := mcp.AsTextContent(result.Messages[0].Content)
			require.True(t, ok)
			assert.Equal(t, tt.want, text.Text)
		})
	}

	t.Run("name required", func(t *testing.T) {
		req := mcp.GetPromptRequest{}
		req.Params.Name = PromptGreeting
		_, err := c.GetPrompt(context.Background(), req)
		assert.Error(t, err)
	})
}

func TestRenderGreeting(t *testing.T) {
	_, err := RenderGreeting("   ", StyleFormal)
	assert.Error(t, err)

	got, err := RenderGreeting("Eve", "")
	require.NoError(t, err)
	assert.Equal(t, "Generate a casual greeting for Eve.\nThe greeting should be friendly and warm.", got)
}
