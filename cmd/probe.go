package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"newsroom/internal/formatting"
	"newsroom/internal/login"
	"newsroom/internal/mcpserver"
	pkgoauth "newsroom/pkg/oauth"
)

// EnvAccessToken supplies the probe bearer token when --token is not set.
const EnvAccessToken = "NEWSROOM_ACCESS_TOKEN"

// DefaultProbeTimeout bounds a whole probe run.
const DefaultProbeTimeout = 30 * time.Second

type probeOptions struct {
	url     string
	token   string
	message string
	name    string
	style   string
	timeout time.Duration
	output  string
}

// newProbeCmd creates the command that exercises a running server.
func newProbeCmd() *cobra.Command {
	opts := probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to a running server and exercise every capability",
		Long: `Connects to the /mcp endpoint of a running newsroom server with a bearer
token, lists its tools, resources and prompts, then calls echo and
server_info, reads sample://data and renders greeting_template.

The token is an access token issued by Microsoft Entra ID for this server,
for example the access_token returned by the proxy's /token endpoint.
Without --token or $NEWSROOM_ACCESS_TOKEN the token stored by
'newsroom login' is used, refreshed if it has expired.

Examples:
  newsroom login && newsroom probe
  newsroom probe --token "$TOKEN"
  NEWSROOM_ACCESS_TOKEN=... newsroom probe --url https://mcp.example.com/mcp -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := newFormatter(cmd, opts.output)
			if err != nil {
				return err
			}
			if opts.token == "" {
				opts.token = os.Getenv(EnvAccessToken)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()

			if opts.token == "" {
				if opts.token, err = storedToken(ctx, cmd, opts.url); err != nil {
					return err
				}
			}
			return runProbe(ctx, formatter, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", DefaultServerURL, "MCP endpoint URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer access token (default $"+EnvAccessToken+")")
	cmd.Flags().StringVar(&opts.message, "message", "Hello from newsroom probe", "Message sent to the echo tool")
	cmd.Flags().StringVar(&opts.name, "name", "Newsroom", "Name passed to greeting_template")
	cmd.Flags().StringVar(&opts.style, "style", mcpserver.StyleCasual, "Style passed to greeting_template")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", DefaultProbeTimeout, "Overall timeout")
	addOutputFlag(cmd, &opts.output)
	return cmd
}

// probeResult is the structured output of a probe run.
type probeResult struct {
	Server     string `json:"server" yaml:"server"`
	Protocol   string `json:"protocol" yaml:"protocol"`
	Echo       string `json:"echo" yaml:"echo"`
	ServerInfo string `json:"server_info" yaml:"server_info"`
	SampleData string `json:"sample_data_timestamp" yaml:"sample_data_timestamp"`
	Greeting   string `json:"greeting" yaml:"greeting"`
}

// storedToken returns the token saved by 'newsroom login' for serverURL.
func storedToken(ctx context.Context, cmd *cobra.Command, serverURL string) (string, error) {
	client, _, err := newLoginClient(cmd, loginOptions{}, nil)
	if err != nil {
		return "", err
	}
	stored, err := client.Token(ctx, serverURL)
	if errors.Is(err, login.ErrLoginRequired) {
		return "", fmt.Errorf("an access token is required: pass --token, set %s or run 'newsroom login --url %s' (%w)",
			EnvAccessToken, serverURL, err)
	}
	if err != nil {
		return "", err
	}
	return stored.AccessToken, nil
}

func runProbe(ctx context.Context, formatter formatting.Formatter, opts probeOptions) error {
	c, err := client.NewStreamableHttpClient(opts.url,
		transport.WithHTTPHeaders(map[string]string{"Authorization": "Bearer " + opts.token}))
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "newsroom-probe", Version: GetVersion()}
	initResult, err := c.Initialize(ctx, initRequest)
	if err != nil {
		return describeConnectError(ctx, opts, err)
	}

	caps, err := listCapabilities(ctx, c)
	if err != nil {
		return err
	}
	if err := formatter.FormatCapabilities(caps); err != nil {
		return err
	}
	if missing := caps.Missing(
		[]string{mcpserver.ToolEcho, mcpserver.ToolServerInfo},
		[]string{mcpserver.ResourceSampleDataURI},
		[]string{mcpserver.PromptGreeting},
	); len(missing) > 0 {
		return fmt.Errorf("server at %s does not list %s", opts.url, strings.Join(missing, ", "))
	}

	result := probeResult{
		Server:   initResult.ServerInfo.Name + " " + initResult.ServerInfo.Version,
		Protocol: initResult.ProtocolVersion,
	}

	if result.Echo, err = callToolText(ctx, c, mcpserver.ToolEcho, map[string]any{"message": opts.message}); err != nil {
		return err
	}

	infoText, err := callToolText(ctx, c, mcpserver.ToolServerInfo, nil)
	if err != nil {
		return err
	}
	var info mcpserver.ServerInfo
	if err := json.Unmarshal([]byte(infoText), &info); err != nil {
		return fmt.Errorf("server_info returned invalid JSON: %w", err)
	}
	result.ServerInfo = fmt.Sprintf("%s %s (%s, %s)", info.Name, info.Version, info.Authentication, info.Framework)

	if result.SampleData, err = readSampleData(ctx, c); err != nil {
		return err
	}

	if result.Greeting, err = getGreeting(ctx, c, opts.name, opts.style); err != nil {
		return err
	}

	return formatter.FormatRecord(formatting.Record{
		Title: "Probe results",
		Fields: []formatting.Field{
			{Key: "Server", Value: result.Server},
			{Key: "Protocol", Value: result.Protocol},
			{Key: mcpserver.ToolEcho, Value: result.Echo},
			{Key: mcpserver.ToolServerInfo, Value: result.ServerInfo},
			{Key: mcpserver.ResourceSampleDataURI, Value: result.SampleData},
			{Key: mcpserver.PromptGreeting, Value: strings.ReplaceAll(result.Greeting, "\n", " ")},
		},
		Data: result,
	})
}

func listCapabilities(ctx context.Context, c *client.Client) (formatting.Capabilities, error) {
	var caps formatting.Capabilities

	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return caps, fmt.Errorf("failed to list tools: %w", err)
	}
	resources, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return caps, fmt.Errorf("failed to list resources: %w", err)
	}
	prompts, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return caps, fmt.Errorf("failed to list prompts: %w", err)
	}

	caps.Tools = tools.Tools
	caps.Resources = resources.Resources
	caps.Prompts = prompts.Prompts
	return caps, nil
}

func callToolText(ctx context.Context, c *client.Client, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", name, err)
	}
	text := contentText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("%s returned an error: %s", name, text)
	}
	return text, nil
}

func readSampleData(ctx context.Context, c *client.Client) (string, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = mcpserver.ResourceSampleDataURI

	result, err := c.ReadResource(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", mcpserver.ResourceSampleDataURI, err)
	}
	for _, content := range result.Contents {
		text, ok := mcp.AsTextResourceContents(content)
		if !ok {
			continue
		}
		var data mcpserver.SampleData
		if err := json.Unmarshal([]byte(text.Text), &data); err != nil {
			return "", fmt.Errorf("%s returned invalid JSON: %w", mcpserver.ResourceSampleDataURI, err)
		}
		return data.Timestamp, nil
	}
	return "", fmt.Errorf("%s returned no text contents", mcpserver.ResourceSampleDataURI)
}

func getGreeting(ctx context.Context, c *client.Client, name, style string) (string, error) {
	req := mcp.GetPromptRequest{}
	req.Params.Name = mcpserver.PromptGreeting
	req.Params.Arguments = map[string]string{"name": name, "style": style}

	result, err := c.GetPrompt(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", mcpserver.PromptGreeting, err)
	}
	var parts []string
	for _, msg := range result.Messages {
		if text, ok := mcp.AsTextContent(msg.Content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func contentText(contents []mcp.Content) string {
	var parts []string
	for _, content := range contents {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// describeConnectError turns a failed initialize into an actionable error.
// When the server answers 401 its WWW-Authenticate challenge says where the
// client should log in.
func describeConnectError(ctx context.Context, opts probeOptions, cause error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.url, strings.NewReader(`{}`))
	if err != nil {
		return fmt.Errorf("failed to initialize MCP session: %w", cause)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+opts.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP session: %w", cause)
	}
	defer resp.Body.Close()

	challenge := pkgoauth.ParseWWWAuthenticateFromResponse(resp)
	if challenge == nil || !challenge.IsOAuthChallenge() {
		return fmt.Errorf("failed to initialize MCP session: %w", cause)
	}
	return errors.Join(
		fmt.Errorf("server rejected the access token (%s: %s); log in via the authorization server listed at %s",
			challenge.Error, challenge.ErrorDescription, challenge.ResourceMetadataURL),
		cause,
	)
}
