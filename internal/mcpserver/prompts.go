package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/mark3labs/mcp-go/mcp"
)

const PromptGreeting = "greeting_template"

// Greeting styles. Anything other than formal renders as casual.
const (
	StyleFormal = "formal"
	StyleCasual = "casual"
)

var greetingTemplate = template.Must(template.New(PromptGreeting).Funcs(sprig.TxtFuncMap()).Parse(
	`{{- if eq (lower .Style) "formal" -}}
Generate a formal greeting for {{ .Name }}.
The greeting should be professional and respectful.
{{- else -}}
Generate a casual greeting for {{ .Name }}.
The greeting should be friendly and warm.
{{- end -}}`))

func (s *Server) registerPrompts() {
	greeting := mcp.NewPrompt(PromptGreeting,
		mcp.WithPromptDescription("A simple prompt template for generating personalized greetings"),
		mcp.WithArgument("name",
			mcp.ArgumentDescription("The name of the person to greet"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("style",
			mcp.ArgumentDescription(`The greeting style: "formal" or "casual" (default "casual")`),
		),
	)
	s.mcpServer.AddPrompt(greeting, s.handleGreeting)
}

func (s *Server) handleGreeting(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Arguments["name"]
	style := request.Params.Arguments["style"]

	text, err := RenderGreeting(name, style)
	if err != nil {
		return nil, err
	}
	return mcp.NewGetPromptResult(
		"A simple prompt template for generating personalized greetings",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		},
	), nil
}

// RenderGreeting returns the greeting prompt for name in style.
func RenderGreeting(name, style string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name argument is required")
	}
	if style == "" {
		style = StyleCasual
	}

	var b strings.Builder
	if err := greetingTemplate.Execute(&b, map[string]string{"Name": name, "Style": style}); err != nil {
		return "", fmt.Errorf("failed to render greeting: %w", err)
	}
	return b.String(), nil
}
