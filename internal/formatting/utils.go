package formatting

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// PrettyJSON renders v as two-space indented JSON, or with %v when v
// cannot be marshalled.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// FindTool returns the listed tool called name, or nil.
func FindTool(tools []mcp.Tool, name string) *mcp.Tool {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}

// FindResource returns the listed resource at uri, or nil.
func FindResource(resources []mcp.Resource, uri string) *mcp.Resource {
	for i := range resources {
		if resources[i].URI == uri {
			return &resources[i]
		}
	}
	return nil
}

// FindPrompt returns the listed prompt called name, or nil.
func FindPrompt(prompts []mcp.Prompt, name string) *mcp.Prompt {
	for i := range prompts {
		if prompts[i].Name == name {
			return &prompts[i]
		}
	}
	return nil
}

// Missing names the capabilities among tools, resources and prompts that
// caps does not list, as "tool echo", "resource sample://data" and so on.
func (caps Capabilities) Missing(tools, resources, prompts []string) []string {
	var missing []string
	for _, name := range tools {
		if FindTool(caps.Tools, name) == nil {
			missing = append(missing, "tool "+name)
		}
	}
	for _, uri := range resources {
		if FindResource(caps.Resources, uri) == nil {
			missing = append(missing, "resource "+uri)
		}
	}
	for _, name := range prompts {
		if FindPrompt(caps.Prompts, name) == nil {
			missing = append(missing, "prompt "+name)
		}
	}
	return missing
}

// recordData is what the structured formatters marshal for a record.
func recordData(record Record) any {
	if record.Data != nil {
		return record.Data
	}
	m := make(map[string]string, len(record.Fields))
	for _, f := range record.Fields {
		m[f.Key] = f.Value
	}
	return m
}

type capabilityEntry struct {
	Name        string   `json:"name" yaml:"name"`
	URI         string   `json:"uri,omitempty" yaml:"uri,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Arguments   []string `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

type capabilitySummary struct {
	Tools     []capabilityEntry `json:"tools" yaml:"tools"`
	Resources []capabilityEntry `json:"resources" yaml:"resources"`
	Prompts   []capabilityEntry `json:"prompts" yaml:"prompts"`
}

// summarize flattens capabilities into a stable, marshal-friendly shape.
func summarize(caps Capabilities) capabilitySummary {
	summary := capabilitySummary{
		Tools:     []capabilityEntry{},
		Resources: []capabilityEntry{},
		Prompts:   []capabilityEntry{},
	}
	for _, tool := range caps.Tools {
		summary.Tools = append(summary.Tools, capabilityEntry{
			Name:        tool.Name,
			Description: tool.Description,
			Arguments:   toolArguments(tool),
		})
	}
	for _, resource := range caps.Resources {
		summary.Resources = append(summary.Resources, capabilityEntry{
			Name:        resource.Name,
			URI:         resource.URI,
			Description: resource.Description,
		})
	}
	for _, prompt := range caps.Prompts {
		summary.Prompts = append(summary.Prompts, capabilityEntry{
			Name:        prompt.Name,
			Description: prompt.Description,
			Arguments:   promptArguments(prompt),
		})
	}
	return summary
}

// toolArguments lists input properties, required ones marked with "*".
func toolArguments(tool mcp.Tool) []string {
	required := make(map[string]bool, len(tool.InputSchema.Required))
	for _, name := range tool.InputSchema.Required {
		required[name] = true
	}
	var args []string
	for name := range tool.InputSchema.Properties {
		if required[name] {
			name += "*"
		}
		args = append(args, name)
	}
	sort.Strings(args)
	return args
}

func promptArguments(prompt mcp.Prompt) []string {
	var args []string
	for _, arg := range prompt.Arguments {
		name := arg.Name
		if arg.Required {
			name += "*"
		}
		args = append(args, name)
	}
	return args
}

// truncate collapses whitespace to single spaces and cuts s to limit runes,
// ending in "..." when shortened. limit is clamped to 4.
func truncate(s string, limit int) string {
	limit = max(limit, 4)
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
