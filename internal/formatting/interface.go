// Package formatting renders CLI output as a table, JSON or YAML.
//
// Commands describe what they print as a Record (a titled list of fields
// plus an optional structured value) or as Capabilities (the tools,
// resources and prompts an MCP server advertises). The formatter chosen by
// the --output flag decides how that description is rendered.
package formatting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected table, json or yaml)", s)
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	// Output receives the rendered text. Defaults to os.Stdout.
	Output io.Writer
	// Color enables ANSI colors in table output.
	Color bool
}

func (o Options) writer() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

// Field is one row of a Record.
type Field struct {
	Key   string
	Value string
}

// Record is a single titled object.
type Record struct {
	Title  string
	Fields []Field
	// Data is marshalled by the JSON and YAML formatters. When nil they
	// marshal Fields as a key/value map instead.
	Data any
}

// Capabilities is what an MCP server advertises.
type Capabilities struct {
	Tools     []mcp.Tool
	Resources []mcp.Resource
	Prompts   []mcp.Prompt
}

// Formatter renders records and capability listings.
type Formatter interface {
	FormatRecord(record Record) error
	FormatCapabilities(caps Capabilities) error

	// Configuration
	SetOptions(options Options)
	GetOptions() Options
}

// Factory creates formatters for different output formats
type Factory interface {
	CreateFormatter(options Options) Formatter
}

// NewFactory creates a new formatter factory
func NewFactory() Factory {
	return &factory{}
}

// factory implements the Factory interface
type factory struct{}

// CreateFormatter creates the appropriate formatter based on options
func (f *factory) CreateFormatter(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	case FormatTable:
		fallthrough
	default:
		return NewTableFormatter(options)
	}
}
