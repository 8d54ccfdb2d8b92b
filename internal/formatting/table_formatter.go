package formatting

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// maxDescriptionWidth keeps capability tables readable in a terminal.
const maxDescriptionWidth = 60

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatRecord renders the record as a two-column key/value table.
func (f *TableFormatter) FormatRecord(record Record) error {
	t := f.createTable()
	if record.Title != "" {
		t.SetTitle(record.Title)
	}
	t.AppendHeader(table.Row{f.header("KEY"), f.header("VALUE")})
	for _, field := range record.Fields {
		t.AppendRow(table.Row{f.key(field.Key), field.Value})
	}
	t.Render()
	return nil
}

// FormatCapabilities renders tools, resources and prompts in one table.
func (f *TableFormatter) FormatCapabilities(caps Capabilities) error {
	summary := summarize(caps)
	total := len(summary.Tools) + len(summary.Resources) + len(summary.Prompts)
	if total == 0 {
		_, err := fmt.Fprintln(f.options.writer(), f.colorize(text.FgYellow, "No capabilities found"))
		return err
	}

	t := f.createTable()
	t.AppendHeader(table.Row{f.header("TYPE"), f.header("NAME"), f.header("ARGUMENTS"), f.header("DESCRIPTION")})
	add := func(kind string, entries []capabilityEntry) {
		for _, e := range entries {
			name := e.Name
			if e.URI != "" {
				name = fmt.Sprintf("%s (%s)", e.Name, e.URI)
			}
			t.AppendRow(table.Row{kind, f.key(name), strings.Join(e.Arguments, ", "), truncate(e.Description, maxDescriptionWidth)})
		}
	}
	add("tool", summary.Tools)
	add("resource", summary.Resources)
	add("prompt", summary.Prompts)
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d total", total), "", ""})
	t.Render()
	return nil
}

// SetOptions updates the formatter options
func (f *TableFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.writer())
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) header(s string) string {
	return f.colorize(text.FgHiCyan, s)
}

func (f *TableFormatter) key(s string) string {
	return f.colorize(text.FgHiCyan, s)
}

func (f *TableFormatter) colorize(color text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return color.Sprint(s)
}
