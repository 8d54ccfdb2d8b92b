package formatting

import (
	"fmt"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{
		options: options,
	}
}

// FormatRecord writes the record's data as indented JSON.
func (f *JSONFormatter) FormatRecord(record Record) error {
	_, err := fmt.Fprintln(f.options.writer(), PrettyJSON(recordData(record)))
	return err
}

// FormatCapabilities writes the capability summary as indented JSON.
func (f *JSONFormatter) FormatCapabilities(caps Capabilities) error {
	_, err := fmt.Fprintln(f.options.writer(), PrettyJSON(summarize(caps)))
	return err
}

// SetOptions updates the formatter options
func (f *JSONFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *JSONFormatter) GetOptions() Options {
	return f.options
}
