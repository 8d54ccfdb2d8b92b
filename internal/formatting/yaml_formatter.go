package formatting

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{
		options: options,
	}
}

// FormatRecord writes the record's data as YAML.
func (f *YAMLFormatter) FormatRecord(record Record) error {
	return f.write(recordData(record))
}

// FormatCapabilities writes the capability summary as YAML.
func (f *YAMLFormatter) FormatCapabilities(caps Capabilities) error {
	return f.write(summarize(caps))
}

// SetOptions updates the formatter options
func (f *YAMLFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *YAMLFormatter) GetOptions() Options {
	return f.options
}

func (f *YAMLFormatter) write(data interface{}) error {
	yamlBytes, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	_, err = io.WriteString(f.options.writer(), string(yamlBytes))
	return err
}
