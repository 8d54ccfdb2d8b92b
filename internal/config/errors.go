package config

import (
	"fmt"
	"strings"
)

// ConfigurationError is returned when the configuration cannot be used. It
// names every missing required variable and every invalid value so the
// operator can fix them all in one pass.
type ConfigurationError struct {
	// Missing lists required environment variables that are unset or blank.
	Missing []string
	// Invalid lists values that were present but failed validation.
	Invalid ValidationErrors
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	var parts []string
	if len(ce.Missing) > 0 {
		parts = append(parts, fmt.Sprintf(
			"missing required Azure OAuth environment variables: %s; set them in the environment or in a %s file",
			strings.Join(ce.Missing, ", "), DefaultEnvFile))
	}
	if len(ce.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+ce.Invalid.messages())
	}
	if len(parts) == 0 {
		return "invalid configuration"
	}
	return strings.Join(parts, "; ")
}

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	return "validation failed: " + ve.messages()
}

func (ve ValidationErrors) messages() string {
	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}
