package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"newsroom/pkg/oauth"
)

// newValidator returns a validator that reports fields by their environment
// variable name and validates oauth.Secret as its underlying string.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("env"); name != "" {
			return name
		}
		return field.Name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if secret, ok := field.Interface().(oauth.Secret); ok {
			return secret.Value()
		}
		return nil
	}, oauth.Secret{})

	return v
}

// Validate checks every field constraint and the cross-field rules that
// struct tags cannot express. It returns ValidationErrors or nil.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if err := newValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate configuration: %w", err)
		}
		for _, fe := range fieldErrs {
			errs.Add(fe.Field(), describe(fe), redactedValue(fe))
		}
	}

	if err := validateHTTPSRequirement(cfg.Azure.Authority); err != nil {
		errs.Add(EnvAuthority, err.Error(), cfg.Azure.Authority)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// describe renders a validator failure as a sentence.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must be set"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s entries", fe.Param())
		}
		if fe.Kind() == reflect.Int {
			return fmt.Sprintf("must be at least %s", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters long", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "http_url":
		return "must start with http:// or https://"
	case "https_url":
		return "must contain only https:// URLs"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// redactedValue keeps credentials out of error values.
func redactedValue(fe validator.FieldError) interface{} {
	switch fe.Field() {
	case EnvClientSecret:
		return oauth.NewSecret("")
	default:
		return fe.Value()
	}
}

// validateHTTPSRequirement allows plain HTTP only for loopback hosts.
func validateHTTPSRequirement(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("must use https (plain http is only allowed for localhost)")
		}
		return nil
	default:
		return fmt.Errorf("invalid URL scheme %q, must be http (localhost only) or https", u.Scheme)
	}
}
