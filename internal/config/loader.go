package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"

	"newsroom/pkg/logging"
	"newsroom/pkg/oauth"
)

// LookupFunc resolves an environment variable. os.LookupEnv is the default.
type LookupFunc func(key string) (string, bool)

// Loader builds Config values from the process environment and optional
// dotenv files. A Loader holds no configuration itself; every call returns a
// fresh *Config.
type Loader struct {
	envFiles []string
	lookup   LookupFunc
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvFiles replaces the dotenv files consulted by the loader. Files that
// do not exist are skipped.
func WithEnvFiles(files ...string) LoaderOption {
	return func(l *Loader) {
		l.envFiles = files
	}
}

// WithLookup replaces the environment lookup, mainly for tests.
func WithLookup(lookup LookupFunc) LoaderOption {
	return func(l *Loader) {
		l.lookup = lookup
	}
}

// NewLoader creates a loader reading the process environment and ./.env.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		envFiles: []string{DefaultEnvFile},
		lookup:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnvFiles returns the dotenv files the loader consults.
func (l *Loader) EnvFiles() []string {
	return append([]string(nil), l.envFiles...)
}

// Load reads the configuration. Process environment variables take
// precedence over values from dotenv files.
func (l *Loader) Load() (*Config, error) {
	return l.load(false)
}

// Reload re-reads the dotenv files and returns a new Config in which dotenv
// values take precedence over the process environment. The process
// environment itself is not modified.
func (l *Loader) Reload() (*Config, error) {
	return l.load(true)
}

func (l *Loader) load(override bool) (*Config, error) {
	files, fileValues, err := l.readEnvFiles()
	if err != nil {
		return nil, err
	}

	get := func(key string) string {
		if override {
			if v, ok := fileValues[key]; ok {
				return strings.TrimSpace(v)
			}
		}
		if v, ok := l.lookup(key); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(fileValues[key])
	}

	cfg := &Config{EnvFiles: files}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply configuration defaults: %w", err)
	}

	var missing []string
	for _, key := range RequiredEnvVars {
		if get(key) == "" {
			missing = append(missing, key)
		}
	}

	cfg.Azure.ClientID = get(EnvClientID)
	cfg.Azure.ClientSecret = oauth.NewSecret(get(EnvClientSecret))
	cfg.Azure.TenantID = get(EnvTenantID)
	setString(&cfg.Azure.BaseURL, get(EnvBaseURL))
	setString(&cfg.Azure.RedirectPath, get(EnvRedirectPath))
	setString(&cfg.Azure.Authority, get(EnvAuthority))
	if raw := get(EnvRequiredScopes); raw != "" {
		cfg.Azure.RequiredScopes = ParseScopes(raw)
	}
	cfg.Azure.TimeoutSeconds = parseIntOrDefault(EnvTimeoutSeconds, get(EnvTimeoutSeconds), DefaultTimeoutSeconds)
	cfg.Azure.UsePKCE = parseBoolOrDefault(EnvUsePKCE, get(EnvUsePKCE), false)
	if raw := get(EnvAllowedRedirectURIs); raw != "" {
		cfg.Azure.AllowedRedirectURIs = ParseScopes(raw)
	}

	setString(&cfg.Server.Name, get(EnvServerName))
	setString(&cfg.Server.Version, get(EnvServerVersion))
	setString(&cfg.Server.Host, get(EnvServerHost))
	cfg.Server.Port = parseIntOrDefault(EnvServerPort, get(EnvServerPort), DefaultServerPort)
	if raw := get(EnvLogLevel); raw != "" {
		cfg.Server.LogLevel = strings.ToUpper(raw)
	}
	if raw := get(EnvLogFormat); raw != "" {
		cfg.Server.LogFormat = strings.ToLower(raw)
	}

	if len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}

	if err := Validate(cfg); err != nil {
		invalid, ok := err.(ValidationErrors)
		if !ok {
			return nil, err
		}
		return nil, &ConfigurationError{Invalid: invalid}
	}

	logging.Debug("Config", "Loaded configuration for tenant %s (env files: %v, override: %t)",
		logging.TruncateID(cfg.Azure.TenantID), files, override)

	return cfg, nil
}

// readEnvFiles parses the existing dotenv files. Later files win over
// earlier ones.
func (l *Loader) readEnvFiles() ([]string, map[string]string, error) {
	values := make(map[string]string)
	var loaded []string

	for _, file := range l.envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		fileValues, err := godotenv.Read(file)
		if err != nil {
			return nil, nil, &ConfigurationError{Invalid: ValidationErrors{{
				Field:   file,
				Message: fmt.Sprintf("failed to parse dotenv file: %v", err),
			}}}
		}
		for k, v := range fileValues {
			values[k] = v
		}
		loaded = append(loaded, file)
	}

	return loaded, values, nil
}

// ParseScopes splits a comma-separated list such as the scopes or the
// allowed redirect URIs, trimming whitespace and dropping empty entries.
func ParseScopes(raw string) []string {
	var scopes []string
	for _, scope := range strings.Split(raw, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// parseIntOrDefault falls back to def with a warning when raw is not an
// integer. Range checks happen later in Validate.
func parseIntOrDefault(key, raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logging.Warn("Config", "Invalid %s value %q, using default %d", key, raw, def)
		return def
	}
	return v
}

func parseBoolOrDefault(key, raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logging.Warn("Config", "Invalid %s value %q, using default %t", key, raw, def)
		return def
	}
	return v
}
