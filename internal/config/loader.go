package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/leasehook/internal/auth"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEASEHOOK_"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a YAML file.
//
// Order: .env files beside the config (never overriding the real
// environment), ${VAR} interpolation, YAML over Defaults(), LEASEHOOK_*
// overrides, .checksums verification, validation.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	if err := loadDotEnv(filepath.Dir(absPath)); err != nil {
		return nil, err
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays LEASEHOOK_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}
	return nil
}

// loadDotEnv loads .env and .env.local from dir when present.
func loadDotEnv(dir string) error {
	var existing []string
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, ErrNoChecksums) {
		return nil
	}
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: leasehook config lock --config %s", name, dir, path)
	}
	if err := VerifyFileHash(path, expected); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: leasehook config lock --config %s", path, err, path)
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Webhooks.Listen == "" {
		return fmt.Errorf("webhooks.listen is required")
	}
	if cfg.Webhooks.MaxBodyBytes <= 0 {
		return fmt.Errorf("webhooks.max_body_bytes must be positive")
	}
	if len(cfg.Webhooks.Vendors) == 0 {
		return fmt.Errorf("webhooks.vendors must name at least one vendor path")
	}

	if cfg.Verification.Tolerance <= 0 {
		return fmt.Errorf("verification.tolerance must be positive")
	}

	if cfg.API.Enabled {
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth requires api_key or tokens when the API is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d].token", i)
			if tok.Token == "" {
				return fmt.Errorf("%s is required", field)
			}
			if err := unresolved(field, tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
			if _, err := auth.ParseScopes(tok.Scopes); err != nil {
				return fmt.Errorf("api.auth.tokens[%d].scopes: %w", i, err)
			}
		}
	}

	switch cfg.Queue.Delivery {
	case "inprocess":
	case "http":
		if _, err := url.ParseRequestURI(cfg.Queue.PushURL); err != nil {
			return fmt.Errorf("queue.push_url must be an absolute URL when delivery is http: %w", err)
		}
		if err := unresolved("queue.push_token", cfg.Queue.PushToken); err != nil {
			return err
		}
	default:
		return fmt.Errorf("queue.delivery must be inprocess or http (got %q)", cfg.Queue.Delivery)
	}
	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1")
	}
	if cfg.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive")
	}

	if cfg.Payload.MaxChunkBytes <= 0 {
		return fmt.Errorf("payload.max_chunk_bytes must be positive")
	}
	if err := unresolved("payload.secret", cfg.Payload.Secret); err != nil {
		return err
	}

	if cfg.Vendor.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.Vendor.BaseURL); err != nil {
			return fmt.Errorf("vendor.base_url: %w", err)
		}
	}
	if cfg.Vendor.RateLimit <= 0 {
		return fmt.Errorf("vendor.rate_limit must be positive")
	}
	if cfg.Automation.UploadConcurrency < 1 {
		return fmt.Errorf("automation.upload_concurrency must be at least 1")
	}
	return nil
}
