// ABOUTME: Configuration loading and parsing for gatehouse
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete gatehouse configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Secure   SecureConfig   `yaml:"secure" toml:"secure"`
	Trust    TrustConfig    `yaml:"trust" toml:"trust"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SecureConfig holds the gate's signing and cookie configuration.
type SecureConfig struct {
	// Secret signs remember-me tokens. Minimum 32 bytes.
	Secret string `yaml:"secret" toml:"secret"`

	// RememberCookie overrides the remember-me cookie name.
	RememberCookie string `yaml:"remember_cookie" toml:"remember_cookie"`

	// LoginPath is the interactive login entry point.
	LoginPath string `yaml:"login_path" toml:"login_path"`

	// LoginNotice is an optional Markdown file rendered on the login page.
	LoginNotice string `yaml:"login_notice" toml:"login_notice"`

	// SessionCookie overrides the session cookie name.
	SessionCookie string `yaml:"session_cookie" toml:"session_cookie"`

	RememberFor time.Duration `yaml:"-" toml:"-"`
	SessionTTL  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RememberForRaw string `yaml:"remember_for" toml:"remember_for"`
	SessionTTLRaw  string `yaml:"session_ttl" toml:"session_ttl"`
}

// TrustConfig holds trust-delegation configuration.
type TrustConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Secret is the HS256 key shared with the external identity authority.
	Secret string `yaml:"secret" toml:"secret"`

	// Header carries the assertion token.
	Header string `yaml:"header" toml:"header"`

	// Issuer, when set, must match the assertion's iss claim.
	Issuer string `yaml:"issuer" toml:"issuer"`

	ReplayTTL time.Duration `yaml:"-" toml:"-"`

	ReplayTTLRaw string `yaml:"replay_ttl" toml:"replay_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, and duration
// strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if filepath.Ext(path) == ".toml" {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.Secure.Secret) < 32 {
		return fmt.Errorf("secure.secret must be at least 32 bytes")
	}
	if c.Trust.Enabled && len(c.Trust.Secret) < 32 {
		return fmt.Errorf("trust.secret must be at least 32 bytes when trust is enabled")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Secure.RememberForRaw != "" {
		cfg.Secure.RememberFor, err = time.ParseDuration(cfg.Secure.RememberForRaw)
		if err != nil {
			return fmt.Errorf("parsing remember_for %q: %w", cfg.Secure.RememberForRaw, err)
		}
	}

	if cfg.Secure.SessionTTLRaw != "" {
		cfg.Secure.SessionTTL, err = time.ParseDuration(cfg.Secure.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.Secure.SessionTTLRaw, err)
		}
	}

	if cfg.Trust.ReplayTTLRaw != "" {
		cfg.Trust.ReplayTTL, err = time.ParseDuration(cfg.Trust.ReplayTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing replay_ttl %q: %w", cfg.Trust.ReplayTTLRaw, err)
		}
	}

	return nil
}
