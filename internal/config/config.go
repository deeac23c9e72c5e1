// ABOUTME: Configuration loading and parsing for parley and its development backend
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/parley/internal/chat"
)

// EnvConfigPath names the environment variable that overrides the config path
const EnvConfigPath = "PARLEY_CONFIG"

// MinSecretLength is the minimum JWT secret length accepted by the dev backend
const MinSecretLength = 32

// Config represents the complete parley configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Client    ClientConfig    `yaml:"client" toml:"client"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	DevServer DevServerConfig `yaml:"devserver" toml:"devserver"`
}

// ServerConfig locates the conversation API
type ServerConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// ClientConfig holds CLI defaults
type ClientConfig struct {
	DefaultLanguage string `yaml:"default_language" toml:"default_language"`
	DefaultModel    string `yaml:"default_model" toml:"default_model"`
	// TokenFile is where login stores the bearer token. Empty means the
	// default location next to the config file.
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DevServerConfig holds the development backend configuration
type DevServerConfig struct {
	HTTPAddr             string        `yaml:"http_addr" toml:"http_addr"`
	DatabasePath         string        `yaml:"database_path" toml:"database_path"`
	JWTSecret            string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL             time.Duration `yaml:"-" toml:"-"`
	IdempotencyTTL       time.Duration `yaml:"-" toml:"-"`
	IdempotencyCacheSize int           `yaml:"idempotency_cache_size" toml:"idempotency_cache_size"`
	Models               []ModelConfig `yaml:"models" toml:"models"`

	// Raw string values for unmarshaling
	TokenTTLRaw       string `yaml:"token_ttl" toml:"token_ttl"`
	IdempotencyTTLRaw string `yaml:"idempotency_ttl" toml:"idempotency_ttl"`
}

// ModelConfig seeds one entry of the dev backend's model catalogue
type ModelConfig struct {
	Name     string `yaml:"name" toml:"name"`
	English  bool   `yaml:"english" toml:"english"`
	Arabic   bool   `yaml:"arabic" toml:"arabic"`
	Inactive bool   `yaml:"inactive" toml:"inactive"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			BaseURL:    "http://localhost:8000",
			TimeoutRaw: "60s",
		},
		Client: ClientConfig{
			DefaultLanguage: string(chat.LanguageEnglish),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		DevServer: DevServerConfig{
			HTTPAddr:             "127.0.0.1:8000",
			DatabasePath:         "parley-dev.db",
			TokenTTLRaw:          "24h",
			IdempotencyTTLRaw:    "10m",
			IdempotencyCacheSize: 10000,
			Models: []ModelConfig{
				{Name: "echo", English: true, Arabic: true},
				{Name: "echo-en", English: true},
			},
		},
	}
	if err := parseDurations(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML. Values
// not present in the file keep their defaults. Environment variables in the
// format ${VAR_NAME} are expanded. Duration strings are parsed into
// time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads the file at path. When the file is missing and the
// path was not explicitly requested, Default() is returned instead.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ResolvePath picks the config file location. A non-empty flag value wins,
// then $PARLEY_CONFIG, then $XDG_CONFIG_HOME/parley/config.yaml, then
// ~/.config/parley/config.yaml. explicit reports whether the path came from
// the flag or the environment.
func ResolvePath(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	return filepath.Join(Dir(), "config.yaml"), false
}

// Dir returns parley's config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "parley")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "parley")
	}
	return filepath.Join(home, ".config", "parley")
}

// TokenPath returns where the CLI keeps its bearer token.
func (c *Config) TokenPath() string {
	if c.Client.TokenFile != "" {
		return c.Client.TokenFile
	}
	return filepath.Join(Dir(), "token")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url must be an http(s) URL, got %q", c.Server.BaseURL)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}

	if _, err := chat.ParseLanguage(c.Client.DefaultLanguage); err != nil {
		return fmt.Errorf("client.default_language: %w", err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.DevServer.TokenTTL <= 0 {
		return fmt.Errorf("devserver.token_ttl must be positive")
	}
	if c.DevServer.IdempotencyTTL <= 0 {
		return fmt.Errorf("devserver.idempotency_ttl must be positive")
	}
	if c.DevServer.IdempotencyCacheSize <= 0 {
		return fmt.Errorf("devserver.idempotency_cache_size must be positive")
	}
	seen := make(map[string]bool, len(c.DevServer.Models))
	for i, m := range c.DevServer.Models {
		if m.Name == "" {
			return fmt.Errorf("devserver.models[%d].name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("devserver.models[%d]: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = true
	}

	return nil
}

// ValidateDevServer checks the settings only the development backend needs.
func (c *Config) ValidateDevServer() error {
	if c.DevServer.HTTPAddr == "" {
		return fmt.Errorf("devserver.http_addr is required")
	}
	if c.DevServer.DatabasePath == "" {
		return fmt.Errorf("devserver.database_path is required")
	}
	if len(c.DevServer.JWTSecret) < MinSecretLength {
		return fmt.Errorf("devserver.jwt_secret must be at least %d bytes", MinSecretLength)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.timeout", cfg.Server.TimeoutRaw, &cfg.Server.Timeout},
		{"devserver.token_ttl", cfg.DevServer.TokenTTLRaw, &cfg.DevServer.TokenTTL},
		{"devserver.idempotency_ttl", cfg.DevServer.IdempotencyTTLRaw, &cfg.DevServer.IdempotencyTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
