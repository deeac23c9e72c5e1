// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, durations and path resolution

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.DevServer.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.DevServer.IdempotencyTTL)
	assert.Equal(t, "en", cfg.Client.DefaultLanguage)
	assert.Len(t, cfg.DevServer.Models, 2)
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_PARLEY_SECRET", "a-very-long-secret-for-testing-purposes")
	path := writeConfig(t, "config.yaml", `
server:
  base_url: "https://chat.example.com"
  timeout: "15s"

client:
  default_language: "ar"
  default_model: "echo"

logging:
  level: "debug"
  format: "json"

devserver:
  jwt_secret: "${TEST_PARLEY_SECRET}"
  token_ttl: "1h"
  models:
    - name: "solo"
      arabic: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "ar", cfg.Client.DefaultLanguage)
	assert.Equal(t, "echo", cfg.Client.DefaultModel)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "a-very-long-secret-for-testing-purposes", cfg.DevServer.JWTSecret)
	assert.Equal(t, time.Hour, cfg.DevServer.TokenTTL)
	require.Len(t, cfg.DevServer.Models, 1)
	assert.Equal(t, ModelConfig{Name: "solo", Arabic: true}, cfg.DevServer.Models[0])

	// Untouched sections keep defaults
	assert.Equal(t, "127.0.0.1:8000", cfg.DevServer.HTTPAddr)
	assert.Equal(t, 10*time.Minute, cfg.DevServer.IdempotencyTTL)
	require.NoError(t, cfg.ValidateDevServer())
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
base_url = "http://10.0.0.5:9000"
timeout = "5s"

[client]
default_language = "en"
token_file = "/tmp/parley-token"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:9000", cfg.Server.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "/tmp/parley-token", cfg.TokenPath())
}

func TestLoad_EmptyFileGivesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "server:\n  timeout: \"soon\"\n", "parsing durations"},
		{"bad url", "server:\n  base_url: \"localhost\"\n", "server.base_url"},
		{"bad language", "client:\n  default_language: \"fr\"\n", "client.default_language"},
		{"bad level", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad format", "logging:\n  format: \"xml\"\n", "logging.format"},
		{"zero cache", "devserver:\n  idempotency_cache_size: 0\n", "idempotency_cache_size"},
		{"duplicate model", "devserver:\n  models:\n    - name: a\n    - name: a\n", "duplicate name"},
		{"unnamed model", "devserver:\n  models:\n    - english: true\n", "name is required"},
		{"bad yaml", "server: [unclosed\n", "parsing config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDevServer_ShortSecret(t *testing.T) {
	cfg := Default()
	cfg.DevServer.JWTSecret = "short"
	err := cfg.ValidateDevServer()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadOrDefault(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := LoadOrDefault(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = LoadOrDefault(missing, true)
	assert.Error(t, err, "an explicitly requested file must exist")
}

func TestResolvePath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv(EnvConfigPath, "")

	path, explicit := ResolvePath("")
	assert.Equal(t, filepath.Join(xdg, "parley", "config.yaml"), path)
	assert.False(t, explicit)
	assert.Equal(t, filepath.Join(xdg, "parley", "token"), Default().TokenPath())

	t.Setenv(EnvConfigPath, "/etc/parley.yaml")
	path, explicit = ResolvePath("")
	assert.Equal(t, "/etc/parley.yaml", path)
	assert.True(t, explicit)

	path, explicit = ResolvePath("./local.toml")
	assert.Equal(t, "./local.toml", path)
	assert.True(t, explicit)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PARLEY_TEST_A", "alpha")
	assert.Equal(t, "x alpha y", expandEnvVars("x ${PARLEY_TEST_A} y"))
	assert.Equal(t, "x  y", expandEnvVars("x ${PARLEY_TEST_UNSET_VAR} y"))
	assert.Equal(t, "no vars", expandEnvVars("no vars"))
}
