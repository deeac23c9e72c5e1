// ABOUTME: Entry point for the parley development backend
// ABOUTME: Serves the conversation API from SQLite and manages its users and config

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/chat"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/devserver"
	"github.com/2389/parley/internal/logging"
	"github.com/2389/parley/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
                  _
 _ __   __ _ _ __| | ___ _   _
| '_ \ / _' | '__| |/ _ \ | | |
| |_) | (_| | |  | |  __/ |_| |
| .__/ \__,_|_|  |_|\___|\__, |
|_|      devserver       |___/
`

const usage = `Usage: parley-devserver <command>

Commands:
  init           Write a config file with a fresh JWT secret
  serve          Start the development backend
  adduser NAME   Create a user; the password is read from the terminal or stdin
  models         Seed and list the model catalogue
  health         Check a running backend`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("unknown command, run without arguments for usage")

// run dispatches one subcommand.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	configPath, _ := config.ResolvePath("")

	switch args[0] {
	case "init":
		return runInit(configPath, stdout)
	case "serve":
		return runServe(ctx, configPath, stdout, stderr)
	case "adduser":
		return runAddUser(ctx, configPath, args[1:], stdin, stdout, stderr)
	case "models":
		return runModels(ctx, configPath, stdout, stderr)
	case "health":
		return runHealth(ctx, configPath, stdout)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	}
	return fmt.Errorf("%w: %s", errUsage, args[0])
}

// loadConfig reads the config file and checks the backend settings.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateDevServer(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, configPath string, stdout, stderr io.Writer) error {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(stdout, banner)
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(stdout, "    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, stderr)

	green := color.New(color.FgGreen)
	green.Fprint(stdout, "    ▶ ")
	fmt.Fprintf(stdout, "Config:    %s\n", configPath)
	green.Fprint(stdout, "    ▶ ")
	fmt.Fprintf(stdout, "Database:  %s\n", cfg.DevServer.DatabasePath)
	green.Fprint(stdout, "    ▶ ")
	fmt.Fprintf(stdout, "HTTP:      %s\n", cfg.DevServer.HTTPAddr)
	green.Fprint(stdout, "    ▶ ")
	fmt.Fprintf(stdout, "Models:    %s\n\n", modelNames(cfg.DevServer.Models))

	st, err := store.NewSQLiteStore(cfg.DevServer.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	cache := dedupe.New(cfg.DevServer.IdempotencyTTL, cfg.DevServer.IdempotencyCacheSize)
	defer cache.Close()

	srv, err := devserver.New(devserver.Config{
		Store:    st,
		Secret:   []byte(cfg.DevServer.JWTSecret),
		TokenTTL: cfg.DevServer.TokenTTL,
		Dedupe:   cache,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := srv.SeedModels(ctx, catalogue(cfg.DevServer.Models)); err != nil {
		return err
	}

	logger.Info("starting parley-devserver",
		"config", configPath,
		"http_addr", cfg.DevServer.HTTPAddr,
		"database", cfg.DevServer.DatabasePath,
	)
	return srv.Run(ctx, cfg.DevServer.HTTPAddr)
}

// catalogue converts configured models into catalogue entries, keeping order.
func catalogue(models []config.ModelConfig) []chat.Model {
	out := make([]chat.Model, 0, len(models))
	for _, m := range models {
		out = append(out, chat.Model{
			Name:            m.Name,
			Active:          !m.Inactive,
			SupportsEnglish: m.English,
			SupportsArabic:  m.Arabic,
		})
	}
	return out
}

func modelNames(models []config.ModelConfig) string {
	if len(models) == 0 {
		return "(none)"
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

// runInit writes a starter config with a random JWT secret. An existing
// config is never overwritten.
func runInit(configPath string, stdout io.Writer) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)
	dbPath := filepath.Join(filepath.Dir(configPath), "devserver.db")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configContent := fmt.Sprintf(`# parley configuration
# Generated by parley-devserver init

server:
  base_url: "http://127.0.0.1:8000"

devserver:
  http_addr: "127.0.0.1:8000"
  database_path: %q
  jwt_secret: %q
  token_ttl: "24h"
  idempotency_ttl: "10m"
  models:
    - name: echo
      english: true
      arabic: true
    - name: echo-en
      english: true

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	color.New(color.FgGreen).Fprintf(stdout, "  ✓ Created config: %s\n", configPath)
	return nil
}

func runAddUser(ctx context.Context, configPath string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: parley-devserver adduser NAME")
	}
	username := strings.TrimSpace(args[0])
	if username == "" {
		return errors.New("username cannot be empty")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	password, err := readPassword(stdin, stderr)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DevServer.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	user, err := st.CreateUser(ctx, username, hash)
	if errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	color.New(color.FgGreen).Fprintf(stdout, "  ✓ Created user %s (id %d)\n", user.Username, user.ID)
	return nil
}

// readPassword prompts twice on a terminal, or reads one line from stdin.
func readPassword(stdin io.Reader, prompt io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		fmt.Fprint(prompt, "Repeat:   ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runModels(ctx context.Context, configPath string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DevServer.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	srv, err := devserver.New(devserver.Config{
		Store:  st,
		Secret: []byte(cfg.DevServer.JWTSecret),
		Logger: logging.New(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format}, stderr),
	})
	if err != nil {
		return err
	}
	if err := srv.SeedModels(ctx, catalogue(cfg.DevServer.Models)); err != nil {
		return err
	}

	models, err := st.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	for _, m := range models {
		var langs []string
		if m.SupportsEnglish {
			langs = append(langs, string(chat.LanguageEnglish))
		}
		if m.SupportsArabic {
			langs = append(langs, string(chat.LanguageArabic))
		}
		state := ""
		if !m.Active {
			state = " (inactive)"
		}
		fmt.Fprintf(stdout, "%-20s %s%s\n", m.Name, strings.Join(langs, ","), state)
	}
	return nil
}

func runHealth(ctx context.Context, configPath string, stdout io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.DevServer.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	fmt.Fprintln(stdout, "healthy")
	return nil
}
