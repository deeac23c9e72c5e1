// ABOUTME: Entry point for the parley command-line client
// ABOUTME: Builds the cobra command tree and maps engine errors to readable output

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/logging"
	"github.com/2389/parley/internal/remote"
)

// Version is set at build time.
var version = "dev"

var (
	errNotLoggedIn    = errors.New("not logged in, run 'parley login'")
	errSessionExpired = errors.New("session expired, run 'parley login'")
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries state shared by every command once the root pre-run has
// resolved configuration.
type app struct {
	configFlag   string
	serverFlag   string
	logLevelFlag string

	cfg    *config.Config
	logger *slog.Logger
	client *remote.Client
	now    func() time.Time
}

func newRootCmd() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:     "parley",
		Short:   "Bilingual assistant conversations from the terminal",
		Version: version,
		Long: `parley keeps a local view of your assistant conversations in sync with the
server: list, open, create, rename, archive and delete conversations and send
messages in English or Arabic.`,
		Example: `  # Authenticate
  $ parley login -u amal

  # Start a new conversation by sending to it
  $ parley send "What is the capital of Oman?"

  # Interactive session
  $ parley chat`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.configFlag, "config", "", "config file (default $PARLEY_CONFIG or ~/.config/parley/config.yaml)")
	root.PersistentFlags().StringVar(&a.serverFlag, "server", "", "server base URL, overrides server.base_url")
	root.PersistentFlags().StringVar(&a.logLevelFlag, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.chatsCmd(),
		a.openCmd(),
		a.newCmd(),
		a.sendCmd(),
		a.renameCmd(),
		a.archiveCmd(),
		a.deleteCmd(),
		a.statsCmd(),
		a.modelsCmd(),
		a.summaryCmd(),
		a.chatCmd(),
	)
	return root
}

// setup loads configuration and builds the logger and API client.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path, explicit := config.ResolvePath(a.configFlag)
	cfg, err := config.LoadOrDefault(path, explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.serverFlag != "" {
		cfg.Server.BaseURL = a.serverFlag
	}
	if a.logLevelFlag != "" {
		cfg.Logging.Level = a.logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.Logging, cmd.ErrOrStderr())
	a.client = remote.New(cfg.Server.BaseURL,
		remote.WithTimeout(cfg.Server.Timeout),
		remote.WithLogger(a.logger),
	)
	a.logger.Debug("config resolved", "path", path, "base_url", cfg.Server.BaseURL)
	return nil
}

// session reads the stored token.
func (a *app) session() (*auth.Session, error) {
	data, err := os.ReadFile(a.cfg.TokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	sess, err := auth.NewSession(string(data))
	if err != nil {
		return nil, fmt.Errorf("stored token: %w", err)
	}
	if sess.Expired(a.now()) {
		return nil, errSessionExpired
	}
	return sess, nil
}

// engine returns a sync engine bound to the stored session with the
// conversation list and model catalogue loaded.
func (a *app) engine(ctx context.Context) (*conversation.Engine, error) {
	sess, err := a.session()
	if err != nil {
		return nil, err
	}
	eng := conversation.New(a.client, a.logger)
	if err := eng.BindSession(ctx, sess); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return id, nil
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	var opErr *conversation.OperationError
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		return "the server rejected your session, run 'parley login'"
	case errors.As(err, &opErr):
		var apiErr *remote.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" && apiErr.Message != opErr.Message {
			return opErr.Message + ": " + apiErr.Message
		}
		return opErr.Message
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func printError(w io.Writer, err error) {
	color.New(color.FgRed, color.Bold).Fprint(w, "✗ ")
	fmt.Fprintln(w, describe(err))
}

func printSuccess(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen, color.Bold).Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}
