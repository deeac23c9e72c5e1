// ABOUTME: One-shot parley subcommands: login, listing, conversation edits, sending and summaries
// ABOUTME: Each command binds a fresh engine to the stored session and renders the result

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/2389/parley/internal/chat"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/render"
)

var errInvalidCredentials = errors.New("invalid username or password")

func (a *app) loginCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store a session token",
		Long: `Log in with a username and password. The password is read from the
terminal without echo, or as the first line of stdin when stdin is not a terminal.`,
		Example: `  $ parley login -u amal
  $ echo "$PASSWORD" | parley login -u amal`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			resp, err := a.client.Login(cmd.Context(), username, password)
			if errors.Is(err, remote.ErrUnauthorized) {
				return errInvalidCredentials
			}
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := a.saveToken(resp.Access); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Logged in as %s", resp.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account name")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := os.Remove(a.cfg.TokenPath())
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("removing token: %w", err)
			}
			printSuccess(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

// readPassword prompts on a terminal or reads one line from in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given")
	}
	return line, nil
}

func (a *app) saveToken(token string) error {
	path := a.cfg.TokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

func (a *app) chatsCmd() *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			render.ConversationList(cmd.OutOrStdout(), eng.Conversations(), render.ListOptions{IncludeArchived: archived})
			return nil
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived conversations")
	return cmd
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open ID",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.LoadConversation(cmd.Context(), id); err != nil {
				return err
			}
			render.Transcript(cmd.OutOrStdout(), eng.Active())
			return nil
		},
	}
}

func (a *app) newCmd() *cobra.Command {
	var lang, title string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty conversation",
		Example: `  $ parley new --lang ar --title "رحلة"
  $ parley new`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			language, err := a.language(lang)
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			created, err := eng.CreateConversation(cmd.Context(), language, title)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Created conversation #%d", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "conversation language, en or ar (default from config)")
	cmd.Flags().StringVar(&title, "title", "", "conversation title")
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	var chatID int64
	var lang, model string
	cmd := &cobra.Command{
		Use:   "send TEXT...",
		Short: "Send a message and print the reply",
		Long: `Send a message to a conversation. Without --chat a new conversation is
created in the chosen language and titled from the message.`,
		Example: `  $ parley send "hello"
  $ parley send --chat 12 --model echo "and another thing"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatID < 0 {
				return fmt.Errorf("invalid conversation id %d", chatID)
			}
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			language, err := a.sendLanguage(eng, chatID, lang)
			if err != nil {
				return err
			}
			if model == "" {
				model = a.defaultModel(eng, language)
			}

			res, err := eng.SendMessage(cmd.Context(), chatID, strings.Join(args, " "), language, model)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Created {
				printSuccess(out, "Created conversation #%d", res.ConversationID)
			}
			render.Message(out, res.AssistantMessage)
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "conversation id (omit to start a new one)")
	cmd.Flags().StringVar(&lang, "lang", "", "message language, en or ar (default: the conversation's)")
	cmd.Flags().StringVar(&model, "model", "", "model name (default from config or server)")
	return cmd
}

func (a *app) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID TITLE...",
		Short: "Change a conversation's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			title := strings.Join(args[1:], " ")
			if err := eng.RenameConversation(cmd.Context(), id, title); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Renamed #%d to %q", id, strings.TrimSpace(title))
			return nil
		},
	}
}

func (a *app) archiveCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "archive ID",
		Short: "Archive or unarchive a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.ArchiveConversation(cmd.Context(), id, !undo); err != nil {
				return err
			}
			if undo {
				printSuccess(cmd.OutOrStdout(), "Unarchived #%d", id)
			} else {
				printSuccess(cmd.OutOrStdout(), "Archived #%d", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "unarchive instead")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.DeleteConversation(cmd.Context(), id); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Deleted #%d", id)
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			stats, err := eng.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			render.Statistics(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func (a *app) modelsCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			models := eng.Models()
			if lang != "" {
				language, err := chat.ParseLanguage(lang)
				if err != nil {
					return err
				}
				models = eng.ModelsFor(language)
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models available.")
				return nil
			}
			render.Models(cmd.OutOrStdout(), models)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "only models supporting this language")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	var (
		generate bool
		lang     string
	)
	cmd := &cobra.Command{
		Use:   "summary [ID]",
		Short: "Show or generate profile summaries of your conversations",
		Example: `  $ parley summary
  $ parley summary 3
  $ parley summary --generate --lang ar`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if generate && len(args) > 0 {
				return errors.New("--generate takes no summary id")
			}
			sess, err := a.session()
			if err != nil {
				return err
			}
			ctx, out := cmd.Context(), cmd.OutOrStdout()

			switch {
			case generate:
				language, err := a.language(lang)
				if err != nil {
					return err
				}
				sum, err := a.client.GenerateSummary(ctx, sess, language)
				if err != nil {
					return fmt.Errorf("generating summary: %w", err)
				}
				printSuccess(out, "Summary #%d generated", sum.ID)
				render.UserSummary(out, sum)
			case len(args) == 1:
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				sum, err := a.client.GetSummary(ctx, sess, id)
				if err != nil {
					return fmt.Errorf("loading summary: %w", err)
				}
				render.UserSummary(out, sum)
			default:
				list, err := a.client.ListSummaries(ctx, sess)
				if err != nil {
					return fmt.Errorf("loading summaries: %w", err)
				}
				render.UserSummaries(out, list)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "build the summary from your recent messages")
	cmd.Flags().StringVar(&lang, "lang", "", "summary language, en or ar (default client.default_language)")
	return cmd
}

// language parses flag, falling back to the configured default.
func (a *app) language(flag string) (chat.Language, error) {
	if flag == "" {
		flag = a.cfg.Client.DefaultLanguage
	}
	return chat.ParseLanguage(flag)
}

// sendLanguage picks the language of a message: the flag, then the target
// conversation's language, then the configured default.
func (a *app) sendLanguage(eng *conversation.Engine, chatID int64, flag string) (chat.Language, error) {
	if flag != "" || chatID == 0 {
		return a.language(flag)
	}
	for _, s := range eng.Conversations() {
		if s.ID == chatID {
			return s.Language, nil
		}
	}
	return a.language("")
}

// defaultModel returns the configured model when the catalogue offers it for
// lang. Otherwise the server chooses.
func (a *app) defaultModel(eng *conversation.Engine, lang chat.Language) string {
	name := a.cfg.Client.DefaultModel
	if name == "" {
		return ""
	}
	for _, m := range eng.ModelsFor(lang) {
		if m.Name == name {
			return name
		}
	}
	a.logger.Debug("configured model not offered, letting server choose", "model", name, "language", string(lang))
	return ""
}
