// ABOUTME: Interactive chat session driven by the sync engine
// ABOUTME: Slash commands navigate conversations; plain lines are sent to the open one

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/parley/internal/chat"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/render"
)

const replHelp = `Commands:
  /list [all]        list conversations (all includes archived)
  /open N|#ID        open entry N of the last list, or conversation ID
  /new [TITLE]       create a conversation in the current language
  /close             close the open conversation; the next message starts a new one
  /rename TITLE      rename the open conversation
  /archive [undo]    archive or unarchive the open conversation
  /delete            delete the open conversation
  /models            list models for the current language
  /model [NAME]      choose a model, or clear the choice
  /lang en|ar        set the language for new messages
  /retry             resend the last message that failed
  /stats             show usage statistics
  /help              show this help
  /quit              leave`

var (
	promptStyle = color.New(color.FgCyan, color.Bold)
	typingStyle = color.New(color.FgHiBlack, color.Italic)
	errStyle    = color.New(color.FgRed)
)

func (a *app) chatCmd() *cobra.Command {
	var lang, model string
	cmd := &cobra.Command{
		Use:   "chat [ID]",
		Short: "Start an interactive session",
		Long: `Start an interactive session. Type a message to send it to the open
conversation, or to a new one when none is open. Type /help for commands.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := a.engine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			r := &repl{
				app:   a,
				eng:   eng,
				out:   cmd.OutOrStdout(),
				model: model,
			}
			if lang != "" {
				if r.lang, err = chat.ParseLanguage(lang); err != nil {
					return err
				}
			}
			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				r.open(ctx, id)
			}
			return r.run(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "language for new messages, en or ar")
	cmd.Flags().StringVar(&model, "model", "", "model for new messages")
	return cmd
}

type repl struct {
	app *app
	eng *conversation.Engine
	out io.Writer

	lang   chat.Language // explicit choice; empty follows the open conversation
	model  string
	listed []int64
	failed    string // input of the last failed send
	failedKey string
}

// run reads lines until EOF, /quit or ctx is cancelled.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(r.out, "Type a message, or /help for commands.")
	for {
		r.prompt()
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.send(ctx, line, "")
	}
}

func (r *repl) prompt() {
	label := "new"
	if d := r.eng.Active(); d != nil {
		label = "#" + strconv.FormatInt(d.ID, 10)
	}
	promptStyle.Fprintf(r.out, "[%s %s]> ", label, r.currentLanguage())
}

// currentLanguage is the explicit choice, else the open conversation's, else
// the configured default.
func (r *repl) currentLanguage() chat.Language {
	if r.lang != "" {
		return r.lang
	}
	if d := r.eng.Active(); d != nil {
		return d.Language
	}
	lang, err := r.app.language("")
	if err != nil {
		return chat.LanguageEnglish
	}
	return lang
}

func (r *repl) report(err error) {
	errStyle.Fprintln(r.out, "✗ "+describe(err))
}

// command runs one slash command and reports whether the session should end.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/list":
		if err := r.eng.ListConversations(ctx); err != nil {
			r.report(err)
			return false
		}
		var activeID int64
		if d := r.eng.Active(); d != nil {
			activeID = d.ID
		}
		r.listed = render.ConversationList(r.out, r.eng.Conversations(), render.ListOptions{
			IncludeArchived: arg == "all",
			ActiveID:        activeID,
		})
	case "/open":
		id, err := r.resolve(arg)
		if err != nil {
			r.report(err)
			return false
		}
		r.open(ctx, id)
	case "/new":
		created, err := r.eng.CreateConversation(ctx, r.currentLanguage(), arg)
		if err != nil {
			r.report(err)
			return false
		}
		printSuccess(r.out, "Created conversation #%d", created.ID)
	case "/close":
		r.eng.CloseConversation()
	case "/rename":
		if id, ok := r.activeID(); ok {
			if err := r.eng.RenameConversation(ctx, id, arg); err != nil {
				r.report(err)
				return false
			}
			printSuccess(r.out, "Renamed")
		}
	case "/archive":
		if id, ok := r.activeID(); ok {
			if err := r.eng.ArchiveConversation(ctx, id, arg != "undo"); err != nil {
				r.report(err)
				return false
			}
			if arg == "undo" {
				printSuccess(r.out, "Unarchived #%d", id)
			} else {
				printSuccess(r.out, "Archived #%d", id)
			}
		}
	case "/delete":
		if id, ok := r.activeID(); ok {
			if err := r.eng.DeleteConversation(ctx, id); err != nil {
				r.report(err)
				return false
			}
			printSuccess(r.out, "Deleted #%d", id)
		}
	case "/models":
		models := r.eng.ModelsFor(r.currentLanguage())
		if len(models) == 0 {
			fmt.Fprintln(r.out, "No models available.")
			return false
		}
		render.Models(r.out, models)
	case "/model":
		r.setModel(arg)
	case "/lang":
		lang, err := chat.ParseLanguage(arg)
		if err != nil {
			r.report(err)
			return false
		}
		r.lang = lang
	case "/retry":
		if r.failed == "" {
			fmt.Fprintln(r.out, "Nothing to retry.")
			return false
		}
		r.send(ctx, r.failed, r.failedKey)
	case "/stats":
		stats, err := r.eng.Statistics(ctx)
		if err != nil {
			r.report(err)
			return false
		}
		render.Statistics(r.out, stats)
	default:
		fmt.Fprintf(r.out, "Unknown command %s, try /help.\n", name)
	}
	return false
}

// resolve maps "/open" arguments to a conversation id.
func (r *repl) resolve(arg string) (int64, error) {
	if rest, ok := strings.CutPrefix(arg, "#"); ok {
		return parseID(rest)
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(r.listed) {
		return 0, fmt.Errorf("no list entry %q, run /list first or use #ID", arg)
	}
	return r.listed[n-1], nil
}

func (r *repl) activeID() (int64, bool) {
	d := r.eng.Active()
	if d == nil {
		fmt.Fprintln(r.out, "No conversation is open.")
		return 0, false
	}
	return d.ID, true
}

func (r *repl) open(ctx context.Context, id int64) {
	if err := r.eng.LoadConversation(ctx, id); err != nil {
		if !errors.Is(err, conversation.ErrSuperseded) {
			r.report(err)
		}
		return
	}
	render.Transcript(r.out, r.eng.Active())
}

func (r *repl) setModel(name string) {
	if name == "" {
		r.model = ""
		fmt.Fprintln(r.out, "The server will choose the model.")
		return
	}
	for _, m := range r.eng.ModelsFor(r.currentLanguage()) {
		if m.Name == name {
			r.model = name
			printSuccess(r.out, "Using %s", name)
			return
		}
	}
	r.report(fmt.Errorf("%w: %s", conversation.ErrUnsupportedModel, name))
}

// send delivers content to the open conversation, or to a new one, showing a
// typing indicator while the engine reports a send in flight. key is empty
// except when retrying.
func (r *repl) send(ctx context.Context, content, key string) {
	var chatID int64
	if d := r.eng.Active(); d != nil {
		chatID = d.ID
	}
	lang := r.currentLanguage()
	model := r.model
	if model == "" {
		model = r.app.defaultModel(r.eng, lang)
	}

	changes, subID := r.eng.Subscribe(ctx)
	defer r.eng.Unsubscribe(subID)

	type outcome struct {
		res *conversation.SendResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.eng.SendMessageWithKey(ctx, chatID, content, lang, model, key)
		done <- outcome{res, err}
	}()

	typing := false
	for {
		select {
		case ch, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if ch.Kind == conversation.StatusChanged && !typing && r.eng.IsSendingMessage() {
				typing = true
				typingStyle.Fprintln(r.out, "assistant is typing…")
			}
		case o := <-done:
			r.finishSend(o.res, o.err)
			return
		}
	}
}

func (r *repl) finishSend(res *conversation.SendResult, err error) {
	if err != nil {
		var sendErr *conversation.SendError
		if errors.As(err, &sendErr) {
			r.failed = sendErr.Content
			r.failedKey = sendErr.IdempotencyKey
			r.report(sendErr.Err)
			fmt.Fprintln(r.out, "Type /retry to send it again.")
			return
		}
		r.report(err)
		return
	}
	r.failed, r.failedKey = "", ""
	if res.Created {
		printSuccess(r.out, "Created conversation #%d", res.ConversationID)
	}
	render.Message(r.out, res.AssistantMessage)
}
