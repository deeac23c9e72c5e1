// ABOUTME: Terminal output for transcripts, conversation lists, models, statistics and profile summaries
// ABOUTME: Uses fatih/color for roles and status; respects color.NoColor

package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/2389/parley/internal/chat"
)

var (
	userStyle      = color.New(color.FgGreen, color.Bold)
	assistantStyle = color.New(color.FgCyan, color.Bold)
	systemStyle    = color.New(color.FgMagenta)
	dimStyle       = color.New(color.FgHiBlack)
	pendingStyle   = color.New(color.Faint, color.Italic)
	archivedStyle  = color.New(color.FgYellow)
	titleStyle     = color.New(color.Bold)
)

// Untitled is shown for a conversation that has no title yet.
const Untitled = "(untitled)"

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return Untitled
	}
	return title
}

// Header writes the one-line description of a conversation.
func Header(w io.Writer, s chat.Summary) {
	titleStyle.Fprint(w, displayTitle(s.Title))
	dimStyle.Fprintf(w, "  #%d [%s]", s.ID, s.Language)
	if s.Archived {
		archivedStyle.Fprint(w, " archived")
	}
	fmt.Fprintln(w)
}

// Message writes one transcript entry. Assistant content is rendered as
// markdown; user content is printed verbatim.
func Message(w io.Writer, m chat.Message) {
	switch m.Role {
	case chat.RoleUser:
		userStyle.Fprint(w, "you")
	case chat.RoleAssistant:
		assistantStyle.Fprint(w, "assistant")
		if m.Model != "" {
			dimStyle.Fprintf(w, " (%s)", m.Model)
		}
	default:
		systemStyle.Fprint(w, string(m.Role))
	}
	if !m.CreatedAt.IsZero() {
		dimStyle.Fprint(w, " · "+m.CreatedAt.Local().Format("15:04"))
	}
	if m.IsPending() {
		pendingStyle.Fprint(w, " sending…")
	}
	fmt.Fprintln(w)

	body := m.Content
	if m.Role == chat.RoleAssistant {
		body = Markdown(body)
	}
	fmt.Fprintln(w, body)
}

// Transcript writes a conversation header followed by every message.
func Transcript(w io.Writer, d *chat.Detail) {
	Header(w, d.Summary)
	dimStyle.Fprintln(w, strings.Repeat("─", 40))
	if len(d.Messages) == 0 {
		dimStyle.Fprintln(w, "No messages yet.")
		return
	}
	for i, m := range d.Messages {
		if i > 0 {
			fmt.Fprintln(w)
		}
		Message(w, m)
	}
}

// ListOptions controls ConversationList output
type ListOptions struct {
	// IncludeArchived lists archived conversations too.
	IncludeArchived bool
	// ActiveID marks the open conversation, if any.
	ActiveID int64
}

// ConversationList writes one line per conversation, numbered from 1 in the
// given order, followed by the last-message preview when present. It returns
// the ids in the order they were numbered.
func ConversationList(w io.Writer, list []chat.Summary, opts ListOptions) []int64 {
	var ids []int64
	for _, s := range list {
		if s.Archived && !opts.IncludeArchived {
			continue
		}
		ids = append(ids, s.ID)

		marker := "  "
		if s.ID == opts.ActiveID {
			marker = "▶ "
		}
		fmt.Fprintf(w, "%s%2d. ", marker, len(ids))
		titleStyle.Fprint(w, displayTitle(s.Title))
		dimStyle.Fprintf(w, "  #%d [%s] %d msgs", s.ID, s.Language, s.MessageCount)
		if !s.UpdatedAt.IsZero() {
			dimStyle.Fprint(w, " · "+humanize.Time(s.UpdatedAt))
		}
		if s.Archived {
			archivedStyle.Fprint(w, " archived")
		}
		fmt.Fprintln(w)

		if s.LastMessage != nil && s.LastMessage.Content != "" {
			preview := strings.Join(strings.Fields(s.LastMessage.Content), " ")
			dimStyle.Fprintf(w, "      %s: %s\n", s.LastMessage.Role, preview)
		}
	}
	if len(ids) == 0 {
		dimStyle.Fprintln(w, "No conversations.")
	}
	return ids
}

// Models writes the catalogue with the languages each model supports.
func Models(w io.Writer, models []chat.Model) {
	if len(models) == 0 {
		dimStyle.Fprintln(w, "No models available.")
		return
	}
	for _, m := range models {
		var langs []string
		if m.SupportsEnglish {
			langs = append(langs, string(chat.LanguageEnglish))
		}
		if m.SupportsArabic {
			langs = append(langs, string(chat.LanguageArabic))
		}
		fmt.Fprintf(w, "  %-20s %s", m.Name, strings.Join(langs, ","))
		if !m.Active {
			archivedStyle.Fprint(w, " inactive")
		}
		fmt.Fprintln(w)
	}
}

// Statistics writes the aggregate counters with map entries sorted by key.
func Statistics(w io.Writer, s *chat.Statistics) {
	fmt.Fprintf(w, "Conversations:        %d\n", s.TotalChats)
	fmt.Fprintf(w, "Messages:             %d\n", s.TotalMessages)
	fmt.Fprintf(w, "Messages per chat:    %.2f\n", s.AverageMessagesPerChat)

	langs := make([]string, 0, len(s.ChatsByLanguage))
	for l := range s.ChatsByLanguage {
		langs = append(langs, string(l))
	}
	sort.Strings(langs)
	if len(langs) > 0 {
		fmt.Fprintln(w, "By language:")
		for _, l := range langs {
			fmt.Fprintf(w, "  %-20s %d\n", l, s.ChatsByLanguage[chat.Language(l)])
		}
	}

	models := make([]string, 0, len(s.MessagesByModel))
	for m := range s.MessagesByModel {
		models = append(models, m)
	}
	sort.Strings(models)
	if len(models) > 0 {
		fmt.Fprintln(w, "Replies by model:")
		for _, m := range models {
			name := m
			if name == "" {
				name = "(default)"
			}
			fmt.Fprintf(w, "  %-20s %d\n", name, s.MessagesByModel[m])
		}
	}
}

// UserSummaries writes one line per profile summary.
func UserSummaries(w io.Writer, list []chat.UserSummary) {
	if len(list) == 0 {
		dimStyle.Fprintln(w, "No summaries. Generate one with --generate.")
		return
	}
	for _, s := range list {
		titleStyle.Fprintf(w, "#%d [%s]", s.ID, s.Language)
		dimStyle.Fprintf(w, "  %d chats, %d msgs", s.ChatCount, s.MessageCount)
		if !s.UpdatedAt.IsZero() {
			dimStyle.Fprint(w, " · "+humanize.Time(s.UpdatedAt))
		}
		fmt.Fprintln(w)
	}
}

// UserSummary writes a profile summary in full.
func UserSummary(w io.Writer, s *chat.UserSummary) {
	titleStyle.Fprintf(w, "Summary #%d [%s]", s.ID, s.Language)
	if s.Model != "" {
		dimStyle.Fprintf(w, " (%s)", s.Model)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, Markdown(s.Text))
	if len(s.Topics) > 0 {
		fmt.Fprintf(w, "Topics:   %s\n", strings.Join(s.Topics, ", "))
	}
	for i, q := range s.CommonQueries {
		if i == 0 {
			fmt.Fprintln(w, "Frequent questions:")
		}
		fmt.Fprintf(w, "  - %s\n", q)
	}
	fmt.Fprintf(w, "Based on: %d chats, %d msgs\n", s.ChatCount, s.MessageCount)
}
