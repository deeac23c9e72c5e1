// ABOUTME: Tests for terminal rendering of markdown, transcripts and lists
// ABOUTME: Colour is disabled so output can be compared as plain text

package render

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/chat"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"strong", `**echo**: you said "hi"`, `echo: you said "hi"`},
		{"heading and paragraph", "# Title\n\nBody text", "Title\n\nBody text"},
		{"bullet list", "- a\n- b", "• a\n• b"},
		{"ordered list", "1. x\n2. y", "1. x\n2. y"},
		{"nested list", "- a\n  - b", "• a\n  • b"},
		{"fenced code", "```\nfoo\nbar\n```", "    foo\n    bar"},
		{"link", "[site](http://example.com)", "site (http://example.com)"},
		{"soft break", "line one\nline two", "line one line two"},
		{"blockquote", "> quoted", "│ quoted"},
		{"code span", "use `go test`", "use go test"},
		{"arabic", "مرحبا **بك**", "مرحبا بك"},
		{"plain", "just text", "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Markdown(tt.src))
		})
	}
}

func TestTranscript(t *testing.T) {
	d := &chat.Detail{
		Summary: chat.Summary{ID: 3, Title: "Trip", Language: chat.LanguageEnglish},
		Messages: []chat.Message{
			{ID: 1, Role: chat.RoleUser, Content: "hi"},
			{ID: 2, Role: chat.RoleAssistant, Content: "**bold** reply", Model: "echo"},
			chat.NewPending(-1, 3, "still going", chat.LanguageEnglish, time.Time{}),
		},
	}

	var buf bytes.Buffer
	Transcript(&buf, d)
	out := buf.String()

	assert.Contains(t, out, "Trip  #3 [en]")
	assert.Contains(t, out, "you\nhi\n")
	assert.Contains(t, out, "assistant (echo)\nbold reply\n")
	assert.Contains(t, out, "sending…")
	assert.Contains(t, out, "still going")
	assert.NotContains(t, out, "**")
}

func TestTranscript_Empty(t *testing.T) {
	var buf bytes.Buffer
	Transcript(&buf, &chat.Detail{Summary: chat.Summary{ID: 9, Archived: true, Language: chat.LanguageArabic}})
	out := buf.String()

	assert.Contains(t, out, Untitled+"  #9 [ar] archived")
	assert.Contains(t, out, "No messages yet.")
}

func TestConversationList(t *testing.T) {
	list := []chat.Summary{
		{ID: 10, Title: "First", Language: chat.LanguageEnglish, MessageCount: 2,
			LastMessage: &chat.Preview{Content: "hello\n  world", Role: chat.RoleAssistant}},
		{ID: 11, Title: "Old", Language: chat.LanguageEnglish, Archived: true},
		{ID: 12, Language: chat.LanguageArabic},
	}

	var buf bytes.Buffer
	ids := ConversationList(&buf, list, ListOptions{ActiveID: 12})
	out := buf.String()

	assert.Equal(t, []int64{10, 12}, ids)
	assert.Contains(t, out, " 1. First  #10 [en] 2 msgs")
	assert.Contains(t, out, "assistant: hello world")
	assert.Contains(t, out, "▶  2. "+Untitled)
	assert.NotContains(t, out, "Old")

	buf.Reset()
	ids = ConversationList(&buf, list, ListOptions{IncludeArchived: true})
	assert.Equal(t, []int64{10, 11, 12}, ids)
	assert.Contains(t, buf.String(), "Old  #11 [en] 0 msgs archived")
}

func TestConversationList_Empty(t *testing.T) {
	var buf bytes.Buffer
	ids := ConversationList(&buf, nil, ListOptions{})
	assert.Empty(t, ids)
	assert.Equal(t, "No conversations.\n", buf.String())
}

func TestModels(t *testing.T) {
	var buf bytes.Buffer
	Models(&buf, []chat.Model{
		{Name: "echo", Active: true, SupportsEnglish: true, SupportsArabic: true},
		{Name: "retired", SupportsEnglish: true},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "echo")
	assert.True(t, strings.HasSuffix(lines[0], "en,ar"))
	assert.True(t, strings.HasSuffix(lines[1], "en inactive"))
}

func TestStatistics(t *testing.T) {
	var buf bytes.Buffer
	Statistics(&buf, &chat.Statistics{
		TotalChats:             2,
		TotalMessages:          6,
		ChatsByLanguage:        map[chat.Language]int{chat.LanguageEnglish: 1, chat.LanguageArabic: 1},
		MessagesByModel:        map[string]int{"echo": 2, "": 1},
		AverageMessagesPerChat: 3,
	})
	out := buf.String()

	assert.Contains(t, out, "Conversations:        2\n")
	assert.Contains(t, out, "Messages per chat:    3.00\n")
	assert.Less(t, strings.Index(out, "  ar "), strings.Index(out, "  en "))
	assert.Contains(t, out, "(default)")
	assert.Contains(t, out, "echo")
}

func TestUserSummary(t *testing.T) {
	var buf bytes.Buffer
	UserSummary(&buf, &chat.UserSummary{
		ID: 3, Language: chat.LanguageEnglish, Model: "echo",
		Text:          "Mostly asks about **hiking**.",
		Topics:        []string{"hiking", "trails"},
		CommonQueries: []string{"best trails near muscat"},
		ChatCount:     2, MessageCount: 5,
	})
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Summary #3 [en] (echo)\n"))
	assert.Contains(t, out, "Mostly asks about hiking.\n")
	assert.Contains(t, out, "Topics:   hiking, trails\n")
	assert.Contains(t, out, "Frequent questions:\n  - best trails near muscat\n")
	assert.True(t, strings.HasSuffix(out, "Based on: 2 chats, 5 msgs\n"))
}

func TestUserSummaries(t *testing.T) {
	var buf bytes.Buffer
	UserSummaries(&buf, []chat.UserSummary{
		{ID: 1, Language: chat.LanguageEnglish, ChatCount: 2, MessageCount: 5},
		{ID: 2, Language: chat.LanguageArabic, ChatCount: 1, MessageCount: 1, UpdatedAt: time.Now()},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "#1 [en]  2 chats, 5 msgs", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "#2 [ar]  1 chats, 1 msgs · "))

	buf.Reset()
	UserSummaries(&buf, nil)
	assert.Equal(t, "No summaries. Generate one with --generate.\n", buf.String())
}
