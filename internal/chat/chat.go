// ABOUTME: Conversation data model shared by the sync engine, the remote client and the dev backend
// ABOUTME: Defines Summary, Detail, Message (pending or confirmed), Model and request/response shapes

package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidLanguage is returned when a language tag is outside the supported set
var ErrInvalidLanguage = errors.New("invalid language")

// Language is a conversation or message language tag
type Language string

// Supported languages
const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageArabic
}

// ParseLanguage converts a raw tag into a Language. Case and surrounding space are ignored.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
	}
	return l, nil
}

// Role identifies the author of a message
type Role string

// Message roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

const (
	// PreviewLength is the maximum rune length of a last-message preview.
	PreviewLength = 100
	// TitleLength is the maximum rune length of a title derived from a first message.
	TitleLength = 50
)

// Preview is the last-message excerpt shown in the conversation list
type Preview struct {
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the list-view representation of a conversation
type Summary struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user,omitempty"`
	Username     string    `json:"user_username,omitempty"`
	Title        string    `json:"title"`
	Language     Language  `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Archived     bool      `json:"is_archived"`
	MessageCount int       `json:"message_count"`
	LastMessage  *Preview  `json:"last_message,omitempty"`
}

// Clone returns a copy that shares no pointers with s.
func (s Summary) Clone() Summary {
	if s.LastMessage != nil {
		p := *s.LastMessage
		s.LastMessage = &p
	}
	return s
}

// Detail is a conversation together with its full ordered transcript
type Detail struct {
	Summary
	Messages []Message `json:"messages"`
}

// Clone returns a deep copy of d. A nil receiver yields nil.
func (d *Detail) Clone() *Detail {
	if d == nil {
		return nil
	}
	out := &Detail{Summary: d.Summary.Clone()}
	if d.Messages != nil {
		out.Messages = make([]Message, len(d.Messages))
		copy(out.Messages, d.Messages)
	}
	return out
}

// ConfirmedMessages returns the messages that carry a server-assigned id.
func (d *Detail) ConfirmedMessages() []Message {
	out := make([]Message, 0, len(d.Messages))
	for _, m := range d.Messages {
		if m.IsConfirmed() {
			out = append(out, m)
		}
	}
	return out
}

// Message is a single transcript entry.
//
// A message is either pending or confirmed. A pending message was produced
// locally before the server answered: it has a negative LocalID and a zero ID.
// A confirmed message has a positive server ID and a zero LocalID. LocalID is
// never sent over the wire.
type Message struct {
	ID             int64     `json:"id"`
	LocalID        int64     `json:"-"`
	ConversationID int64     `json:"chat,omitempty"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"ai_model,omitempty"`
	Language       Language  `json:"language"`
	TokensUsed     int       `json:"tokens_used"`
	ResponseTime   float64   `json:"response_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewPending builds an optimistic user message. localID must be negative.
func NewPending(localID, conversationID int64, content string, lang Language, now time.Time) Message {
	return Message{
		LocalID:        localID,
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		Language:       lang,
		CreatedAt:      now,
	}
}

// IsPending reports whether m is an optimistic placeholder.
func (m Message) IsPending() bool {
	return m.LocalID < 0 && m.ID == 0
}

// IsConfirmed reports whether m carries a server-assigned id.
func (m Message) IsConfirmed() bool {
	return m.ID > 0 && m.LocalID == 0
}

// Preview returns the list excerpt for m.
func (m Message) Preview() *Preview {
	return &Preview{
		Content:   Clip(m.Content, PreviewLength),
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}

// Model describes an assistant model offered by the server
type Model struct {
	Name            string `json:"name"`
	Active          bool   `json:"is_active"`
	SupportsEnglish bool   `json:"supports_english"`
	SupportsArabic  bool   `json:"supports_arabic"`
}

// Supports reports whether the model is active and handles lang.
func (m Model) Supports(lang Language) bool {
	if !m.Active {
		return false
	}
	switch lang {
	case LanguageArabic:
		return m.SupportsArabic
	case LanguageEnglish:
		return m.SupportsEnglish
	}
	return false
}

// FilterModels returns the models legal for sending in lang, preserving order.
func FilterModels(models []Model, lang Language) []Model {
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if m.Supports(lang) {
			out = append(out, m)
		}
	}
	return out
}

// CreateRequest is the body of a create-conversation call
type CreateRequest struct {
	Language Language `json:"language"`
	Title    string   `json:"title,omitempty"`
}

// UpdateRequest carries the mutable conversation fields. Nil means unchanged.
type UpdateRequest struct {
	Title    *string `json:"title,omitempty"`
	Archived *bool   `json:"is_archived,omitempty"`
}

// SendRequest is the body of a send-message call
type SendRequest struct {
	Content  string   `json:"content"`
	Language Language `json:"language"`
	Model    string   `json:"ai_model,omitempty"`
	// IdempotencyKey travels as a header. Empty means the client picks one.
	IdempotencyKey string `json:"-"`
}

// SendResponse is the confirmed exchange returned by the server
type SendResponse struct {
	UserMessage      Message `json:"user_message"`
	AssistantMessage Message `json:"ai_message"`
	ModelUsed        string  `json:"model_used"`
}

// Statistics aggregates a user's conversation activity
type Statistics struct {
	TotalChats             int              `json:"total_chats"`
	TotalMessages          int              `json:"total_messages"`
	ChatsByLanguage        map[Language]int `json:"chats_by_language"`
	MessagesByModel        map[string]int   `json:"messages_by_model"`
	AverageMessagesPerChat float64          `json:"average_messages_per_chat"`
}

// SummaryMessageLimit is how many recent user messages a profile summary reads.
const SummaryMessageLimit = 100

// UserSummary is a generated profile of a user's conversations in one
// language. There is at most one per user and language.
type UserSummary struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user"`
	Username      string    `json:"user_username,omitempty"`
	Language      Language  `json:"language"`
	Text          string    `json:"summary_text"`
	Topics        []string  `json:"topics"`
	CommonQueries []string  `json:"common_queries"`
	ChatCount     int       `json:"chat_count"`
	MessageCount  int       `json:"message_count"`
	Model         string    `json:"ai_model_used"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no slices with s.
func (s UserSummary) Clone() UserSummary {
	s.Topics = append([]string(nil), s.Topics...)
	s.CommonQueries = append([]string(nil), s.CommonQueries...)
	return s
}

// GenerateSummaryRequest asks the server for a fresh profile summary. An
// empty language means English.
type GenerateSummaryRequest struct {
	Language Language `json:"language,omitempty"`
}

// GenerateSummaryResponse is the reply to a summary generation
type GenerateSummaryResponse struct {
	Message string      `json:"message"`
	Summary UserSummary `json:"summary"`
}

// DeriveTitle builds a conversation title from its first user message.
func DeriveTitle(content string) string {
	return Truncate(strings.TrimSpace(content), TitleLength)
}

// Truncate cuts s to max runes, appending "..." when something was removed.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return Clip(s, max) + "..."
}

// Clip cuts s to at most max runes.
func Clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
