// ABOUTME: Storage interface and types for the development backend
// ABOUTME: Defines users, conversations, transcripts and the model catalogue

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/parley/internal/chat"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint would be violated
var ErrDuplicate = errors.New("already exists")

// User is an account on the development backend
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Store is the persistence surface used by the development backend.
// Every conversation operation is scoped to the owning user; a conversation
// owned by someone else is reported as ErrNotFound.
type Store interface {
	// Users
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UserExists(ctx context.Context, id int64) (bool, error)

	// Conversations
	CreateChat(ctx context.Context, userID int64, lang chat.Language, title string) (*chat.Summary, error)
	ListChats(ctx context.Context, userID int64) ([]chat.Summary, error)
	GetChat(ctx context.Context, userID, chatID int64) (*chat.Detail, error)
	UpdateChat(ctx context.Context, userID, chatID int64, req chat.UpdateRequest) (*chat.Summary, error)
	DeleteChat(ctx context.Context, userID, chatID int64) error

	// SaveExchange appends a user message and the assistant reply to a
	// conversation. Ids and timestamps are assigned in place. An untitled
	// conversation takes its title from the user message.
	SaveExchange(ctx context.Context, userID, chatID int64, user, assistant *chat.Message) error

	// Model catalogue
	UpsertModel(ctx context.Context, m chat.Model) error
	ListModels(ctx context.Context) ([]chat.Model, error)

	Statistics(ctx context.Context, userID int64) (*chat.Statistics, error)

	// RecentUserMessages returns up to limit of the user's own messages in
	// lang, newest first.
	RecentUserMessages(ctx context.Context, userID int64, lang chat.Language, limit int) ([]chat.Message, error)

	// Profile summaries. SaveUserSummary replaces the user's summary for
	// s.Language, keeping its id and creation time, and reports whether a new
	// one was created. Ids and timestamps are assigned in place.
	SaveUserSummary(ctx context.Context, s *chat.UserSummary) (created bool, err error)
	ListUserSummaries(ctx context.Context, userID int64) ([]chat.UserSummary, error)
	GetUserSummary(ctx context.Context, userID, id int64) (*chat.UserSummary, error)

	Close() error
}

// averagePerChat mirrors the rounding used for statistics: two decimals, 0 for no chats.
func averagePerChat(messages, chats int) float64 {
	if chats == 0 {
		return 0
	}
	avg := float64(messages) / float64(chats)
	return float64(int64(avg*100+0.5)) / 100
}
