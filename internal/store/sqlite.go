// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user, conversation and message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/parley/internal/chat"
)

// timeFormat is fixed-width so that stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// PRAGMAs are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL,
			is_archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_chats_user_updated
			ON chats(user_id, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			ai_model TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			response_time REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat_id
			ON messages(chat_id, id);

		CREATE TABLE IF NOT EXISTS user_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			language TEXT NOT NULL,
			summary_text TEXT NOT NULL,
			topics TEXT NOT NULL DEFAULT '[]',
			common_queries TEXT NOT NULL DEFAULT '[]',
			chat_count INTEGER NOT NULL DEFAULT 0,
			message_count INTEGER NOT NULL DEFAULT 0,
			ai_model_used TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (user_id, language),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS ai_models (
			name TEXT PRIMARY KEY,
			is_active INTEGER NOT NULL DEFAULT 1,
			supports_english INTEGER NOT NULL DEFAULT 1,
			supports_arabic INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// CreateUser inserts a new account. Returns ErrDuplicate if the username is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, formatTime(now),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading user id: %w", err)
	}

	s.logger.Debug("created user", "id", id, "username", username)
	return &User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// GetUserByUsername returns the account with the given name or ErrNotFound.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if u.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserExists reports whether an account with the given id exists.
func (s *SQLiteStore) UserExists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying user: %w", err)
	}
	return n > 0, nil
}

// CreateChat inserts an empty conversation owned by userID.
func (s *SQLiteStore) CreateChat(ctx context.Context, userID int64, lang chat.Language, title string) (*chat.Summary, error) {
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, title, language, is_archived, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		userID, title, string(lang), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting chat: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading chat id: %w", err)
	}

	s.logger.Debug("created chat", "id", id, "user_id", userID, "language", lang)
	return s.getSummary(ctx, userID, id)
}

// summaryQuery selects a conversation with its owner name, message count and
// newest message.
const summaryQuery = `
	SELECT c.id, c.user_id, u.username, c.title, c.language, c.is_archived,
		c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id),
		lm.content, lm.role, lm.created_at
	FROM chats c
	JOIN users u ON u.id = c.user_id
	LEFT JOIN messages lm ON lm.id = (SELECT MAX(id) FROM messages WHERE chat_id = c.id)
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*chat.Summary, error) {
	var sum chat.Summary
	var lang, createdAt, updatedAt string
	var archived int
	var lastContent, lastRole, lastCreated sql.NullString

	if err := row.Scan(
		&sum.ID,
		&sum.UserID,
		&sum.Username,
		&sum.Title,
		&lang,
		&archived,
		&createdAt,
		&updatedAt,
		&sum.MessageCount,
		&lastContent,
		&lastRole,
		&lastCreated,
	); err != nil {
		return nil, err
	}

	sum.Language = chat.Language(lang)
	sum.Archived = archived != 0

	var err error
	if sum.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if sum.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}

	if lastContent.Valid {
		at, err := parseTime("last_message.created_at", lastCreated.String)
		if err != nil {
			return nil, err
		}
		sum.LastMessage = &chat.Preview{
			Content:   chat.Clip(lastContent.String, chat.PreviewLength),
			Role:      chat.Role(lastRole.String),
			CreatedAt: at,
		}
	}
	return &sum, nil
}

func (s *SQLiteStore) getSummary(ctx context.Context, userID, chatID int64) (*chat.Summary, error) {
	row := s.db.QueryRowContext(ctx, summaryQuery+` WHERE c.id = ? AND c.user_id = ?`, chatID, userID)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}
	return sum, nil
}

// ListChats returns the user's conversations, most recently updated first.
func (s *SQLiteStore) ListChats(ctx context.Context, userID int64) ([]chat.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		summaryQuery+` WHERE c.user_id = ? ORDER BY c.updated_at DESC, c.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	chats := []chat.Summary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		chats = append(chats, *sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat rows: %w", err)
	}
	return chats, nil
}

// GetChat returns a conversation with its full transcript in creation order.
func (s *SQLiteStore) GetChat(ctx context.Context, userID, chatID int64) (*chat.Detail, error) {
	sum, err := s.getSummary(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, ai_model, language, tokens_used, response_time, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY id ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	detail := &chat.Detail{Summary: *sum, Messages: []chat.Message{}}
	for rows.Next() {
		var m chat.Message
		var role, lang, createdAt string
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&role,
			&m.Content,
			&m.Model,
			&lang,
			&m.TokensUsed,
			&m.ResponseTime,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Role = chat.Role(role)
		m.Language = chat.Language(lang)
		if m.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		detail.Messages = append(detail.Messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return detail, nil
}

// UpdateChat applies the non-nil fields of req and bumps updated_at.
func (s *SQLiteStore) UpdateChat(ctx context.Context, userID, chatID int64, req chat.UpdateRequest) (*chat.Summary, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(s.now())}
	if req.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *req.Title)
	}
	if req.Archived != nil {
		sets = append(sets, "is_archived = ?")
		args = append(args, boolToInt(*req.Archived))
	}
	args = append(args, chatID, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("updating chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.getSummary(ctx, userID, chatID)
}

// DeleteChat removes a conversation and its transcript.
func (s *SQLiteStore) DeleteChat(ctx context.Context, userID, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted chat", "id", chatID, "user_id", userID)
	return nil
}

// SaveExchange stores a user message and the assistant reply in one transaction.
func (s *SQLiteStore) SaveExchange(ctx context.Context, userID, chatID int64, user, assistant *chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var title string
	err = tx.QueryRowContext(ctx,
		`SELECT title FROM chats WHERE id = ? AND user_id = ?`, chatID, userID,
	).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying chat: %w", err)
	}

	for _, m := range []*chat.Message{user, assistant} {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now().UTC()
		}
		m.ConversationID = chatID
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (chat_id, role, content, ai_model, language, tokens_used, response_time, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			chatID,
			string(m.Role),
			m.Content,
			m.Model,
			string(m.Language),
			m.TokensUsed,
			m.ResponseTime,
			formatTime(m.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading message id: %w", err)
		}
	}

	if title == "" {
		title = chat.DeriveTitle(user.Content)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
		title, formatTime(assistant.CreatedAt), chatID,
	); err != nil {
		return fmt.Errorf("updating chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing exchange: %w", err)
	}
	return nil
}

// UpsertModel inserts or replaces a catalogue entry. Catalogue order follows
// first insertion.
func (s *SQLiteStore) UpsertModel(ctx context.Context, m chat.Model) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_models (name, is_active, supports_english, supports_arabic, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM ai_models))
		ON CONFLICT(name) DO UPDATE SET
			is_active = excluded.is_active,
			supports_english = excluded.supports_english,
			supports_arabic = excluded.supports_arabic
	`, m.Name, boolToInt(m.Active), boolToInt(m.SupportsEnglish), boolToInt(m.SupportsArabic))
	if err != nil {
		return fmt.Errorf("upserting model: %w", err)
	}
	return nil
}

// ListModels returns the whole catalogue, inactive entries included.
func (s *SQLiteStore) ListModels(ctx context.Context) ([]chat.Model, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, is_active, supports_english, supports_arabic
		FROM ai_models
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying models: %w", err)
	}
	defer rows.Close()

	models := []chat.Model{}
	for rows.Next() {
		var m chat.Model
		var active, en, ar int
		if err := rows.Scan(&m.Name, &active, &en, &ar); err != nil {
			return nil, fmt.Errorf("scanning model row: %w", err)
		}
		m.Active, m.SupportsEnglish, m.SupportsArabic = active != 0, en != 0, ar != 0
		models = append(models, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model rows: %w", err)
	}
	return models, nil
}

// Statistics aggregates the user's conversations and messages.
func (s *SQLiteStore) Statistics(ctx context.Context, userID int64) (*chat.Statistics, error) {
	stats := &chat.Statistics{
		ChatsByLanguage: map[chat.Language]int{},
		MessagesByModel: map[string]int{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT language, COUNT(*) FROM chats WHERE user_id = ? GROUP BY language`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying chats by language: %w", err)
	}
	for rows.Next() {
		var lang string
		var n int
		if err := rows.Scan(&lang, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning language row: %w", err)
		}
		stats.ChatsByLanguage[chat.Language(lang)] = n
		stats.TotalChats += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating language rows: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m JOIN chats c ON c.id = m.chat_id WHERE c.user_id = ?
	`, userID).Scan(&stats.TotalMessages)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT m.ai_model, COUNT(*)
		FROM messages m JOIN chats c ON c.id = m.chat_id
		WHERE c.user_id = ? AND m.role = 'assistant'
		GROUP BY m.ai_model
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying messages by model: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, fmt.Errorf("scanning model row: %w", err)
		}
		stats.MessagesByModel[model] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model rows: %w", err)
	}

	stats.AverageMessagesPerChat = averagePerChat(stats.TotalMessages, stats.TotalChats)
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
