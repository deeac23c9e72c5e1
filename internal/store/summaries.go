// ABOUTME: SQLite persistence for profile summaries and the messages they are built from
// ABOUTME: Topic and query lists are stored as JSON text columns

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/parley/internal/chat"
)

// RecentUserMessages returns the user's own messages in lang, newest first.
func (s *SQLiteStore) RecentUserMessages(ctx context.Context, userID int64, lang chat.Language, limit int) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.content, m.created_at
		FROM messages m JOIN chats c ON c.id = m.chat_id
		WHERE c.user_id = ? AND m.role = 'user' AND m.language = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`, userID, string(lang), limit)
	if err != nil {
		return nil, fmt.Errorf("querying user messages: %w", err)
	}
	defer rows.Close()

	msgs := []chat.Message{}
	for rows.Next() {
		m := chat.Message{Role: chat.RoleUser, Language: lang}
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		if m.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// SaveUserSummary inserts or replaces the summary for (UserID, Language).
func (s *SQLiteStore) SaveUserSummary(ctx context.Context, sum *chat.UserSummary) (bool, error) {
	topics, err := json.Marshal(nonNil(sum.Topics))
	if err != nil {
		return false, fmt.Errorf("encoding topics: %w", err)
	}
	queries, err := json.Marshal(nonNil(sum.CommonQueries))
	if err != nil {
		return false, fmt.Errorf("encoding common queries: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	var id int64
	var createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM user_summaries WHERE user_id = ? AND language = ?`,
		sum.UserID, string(sum.Language),
	).Scan(&id, &createdAt)

	created := errors.Is(err, sql.ErrNoRows)
	switch {
	case created:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_summaries (user_id, language, summary_text, topics, common_queries,
				chat_count, message_count, ai_model_used, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sum.UserID, string(sum.Language), sum.Text, string(topics), string(queries),
			sum.ChatCount, sum.MessageCount, sum.Model, formatTime(now), formatTime(now))
		if err != nil {
			return false, fmt.Errorf("inserting summary: %w", err)
		}
		if sum.ID, err = res.LastInsertId(); err != nil {
			return false, fmt.Errorf("reading summary id: %w", err)
		}
		sum.CreatedAt = now
	case err != nil:
		return false, fmt.Errorf("querying summary: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_summaries SET summary_text = ?, topics = ?, common_queries = ?,
				chat_count = ?, message_count = ?, ai_model_used = ?, updated_at = ?
			WHERE id = ?
		`, sum.Text, string(topics), string(queries), sum.ChatCount, sum.MessageCount,
			sum.Model, formatTime(now), id); err != nil {
			return false, fmt.Errorf("updating summary: %w", err)
		}
		sum.ID = id
		if sum.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return false, err
		}
	}
	sum.UpdatedAt = now

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing summary: %w", err)
	}
	return created, nil
}

const userSummaryQuery = `
	SELECT s.id, s.user_id, u.username, s.language, s.summary_text, s.topics, s.common_queries,
		s.chat_count, s.message_count, s.ai_model_used, s.created_at, s.updated_at
	FROM user_summaries s JOIN users u ON u.id = s.user_id
`

func scanUserSummary(row rowScanner) (*chat.UserSummary, error) {
	var sum chat.UserSummary
	var lang, topics, queries, createdAt, updatedAt string
	if err := row.Scan(
		&sum.ID,
		&sum.UserID,
		&sum.Username,
		&lang,
		&sum.Text,
		&topics,
		&queries,
		&sum.ChatCount,
		&sum.MessageCount,
		&sum.Model,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	sum.Language = chat.Language(lang)
	if err := json.Unmarshal([]byte(topics), &sum.Topics); err != nil {
		return nil, fmt.Errorf("decoding topics: %w", err)
	}
	if err := json.Unmarshal([]byte(queries), &sum.CommonQueries); err != nil {
		return nil, fmt.Errorf("decoding common queries: %w", err)
	}
	var err error
	if sum.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if sum.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &sum, nil
}

// ListUserSummaries returns the user's summaries, most recently updated first.
func (s *SQLiteStore) ListUserSummaries(ctx context.Context, userID int64) ([]chat.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		userSummaryQuery+` WHERE s.user_id = ? ORDER BY s.updated_at DESC, s.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying summaries: %w", err)
	}
	defer rows.Close()

	out := []chat.UserSummary{}
	for rows.Next() {
		sum, err := scanUserSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		out = append(out, *sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary rows: %w", err)
	}
	return out, nil
}

// GetUserSummary returns one of the user's summaries.
func (s *SQLiteStore) GetUserSummary(ctx context.Context, userID, id int64) (*chat.UserSummary, error) {
	sum, err := scanUserSummary(s.db.QueryRowContext(ctx,
		userSummaryQuery+` WHERE s.id = ? AND s.user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	return sum, nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
