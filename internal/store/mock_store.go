// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows devserver tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/parley/internal/chat"
)

type mockChat struct {
	summary  chat.Summary
	messages []chat.Message
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	users      map[int64]*User  // keyed by user ID
	usernames  map[string]int64 // username -> user ID
	chats      map[int64]*mockChat
	models     []chat.Model
	summaries  map[int64]*chat.UserSummary
	nextUserID int64
	nextChatID int64
	nextMsgID  int64
	nextSumID  int64
	now        func() time.Time
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:     make(map[int64]*User),
		usernames: make(map[string]int64),
		chats:     make(map[int64]*mockChat),
		summaries: make(map[int64]*chat.UserSummary),
		now:       time.Now,
	}
}

// CreateUser stores a new account.
func (m *MockStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usernames[username]; ok {
		return nil, ErrDuplicate
	}
	m.nextUserID++
	u := &User{ID: m.nextUserID, Username: username, PasswordHash: passwordHash, CreatedAt: m.now().UTC()}
	m.users[u.ID] = u
	m.usernames[username] = u.ID

	result := *u
	return &result, nil
}

// GetUserByUsername retrieves an account by name.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.users[id]
	return &result, nil
}

// UserExists reports whether the account exists.
func (m *MockStore) UserExists(ctx context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.users[id]
	return ok, nil
}

// CreateChat stores an empty conversation.
func (m *MockStore) CreateChat(ctx context.Context, userID int64, lang chat.Language, title string) (*chat.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	now := m.now().UTC()
	m.nextChatID++
	c := &mockChat{summary: chat.Summary{
		ID:        m.nextChatID,
		UserID:    userID,
		Username:  u.Username,
		Title:     title,
		Language:  lang,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	m.chats[c.summary.ID] = c

	sum := m.summaryLocked(c)
	return &sum, nil
}

// summaryLocked derives the list fields from the transcript.
func (m *MockStore) summaryLocked(c *mockChat) chat.Summary {
	sum := c.summary.Clone()
	sum.MessageCount = len(c.messages)
	if n := len(c.messages); n > 0 {
		sum.LastMessage = c.messages[n-1].Preview()
	}
	return sum
}

func (m *MockStore) ownedLocked(userID, chatID int64) (*mockChat, error) {
	c, ok := m.chats[chatID]
	if !ok || c.summary.UserID != userID {
		return nil, ErrNotFound
	}
	return c, nil
}

// ListChats returns the user's conversations, most recently updated first.
func (m *MockStore) ListChats(ctx context.Context, userID int64) ([]chat.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []chat.Summary{}
	for _, c := range m.chats {
		if c.summary.UserID == userID {
			result = append(result, m.summaryLocked(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// GetChat returns a conversation with its transcript.
func (m *MockStore) GetChat(ctx context.Context, userID, chatID int64) (*chat.Detail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.ownedLocked(userID, chatID)
	if err != nil {
		return nil, err
	}
	d := &chat.Detail{Summary: m.summaryLocked(c), Messages: make([]chat.Message, len(c.messages))}
	copy(d.Messages, c.messages)
	return d, nil
}

// UpdateChat applies the non-nil fields of req.
func (m *MockStore) UpdateChat(ctx context.Context, userID, chatID int64, req chat.UpdateRequest) (*chat.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.ownedLocked(userID, chatID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		c.summary.Title = *req.Title
	}
	if req.Archived != nil {
		c.summary.Archived = *req.Archived
	}
	c.summary.UpdatedAt = m.now().UTC()

	sum := m.summaryLocked(c)
	return &sum, nil
}

// DeleteChat removes a conversation.
func (m *MockStore) DeleteChat(ctx context.Context, userID, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.ownedLocked(userID, chatID); err != nil {
		return err
	}
	delete(m.chats, chatID)
	return nil
}

// SaveExchange appends both messages and derives a missing title.
func (m *MockStore) SaveExchange(ctx context.Context, userID, chatID int64, user, assistant *chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.ownedLocked(userID, chatID)
	if err != nil {
		return err
	}
	for _, msg := range []*chat.Message{user, assistant} {
		m.nextMsgID++
		msg.ID = m.nextMsgID
		msg.ConversationID = chatID
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = m.now().UTC()
		}
		c.messages = append(c.messages, *msg)
	}
	if c.summary.Title == "" {
		c.summary.Title = chat.DeriveTitle(user.Content)
	}
	c.summary.UpdatedAt = assistant.CreatedAt
	return nil
}

// UpsertModel inserts or replaces a catalogue entry in place.
func (m *MockStore) UpsertModel(ctx context.Context, model chat.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.models {
		if m.models[i].Name == model.Name {
			m.models[i] = model
			return nil
		}
	}
	m.models = append(m.models, model)
	return nil
}

// ListModels returns the catalogue.
func (m *MockStore) ListModels(ctx context.Context) ([]chat.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]chat.Model, len(m.models))
	copy(result, m.models)
	return result, nil
}

// Statistics aggregates the user's activity.
func (m *MockStore) Statistics(ctx context.Context, userID int64) (*chat.Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &chat.Statistics{
		ChatsByLanguage: map[chat.Language]int{},
		MessagesByModel: map[string]int{},
	}
	for _, c := range m.chats {
		if c.summary.UserID != userID {
			continue
		}
		stats.TotalChats++
		stats.ChatsByLanguage[c.summary.Language]++
		stats.TotalMessages += len(c.messages)
		for _, msg := range c.messages {
			if msg.Role == chat.RoleAssistant {
				stats.MessagesByModel[msg.Model]++
			}
		}
	}
	stats.AverageMessagesPerChat = averagePerChat(stats.TotalMessages, stats.TotalChats)
	return stats, nil
}

// RecentUserMessages returns the user's own messages in lang, newest first.
func (m *MockStore) RecentUserMessages(ctx context.Context, userID int64, lang chat.Language, limit int) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []chat.Message{}
	for _, c := range m.chats {
		if c.summary.UserID != userID {
			continue
		}
		for _, msg := range c.messages {
			if msg.Role == chat.RoleUser && msg.Language == lang {
				result = append(result, msg)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SaveUserSummary replaces the user's summary for the same language.
func (m *MockStore) SaveUserSummary(ctx context.Context, s *chat.UserSummary) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[s.UserID]
	if !ok {
		return false, ErrNotFound
	}
	now := m.now().UTC()
	s.Username = u.Username
	s.UpdatedAt = now
	for _, existing := range m.summaries {
		if existing.UserID == s.UserID && existing.Language == s.Language {
			s.ID, s.CreatedAt = existing.ID, existing.CreatedAt
			stored := s.Clone()
			m.summaries[s.ID] = &stored
			return false, nil
		}
	}
	m.nextSumID++
	s.ID, s.CreatedAt = m.nextSumID, now
	stored := s.Clone()
	m.summaries[s.ID] = &stored
	return true, nil
}

// ListUserSummaries returns the user's summaries, most recently updated first.
func (m *MockStore) ListUserSummaries(ctx context.Context, userID int64) ([]chat.UserSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []chat.UserSummary{}
	for _, s := range m.summaries {
		if s.UserID == userID {
			result = append(result, s.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// GetUserSummary returns one of the user's summaries.
func (m *MockStore) GetUserSummary(ctx context.Context, userID, id int64) (*chat.UserSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summaries[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	out := s.Clone()
	return &out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
