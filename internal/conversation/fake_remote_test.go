// ABOUTME: In-memory RemoteStore fake for engine tests
// ABOUTME: Supports injected failures and gates that hold a call until released

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/chat"
)

var errBoom = errors.New("boom")

// serverErr mimics a remote error carrying the server's own message.
type serverErr struct{ msg string }

func (e *serverErr) Error() string         { return "server: " + e.msg }
func (e *serverErr) ServerMessage() string { return e.msg }

type gate struct {
	entered chan struct{}
	release chan struct{}
}

type fakeRemote struct {
	mu        sync.Mutex
	clock     time.Time
	nextChat  int64
	nextMsg   int64
	order     []int64 // newest first
	chats     map[int64]*chat.Detail
	models    []chat.Model
	gates     map[string]*gate
	calls     map[string]int
	archiveAs *bool // server-side override of the archived flag
	sendKeys  []string

	failList    error
	failGet     map[int64]error
	failCreate  error
	failUpdate  error
	failDelete  error
	failArchive error
	failSend    error
	failModels  error
	failStats   error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		chats:   make(map[int64]*chat.Detail),
		gates:   make(map[string]*gate),
		calls:   make(map[string]int),
		failGet: make(map[int64]error),
		models: []chat.Model{
			{Name: "echo-en", Active: true, SupportsEnglish: true},
			{Name: "echo-ar", Active: true, SupportsArabic: true},
			{Name: "retired", Active: false, SupportsEnglish: true, SupportsArabic: true},
		},
	}
}

// hold installs a gate on the next call named key ("get:3", "send:3", "list", ...).
func (f *fakeRemote) hold(key string) *gate {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.gates[key] = g
	f.mu.Unlock()
	return g
}

func (f *fakeRemote) enter(ctx context.Context, key string) error {
	f.mu.Lock()
	f.calls[key]++
	g := f.gates[key]
	delete(f.gates, key)
	f.mu.Unlock()

	if g == nil {
		return nil
	}
	close(g.entered)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRemote) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// seed adds a conversation with n prior exchanges and returns its id.
func (f *fakeRemote) seed(title string, lang chat.Language, exchanges int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.createLocked(chat.CreateRequest{Language: lang, Title: title}).ID
	for i := range exchanges {
		f.exchangeLocked(id, chat.SendRequest{Content: fmt.Sprintf("question %d", i), Language: lang})
	}
	return id
}

func (f *fakeRemote) createLocked(req chat.CreateRequest) *chat.Summary {
	f.nextChat++
	now := f.tick()
	d := &chat.Detail{Summary: chat.Summary{
		ID:        f.nextChat,
		UserID:    1,
		Title:     req.Title,
		Language:  req.Language,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	f.chats[d.ID] = d
	f.order = append([]int64{d.ID}, f.order...)
	s := d.Summary.Clone()
	return &s
}

func (f *fakeRemote) exchangeLocked(id int64, req chat.SendRequest) *chat.SendResponse {
	d := f.chats[id]
	f.nextMsg++
	user := chat.Message{ID: f.nextMsg, ConversationID: id, Role: chat.RoleUser, Content: req.Content, Language: req.Language, CreatedAt: f.tick()}
	f.nextMsg++
	reply := chat.Message{ID: f.nextMsg, ConversationID: id, Role: chat.RoleAssistant, Content: "echo: " + req.Content,
		Model: "echo-en", Language: req.Language, TokensUsed: 3, ResponseTime: 0.25, CreatedAt: f.tick()}
	d.Messages = append(d.Messages, user, reply)
	if d.Title == "" {
		d.Title = chat.DeriveTitle(req.Content)
	}
	d.UpdatedAt = reply.CreatedAt
	return &chat.SendResponse{UserMessage: user, AssistantMessage: reply, ModelUsed: "echo-en"}
}

func (f *fakeRemote) summaryLocked(id int64) chat.Summary {
	d := f.chats[id]
	s := d.Summary.Clone()
	s.MessageCount = len(d.Messages)
	if n := len(d.Messages); n > 0 {
		s.LastMessage = d.Messages[n-1].Preview()
	}
	return s
}

func (f *fakeRemote) ListConversations(ctx context.Context, _ *auth.Session) ([]chat.Summary, error) {
	if err := f.enter(ctx, "list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	out := make([]chat.Summary, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.summaryLocked(id))
	}
	return out, nil
}

func (f *fakeRemote) GetConversation(ctx context.Context, _ *auth.Session, id int64) (*chat.Detail, error) {
	if err := f.enter(ctx, fmt.Sprintf("get:%d", id)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failGet[id]; err != nil {
		return nil, err
	}
	d, ok := f.chats[id]
	if !ok {
		return nil, &serverErr{msg: "Not found."}
	}
	out := d.Clone()
	out.Summary = f.summaryLocked(id)
	return out, nil
}

func (f *fakeRemote) CreateConversation(ctx context.Context, _ *auth.Session, req chat.CreateRequest) (*chat.Summary, error) {
	if err := f.enter(ctx, "create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	return f.createLocked(req), nil
}

func (f *fakeRemote) UpdateConversation(ctx context.Context, _ *auth.Session, id int64, req chat.UpdateRequest) (*chat.Summary, error) {
	if err := f.enter(ctx, fmt.Sprintf("update:%d", id)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return nil, f.failUpdate
	}
	d, ok := f.chats[id]
	if !ok {
		return nil, &serverErr{msg: "Not found."}
	}
	if req.Title != nil {
		d.Title = *req.Title
	}
	if req.Archived != nil {
		d.Archived = *req.Archived
	}
	d.UpdatedAt = f.tick()
	s := f.summaryLocked(id)
	return &s, nil
}

func (f *fakeRemote) DeleteConversation(ctx context.Context, _ *auth.Session, id int64) error {
	if err := f.enter(ctx, fmt.Sprintf("delete:%d", id)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.chats, id)
	for i, v := range f.order {
		if v == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRemote) SetArchived(ctx context.Context, _ *auth.Session, id int64, archived bool) (*chat.Summary, error) {
	if err := f.enter(ctx, fmt.Sprintf("archive:%d", id)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failArchive != nil {
		return nil, f.failArchive
	}
	d, ok := f.chats[id]
	if !ok {
		return nil, &serverErr{msg: "Not found."}
	}
	d.Archived = archived
	if f.archiveAs != nil {
		d.Archived = *f.archiveAs
	}
	s := f.summaryLocked(id)
	return &s, nil
}

func (f *fakeRemote) SendMessage(ctx context.Context, _ *auth.Session, id int64, req chat.SendRequest) (*chat.SendResponse, error) {
	if err := f.enter(ctx, fmt.Sprintf("send:%d", id)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendKeys = append(f.sendKeys, req.IdempotencyKey)
	if f.failSend != nil {
		return nil, f.failSend
	}
	if _, ok := f.chats[id]; !ok {
		return nil, &serverErr{msg: "Not found."}
	}
	return f.exchangeLocked(id, req), nil
}

func (f *fakeRemote) ListModels(ctx context.Context, _ *auth.Session) ([]chat.Model, error) {
	if err := f.enter(ctx, "models"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failModels != nil {
		return nil, f.failModels
	}
	return append([]chat.Model(nil), f.models...), nil
}

func (f *fakeRemote) Statistics(ctx context.Context, _ *auth.Session) (*chat.Statistics, error) {
	if err := f.enter(ctx, "stats"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStats != nil {
		return nil, f.failStats
	}
	stats := &chat.Statistics{TotalChats: len(f.chats), ChatsByLanguage: map[chat.Language]int{}, MessagesByModel: map[string]int{}}
	for _, d := range f.chats {
		stats.TotalMessages += len(d.Messages)
		stats.ChatsByLanguage[d.Language]++
	}
	return stats, nil
}
