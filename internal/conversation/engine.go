// ABOUTME: Engine coordinates every conversation lifecycle operation against the remote store
// ABOUTME: Applies optimistic edits, reconciles on success, rolls back on failure, guards stale results

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/chat"
)

// RemoteStore is what the engine needs from the server-side conversation store
type RemoteStore interface {
	ListConversations(ctx context.Context, sess *auth.Session) ([]chat.Summary, error)
	GetConversation(ctx context.Context, sess *auth.Session, id int64) (*chat.Detail, error)
	CreateConversation(ctx context.Context, sess *auth.Session, req chat.CreateRequest) (*chat.Summary, error)
	UpdateConversation(ctx context.Context, sess *auth.Session, id int64, req chat.UpdateRequest) (*chat.Summary, error)
	DeleteConversation(ctx context.Context, sess *auth.Session, id int64) error
	SetArchived(ctx context.Context, sess *auth.Session, id int64, archived bool) (*chat.Summary, error)
	SendMessage(ctx context.Context, sess *auth.Session, id int64, req chat.SendRequest) (*chat.SendResponse, error)
	ListModels(ctx context.Context, sess *auth.Session) ([]chat.Model, error)
	Statistics(ctx context.Context, sess *auth.Session) (*chat.Statistics, error)
}

// SendResult describes a completed message exchange
type SendResult struct {
	ConversationID   int64
	UserMessage      chat.Message
	AssistantMessage chat.Message
	ModelUsed        string
	// Created is set when the send had to create its conversation first.
	Created bool
}

// Engine is the conversation sync engine for one process.
//
// All repository reads and commits happen under mu; every remote call happens
// outside it. Operations may therefore run concurrently, and each one checks
// that its result is still relevant before committing:
//
//   - sessionGen changes on bind/unbind; results from an older session are dropped.
//   - activeGen changes on every navigation (load, create, close, rebind); a
//     load commits the active detail only while its generation is current.
//   - a send replaces the active detail only when that detail is still the
//     conversation it was sent to. A load of that conversation still in
//     flight is left to commit on its own. The list patch is keyed by id and
//     always applies.
type Engine struct {
	remote  RemoteStore
	changes *Broadcaster
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	repo        *Repository
	models      []chat.Model
	session     *auth.Session
	sessionGen  uint64
	activeGen   uint64
	loading     int
	sending     int
	lastErr     string
	nextLocalID int64
}

// New creates an engine with no session bound. Pass nil logger for default.
func New(remote RemoteStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		remote:  remote,
		changes: NewBroadcaster(logger),
		logger:  logger.With("component", "engine"),
		now:     time.Now,
		repo:    NewRepository(),
	}
}

// Subscribe registers for change notifications. See Broadcaster.Subscribe.
func (e *Engine) Subscribe(ctx context.Context) (<-chan Change, string) {
	return e.changes.Subscribe(ctx)
}

// Unsubscribe removes a subscription created with Subscribe.
func (e *Engine) Unsubscribe(subID string) {
	e.changes.Unsubscribe(subID)
}

// Close releases all subscribers.
func (e *Engine) Close() {
	e.changes.Close()
}

// apply runs fn under the engine mutex, then publishes the changes fn reports.
func (e *Engine) apply(fn func() []Change) {
	e.mu.Lock()
	changes := fn()
	e.mu.Unlock()

	for _, c := range changes {
		e.changes.Publish(c)
	}
}

// --- session ---

// BindSession makes sess the current session: all state is cleared, then the
// conversation list and the model catalogue are loaded concurrently. Only a
// list failure is returned; the catalogue is best-effort.
func (e *Engine) BindSession(ctx context.Context, sess *auth.Session) error {
	if sess == nil {
		return ErrNoSession
	}
	e.apply(func() []Change {
		e.resetLocked(sess)
		return allChanges()
	})
	e.logger.Info("session bound", "user_id", sess.UserID, "username", sess.Username)

	var g errgroup.Group
	g.Go(func() error {
		return e.ListConversations(ctx)
	})
	g.Go(func() error {
		_ = e.LoadModels(ctx)
		return nil
	})
	return g.Wait()
}

// UnbindSession clears the list, the active detail and the model catalogue.
// Operations still in flight will not commit.
func (e *Engine) UnbindSession() {
	e.apply(func() []Change {
		e.resetLocked(nil)
		return allChanges()
	})
	e.logger.Info("session unbound")
}

// Session returns the bound session, or nil.
func (e *Engine) Session() *auth.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *Engine) resetLocked(sess *auth.Session) {
	e.session = sess
	e.sessionGen++
	e.activeGen++
	e.repo.Reset()
	e.models = nil
	e.lastErr = ""
}

func allChanges() []Change {
	return []Change{{Kind: ListChanged}, {Kind: ActiveChanged}, {Kind: ModelsChanged}, {Kind: StatusChanged}}
}

// --- read accessors ---

// Conversations returns the conversation list in display order.
func (e *Engine) Conversations() []chat.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repo.Summaries()
}

// Active returns the open conversation, or nil.
func (e *Engine) Active() *chat.Detail {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repo.Active()
}

// Models returns the full model catalogue.
func (e *Engine) Models() []chat.Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]chat.Model(nil), e.models...)
}

// ModelsFor returns the models that may be used when sending in lang.
func (e *Engine) ModelsFor(lang chat.Language) []chat.Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	return chat.FilterModels(e.models, lang)
}

// IsLoading reports whether any list, load, create, delete, archive or rename is in flight.
func (e *Engine) IsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading > 0
}

// IsSendingMessage reports whether any send is in flight.
func (e *Engine) IsSendingMessage() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sending > 0
}

// LastError returns the message of the last remote failure, or "" when none
// is pending. Starting a new operation clears it.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ClearError empties the error slot.
func (e *Engine) ClearError() {
	e.apply(func() []Change {
		if e.lastErr == "" {
			return nil
		}
		e.lastErr = ""
		return []Change{{Kind: StatusChanged}}
	})
}

// --- operation plumbing ---

// begin starts a loading operation: the error slot is cleared and the loading
// count raised. The caller must lower it when committing.
func (e *Engine) begin() (*auth.Session, uint64, error) {
	var sess *auth.Session
	var gen uint64
	e.apply(func() []Change {
		if e.session == nil {
			return nil
		}
		sess, gen = e.session, e.sessionGen
		e.loading++
		e.lastErr = ""
		return []Change{{Kind: StatusChanged}}
	})
	if sess == nil {
		return nil, 0, ErrNoSession
	}
	return sess, gen, nil
}

// fail stores message in the error slot. Must be called with mu held.
func (e *Engine) fail(op, message string, err error) *OperationError {
	e.lastErr = message
	e.logger.Error("operation failed", "op", op, "error", err)
	return &OperationError{Op: op, Message: message, Err: err}
}

// --- operations ---

// ListConversations replaces the list with the server's. On failure the
// previous list and the active detail are left alone.
func (e *Engine) ListConversations(ctx context.Context) error {
	sess, sgen, err := e.begin()
	if err != nil {
		return err
	}

	list, err := e.remote.ListConversations(ctx, sess)

	var result error
	e.apply(func() []Change {
		e.loading--
		changes := []Change{{Kind: StatusChanged}}
		switch {
		case sgen != e.sessionGen:
			result = ErrSessionChanged
		case err != nil:
			result = e.fail("list", "Failed to load chats", err)
		default:
			e.repo.ReplaceList(list)
			changes = append(changes, Change{Kind: ListChanged})
		}
		return changes
	})
	return result
}

// LoadConversation makes id the active conversation. On failure the active
// detail is cleared rather than left showing another conversation. If another
// navigation happens first, the result is discarded and ErrSuperseded returned.
func (e *Engine) LoadConversation(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	sess, sgen, err := e.begin()
	if err != nil {
		return err
	}
	return e.load(ctx, sess, sgen, id)
}

// load fetches id into the active slot. The caller has raised the loading
// count; load lowers it.
func (e *Engine) load(ctx context.Context, sess *auth.Session, sgen uint64, id int64) error {
	var agen uint64
	e.apply(func() []Change {
		e.activeGen++
		agen = e.activeGen
		return nil
	})

	detail, err := e.remote.GetConversation(ctx, sess, id)
	if err == nil && (detail == nil || detail.ID != id) {
		err = fmt.Errorf("%w: detail for conversation %d", ErrMalformedResponse, id)
	}

	var result error
	e.apply(func() []Change {
		e.loading--
		changes := []Change{{Kind: StatusChanged}}
		switch {
		case sgen != e.sessionGen:
			result = ErrSessionChanged
		case agen != e.activeGen:
			if err != nil {
				e.logger.Warn("superseded load failed", "conversation_id", id, "error", err)
			}
			result = ErrSuperseded
		case err != nil:
			e.repo.ReplaceActive(nil)
			result = e.fail("load", "Failed to load chat", err)
			changes = append(changes, Change{Kind: ActiveChanged, ConversationID: id})
		default:
			if !e.repo.ReconcileActive(detail) {
				e.repo.ReplaceActive(detail)
			}
			changes = append(changes, e.projectLocked(detail)...)
			changes = append(changes, Change{Kind: ActiveChanged, ConversationID: id})
		}
		return changes
	})
	return result
}

// CreateConversation creates a conversation, puts it at the front of the list
// and opens it. If the follow-up load fails the conversation still exists: the
// summary is returned and the error slot holds the load failure.
func (e *Engine) CreateConversation(ctx context.Context, lang chat.Language, title string) (*chat.Summary, error) {
	if !lang.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}
	sess, sgen, err := e.begin()
	if err != nil {
		return nil, err
	}

	created, err := e.remote.CreateConversation(ctx, sess, chat.CreateRequest{Language: lang, Title: strings.TrimSpace(title)})
	if err == nil && (created == nil || created.ID <= 0) {
		err = fmt.Errorf("%w: created conversation has no id", ErrMalformedResponse)
	}

	var result error
	e.apply(func() []Change {
		switch {
		case sgen != e.sessionGen:
			result = ErrSessionChanged
		case err != nil:
			result = e.fail("create", "Failed to create chat", err)
		default:
			e.repo.PrependSummary(*created)
			return []Change{{Kind: ListChanged, ConversationID: created.ID}}
		}
		e.loading--
		return []Change{{Kind: StatusChanged}}
	})
	if result != nil {
		return nil, result
	}

	e.logger.Info("conversation created", "conversation_id", created.ID, "language", string(lang))

	if err := e.load(ctx, sess, sgen, created.ID); err != nil {
		e.logger.Debug("new conversation not opened", "conversation_id", created.ID, "error", err)
	}
	out := created.Clone()
	return &out, nil
}

// DeleteConversation deletes id on the server, then drops it from the list.
// If it was the active conversation the active detail is cleared.
func (e *Engine) DeleteConversation(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	sess, sgen, err := e.begin()
	if err != nil {
		return err
	}

	err = e.remote.DeleteConversation(ctx, sess, id)

	var result error
	e.apply(func() []Change {
		e.loading--
		changes := []Change{{Kind: StatusChanged}}
		switch {
		case sgen != e.sessionGen:
			result = ErrSessionChanged
		case err != nil:
			result = e.fail("delete", "Failed to delete chat", err)
		default:
			if e.repo.RemoveSummary(id) {
				changes = append(changes, Change{Kind: ListChanged, ConversationID: id})
			}
			if e.repo.ActiveID() == id {
				e.repo.ReplaceActive(nil)
				changes = append(changes, Change{Kind: ActiveChanged, ConversationID: id})
			}
		}
		return changes
	})
	if result == nil {
		e.logger.Info("conversation deleted", "conversation_id", id)
	}
	return result
}

// ArchiveConversation sets the archived flag of id. The list entry and, when
// open, the active detail take the flag from the server's reply rather than
// from the requested value.
func (e *Engine) ArchiveConversation(ctx context.Context, id int64, archived bool) error {
	if id <= 0 {
		return ErrInvalidID
	}
	sess, sgen, err := e.begin()
	if err != nil {
		return err
	}

	updated, err := e.remote.SetArchived(ctx, sess, id, archived)

	var result error
	e.apply(func() []Change {
		e.loading--
		changes := []Change{{Kind: StatusChanged}}
		switch {
		case sgen != e.sessionGen:
			result = ErrSessionChanged
		case err != nil:
			result = e.fail("archive", "Failed to archive chat", err)
		default:
			changes = append(changes, e.commitSummaryLocked(id, updated, SummaryPatch{Archived: &archived})...)
		}
		return changes
	})
	return result
}

// RenameConversation sets the title of id.
func (e *Engine) RenameConversation(ctx context.Context, id int64, title string) error {
	if id <= 0 {
		return ErrInvalidID
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	sess, sgen, err := e.begin()
	if err != nil {
		return err
	}

	updated, err := e.remote.UpdateConversation(ctx, sess, id, chat.UpdateRequest{Title: &title})

	var result error
	e.apply(func() []Change {
		e.loading--
		changes := []Change{{Kind: StatusChanged}}
		switch {
		case sgen != e.sessionGen:
			result = ErrSessionChanged
		case err != nil:
			result = e.fail("rename", "Failed to rename chat", err)
		default:
			changes = append(changes, e.commitSummaryLocked(id, updated, SummaryPatch{Title: &title})...)
		}
		return changes
	})
	return result
}

// commitSummaryLocked writes a server-returned summary for id into the list
// and mirrors its title and archived flag into the active detail. When the
// server returned nothing usable, fallback is applied instead.
func (e *Engine) commitSummaryLocked(id int64, updated *chat.Summary, fallback SummaryPatch) []Change {
	var changes []Change
	patch := fallback
	if updated != nil && updated.ID == id {
		title, archived := updated.Title, updated.Archived
		patch = SummaryPatch{Title: &title, Archived: &archived}
		if e.repo.ReplaceSummary(*updated) {
			changes = append(changes, Change{Kind: ListChanged, ConversationID: id})
		}
	} else if e.repo.PatchSummary(id, fallback) {
		changes = append(changes, Change{Kind: ListChanged, ConversationID: id})
	}
	if e.repo.PatchActive(id, SummaryPatch{Title: patch.Title, Archived: patch.Archived}) {
		changes = append(changes, Change{Kind: ActiveChanged, ConversationID: id})
	}
	return changes
}

// CloseConversation navigates away: the active detail becomes absent and any
// load in flight loses the right to commit.
func (e *Engine) CloseConversation() {
	e.apply(func() []Change {
		e.activeGen++
		id := e.repo.ActiveID()
		e.repo.ReplaceActive(nil)
		return []Change{{Kind: ActiveChanged, ConversationID: id}}
	})
}

// SendMessage sends content to conversation chatID. A chatID of 0 creates a
// conversation in lang first. While the request is in flight the open
// transcript shows a pending copy of the message. On success the transcript
// and the list entry are rebuilt from the server; on failure the pending copy
// is removed and a *SendError carrying content is returned.
func (e *Engine) SendMessage(ctx context.Context, chatID int64, content string, lang chat.Language, model string) (*SendResult, error) {
	return e.SendMessageWithKey(ctx, chatID, content, lang, model, "")
}

// SendMessageWithKey is SendMessage with a caller-chosen idempotency key.
// Retrying a failed send with the key from its SendError lets the server
// recognise the retry. An empty key gets a fresh one.
func (e *Engine) SendMessageWithKey(ctx context.Context, chatID int64, content string, lang chat.Language, model, key string) (*SendResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if chatID < 0 {
		return nil, ErrInvalidID
	}
	if !lang.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}
	if err := e.checkModel(model, lang); err != nil {
		return nil, err
	}
	if key == "" {
		key = uuid.New().String()
	}

	var sess *auth.Session
	var sgen uint64
	e.apply(func() []Change {
		if e.session == nil {
			return nil
		}
		sess, sgen = e.session, e.sessionGen
		e.sending++
		e.lastErr = ""
		return []Change{{Kind: StatusChanged}}
	})
	if sess == nil {
		return nil, ErrNoSession
	}
	defer e.apply(func() []Change {
		e.sending--
		return []Change{{Kind: StatusChanged}}
	})

	result := &SendResult{ConversationID: chatID}
	if chatID == 0 {
		created, err := e.CreateConversation(ctx, lang, "")
		if err != nil {
			return nil, &SendError{Content: content, IdempotencyKey: key, Err: err}
		}
		chatID = created.ID
		result.ConversationID = chatID
		result.Created = true
	}

	var localID int64
	e.apply(func() []Change {
		e.nextLocalID--
		localID = e.nextLocalID
		if sgen == e.sessionGen && e.repo.AppendPending(chat.NewPending(localID, chatID, content, lang, e.now())) {
			return []Change{{Kind: ActiveChanged, ConversationID: chatID}}
		}
		return nil
	})

	resp, err := e.remote.SendMessage(ctx, sess, chatID, chat.SendRequest{
		Content:        content,
		Language:       lang,
		Model:          model,
		IdempotencyKey: key,
	})
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty send reply", ErrMalformedResponse)
	}
	if err != nil {
		var opErr *OperationError
		e.apply(func() []Change {
			var changes []Change
			if _, ok := e.repo.TakePending(localID); ok {
				changes = append(changes, Change{Kind: ActiveChanged, ConversationID: chatID})
			}
			if sgen == e.sessionGen {
				opErr = e.fail("send", sendFailureMessage(err), err)
			} else {
				opErr = &OperationError{Op: "send", Message: sendFailureMessage(err), Err: err}
			}
			return changes
		})
		return nil, &SendError{Content: content, IdempotencyKey: key, Err: opErr}
	}

	result.UserMessage = resp.UserMessage
	result.AssistantMessage = resp.AssistantMessage
	result.ModelUsed = resp.ModelUsed

	detail, ferr := e.remote.GetConversation(ctx, sess, chatID)
	if ferr == nil && (detail == nil || detail.ID != chatID) {
		ferr = fmt.Errorf("%w: detail for conversation %d", ErrMalformedResponse, chatID)
	}

	e.apply(func() []Change {
		if sgen != e.sessionGen {
			return nil
		}
		e.repo.TakePending(localID)
		if ferr != nil {
			e.logger.Warn("refetch after send failed, patching locally",
				"conversation_id", chatID, "error", ferr)
			return e.patchExchangeLocked(chatID, resp)
		}
		return e.reconcileLocked(chatID, detail)
	})

	e.logger.Debug("message exchanged",
		"conversation_id", chatID,
		"model", resp.ModelUsed,
		"tokens", resp.AssistantMessage.TokensUsed)
	return result, nil
}

// reconcileLocked commits the authoritative detail fetched after a send. The
// active detail is replaced only while it is still chatID.
func (e *Engine) reconcileLocked(chatID int64, detail *chat.Detail) []Change {
	var changes []Change
	if e.repo.ReconcileActive(detail) {
		changes = append(changes, Change{Kind: ActiveChanged, ConversationID: chatID})
	}
	return append(changes, e.projectLocked(detail)...)
}

// projectLocked mirrors detail into its list entry.
func (e *Engine) projectLocked(detail *chat.Detail) []Change {
	if _, ok := e.repo.Summary(detail.ID); !ok {
		return nil
	}
	e.repo.ReplaceList(Project(e.repo.Summaries(), detail))
	return []Change{{Kind: ListChanged, ConversationID: detail.ID}}
}

// patchExchangeLocked applies a confirmed exchange without a fresh detail.
func (e *Engine) patchExchangeLocked(chatID int64, resp *chat.SendResponse) []Change {
	var changes []Change

	count := -1
	if e.repo.AppendConfirmed(chatID, resp.UserMessage, resp.AssistantMessage) {
		active := e.repo.Active()
		count = len(active.ConfirmedMessages())
		p := ExchangePatch(active.Summary, resp)
		p.MessageCount = &count
		e.repo.PatchActive(chatID, p)
		changes = append(changes, Change{Kind: ActiveChanged, ConversationID: chatID})
	}

	if _, ok := e.repo.Summary(chatID); ok {
		e.repo.ReplaceList(ProjectExchange(e.repo.Summaries(), chatID, resp))
		if count >= 0 {
			// The open transcript knows the exact count.
			e.repo.PatchSummary(chatID, SummaryPatch{MessageCount: &count})
		}
		changes = append(changes, Change{Kind: ListChanged, ConversationID: chatID})
	}
	return changes
}

// checkModel rejects a model the catalogue does not offer for lang. With no
// catalogue loaded every model is let through for the server to judge.
func (e *Engine) checkModel(model string, lang chat.Language) error {
	if model == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.models) == 0 {
		return nil
	}
	for _, m := range chat.FilterModels(e.models, lang) {
		if m.Name == model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (%s)", ErrUnsupportedModel, model, lang)
}

// LoadModels refreshes the model catalogue. Failures are logged and returned
// but never touch the error slot or any other state.
func (e *Engine) LoadModels(ctx context.Context) error {
	e.mu.Lock()
	sess, sgen := e.session, e.sessionGen
	e.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	models, err := e.remote.ListModels(ctx, sess)
	if err != nil {
		e.logger.Warn("failed to load models", "error", err)
		return err
	}

	e.apply(func() []Change {
		if sgen != e.sessionGen {
			return nil
		}
		e.models = append([]chat.Model(nil), models...)
		return []Change{{Kind: ModelsChanged}}
	})
	return nil
}

// Statistics reads the user's usage statistics. No engine state changes.
func (e *Engine) Statistics(ctx context.Context) (*chat.Statistics, error) {
	sess := e.Session()
	if sess == nil {
		return nil, ErrNoSession
	}
	stats, err := e.remote.Statistics(ctx, sess)
	if err != nil {
		e.logger.Warn("failed to load statistics", "error", err)
		return nil, &OperationError{Op: "statistics", Message: "Failed to load statistics", Err: err}
	}
	return stats, nil
}
