// ABOUTME: HTTP client for the conversation REST API
// ABOUTME: Bearer-authenticated JSON requests with per-send idempotency keys

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/chat"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 64 << 10
)

// Client talks to the conversation API under {baseURL}/api
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. A client passed to
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server at baseURL (scheme and host, no /api suffix).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "remote")
	return c
}

// BaseURL returns the server address the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends a JSON request and decodes a JSON reply into out (which may be nil).
func (c *Client) do(ctx context.Context, sess *auth.Session, method, path string, body, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	url := c.baseURL + "/api" + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		req.Header.Set("Authorization", sess.AuthorizationHeader())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, b)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// decodeList accepts either a bare JSON array or a {"results": [...]} page.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	if page.Results == nil {
		return []T{}, nil
	}
	return page.Results, nil
}

// ListConversations fetches the user's conversation summaries.
func (c *Client) ListConversations(ctx context.Context, sess *auth.Session) ([]chat.Summary, error) {
	var raw json.RawMessage
	if err := c.do(ctx, sess, http.MethodGet, "/chats/", nil, &raw, nil); err != nil {
		return nil, err
	}
	list, err := decodeList[chat.Summary](raw)
	if err != nil {
		return nil, fmt.Errorf("decoding chat list: %w", err)
	}
	return list, nil
}

// GetConversation fetches one conversation with its transcript.
func (c *Client) GetConversation(ctx context.Context, sess *auth.Session, id int64) (*chat.Detail, error) {
	var d chat.Detail
	if err := c.do(ctx, sess, http.MethodGet, fmt.Sprintf("/chats/%d/", id), nil, &d, nil); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateConversation creates an empty conversation.
func (c *Client) CreateConversation(ctx context.Context, sess *auth.Session, req chat.CreateRequest) (*chat.Summary, error) {
	var s chat.Summary
	if err := c.do(ctx, sess, http.MethodPost, "/chats/", req, &s, nil); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateConversation patches the title and/or archived flag.
func (c *Client) UpdateConversation(ctx context.Context, sess *auth.Session, id int64, req chat.UpdateRequest) (*chat.Summary, error) {
	var s chat.Summary
	if err := c.do(ctx, sess, http.MethodPatch, fmt.Sprintf("/chats/%d/", id), req, &s, nil); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteConversation deletes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, sess *auth.Session, id int64) error {
	return c.do(ctx, sess, http.MethodDelete, fmt.Sprintf("/chats/%d/", id), nil, nil, nil)
}

type archiveResponse struct {
	Message string       `json:"message"`
	Chat    chat.Summary `json:"chat"`
}

// SetArchived archives or restores a conversation and returns the server's summary.
func (c *Client) SetArchived(ctx context.Context, sess *auth.Session, id int64, archived bool) (*chat.Summary, error) {
	body := map[string]bool{"is_archived": archived}
	var resp archiveResponse
	if err := c.do(ctx, sess, http.MethodPost, fmt.Sprintf("/chats/%d/archive/", id), body, &resp, nil); err != nil {
		return nil, err
	}
	return &resp.Chat, nil
}

// SendMessage posts a user message and returns the confirmed exchange. The
// request's IdempotencyKey is sent as the Idempotency-Key header; when empty a
// fresh key is generated. Resending with the same key lets the server reject
// a message it already accepted.
func (c *Client) SendMessage(ctx context.Context, sess *auth.Session, id int64, req chat.SendRequest) (*chat.SendResponse, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}
	headers := map[string]string{"Idempotency-Key": key}
	var resp chat.SendResponse
	if err := c.do(ctx, sess, http.MethodPost, fmt.Sprintf("/chats/%d/send_message/", id), req, &resp, headers); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListModels fetches the assistant model catalogue.
func (c *Client) ListModels(ctx context.Context, sess *auth.Session) ([]chat.Model, error) {
	var raw json.RawMessage
	if err := c.do(ctx, sess, http.MethodGet, "/ai-models/", nil, &raw, nil); err != nil {
		return nil, err
	}
	models, err := decodeList[chat.Model](raw)
	if err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	return models, nil
}

// Statistics fetches the user's usage statistics.
func (c *Client) Statistics(ctx context.Context, sess *auth.Session) (*chat.Statistics, error) {
	var s chat.Statistics
	if err := c.do(ctx, sess, http.MethodGet, "/chats/statistics/", nil, &s, nil); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSummaries fetches the user's profile summaries.
func (c *Client) ListSummaries(ctx context.Context, sess *auth.Session) ([]chat.UserSummary, error) {
	var raw json.RawMessage
	if err := c.do(ctx, sess, http.MethodGet, "/summaries/", nil, &raw, nil); err != nil {
		return nil, err
	}
	list, err := decodeList[chat.UserSummary](raw)
	if err != nil {
		return nil, fmt.Errorf("decoding summary list: %w", err)
	}
	return list, nil
}

// GetSummary fetches one profile summary.
func (c *Client) GetSummary(ctx context.Context, sess *auth.Session, id int64) (*chat.UserSummary, error) {
	var sum chat.UserSummary
	if err := c.do(ctx, sess, http.MethodGet, fmt.Sprintf("/summaries/%d/", id), nil, &sum, nil); err != nil {
		return nil, err
	}
	return &sum, nil
}

// GenerateSummary asks the server to build, or rebuild, the profile summary
// for lang from the user's recent messages.
func (c *Client) GenerateSummary(ctx context.Context, sess *auth.Session, lang chat.Language) (*chat.UserSummary, error) {
	var resp chat.GenerateSummaryResponse
	if err := c.do(ctx, sess, http.MethodPost, "/summaries/generate/", chat.GenerateSummaryRequest{Language: lang}, &resp, nil); err != nil {
		return nil, err
	}
	return &resp.Summary, nil
}

// User is the account returned by login
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// LoginResponse is the reply to a successful login
type LoginResponse struct {
	Access string `json:"access"`
	User   User   `json:"user"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var resp LoginResponse
	if err := c.do(ctx, nil, http.MethodPost, "/auth/login/", body, &resp, nil); err != nil {
		return nil, err
	}
	if resp.Access == "" {
		return nil, fmt.Errorf("login reply has no access token")
	}
	return &resp, nil
}
