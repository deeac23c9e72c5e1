// ABOUTME: HTTP handlers for login, conversations, messages, models and statistics
// ABOUTME: Validation failures use field-keyed bodies; other failures use {"error": ...}

package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/chat"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/store"
)

// maxBodySize bounds every JSON request body.
const maxBodySize = 1 << 20

const (
	msgBlank      = "This field may not be blank."
	msgRequired   = "This field is required."
	msgUnexpected = "An unexpected error occurred"
)

// LoginRequest is the JSON request body for POST /api/auth/login/.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginUser identifies the account in a LoginResponse.
type LoginUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// LoginResponse is the JSON response for POST /api/auth/login/.
type LoginResponse struct {
	Access string    `json:"access"`
	User   LoginUser `json:"user"`
}

// ArchiveRequest is the JSON request body for POST /api/chats/{id}/archive/.
type ArchiveRequest struct {
	Archived *bool `json:"is_archived"`
}

// ArchiveResponse is the JSON response for POST /api/chats/{id}/archive/.
type ArchiveResponse struct {
	Message string       `json:"message"`
	Chat    chat.Summary `json:"chat"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// sendFieldError writes a validation failure keyed by the offending field.
func (s *Server) sendFieldError(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, map[string][]string{field: {message}})
}

func (s *Server) sendNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

// sendStoreError maps a store failure to a response.
func (s *Server) sendStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.sendNotFound(w)
		return
	}
	s.logger.Error("store operation failed", "op", op, "error", err)
	s.sendJSONError(w, http.StatusInternalServerError, msgUnexpected)
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// pathID parses the {id} wildcard. ok is false for anything but a positive integer.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// handleLogin handles POST /api/auth/login/.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" {
		s.sendFieldError(w, "username", msgRequired)
		return
	}
	if req.Password == "" {
		s.sendFieldError(w, "password", msgRequired)
		return
	}

	var hash string
	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	switch {
	case err == nil:
		hash = user.PasswordHash
	case !errors.Is(err, store.ErrNotFound):
		s.sendStoreError(w, "login", err)
		return
	}

	if err := auth.CheckPassword(hash, req.Password); err != nil {
		s.logger.Info("login rejected", "username", req.Username)
		s.sendJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.verifier.Generate(user.ID, user.Username, s.tokenTTL)
	if err != nil {
		s.logger.Error("failed to issue token", "user_id", user.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, LoginResponse{
		Access: token,
		User:   LoginUser{ID: user.ID, Username: user.Username},
	})
}

// handleListChats handles GET /api/chats/.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	chats, err := s.store.ListChats(r.Context(), caller.UserID)
	if err != nil {
		s.sendStoreError(w, "list_chats", err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// handleCreateChat handles POST /api/chats/.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	var req chat.CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Language == "" {
		s.sendFieldError(w, "language", msgRequired)
		return
	}
	if !req.Language.Valid() {
		s.sendFieldError(w, "language", fmt.Sprintf("%q is not a valid choice.", req.Language))
		return
	}

	created, err := s.store.CreateChat(r.Context(), caller.UserID, req.Language, strings.TrimSpace(req.Title))
	if err != nil {
		s.sendStoreError(w, "create_chat", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetChat handles GET /api/chats/{id}/.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		s.sendNotFound(w)
		return
	}

	detail, err := s.store.GetChat(r.Context(), caller.UserID, id)
	if err != nil {
		s.sendStoreError(w, "get_chat", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleUpdateChat handles PATCH /api/chats/{id}/.
func (s *Server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		s.sendNotFound(w)
		return
	}

	var req chat.UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			s.sendFieldError(w, "title", msgBlank)
			return
		}
		req.Title = &title
	}

	updated, err := s.store.UpdateChat(r.Context(), caller.UserID, id, req)
	if err != nil {
		s.sendStoreError(w, "update_chat", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteChat handles DELETE /api/chats/{id}/.
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		s.sendNotFound(w)
		return
	}

	if err := s.store.DeleteChat(r.Context(), caller.UserID, id); err != nil {
		s.sendStoreError(w, "delete_chat", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleArchiveChat handles POST /api/chats/{id}/archive/.
// A missing is_archived archives the conversation.
func (s *Server) handleArchiveChat(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		s.sendNotFound(w)
		return
	}

	var req ArchiveRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	archived := true
	if req.Archived != nil {
		archived = *req.Archived
	}

	updated, err := s.store.UpdateChat(r.Context(), caller.UserID, id, chat.UpdateRequest{Archived: &archived})
	if err != nil {
		s.sendStoreError(w, "archive_chat", err)
		return
	}

	msg := "Chat archived"
	if !archived {
		msg = "Chat unarchived"
	}
	writeJSON(w, http.StatusOK, ArchiveResponse{Message: msg, Chat: *updated})
}

// handleSendMessage handles POST /api/chats/{id}/send_message/.
//
// Responsibilities:
//  1. Reserve the Idempotency-Key, rejecting replays with 409
//  2. Validate content, language and model
//  3. Generate the reply and persist both messages together
//
// The key is released on every failure so the client may retry.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		s.sendNotFound(w)
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" && s.dedupe != nil {
		cacheKey := dedupe.Key(caller.UserID, key)
		if !s.dedupe.Reserve(cacheKey) {
			s.logger.Warn("duplicate send rejected", "user_id", caller.UserID, "conversation_id", id)
			s.sendJSONError(w, http.StatusConflict, "duplicate request")
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if rec.status >= 300 {
				s.dedupe.Release(cacheKey)
			}
		}()
		w = rec
	}

	var req chat.SendRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.sendFieldError(w, "content", msgBlank)
		return
	}

	detail, err := s.store.GetChat(r.Context(), caller.UserID, id)
	if err != nil {
		s.sendStoreError(w, "send_message", err)
		return
	}

	lang := req.Language
	if lang == "" {
		lang = detail.Language
	}
	if !lang.Valid() {
		s.sendFieldError(w, "language", fmt.Sprintf("%q is not a valid choice.", lang))
		return
	}

	model, status, msg := s.pickModel(r, req.Model, lang)
	if status != 0 {
		if status == http.StatusBadRequest {
			s.sendFieldError(w, "ai_model", msg)
		} else {
			s.sendJSONError(w, status, msg)
		}
		return
	}

	userMsg := chat.Message{
		Role:      chat.RoleUser,
		Content:   req.Content,
		Language:  lang,
		CreatedAt: time.Now().UTC(),
	}

	start := time.Now()
	reply, err := s.responder.Respond(r.Context(), Prompt{
		History:  append(tail(detail.Messages, historyWindow-1), userMsg),
		Language: lang,
		Model:    model,
	})
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error("AI service error", "conversation_id", id, "model", model, "error", err)
		s.sendJSONError(w, http.StatusServiceUnavailable, "AI service error: "+err.Error())
		return
	}

	aiMsg := chat.Message{
		Role:         chat.RoleAssistant,
		Content:      reply.Content,
		Model:        model,
		Language:     lang,
		TokensUsed:   reply.TokensUsed,
		ResponseTime: elapsed.Seconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.SaveExchange(r.Context(), caller.UserID, id, &userMsg, &aiMsg); err != nil {
		s.sendStoreError(w, "send_message", err)
		return
	}

	s.logger.Debug("exchange stored", "conversation_id", id, "model", model, "tokens", aiMsg.TokensUsed)
	writeJSON(w, http.StatusCreated, chat.SendResponse{
		UserMessage:      userMsg,
		AssistantMessage: aiMsg,
		ModelUsed:        model,
	})
}

// pickModel resolves the requested model, or the first catalogue entry that
// supports lang when none was requested. A non-zero status reports failure.
func (s *Server) pickModel(r *http.Request, requested string, lang chat.Language) (string, int, string) {
	models, err := s.store.ListModels(r.Context())
	if err != nil {
		s.logger.Error("store operation failed", "op", "list_models", "error", err)
		return "", http.StatusInternalServerError, msgUnexpected
	}

	if requested != "" {
		for _, m := range models {
			if m.Name == requested && m.Supports(lang) {
				return m.Name, 0, ""
			}
		}
		return "", http.StatusBadRequest, fmt.Sprintf("%q is not a valid choice.", requested)
	}

	if usable := chat.FilterModels(models, lang); len(usable) > 0 {
		return usable[0].Name, 0, ""
	}
	return "", http.StatusServiceUnavailable, fmt.Sprintf("AI service error: no model available for %s", lang)
}

// handleListModels handles GET /api/ai-models/.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.store.ListModels(r.Context())
	if err != nil {
		s.sendStoreError(w, "list_models", err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

// handleStatistics handles GET /api/chats/statistics/.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	stats, err := s.store.Statistics(r.Context(), caller.UserID)
	if err != nil {
		s.sendStoreError(w, "statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
