// ABOUTME: HTTP handlers for profile summaries of a user's conversations
// ABOUTME: Generation reads recent user messages and upserts one summary per language

package devserver

import (
	"net/http"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/chat"
)

// handleListSummaries handles GET /api/summaries/.
func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	list, err := s.store.ListUserSummaries(r.Context(), caller.UserID)
	if err != nil {
		s.sendStoreError(w, "list_summaries", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetSummary handles GET /api/summaries/{id}/.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		s.sendNotFound(w)
		return
	}
	sum, err := s.store.GetUserSummary(r.Context(), caller.UserID, id)
	if err != nil {
		s.sendStoreError(w, "get_summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleGenerateSummary handles POST /api/summaries/generate/. It replies 201
// when the summary for the language is new and 200 when it was replaced.
func (s *Server) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	var req chat.GenerateSummaryRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	lang := req.Language
	if lang == "" {
		lang = chat.LanguageEnglish
	}
	if !lang.Valid() {
		s.sendJSONError(w, http.StatusBadRequest, `Invalid language. Must be "en" or "ar".`)
		return
	}

	msgs, err := s.store.RecentUserMessages(r.Context(), caller.UserID, lang, chat.SummaryMessageLimit)
	if err != nil {
		s.sendStoreError(w, "generate_summary", err)
		return
	}
	if len(msgs) == 0 {
		s.sendJSONError(w, http.StatusBadRequest, "No messages found to generate summary.")
		return
	}

	model, status, msg := s.pickModel(r, "", lang)
	if status != 0 {
		s.sendJSONError(w, status, msg)
		return
	}

	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Content
	}
	digest, err := s.summarizer.Summarize(r.Context(), lang, texts)
	if err != nil {
		s.logger.Error("summary generation failed", "user_id", caller.UserID, "error", err)
		s.sendJSONError(w, http.StatusServiceUnavailable, "Failed to generate summary: "+err.Error())
		return
	}

	chats, err := s.store.ListChats(r.Context(), caller.UserID)
	if err != nil {
		s.sendStoreError(w, "generate_summary", err)
		return
	}

	sum := chat.UserSummary{
		UserID:        caller.UserID,
		Username:      caller.Username,
		Language:      lang,
		Text:          digest.Text,
		Topics:        digest.Topics,
		CommonQueries: digest.CommonQueries,
		ChatCount:     len(chats),
		MessageCount:  len(msgs),
		Model:         model,
	}
	created, err := s.store.SaveUserSummary(r.Context(), &sum)
	if err != nil {
		s.sendStoreError(w, "generate_summary", err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	s.logger.Info("summary generated", "user_id", caller.UserID, "language", string(lang), "messages", len(msgs))
	writeJSON(w, code, chat.GenerateSummaryResponse{
		Message: "Summary generated successfully",
		Summary: sum,
	})
}
