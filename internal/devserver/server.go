// ABOUTME: Development backend implementing the conversation REST API
// ABOUTME: Wires routes, auth middleware, idempotency cache and graceful shutdown

package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/chat"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/store"
)

// Config holds the dependencies of a Server
type Config struct {
	Store    store.Store
	Secret   []byte
	TokenTTL time.Duration

	// Dedupe rejects replayed Idempotency-Key headers. Nil disables the check.
	Dedupe *dedupe.Cache

	// Responder generates assistant replies. Nil means EchoResponder.
	Responder Responder

	// Summarizer generates profile summaries. Nil means the Responder when
	// it is also a Summarizer, otherwise EchoResponder.
	Summarizer Summarizer

	Logger *slog.Logger
}

// Server serves the conversation API over HTTP
type Server struct {
	store      store.Store
	verifier   *auth.JWTVerifier
	tokenTTL   time.Duration
	dedupe     *dedupe.Cache
	responder  Responder
	summarizer Summarizer
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// New builds a Server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("devserver: store is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("devserver: jwt secret is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	responder := cfg.Responder
	if responder == nil {
		responder = EchoResponder{}
	}
	summarizer := cfg.Summarizer
	if summarizer == nil {
		if sz, ok := responder.(Summarizer); ok {
			summarizer = sz
		} else {
			summarizer = EchoResponder{}
		}
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	s := &Server{
		store:      cfg.Store,
		verifier:   auth.NewJWTVerifier(cfg.Secret),
		tokenTTL:   ttl,
		dedupe:     cfg.Dedupe,
		responder:  responder,
		summarizer: summarizer,
		logger:     logger.With("component", "devserver"),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login/{$}", s.handleLogin)

	protect := auth.HTTPAuthMiddleware(s.verifier, s.store)
	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	api("GET /api/chats/{$}", s.handleListChats)
	api("POST /api/chats/{$}", s.handleCreateChat)
	api("GET /api/chats/statistics/{$}", s.handleStatistics)
	api("GET /api/chats/{id}/{$}", s.handleGetChat)
	api("PATCH /api/chats/{id}/{$}", s.handleUpdateChat)
	api("DELETE /api/chats/{id}/{$}", s.handleDeleteChat)
	api("POST /api/chats/{id}/archive/{$}", s.handleArchiveChat)
	api("POST /api/chats/{id}/send_message/{$}", s.handleSendMessage)
	api("GET /api/ai-models/{$}", s.handleListModels)
	api("GET /api/summaries/{$}", s.handleListSummaries)
	api("GET /api/summaries/{id}/{$}", s.handleGetSummary)
	api("POST /api/summaries/generate/{$}", s.handleGenerateSummary)

	return mux
}

// SeedModels upserts the given catalogue entries in order.
func (s *Server) SeedModels(ctx context.Context, models []chat.Model) error {
	for _, m := range models {
		if err := s.store.UpsertModel(ctx, m); err != nil {
			return fmt.Errorf("seeding model %s: %w", m.Name, err)
		}
	}
	s.logger.Info("model catalogue seeded", "count", len(models))
	return nil
}

// Run listens on addr and serves until ctx is canceled, then shuts down
// gracefully. Returns nil on a context-initiated shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	// The caller's context is already done; shutdown gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.httpServer.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
