// Package server exposes the council over HTTP: a REST surface for
// conversation management and a websocket endpoint that streams
// deliberation events as JSON frames.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/normanking/quorum/internal/config"
	"github.com/normanking/quorum/internal/council"
	"github.com/normanking/quorum/internal/data"
)

// Server hosts the REST and websocket API.
type Server struct {
	cfg    config.ServerConfig
	router *chi.Mux
	store  *data.Store
	engine *council.Engine

	// Deliberation defaults applied when a request doesn't override them.
	strategy council.SynthesisStrategy
	cycles   int

	log zerolog.Logger
}

// Options configure optional Server behavior.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithStrategy sets the default synthesis strategy.
func WithStrategy(strategy council.SynthesisStrategy) Option {
	return func(s *Server) { s.strategy = strategy }
}

// WithCycles sets the default number of debate cycles.
func WithCycles(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.cycles = n
		}
	}
}

// New creates a Server wired to the given store and engine.
func New(cfg config.ServerConfig, store *data.Store, engine *council.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		store:    store,
		engine:   engine,
		strategy: council.SynthesisReflection,
		cycles:   1,
		log:      zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		if s.cfg.APIToken != "" {
			r.Use(s.requireToken)
		}

		r.Route("/api/conversations", func(r chi.Router) {
			r.Get("/", s.handleListConversations)
			r.Post("/", s.handleCreateConversation)
			r.Get("/{id}", s.handleGetConversation)
			r.Delete("/{id}", s.handleDeleteConversation)
		})

		r.Get("/ws", s.handleWS)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.cfg.Addr()).Msg("server listening")
	return srv.ListenAndServe()
}

// requireToken enforces bearer-token auth when an API token is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		// Websocket clients can't set headers from browsers, allow query param.
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing API token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Health(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		s.log.Error().Err(err).Msg("health check failed")
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	conversations, err := s.store.ListConversations(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list conversations failed")
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []*data.Conversation{}
	}

	writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := s.store.CreateConversation(r.Context(), req.Title)
	if err != nil {
		s.log.Error().Err(err).Msg("create conversation failed")
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
