package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/runner"
)

// Sessions is the multi-session boundary the server drives.
// *session.Manager implements it.
type Sessions interface {
	Start(ctx context.Context, sessionID string, initial map[string]any) (string, *domain.Result, error)
	Resume(ctx context.Context, sessionID, input string) (*domain.Result, error)
	Get(ctx context.Context, sessionID string) (*domain.Result, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// Server exposes one compiled workflow over HTTP, one run per session.
type Server struct {
	Sessions Sessions
	Graph    *domain.Graph
	Streams  *StreamManager

	logger  *slog.Logger
	metrics http.Handler
	version string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts h under GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// StartRequest is the body of POST /sessions. Both fields are optional.
type StartRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Values    map[string]any `json:"values,omitempty"`
}

// StartResponse is returned by POST /sessions.
type StartResponse struct {
	SessionID string         `json:"session_id"`
	Result    *domain.Result `json:"result"`
}

// ResumeRequest is the body of POST /sessions/{id}/resume.
type ResumeRequest struct {
	Input string `json:"input"`
}

// NewServer creates the server; use Handler to mount it.
func NewServer(sessions Sessions, g *domain.Graph, opts ...Option) *Server {
	s := &Server{
		Sessions: sessions,
		Graph:    g,
		Streams:  NewStreamManager(),
		logger:   logging.NewNop(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates a new HTTP handler serving g through sessions.
func NewHandler(sessions Sessions, g *domain.Graph, opts ...Option) http.Handler {
	return NewServer(sessions, g, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/graph", s.GetGraph)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.StartSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Post("/resume", s.ResumeSession)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":      "arbor-http",
		"version":  s.version,
		"workflow": s.Graph.Name,
	})
}

// GetGraph handles GET /graph. With ?format=mermaid it returns the
// flowchart instead of the JSON graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, graph.GenerateMermaid(s.Graph, nil))
		return
	}
	s.writeJSON(w, http.StatusOK, s.Graph)
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// StartSession handles POST /sessions. An empty body starts a run with a
// generated ID and default values.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("StartSession: invalid request body", "error", err)
			return
		}
	}

	id, res, err := s.Sessions.Start(r.Context(), body.SessionID, body.Values)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcast(id, nil, res)
	s.writeJSON(w, http.StatusCreated, StartResponse{SessionID: id, Result: res})
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// ResumeSession handles POST /sessions/{id}/resume.
func (s *Server) ResumeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("ResumeSession: invalid request body", "error", err)
		return
	}
	input, err := runner.SanitizeInput(body.Input)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("ResumeSession: input rejected", "error", err, "size", len(body.Input))
		return
	}

	var before *domain.Result
	if s.Streams.Has(id) {
		before, _ = s.Sessions.Get(r.Context(), id)
	}
	res, err := s.Sessions.Resume(r.Context(), id, input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.broadcast(id, before, res)
	s.writeJSON(w, http.StatusOK, res)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// broadcast sends subscribers of id what changed between two results.
func (s *Server) broadcast(id string, before, after *domain.Result) {
	if !s.Streams.Has(id) {
		return
	}
	var prev *domain.Snapshot
	if before != nil {
		prev = &domain.Snapshot{Node: before.Node, Values: before.Values}
	}
	diff := domain.Diff(prev, &domain.Snapshot{Node: after.Node, Values: after.Values})
	if diff == nil && before != nil && before.Status == after.Status {
		return
	}
	event := Event{Status: after.Status, Pending: after.Pending, Diff: diff}
	if data, err := json.Marshal(event); err == nil {
		s.Streams.Broadcast(id, string(data))
	}
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var cerr *domain.CompileError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotSuspended), errors.Is(err, domain.ErrFinished):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownField), errors.As(err, &cerr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
