package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/quire"
	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/ports"
)

// Server exposes a ports.Engine over HTTP.
type Server struct {
	Engine  ports.Engine
	Streams *StreamManager

	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithStreams shares a StreamManager with the engine hooks (see StreamHooks).
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetrics mounts a metrics handler (typically promhttp.Handler()) on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine ports.Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager()
	}

	r := chi.NewRouter()
	if doc, err := GetSwagger(); err != nil {
		s.logger.Error("request validation disabled", "err", err)
	} else if validate, err := s.requestValidator(doc); err != nil {
		s.logger.Error("request validation disabled", "err", err)
	} else {
		r.Use(validate)
	}

	r.Get("/openapi.yaml", s.serveSpec)
	r.Get("/swagger", serveSwaggerUI)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Get("/actions", s.ListActions)
	r.Post("/actions/{name}/execute", s.ExecuteSingle)
	r.Post("/plan", s.Plan)
	r.Post("/execute", s.Execute)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.StartSession)
		r.Get("/{id}", s.GetSession)
		r.Delete("/{id}", s.DeleteSession)
		r.Post("/{id}/pursue", s.Pursue)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":         "quire-http",
		"version":     strings.TrimSpace(quire.Version),
		"api_version": apiVersion,
		"actions":     len(s.Engine.Actions()),
	})
}

// ListActions handles the GET /actions request.
func (s *Server) ListActions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Actions())
}

// Plan handles the POST /plan request.
func (s *Server) Plan(w http.ResponseWriter, r *http.Request) {
	var body GoalRequest
	if !s.decode(w, r, &body) {
		return
	}
	state, goal, err := parseGoalRequest(body)
	if err != nil {
		s.fail(w, "Plan", badRequest(err))
		return
	}

	plan, err := s.Engine.Plan(r.Context(), state, goal)
	if err != nil {
		s.fail(w, "Plan", err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapPlan(plan))
}

// Execute handles the POST /execute request: plan then run from the given state.
// Partial runs reply 200 with the error embedded in the body.
func (s *Server) Execute(w http.ResponseWriter, r *http.Request) {
	var body GoalRequest
	if !s.decode(w, r, &body) {
		return
	}
	state, goal, err := parseGoalRequest(body)
	if err != nil {
		s.fail(w, "Execute", badRequest(err))
		return
	}

	plan, err := s.Engine.Plan(r.Context(), state, goal)
	if err != nil {
		s.fail(w, "Execute", err)
		return
	}
	res, err := s.Engine.Execute(r.Context(), plan, state)
	if res == nil {
		s.fail(w, "Execute", err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapRun(res, err))
}

// ExecuteSingle handles the POST /actions/{name}/execute request.
func (s *Server) ExecuteSingle(w http.ResponseWriter, r *http.Request) {
	var body StateRequest
	if !s.decode(w, r, &body) {
		return
	}
	state, err := domain.StateFromMap(body.State)
	if err != nil {
		s.fail(w, "ExecuteSingle", badRequest(err))
		return
	}

	name, err := pathParam(r, "name")
	if err != nil {
		s.fail(w, "ExecuteSingle", err)
		return
	}
	res, next, err := s.Engine.ExecuteSingle(r.Context(), name, state)
	if errors.Is(err, domain.ErrUnknownAction) {
		s.fail(w, "ExecuteSingle", err)
		return
	}
	s.writeJSON(w, http.StatusOK, SingleResponse{Result: mapResult(res), State: next})
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Sessions(r.Context())
	if err != nil {
		s.fail(w, "ListSessions", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// StartSession handles the POST /sessions request.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body SessionRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ID == "" {
		s.fail(w, "StartSession", badRequest(errors.New("session id is required")))
		return
	}
	state, err := domain.StateFromMap(body.State)
	if err != nil {
		s.fail(w, "StartSession", badRequest(err))
		return
	}

	snap, err := s.Engine.StartSession(r.Context(), body.ID, state)
	if err != nil {
		s.fail(w, "StartSession", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

// GetSession handles the GET /sessions/{id} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathParam(r, "id")
	if err != nil {
		s.fail(w, "GetSession", err)
		return
	}
	snap, err := s.Engine.State(r.Context(), sessionID)
	if err != nil {
		s.fail(w, "GetSession", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// DeleteSession handles the DELETE /sessions/{id} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathParam(r, "id")
	if err != nil {
		s.fail(w, "DeleteSession", err)
		return
	}
	if err := s.Engine.DeleteSession(r.Context(), sessionID); err != nil {
		s.fail(w, "DeleteSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pursue handles the POST /sessions/{id}/pursue request and broadcasts the
// resulting state diff to the session's subscribers.
func (s *Server) Pursue(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathParam(r, "id")
	if err != nil {
		s.fail(w, "Pursue", err)
		return
	}
	var body PursueRequest
	if !s.decode(w, r, &body) {
		return
	}
	goal, err := catalog.ParseGoal(body.Goal)
	if err != nil {
		s.fail(w, "Pursue", badRequest(err))
		return
	}

	before, err := s.Engine.State(r.Context(), sessionID)
	if err != nil {
		s.fail(w, "Pursue", err)
		return
	}

	res, err := s.Engine.Pursue(r.Context(), sessionID, goal)
	if res == nil {
		s.fail(w, "Pursue", err)
		return
	}

	if diff := domain.Diff(before.State, res.FinalState); diff != nil {
		if payload, merr := json.Marshal(diff); merr == nil {
			s.Streams.Broadcast(sessionID, string(payload))
		}
	}
	s.writeJSON(w, http.StatusOK, mapRun(res, err))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

// fail maps engine errors to HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	var cfgErr *domain.ConfigError
	var planErr *domain.PlanningError
	switch {
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrUnknownAction):
		status = http.StatusNotFound
	case errors.As(err, &planErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvariantViolation), errors.As(err, &cfgErr):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "status", status, "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
