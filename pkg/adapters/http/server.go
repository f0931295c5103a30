// Package http exposes trees and background runs over a JSON API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/aretw0/cascade/pkg/runner"
	"github.com/aretw0/cascade/pkg/session"
	"github.com/go-chi/chi/v5"
)

// Store is the persistence the API needs: engine reads plus tree import.
type Store interface {
	ports.TreeStore
	ports.TreeCatalog
}

// Server holds the handler dependencies.
type Server struct {
	Store    Store
	Sessions *session.Manager
	Version  string
	Logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = strings.TrimSpace(v)
	}
}

// NewHandler wires the routes.
func NewHandler(store Store, sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		Store:    store,
		Sessions: sessions,
		Version:  "dev",
		Logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/trees", func(r chi.Router) {
		r.Get("/", s.ListTrees)
		r.Put("/", s.PutTree)
		r.Get("/{id}", s.GetTree)
		r.Get("/{id}/validate", s.ValidateTree)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.ListRuns)
		r.Post("/", s.StartRun)
		r.Get("/{id}", s.GetRun)
		r.Delete("/{id}", s.ForgetRun)
		r.Get("/{id}/events", s.SubscribeEvents)
		r.Post("/{id}/answer", s.Answer)
		r.Post("/{id}/decision", s.Decide)
		r.Post("/{id}/cancel", s.Cancel)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
	s.writeJSON(w, http.StatusOK, map[string]string{"app": "cascade-http", "version": s.Version})
}

// ListTrees handles GET /trees.
func (s *Server) ListTrees(w http.ResponseWriter, r *http.Request) {
	roots, err := s.Store.ListRoots(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, roots)
}

// PutTree handles PUT /trees. Trees with validation errors are rejected.
func (s *Server) PutTree(w http.ResponseWriter, r *http.Request) {
	var root domain.PromptNode
	if err := json.NewDecoder(r.Body).Decode(&root); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	issues := runtime.ValidateTree(&root, nil)
	if runtime.HasErrors(issues) {
		s.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Valid: false, Issues: issues})
		return
	}
	if err := s.Store.PutTree(r.Context(), &root); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, validationResponse{Valid: true, Issues: issues})
}

// GetTree handles GET /trees/{id}.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.Store.GetSubtree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tree)
}

type validationResponse struct {
	Valid  bool            `json:"valid"`
	Issues []runtime.Issue `json:"issues"`
}

// ValidateTree handles GET /trees/{id}/validate.
func (s *Server) ValidateTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.Store.GetSubtree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	issues := runtime.ValidateTree(tree, nil)
	s.writeJSON(w, http.StatusOK, validationResponse{Valid: !runtime.HasErrors(issues), Issues: issues})
}

type startRunRequest struct {
	NodeID   string         `json:"node_id"`
	Mode     domain.RunMode `json:"mode,omitempty"`
	MaxDepth int            `json:"max_depth,omitempty"`
	Seed     map[string]any `json:"seed,omitempty"`
	Wait     bool           `json:"wait,omitempty"`
}

type runView struct {
	ID        string                `json:"id"`
	RootID    string                `json:"root_id"`
	Mode      domain.RunMode        `json:"mode"`
	StartedAt time.Time             `json:"started_at"`
	Finished  bool                  `json:"finished"`
	State     domain.RunSnapshot    `json:"state"`
	Result    *domain.CascadeResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func viewOf(run *session.Run) runView {
	v := runView{
		ID:        run.ID,
		RootID:    run.RootID,
		Mode:      run.Mode,
		StartedAt: run.StartedAt,
		Finished:  run.Finished(),
		State:     run.Snapshot(),
	}
	if v.Finished {
		res, err := run.Result()
		v.Result = res
		if err != nil {
			v.Error = err.Error()
		}
	}
	return v
}

// StartRun handles POST /runs. With wait the response carries the result,
// otherwise it returns 202 and the run is polled or streamed.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	var body startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	if body.NodeID == "" {
		s.badRequest(w, "node_id is required", nil)
		return
	}
	switch body.Mode {
	case "", domain.ModeCascade, domain.ModeSingle:
	default:
		s.badRequest(w, fmt.Sprintf("unknown mode %q", body.Mode), nil)
		return
	}

	run, err := s.Sessions.Start(r.Context(), session.StartRequest{
		Mode:    body.Mode,
		NodeID:  body.NodeID,
		Options: domain.CascadeOptions{MaxDepth: body.MaxDepth, Seed: body.Seed},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !body.Wait {
		s.writeJSON(w, http.StatusAccepted, viewOf(run))
		return
	}
	if _, err := run.Wait(r.Context()); err != nil && !run.Finished() {
		s.writeError(w, r, err)
		return
	}
	view := viewOf(run)
	status := http.StatusOK
	if _, runErr := run.Result(); runErr != nil {
		status = statusOf(runErr)
	}
	s.writeJSON(w, status, view)
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.Sessions.List()
	out := make([]runView, 0, len(runs))
	for _, run := range runs {
		out = append(out, viewOf(run))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(run))
}

// ForgetRun handles DELETE /runs/{id}.
func (s *Server) ForgetRun(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Forget(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type answerRequest struct {
	// Answer is nil to cancel the asking node.
	Answer *string `json:"answer"`
}

// Answer handles POST /runs/{id}/answer.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body answerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	if body.Answer != nil {
		clean, err := runner.SanitizeInput(*body.Answer)
		if err != nil {
			s.badRequest(w, "invalid answer", err)
			return
		}
		body.Answer = &clean
	}
	if err := run.Answer(body.Answer); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type decisionRequest struct {
	Approve bool `json:"approve"`
}

// Decide handles POST /runs/{id}/decision.
func (s *Server) Decide(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body", err)
		return
	}
	if err := run.Decide(body.Approve); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /runs/{id}/cancel. The run stops before its next node.
func (s *Server) Cancel(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	run.Cancel()
	s.writeJSON(w, http.StatusAccepted, viewOf(run))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Run, bool) {
	run, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return run, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNodeNotFound), errors.Is(err, session.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRunInProgress), errors.Is(err, domain.ErrNothingPending):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoChildrenToCascade):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.Logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed", "err", err)
	}
}
