// Package server exposes the HTTP surface: session transcripts, task
// status, and the generation endpoint that drives the runner.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/runner"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/skills"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/task"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/config"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/session"
)

// Server wires the HTTP routes to the orchestration core
type Server struct {
	cfg      *config.Config
	sessions *session.Manager
	tasks    *task.Manager
	registry *skills.Registry
	runner   *runner.Runner

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // session key -> in-flight cancel
}

// New creates a server
func New(cfg *config.Config, sessions *session.Manager, tasks *task.Manager, registry *skills.Registry, r *runner.Runner) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		tasks:    tasks,
		registry: registry,
		runner:   r,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Router builds the chi router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/skills", s.handleListSkills)

		r.Route("/sessions/{key}", func(r chi.Router) {
			r.Post("/generate", s.handleGenerate)
			r.Post("/cancel", s.handleCancel)
			r.Get("/turns", s.handleTurns)
			r.Get("/tasks", s.handleListTasks)
			r.Get("/tasks/{taskID}", s.handleTaskStatus)
			r.Get("/tasks/{taskID}/turns", s.handleTaskTurns)
		})
	})

	return r
}

// ListenAndServe runs the server until the context is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	logging.Infof("[Server] Listening on %s", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	type skillInfo struct {
		Name            string   `json:"name"`
		Description     string   `json:"description"`
		Category        string   `json:"category"`
		Classifications []string `json:"classifications,omitempty"`
		Enabled         bool     `json:"enabled"`
	}
	var out []skillInfo
	for _, sk := range s.registry.List() {
		out = append(out, skillInfo{
			Name:            sk.Name,
			Description:     sk.Description,
			Category:        sk.Category,
			Classifications: sk.Classifications,
			Enabled:         sk.Enabled,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type generateRequest struct {
	Prompt    string             `json:"prompt"`
	SkillID   string             `json:"skill_id,omitempty"`
	TargetID  string             `json:"target_id,omitempty"`
	Kind      task.Kind          `json:"kind,omitempty"`
	Records   []skills.RecordRef `json:"records,omitempty"`
	Files     []contextItem      `json:"files,omitempty"`
	Knowledge []contextItem      `json:"knowledge,omitempty"`
}

type contextItem struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// handleGenerate starts a generation run in the background and answers 202
// immediately; callers poll task status for progress. A session with a run
// already in flight answers 409.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.Kind == "" {
		req.Kind = task.KindPageGeneration
	}

	sess, err := s.sessions.GetOrCreate(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if running, err := s.tasks.Running(r.Context(), sess.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if running != nil {
		writeError(w, http.StatusConflict, "a task is already running in this session")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if _, busy := s.cancels[key]; busy {
		s.mu.Unlock()
		cancel()
		writeError(w, http.StatusConflict, "a task is already running in this session")
		return
	}
	s.cancels[key] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.cancels, key)
			s.mu.Unlock()
			cancel()
		}()

		_, err := s.runner.Run(runCtx, runner.Request{
			SessionKey: key,
			Prompt:     req.Prompt,
			SkillID:    req.SkillID,
			TargetID:   req.TargetID,
			Kind:       req.Kind,
			Records:    req.Records,
			Files:      toContextItems(req.Files),
			Knowledge:  toContextItems(req.Knowledge),
		})
		if err != nil {
			logging.Warnf("[Server] Generation for session %s failed: %v", key, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"session_key": key, "status": "accepted"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	s.mu.Lock()
	cancel, ok := s.cancels[key]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "no generation in flight for this session")
		return
	}

	cancel()
	writeJSON(w, http.StatusOK, map[string]string{"session_key": key, "status": "cancelling"})
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	turns, err := s.sessions.Turns(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	tasks, err := s.tasks.List(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	t, err := s.tasks.Get(r.Context(), sess.ID, chi.URLParam(r, "taskID"))
	if errors.Is(err, task.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskTurns(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	turns, err := s.tasks.Turns(r.Context(), sess.ID, chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.GetOrCreate(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return sess, true
}

func toContextItems(items []contextItem) []runner.ContextItem {
	out := make([]runner.ContextItem, len(items))
	for i, item := range items {
		out[i] = runner.ContextItem{Title: item.Title, Body: item.Body}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Errorf("[Server] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
