// Package server exposes block execution, session storage and directory
// lookups over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowhook/internal/block"
	"flowhook/internal/config"
	"flowhook/internal/directory"
	"flowhook/internal/executor"
	"flowhook/internal/logging"
	"flowhook/internal/metrics"
	"flowhook/internal/pipeline"
	"flowhook/internal/session"
)

// MaxRequestBytes caps request bodies accepted by the API.
const MaxRequestBytes = 1 << 20

// BlockRunner runs integration blocks.
type BlockRunner interface {
	Execute(ctx context.Context, def block.Definition, snap session.Snapshot) pipeline.Output
	Resume(ctx context.Context, def block.Definition, snap session.Snapshot, res executor.Result, logs []block.LogEntry) pipeline.Output
}

// Options configures NewHandler. Runner and Store are required; Directory
// and Metrics may be nil, which disables the matching routes.
type Options struct {
	Runner      BlockRunner
	Store       session.Store
	Directory   directory.Lookup
	Metrics     *metrics.Collectors
	MetricsPath string
}

type server struct {
	runner    BlockRunner
	store     session.Store
	directory directory.Lookup
}

// executionRequest is the body of POST /v1/executions.
type executionRequest struct {
	Block   json.RawMessage  `json:"block"`
	Session session.Snapshot `json:"session"`
}

// resumptionRequest is the body of POST /v1/resumptions.
type resumptionRequest struct {
	Block   json.RawMessage  `json:"block"`
	Session session.Snapshot `json:"session"`
	Result  executor.Result  `json:"result"`
	Logs    []block.LogEntry `json:"logs"`
}

// sessionResponse is returned by the session routes.
type sessionResponse struct {
	ID      string           `json:"id"`
	Session session.Snapshot `json:"session"`
}

// NewHandler builds the HTTP API.
func NewHandler(opts Options) http.Handler {
	s := &server{runner: opts.Runner, store: opts.Store, directory: opts.Directory}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		r.Handle(path, opts.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/executions", s.execute)
		r.Post("/resumptions", s.resume)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Post("/", s.createSession)
			r.Get("/{id}", s.getSession)
			r.Put("/{id}", s.putSession)
			r.Delete("/{id}", s.deleteSession)
			r.Post("/{id}/executions", s.executeInSession)
		})

		r.Route("/directory", func(r chi.Router) {
			r.Get("/teams", s.listTeams)
			r.Get("/forwardings", s.listForwardings)
			r.Get("/teams/{teamID}/attendants", s.listAttendants)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Logw(logging.Debug, "HTTP request served",
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *server) execute(w http.ResponseWriter, r *http.Request) {
	var body executionRequest
	if !decodeBody(w, r, &body) {
		return
	}
	def, ok := parseBlock(w, body.Block)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.runner.Execute(r.Context(), def, body.Session))
}

func (s *server) resume(w http.ResponseWriter, r *http.Request) {
	var body resumptionRequest
	if !decodeBody(w, r, &body) {
		return
	}
	def, ok := parseBlock(w, body.Block)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.runner.Resume(r.Context(), def, body.Session, body.Result, body.Logs))
}

func (s *server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	var snap session.Snapshot
	if !decodeBody(w, r, &snap) {
		return
	}
	id := uuid.NewString()
	if err := s.store.Save(r.Context(), id, snap); err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Session: snap})
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.store.Load(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Session: snap})
}

func (s *server) putSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var snap session.Snapshot
	if !decodeBody(w, r, &snap) {
		return
	}
	if err := s.store.Save(r.Context(), id, snap); err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Session: snap})
}

func (s *server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// executeInSession runs a block against a stored session and saves the new
// snapshot when one was produced.
func (s *server) executeInSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	def, ok := parseBlock(w, raw)
	if !ok {
		return
	}
	snap, err := s.store.Load(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}

	out := s.runner.Execute(r.Context(), def, snap)
	if out.NewSessionState != nil {
		if err := s.store.Save(r.Context(), id, *out.NewSessionState); err != nil {
			s.storeError(w, err)
			return
		}
		logging.Logf(logging.Debug, "Session '%s' updated by block '%s'", id, def.ID)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) listTeams(w http.ResponseWriter, r *http.Request) {
	if !s.directoryEnabled(w) {
		return
	}
	teams, err := s.directory.ListTeams(r.Context())
	s.directoryResult(w, teams, err)
}

func (s *server) listForwardings(w http.ResponseWriter, r *http.Request) {
	if !s.directoryEnabled(w) {
		return
	}
	forwardings, err := s.directory.ListForwardings(r.Context())
	s.directoryResult(w, forwardings, err)
}

func (s *server) listAttendants(w http.ResponseWriter, r *http.Request) {
	if !s.directoryEnabled(w) {
		return
	}
	attendants, err := s.directory.ListAttendants(r.Context(), chi.URLParam(r, "teamID"))
	s.directoryResult(w, attendants, err)
}

func (s *server) directoryEnabled(w http.ResponseWriter) bool {
	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, directory.ErrNotConfigured.Error())
		return false
	}
	return true
}

func (s *server) directoryResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		logging.Logf(logging.Warning, "Directory lookup failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	logging.Logf(logging.Error, "Session store failure: %v", err)
	writeError(w, http.StatusInternalServerError, "session store failure")
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("failed to read request body: %v", err))
		return nil, false
	}
	return raw, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	raw, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func parseBlock(w http.ResponseWriter, raw []byte) (block.Definition, bool) {
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "block is required")
		return block.Definition{}, false
	}
	def, err := block.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return block.Definition{}, false
	}
	return def, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logf(logging.Warning, "Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe serves handler on cfg.Addr until ctx is cancelled, then
// shuts down gracefully within cfg.ShutdownTimeoutSeconds.
func ListenAndServe(ctx context.Context, cfg *config.ServerConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logging.Logf(logging.Info, "Starting flowhook server on %s", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = time.Duration(config.DefaultShutdownTimeoutSeconds) * time.Second
		}
		logging.Logf(logging.Info, "Shutting down server (timeout %v)", timeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", timeout, err)
		}
		logging.Logf(logging.Info, "Server stopped gracefully")
		return nil
	}
}
