package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/metrics"
	"github.com/JakeFAU/professor-crawler/internal/progress/sinks"
	"github.com/JakeFAU/professor-crawler/internal/runs"
)

// Submitter queues runs.
type Submitter interface {
	Submit(ctx context.Context, req runs.Request) (runs.Run, error)
}

// Catalog lists configured universities.
type Catalog interface {
	Names() []string
	Raw(name string) []byte
}

// ProgressReader serves live run snapshots.
type ProgressReader interface {
	Snapshot(runID string) (sinks.Snapshot, bool)
}

// Options controls server behavior.
type Options struct {
	// APIKey, when set, is required on every /v1 request.
	APIKey string
	// RequestTimeout bounds each handler. Zero means 60s.
	RequestTimeout time.Duration
	// Supported lists universities that have an extractor.
	Supported []string
	// Progress, when set, backs GET /v1/runs/{run_id}/progress.
	Progress ProgressReader
}

// Server wires HTTP handlers to the runner and stores.
type Server struct {
	router  chi.Router
	runner  Submitter
	runs    runs.Store
	catalog Catalog
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Submitter, store runs.Store, catalog Catalog, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		runner:  runner,
		runs:    store,
		catalog: catalog,
		opts:    opts,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/universities", func(r chi.Router) {
			r.Get("/", s.listUniversities)
			r.Get("/{name}/directory", s.getDirectory)
		})
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/", s.listRuns)
			r.Get("/{run_id}", s.getRun)
			r.Get("/{run_id}/progress", s.getRunProgress)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.runner == nil || s.runs == nil || s.catalog == nil {
		s.writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
