package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/router"
	"github.com/JakeFAU/professor-crawler/internal/runs"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

type universitiesResponse struct {
	Supported  []string `json:"supported"`
	Configured []string `json:"configured"`
}

func (s *Server) listUniversities(w http.ResponseWriter, _ *http.Request) {
	resp := universitiesResponse{Supported: s.opts.Supported, Configured: s.catalog.Names()}
	if resp.Supported == nil {
		resp.Supported = []string{}
	}
	if resp.Configured == nil {
		resp.Configured = []string{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getDirectory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	raw := s.catalog.Raw(name)
	if raw == nil {
		s.writeError(w, http.StatusNotFound, "university not configured")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("write directory failed", zap.Error(err))
	}
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req runs.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.University = strings.TrimSpace(req.University)
	if req.University == "" {
		s.writeError(w, http.StatusBadRequest, "university required")
		return
	}

	run, err := s.runner.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, submitStatus(err), err.Error())
		return
	}
	w.Header().Set("Location", "/v1/runs/"+run.ID)
	s.writeJSON(w, http.StatusAccepted, map[string]any{"run": run})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, runs.ErrUnknownUniversity), errors.Is(err, router.ErrUnsupportedUniversity):
		return http.StatusNotFound
	case errors.Is(err, runs.ErrPersistenceDisabled):
		return http.StatusConflict
	case errors.Is(err, runs.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(val, maxRunLimit)
	}
	list, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if list == nil {
		list = []runs.Run{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": list})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) getRunProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "run_id")
	if s.opts.Progress == nil {
		s.writeError(w, http.StatusNotFound, "progress tracking disabled")
		return
	}
	snap, ok := s.opts.Progress.Snapshot(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no progress for run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"progress": snap})
}
