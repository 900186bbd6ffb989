package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobqueue/internal/core"
	"jobqueue/internal/models"
	"jobqueue/internal/store"
	"jobqueue/internal/telemetry"
)

// Server wires HTTP handlers for the Submission API adapter described
// in spec.md §6. It never touches the Store or Queue directly; every
// request goes through Core.
type Server struct {
	core         *core.Core
	maxTextBytes int64
}

// New constructs the API server.
func New(c *core.Core, maxTextBytes int64) *Server {
	return &Server{core: c, maxTextBytes: maxTextBytes}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleSubmit)
	r.Get("/jobs", s.handleListFailed)
	r.Get("/jobs/{id}/status", s.handleStatus)
	r.Get("/jobs/{id}/result", s.handleResult)
	return r
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	limited := io.LimitReader(file, s.maxTextBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > s.maxTextBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	id, err := s.core.Submit(string(body))
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			http.Error(w, "file is not valid UTF-8", http.StatusBadRequest)
			return
		}
		http.Error(w, "submit failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"job_id": id,
		"status": string(models.StatusPending),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := s.core.StatusOf(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "status lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     v.ID,
		"status":     v.Status,
		"created_at": v.CreatedAt,
		"updated_at": v.UpdatedAt,
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out, err := s.core.ResultOf(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "result lookup failed", http.StatusInternalServerError)
		return
	}

	switch out.Status {
	case models.StatusDone:
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":     out.ID,
			"status":     out.Status,
			"characters": *out.Characters,
		})
	case models.StatusFailed:
		writeJSON(w, http.StatusConflict, map[string]any{
			"job_id":   out.ID,
			"status":   out.Status,
			"attempts": out.Attempts,
			"error":    out.Error,
		})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": out.ID,
			"status": out.Status,
			"detail": "Result not ready",
		})
	}
}

// handleListFailed is the operational dead-letter visibility surface:
// GET /jobs?status=failed.
func (s *Server) handleListFailed(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != string(models.StatusFailed) {
		http.Error(w, "only status=failed is supported", http.StatusBadRequest)
		return
	}
	views, err := s.core.ListFailed(100)
	if err != nil {
		http.Error(w, "list failed jobs failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
