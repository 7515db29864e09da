package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/engine"
)

// Runner starts scoring runs. Satisfied by *engine.Engine.
type Runner interface {
	Run(ctx context.Context, opts engine.RunOptions) (*domain.RunSummary, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	runner  Runner
	cache   domain.Cache
	store   domain.RecordStore
	version string
}

// NewHandler creates a new API handler.
func NewHandler(runner Runner, cache domain.Cache, store domain.RecordStore, version string) *Handler {
	return &Handler{
		runner:  runner,
		cache:   cache,
		store:   store,
		version: version,
	}
}

// RunRequest is the request body for POST /runs.
type RunRequest struct {
	DryRun    *bool  `json:"dry_run,omitempty"`
	Target    string `json:"target,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	Backup    *bool  `json:"backup,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

// TriggerRun handles POST /runs: executes a scoring run synchronously and
// returns its summary. Writes stay disabled unless the body enables them.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	opts := engine.RunOptions{
		DryRun:    true,
		Backup:    true,
		Target:    req.Target,
		BatchSize: req.BatchSize,
		Filter:    req.Filter,
	}
	if req.DryRun != nil {
		opts.DryRun = *req.DryRun
	}
	if req.Backup != nil {
		opts.Backup = *req.Backup
	}

	summary, err := h.runner.Run(r.Context(), opts)
	if err != nil {
		slog.Error("run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetRun handles GET /runs/{id}: returns a cached run summary.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	h.serveSummary(w, r, runID)
}

// GetLastRun handles GET /runs/last.
func (h *Handler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	h.serveSummary(w, r, domain.LastRunID)
}

func (h *Handler) serveSummary(w http.ResponseWriter, r *http.Request, runID string) {
	if h.cache == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run summaries are not cached",
		})
		return
	}

	summary, err := h.cache.GetSummary(r.Context(), runID)
	if err != nil {
		slog.Error("failed to read run summary", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read run summary",
		})
		return
	}
	if summary == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found: " + runID,
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready handles GET /ready: verifies the record store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "store unreachable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
