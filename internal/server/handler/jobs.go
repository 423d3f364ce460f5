package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/storage"
)

// JobReader is the read side of the job store.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*core.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]*core.Job, error)
}

// JobsHandler serves job status for polling clients.
type JobsHandler struct {
	store  JobReader
	logger *slog.Logger
}

// NewJobsHandler creates a JobsHandler.
func NewJobsHandler(store JobReader, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{store: store, logger: logger}
}

type jobList struct {
	Jobs []*core.Job `json:"jobs"`
}

// Get returns a single job.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("failed to get job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// List returns the latest jobs, optionally filtered by workspace, repository
// and status.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.JobFilter{
		WorkspaceID:  q.Get("workspace_id"),
		RepositoryID: q.Get("repository_id"),
	}

	if v := q.Get("status"); v != "" {
		status, err := core.ParseJobStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, storage.MaxListLimit)
	}

	jobs, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, jobList{Jobs: jobs})
}
