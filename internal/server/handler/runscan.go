package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sevigo/scan-dispatch/internal/core"
)

const maxRunScanBytes = 64 << 10

// RunScanHandler is the task queue's callback target on the worker.
type RunScanHandler struct {
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewRunScanHandler creates a RunScanHandler.
func NewRunScanHandler(dispatcher core.JobDispatcher, logger *slog.Logger) *RunScanHandler {
	return &RunScanHandler{dispatcher: dispatcher, logger: logger}
}

type acceptedResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// Handle validates the task and hands it to the dispatcher without waiting
// for the scan.
func (h *RunScanHandler) Handle(w http.ResponseWriter, r *http.Request) {
	task, err := decodeScanTask(w, r)
	if err != nil {
		h.logger.Warn("rejected scan task", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), task); err != nil {
		h.logger.Error("failed to dispatch scan", "job_id", task.JobID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Worker is shutting down")
		return
	}

	h.logger.Info("scan accepted", "job_id", task.JobID, "plan_level", task.PlanLevel, "task", r.Header.Get("X-CloudTasks-TaskName"))
	writeJSON(w, http.StatusOK, acceptedResponse{Status: "accepted", JobID: task.JobID})
}

func decodeScanTask(w http.ResponseWriter, r *http.Request) (core.ScanTask, error) {
	var task core.ScanTask
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunScanBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&task); err != nil {
		return task, errors.Join(core.ErrBadRequest, err)
	}
	if dec.More() {
		return task, errors.Join(core.ErrBadRequest, errors.New("unexpected data after task"))
	}
	task.JobID = strings.TrimSpace(task.JobID)
	if task.JobID == "" {
		return task, errors.Join(core.ErrBadRequest, errors.New("job_id is required"))
	}
	return task, nil
}
