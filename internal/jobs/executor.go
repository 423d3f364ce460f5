package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/sevigo/scan-dispatch/internal/core"
)

// Executor drives one job through queued -> running -> completed | failed.
// Outcomes are written to the job record; Run never returns an error and
// never panics.
//
// A finished job delivered again is re-run. While it runs its status reads
// running but completed_at still holds the earlier finish time, and that first
// completed_at is kept once the re-run finishes.
type Executor struct {
	store   core.JobStore
	scanner core.Scanner
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewExecutor creates an Executor. A zero timeout lets the scan run until it
// returns.
func NewExecutor(store core.JobStore, scanner core.Scanner, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		store:   store,
		scanner: scanner,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// Run implements core.JobRunner.
func (e *Executor) Run(ctx context.Context, task core.ScanTask) {
	logger := e.logger.With("job_id", task.JobID, "plan_level", task.PlanLevel)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job execution panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	job, err := e.store.GetJob(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			logger.Warn("job not found, nothing to run")
			return
		}
		logger.Error("failed to load job", "error", err)
		return
	}

	if job.Status.IsTerminal() {
		logger.Info("re-running job that already finished", "status", job.Status)
	}

	// committed before the scan starts
	if err := e.store.UpdateJobStatus(ctx, job.ID, core.JobStatusRunning, nil); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}
	job.Status = core.JobStatusRunning
	logger.Info("scan started", "commit", job.CommitSHA)

	start := e.now()
	scanErr := e.scan(ctx, job)
	finished := e.now().UTC()

	if scanErr != nil {
		logger.Error("scan failed", "error", scanErr, "elapsed", finished.Sub(start))
		e.finish(ctx, logger, job.ID, core.JobStatusFailed, finished)
		return
	}

	logger.Info("scan completed", "elapsed", finished.Sub(start))
	e.finish(ctx, logger, job.ID, core.JobStatusCompleted, finished)
}

// scan calls the scanner, converting errors and panics into ErrExecutionFailed.
func (e *Executor) scan(ctx context.Context, job *core.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", core.ErrExecutionFailed, r)
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.scanner.Scan(ctx, job); err != nil {
		return fmt.Errorf("%w: %w", core.ErrExecutionFailed, err)
	}
	return nil
}

func (e *Executor) finish(ctx context.Context, logger *slog.Logger, id string, status core.JobStatus, at time.Time) {
	if err := e.store.UpdateJobStatus(context.WithoutCancel(ctx), id, status, &at); err != nil {
		logger.Error("failed to record job outcome", "status", status, "error", err)
	}
}
