// Package jobs runs scan jobs on the worker.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sevigo/scan-dispatch/internal/core"
)

// ErrDispatcherStopped is returned by Dispatch after Stop has been called.
var ErrDispatcherStopped = errors.New("dispatcher is stopped")

// dispatcher implements core.JobDispatcher. Every task gets its own goroutine;
// a weighted semaphore caps how many of them run the job at once.
type dispatcher struct {
	runner     core.JobRunner
	sem        *semaphore.Weighted
	maxWorkers int
	mu         sync.RWMutex
	stopped    bool
	wg         sync.WaitGroup // tracks submitted tasks for graceful shutdown
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher.
// If maxWorkers is 0 or negative, it defaults to 1.
func NewDispatcher(runner core.JobRunner, maxWorkers int, logger *slog.Logger) core.JobDispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &dispatcher{
		runner:     runner,
		sem:        semaphore.NewWeighted(int64(maxWorkers)),
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

// Dispatch starts the task in the background and returns immediately. The
// request context is not propagated: the run outlives the request.
func (d *dispatcher) Dispatch(_ context.Context, task core.ScanTask) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}

	d.wg.Add(1)
	go d.execute(task)
	return nil
}

func (d *dispatcher) execute(task core.ScanTask) {
	defer d.wg.Done()

	ctx := context.Background()
	if !d.sem.TryAcquire(1) {
		d.logger.Info("all workers busy, scan waiting for a slot", "job_id", task.JobID, "max_workers", d.maxWorkers)
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.Error("failed to acquire worker slot", "job_id", task.JobID, "error", err)
			return
		}
	}
	defer d.sem.Release(1)

	d.runner.Run(ctx, task)
}

// Stop rejects new tasks and waits for submitted ones to finish.
func (d *dispatcher) Stop() {
	d.logger.Info("stopping dispatcher and waiting for jobs to finish")
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Info("all scan jobs have finished")
}
