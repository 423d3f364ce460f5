// Package taskqueue schedules deferred HTTP callbacks that deliver scan tasks
// to the worker process.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/core"
)

// ScheduleRequest describes one deferred callback.
type ScheduleRequest struct {
	// TaskName identifies the task to the backend. Backends that support
	// named tasks use it to reject duplicates.
	TaskName    string
	CallbackURL string
	Body        []byte
	// NotBefore is the earliest delivery time.
	NotBefore time.Time
	// MaxLifetime bounds how long the task may stay undelivered or retriable.
	MaxLifetime time.Duration
}

// TaskHandle identifies a task accepted by a backend.
type TaskHandle struct {
	Name         string
	ScheduleTime time.Time
}

// Scheduler is implemented by queue backends.
//
//go:generate mockgen -destination=../../mocks/mock_scheduler.go -package=mocks . Scheduler
type Scheduler interface {
	Schedule(ctx context.Context, req ScheduleRequest) (*TaskHandle, error)
}

// Adapter turns a job reference into a scheduled callback to the worker's
// dispatch endpoint. It is built once per process and shared.
type Adapter struct {
	scheduler   Scheduler
	callbackURL string
	lifetime    time.Duration
	breaker     *gobreaker.CircuitBreaker
	now         func() time.Time
	logger      *slog.Logger
}

// NewAdapter creates an Adapter. Consecutive scheduling failures open a circuit
// breaker so that callers fail fast while the queue service is down.
func NewAdapter(cfg *config.QueueConfig, scheduler Scheduler, logger *slog.Logger) *Adapter {
	lifetime := cfg.MaxJobLifetime
	if lifetime <= 0 {
		lifetime = config.DefaultMaxJobLifetime
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "taskqueue",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("task queue circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Adapter{
		scheduler:   scheduler,
		callbackURL: cfg.WorkerURL,
		lifetime:    lifetime,
		breaker:     breaker,
		now:         time.Now,
		logger:      logger,
	}
}

// Enqueue schedules delivery of {job_id, plan_level} to the worker as soon as
// possible. Every failure wraps core.ErrQueueUnavailable.
func (a *Adapter) Enqueue(ctx context.Context, jobID, planLevel string) error {
	body, err := json.Marshal(core.ScanTask{JobID: jobID, PlanLevel: planLevel})
	if err != nil {
		return fmt.Errorf("%w: encode task: %w", core.ErrQueueUnavailable, err)
	}

	req := ScheduleRequest{
		TaskName:    jobID,
		CallbackURL: a.callbackURL,
		Body:        body,
		NotBefore:   a.now().UTC(),
		MaxLifetime: a.lifetime,
	}

	res, err := a.breaker.Execute(func() (any, error) {
		return a.scheduler.Schedule(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open: %w", core.ErrQueueUnavailable, err)
		}
		return fmt.Errorf("%w: %w", core.ErrQueueUnavailable, err)
	}

	handle, _ := res.(*TaskHandle)
	a.logger.Info("scan task scheduled",
		"job_id", jobID,
		"plan_level", planLevel,
		"task", handle.GetName(),
	)
	return nil
}

// GetName returns the task name, or "" for a nil handle.
func (h *TaskHandle) GetName() string {
	if h == nil {
		return ""
	}
	return h.Name
}
