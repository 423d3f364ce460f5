// Package scanner provides scan implementations for the worker.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/sevigo/scan-dispatch/internal/core"
)

// DefaultDuration is how long a Simulated scan takes when none is configured.
const DefaultDuration = 30 * time.Second

// Simulated stands in for the real analysis. It waits for a fixed duration and
// succeeds, or returns the context error if cancelled first.
type Simulated struct {
	duration time.Duration
	logger   *slog.Logger
}

// NewSimulated creates a Simulated scanner.
func NewSimulated(duration time.Duration, logger *slog.Logger) *Simulated {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Simulated{duration: duration, logger: logger}
}

// Scan implements core.Scanner.
func (s *Simulated) Scan(ctx context.Context, job *core.Job) error {
	s.logger.Info("scanning", "job_id", job.ID, "commit", job.CommitSHA, "plan_level", job.PlanLevel, "duration", s.duration)

	t := time.NewTimer(s.duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
