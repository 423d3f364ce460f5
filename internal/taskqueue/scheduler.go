package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/scan-dispatch/internal/config"
)

// NewScheduler builds the backend selected by cfg.Queue.Backend.
func NewScheduler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Scheduler, func(), error) {
	switch cfg.Queue.Backend {
	case config.QueueBackendCloudTasks:
		s, cleanup, err := NewCloudTasksScheduler(ctx, &cfg.Queue, logger)
		if err != nil {
			return nil, cleanup, err
		}
		s.EnsureRetryWindow(ctx, cfg.Queue.MaxJobLifetime)
		return s, cleanup, nil
	case config.QueueBackendAMQP:
		return NewAMQPScheduler(&cfg.Queue, logger)
	case config.QueueBackendMemory:
		var deliverer *Deliverer
		if cfg.Queue.WorkerURL != "" {
			deliverer = NewDeliverer(cfg.Worker.AuthToken, logger)
		} else {
			logger.Warn("memory queue has no worker URL, tasks are recorded but not delivered")
		}
		s := NewMemoryScheduler(deliverer, logger)
		return s, func() { s.Close(5 * time.Second) }, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported queue backend: %q", cfg.Queue.Backend)
	}
}
