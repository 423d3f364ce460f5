// Package ingest turns verified pull request webhooks into queued scan jobs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/scan-dispatch/internal/core"
)

// SkippedMessage is returned for events that do not start a scan.
const SkippedMessage = "Event not relevant, skipping."

// Enqueuer hands a job reference to the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID, planLevel string) error
}

// DeliveryGuard reports whether a webhook delivery was already processed.
// Claim returns false when deliveryID has been seen before.
type DeliveryGuard interface {
	Claim(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

// Result is the outcome of a successful Ingest call.
type Result struct {
	Skipped bool
	Message string
	JobID   string
	Status  core.JobStatus
}

// Controller orchestrates repository resolution, job creation and enqueueing.
type Controller struct {
	store    core.JobStore
	queue    Enqueuer
	guard    DeliveryGuard
	provider string
	logger   *slog.Logger
}

// NewController creates a Controller. guard may be nil, in which case
// redelivered webhooks create duplicate jobs.
func NewController(store core.JobStore, queue Enqueuer, guard DeliveryGuard, logger *slog.Logger) *Controller {
	return &Controller{
		store:    store,
		queue:    queue,
		guard:    guard,
		provider: core.ProviderGitHub,
		logger:   logger,
	}
}

// Skipped builds the result for an event that is not acted on.
func Skipped() *Result {
	return &Result{Skipped: true, Message: SkippedMessage}
}

// Ingest creates a queued job for an actionable pull request event and
// schedules it. If scheduling fails the job is marked failed and the returned
// error wraps core.ErrDispatchFailed.
func (c *Controller) Ingest(ctx context.Context, ev *core.PullRequestEvent) (*Result, error) {
	if !ev.Actionable() {
		return Skipped(), nil
	}
	if ev.HeadSHA == "" {
		return nil, fmt.Errorf("%w: pull request head sha is empty", core.ErrBadRequest)
	}

	repo, err := c.store.FindRepositoryByExternalID(ctx, c.provider, ev.RepoExternalID)
	if err != nil {
		if errors.Is(err, core.ErrRepositoryNotFound) {
			return nil, fmt.Errorf("%w: %s id %s", core.ErrUnknownRepository, c.provider, ev.RepoExternalID)
		}
		return nil, fmt.Errorf("resolve repository: %w", err)
	}

	if c.guard != nil && ev.DeliveryID != "" {
		first, err := c.guard.Claim(ctx, ev.DeliveryID)
		if err != nil {
			// guard errors never block ingestion
			c.logger.Warn("delivery guard unavailable", "delivery_id", ev.DeliveryID, "error", err)
		} else if !first {
			c.logger.Info("duplicate webhook delivery ignored", "delivery_id", ev.DeliveryID, "repo", ev.RepoFullName)
			return &Result{Skipped: true, Message: "Duplicate delivery, skipping."}, nil
		}
	}

	var prNumber *int
	if ev.PRNumber > 0 {
		n := ev.PRNumber
		prNumber = &n
	}

	job, err := c.store.CreateJob(ctx, repo.ID, repo.PlanLevel, ev.HeadSHA, prNumber)
	if err != nil {
		c.releaseDelivery(ctx, ev.DeliveryID)
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger := c.logger.With("job_id", job.ID, "repo", ev.RepoFullName, "pr", ev.PRNumber)

	if err := c.queue.Enqueue(ctx, job.ID, job.PlanLevel); err != nil {
		logger.Error("failed to enqueue scan job", "error", err)
		dispatchErr := fmt.Errorf("%w: %w", core.ErrDispatchFailed, err)
		c.releaseDelivery(ctx, ev.DeliveryID)

		// dispatch failures leave completed_at unset
		if uerr := c.store.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, core.JobStatusFailed, nil); uerr != nil {
			logger.Error("failed to mark undispatched job as failed", "error", uerr)
			return nil, errors.Join(dispatchErr, fmt.Errorf("mark job failed: %w", uerr))
		}
		return nil, dispatchErr
	}

	logger.Info("scan job queued", "plan_level", job.PlanLevel, "commit", ev.HeadSHA)
	return &Result{JobID: job.ID, Status: core.JobStatusQueued}, nil
}

func (c *Controller) releaseDelivery(ctx context.Context, deliveryID string) {
	if c.guard == nil || deliveryID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.guard.Release(ctx, deliveryID); err != nil {
		c.logger.Warn("failed to release delivery claim", "delivery_id", deliveryID, "error", err)
	}
}
