// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"context"
	"time"
)

// JobDispatcher defines the contract for a system that accepts scan tasks for
// asynchronous execution. It decouples the worker's HTTP endpoint from the
// execution of the job: Dispatch must return without waiting for the job to run.
type JobDispatcher interface {
	// Dispatch hands a task to the executor. It returns an error only when the
	// dispatcher is no longer accepting work (for example during shutdown).
	Dispatch(ctx context.Context, task ScanTask) error
	// Stop waits for in-flight executions to finish.
	Stop()
}

// JobRunner drives a single job through its lifecycle. Implementations record
// every outcome on the job record and never return errors to the caller.
type JobRunner interface {
	Run(ctx context.Context, task ScanTask)
}

// JobStore is the persistence boundary for scan jobs and the repositories they
// belong to.
//
//go:generate mockgen -destination=../../mocks/mock_job_store.go -package=mocks . JobStore
type JobStore interface {
	// CreateJob persists a new job in status queued. The job is either fully
	// written or not written at all.
	CreateJob(ctx context.Context, repositoryID, planLevel, commitSHA string, prNumber *int) (*Job, error)
	// GetJob returns ErrJobNotFound when no job has the given id.
	GetJob(ctx context.Context, id string) (*Job, error)
	// UpdateJobStatus sets the status. A non-nil completedAt is stored only if
	// the job has no completion time yet.
	UpdateJobStatus(ctx context.Context, id string, status JobStatus, completedAt *time.Time) error
	// FindRepositoryByExternalID returns ErrRepositoryNotFound when the provider
	// id is not registered.
	FindRepositoryByExternalID(ctx context.Context, provider, externalID string) (*Repository, error)
}

// Scanner performs the actual unit of work for a job. Its internals are opaque
// to the pipeline: it either returns nil or an error.
type Scanner interface {
	Scan(ctx context.Context, job *Job) error
}
