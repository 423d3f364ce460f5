package core

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a scan job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// DefaultPlanLevel is assigned to workspaces created without an explicit plan.
const DefaultPlanLevel = "free"

// ProviderGitHub identifies repositories hosted on GitHub.
const ProviderGitHub = "github"

// IsTerminal reports whether no further transition is expected from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// ParseJobStatus converts a stored value into a JobStatus.
func ParseJobStatus(v string) (JobStatus, error) {
	s := JobStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown job status %q", v)
	}
	return s, nil
}

// Job is a persisted unit of dispatchable scan work.
type Job struct {
	ID           string     `db:"id" json:"id" yaml:"id"`
	RepositoryID string     `db:"repository_id" json:"repository_id" yaml:"repository_id"`
	Status       JobStatus  `db:"status" json:"status" yaml:"status"`
	PlanLevel    string     `db:"plan_level" json:"plan_level" yaml:"plan_level"`
	CommitSHA    string     `db:"commit_sha" json:"commit_sha" yaml:"commit_sha"`
	PRNumber     *int       `db:"pr_number" json:"pr_number,omitempty" yaml:"pr_number,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at" yaml:"created_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at" yaml:"completed_at"`
}

// Workspace owns repositories and carries the plan level forwarded to jobs.
type Workspace struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	PlanLevel string    `db:"plan_level" json:"plan_level"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Repository is a provider repository registered with a workspace. PlanLevel
// is the owning workspace's plan, loaded alongside the repository.
type Repository struct {
	ID          string    `db:"id" json:"id"`
	WorkspaceID string    `db:"workspace_id" json:"workspace_id"`
	Provider    string    `db:"provider" json:"provider"`
	Name        string    `db:"repo_name" json:"repo_name"`
	ExternalID  string    `db:"external_id" json:"external_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	PlanLevel   string    `db:"plan_level" json:"plan_level"`
}

// ScanTask is the message carried by the task queue from the API to the worker.
type ScanTask struct {
	JobID     string `json:"job_id"`
	PlanLevel string `json:"plan_level"`
}
