package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sevigo/scan-dispatch/internal/core"
)

// MaxListLimit caps the number of jobs returned by ListJobs.
const MaxListLimit = 200

// DefaultListLimit is used when a JobFilter carries no limit.
const DefaultListLimit = 50

// Store defines the interface for all database operations.
type Store interface {
	core.JobStore

	CreateWorkspace(ctx context.Context, name, planLevel string) (*core.Workspace, error)
	GetWorkspaceByName(ctx context.Context, name string) (*core.Workspace, error)
	CreateRepository(ctx context.Context, workspaceID, provider, name, externalID string) (*core.Repository, error)
	ListRepositories(ctx context.Context, workspaceID string) ([]*core.Repository, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*core.Job, error)
}

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	RepositoryID string
	WorkspaceID  string
	Status       core.JobStatus
	Limit        int
}

type sqlStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore creates a new Store
func NewStore(db *sqlx.DB) Store {
	return &sqlStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const jobColumns = `id, repository_id, status, plan_level, commit_sha, pr_number, created_at, completed_at`

// CreateJob inserts a queued job and returns the stored row.
func (s *sqlStore) CreateJob(ctx context.Context, repositoryID, planLevel, commitSHA string, prNumber *int) (*core.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create job: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := tx.Rebind(`
		INSERT INTO scan_jobs (id, repository_id, status, plan_level, commit_sha, pr_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + jobColumns)

	var job core.Job
	err = tx.GetContext(ctx, &job, query,
		uuid.NewString(), repositoryID, core.JobStatusQueued, planLevel, commitSHA, prNumber, s.now())
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create job: %w", err)
	}
	return &job, nil
}

// GetJob retrieves a job by id.
func (s *sqlStore) GetJob(ctx context.Context, id string) (*core.Job, error) {
	if uuid.Validate(id) != nil {
		return nil, core.ErrJobNotFound
	}

	var job core.Job
	err := s.db.GetContext(ctx, &job, s.db.Rebind(`SELECT `+jobColumns+` FROM scan_jobs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateJobStatus writes the status and, when given, the completion time. An
// existing completion time is never replaced.
func (s *sqlStore) UpdateJobStatus(ctx context.Context, id string, status core.JobStatus, completedAt *time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("update job %s: invalid status %q", id, status)
	}
	if uuid.Validate(id) != nil {
		return core.ErrJobNotFound
	}

	var completed any
	if completedAt != nil {
		completed = completedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE scan_jobs SET status = ?, completed_at = COALESCE(completed_at, ?) WHERE id = ?`),
		status, completed, id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// ListJobs returns jobs newest first.
func (s *sqlStore) ListJobs(ctx context.Context, filter JobFilter) ([]*core.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `SELECT j.id, j.repository_id, j.status, j.plan_level, j.commit_sha, j.pr_number, j.created_at, j.completed_at
		FROM scan_jobs j JOIN repositories r ON r.id = j.repository_id WHERE 1=1`
	var args []any
	if filter.RepositoryID != "" {
		query += ` AND j.repository_id = ?`
		args = append(args, filter.RepositoryID)
	}
	if filter.WorkspaceID != "" {
		query += ` AND r.workspace_id = ?`
		args = append(args, filter.WorkspaceID)
	}
	if filter.Status != "" {
		query += ` AND j.status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY j.created_at DESC LIMIT ?`
	args = append(args, limit)

	jobs := []*core.Job{}
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// FindRepositoryByExternalID looks up a repository together with the plan level
// of its workspace.
func (s *sqlStore) FindRepositoryByExternalID(ctx context.Context, provider, externalID string) (*core.Repository, error) {
	query := s.db.Rebind(`
		SELECT r.id, r.workspace_id, r.provider, r.repo_name, r.external_id, r.created_at, w.plan_level
		FROM repositories r
		JOIN workspaces w ON w.id = r.workspace_id
		WHERE r.provider = ? AND r.external_id = ?`)

	var repo core.Repository
	if err := s.db.GetContext(ctx, &repo, query, provider, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrRepositoryNotFound
		}
		return nil, fmt.Errorf("find repository %s/%s: %w", provider, externalID, err)
	}
	return &repo, nil
}

// CreateWorkspace inserts a workspace. An empty plan level defaults to free.
func (s *sqlStore) CreateWorkspace(ctx context.Context, name, planLevel string) (*core.Workspace, error) {
	if planLevel == "" {
		planLevel = core.DefaultPlanLevel
	}
	ws := &core.Workspace{
		ID:        uuid.NewString(),
		Name:      name,
		PlanLevel: planLevel,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO workspaces (id, name, plan_level, created_at) VALUES (?, ?, ?, ?)`),
		ws.ID, ws.Name, ws.PlanLevel, ws.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert workspace %q: %w", name, err)
	}
	return ws, nil
}

// GetWorkspaceByName retrieves a workspace by its unique name.
func (s *sqlStore) GetWorkspaceByName(ctx context.Context, name string) (*core.Workspace, error) {
	var ws core.Workspace
	err := s.db.GetContext(ctx, &ws,
		s.db.Rebind(`SELECT id, name, plan_level, created_at FROM workspaces WHERE name = ?`), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("get workspace %q: %w", name, err)
	}
	return &ws, nil
}

// CreateRepository registers a provider repository under a workspace.
func (s *sqlStore) CreateRepository(ctx context.Context, workspaceID, provider, name, externalID string) (*core.Repository, error) {
	repo := &core.Repository{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Provider:    provider,
		Name:        name,
		ExternalID:  externalID,
		CreatedAt:   s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO repositories (id, workspace_id, provider, repo_name, external_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		repo.ID, repo.WorkspaceID, repo.Provider, repo.Name, repo.ExternalID, repo.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert repository %s/%s: %w", provider, externalID, err)
	}
	return repo, nil
}

// ListRepositories returns the repositories of a workspace, or all of them when
// workspaceID is empty.
func (s *sqlStore) ListRepositories(ctx context.Context, workspaceID string) ([]*core.Repository, error) {
	query := `SELECT r.id, r.workspace_id, r.provider, r.repo_name, r.external_id, r.created_at, w.plan_level
		FROM repositories r JOIN workspaces w ON w.id = r.workspace_id`
	var args []any
	if workspaceID != "" {
		query += ` WHERE r.workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY r.repo_name`

	repos := []*core.Repository{}
	if err := s.db.SelectContext(ctx, &repos, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}
