package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/db"
	"github.com/sevigo/scan-dispatch/internal/storage"
	"github.com/sevigo/scan-dispatch/mocks"
)

type scanFunc func(ctx context.Context, job *core.Job) error

func (f scanFunc) Scan(ctx context.Context, job *core.Job) error { return f(ctx, job) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStoreWithJob(t *testing.T) (storage.Store, *core.Job) {
	t.Helper()
	ctx := context.Background()
	conn, cleanup, err := db.NewDatabase(&config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "jobs.db")})
	require.NoError(t, err)
	t.Cleanup(cleanup)

	store := storage.NewStore(conn.DB)
	ws, err := store.CreateWorkspace(ctx, "acme", "free")
	require.NoError(t, err)
	repo, err := store.CreateRepository(ctx, ws.ID, core.ProviderGitHub, "acme/api", "1")
	require.NoError(t, err)
	job, err := store.CreateJob(ctx, repo.ID, "free", "abc", nil)
	require.NoError(t, err)
	return store, job
}

func jobStatus(t *testing.T, store core.JobStore, id string) *core.Job {
	t.Helper()
	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestExecutor_Completes(t *testing.T) {
	store, job := newStoreWithJob(t)
	var sawRunning atomic.Bool
	scanner := scanFunc(func(ctx context.Context, j *core.Job) error {
		sawRunning.Store(jobStatus(t, store, j.ID).Status == core.JobStatusRunning)
		return nil
	})

	NewExecutor(store, scanner, 0, testLogger()).Run(context.Background(), core.ScanTask{JobID: job.ID, PlanLevel: "free"})

	assert.True(t, sawRunning.Load(), "job should be running while scanning")
	got := jobStatus(t, store, job.ID)
	assert.Equal(t, core.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestExecutor_RerunKeepsFirstCompletedAt(t *testing.T) {
	store, job := newStoreWithJob(t)
	first := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	exec := NewExecutor(store, scanFunc(func(context.Context, *core.Job) error { return nil }), 0, testLogger())
	exec.now = func() time.Time { return first }
	exec.Run(context.Background(), core.ScanTask{JobID: job.ID})

	done := jobStatus(t, store, job.ID)
	require.Equal(t, core.JobStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, first.Equal(*done.CompletedAt))

	var during *core.Job
	exec.scanner = scanFunc(func(_ context.Context, j *core.Job) error {
		during = jobStatus(t, store, j.ID)
		return errors.New("second scan failed")
	})
	exec.now = func() time.Time { return first.Add(time.Hour) }
	exec.Run(context.Background(), core.ScanTask{JobID: job.ID})

	require.NotNil(t, during)
	assert.Equal(t, core.JobStatusRunning, during.Status)
	require.NotNil(t, during.CompletedAt)
	assert.True(t, first.Equal(*during.CompletedAt))

	after := jobStatus(t, store, job.ID)
	assert.Equal(t, core.JobStatusFailed, after.Status)
	require.NotNil(t, after.CompletedAt)
	assert.True(t, first.Equal(*after.CompletedAt))
}

func TestExecutor_ScanErrorMarksFailed(t *testing.T) {
	store, job := newStoreWithJob(t)
	scanner := scanFunc(func(context.Context, *core.Job) error { return errors.New("analysis crashed") })

	NewExecutor(store, scanner, 0, testLogger()).Run(context.Background(), core.ScanTask{JobID: job.ID})

	got := jobStatus(t, store, job.ID)
	assert.Equal(t, core.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestExecutor_PanicMarksFailed(t *testing.T) {
	store, job := newStoreWithJob(t)
	scanner := scanFunc(func(context.Context, *core.Job) error { panic("boom") })

	assert.NotPanics(t, func() {
		NewExecutor(store, scanner, 0, testLogger()).Run(context.Background(), core.ScanTask{JobID: job.ID})
	})
	assert.Equal(t, core.JobStatusFailed, jobStatus(t, store, job.ID).Status)
}

func TestExecutor_TimeoutMarksFailed(t *testing.T) {
	store, job := newStoreWithJob(t)
	scanner := scanFunc(func(ctx context.Context, _ *core.Job) error {
		<-ctx.Done()
		return ctx.Err()
	})

	NewExecutor(store, scanner, 20*time.Millisecond, testLogger()).Run(context.Background(), core.ScanTask{JobID: job.ID})
	assert.Equal(t, core.JobStatusFailed, jobStatus(t, store, job.ID).Status)
}

func TestExecutor_JobNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)
	store.EXPECT().GetJob(gomock.Any(), "missing").Return(nil, core.ErrJobNotFound)

	scanned := false
	scanner := scanFunc(func(context.Context, *core.Job) error { scanned = true; return nil })

	NewExecutor(store, scanner, 0, testLogger()).Run(context.Background(), core.ScanTask{JobID: "missing"})
	assert.False(t, scanned)
}

func TestExecutor_RunningWriteFailsSkipsScan(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)
	store.EXPECT().GetJob(gomock.Any(), "job-1").Return(&core.Job{ID: "job-1", Status: core.JobStatusQueued}, nil)
	store.EXPECT().UpdateJobStatus(gomock.Any(), "job-1", core.JobStatusRunning, gomock.Nil()).Return(errors.New("db down"))

	scanned := false
	scanner := scanFunc(func(context.Context, *core.Job) error { scanned = true; return nil })

	NewExecutor(store, scanner, 0, testLogger()).Run(context.Background(), core.ScanTask{JobID: "job-1"})
	assert.False(t, scanned)
}

func TestExecutor_OutcomeWriteFailureIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)
	store.EXPECT().GetJob(gomock.Any(), "job-1").Return(&core.Job{ID: "job-1"}, nil)
	store.EXPECT().UpdateJobStatus(gomock.Any(), "job-1", core.JobStatusRunning, gomock.Nil()).Return(nil)
	store.EXPECT().UpdateJobStatus(gomock.Any(), "job-1", core.JobStatusCompleted, gomock.Not(gomock.Nil())).Return(errors.New("db down"))

	assert.NotPanics(t, func() {
		NewExecutor(store, scanFunc(func(context.Context, *core.Job) error { return nil }), 0, testLogger()).
			Run(context.Background(), core.ScanTask{JobID: "job-1"})
	})
}

func TestDispatcher_AcceptsWithoutWaiting(t *testing.T) {
	store, job := newStoreWithJob(t)
	release := make(chan struct{})
	scanner := scanFunc(func(context.Context, *core.Job) error {
		select {
		case <-release:
			return nil
		case <-time.After(30 * time.Second):
			return nil
		}
	})

	d := NewDispatcher(NewExecutor(store, scanner, 0, testLogger()), 2, testLogger())

	start := time.Now()
	require.NoError(t, d.Dispatch(context.Background(), core.ScanTask{JobID: job.ID, PlanLevel: "free"}))
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	assert.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), job.ID)
		return err == nil && got.Status == core.JobStatusRunning
	}, 200*time.Millisecond, 5*time.Millisecond)

	close(release)
	d.Stop()

	got := jobStatus(t, store, job.ID)
	assert.Equal(t, core.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestDispatcher_DuplicateDeliveryNeverStuckRunning(t *testing.T) {
	store, job := newStoreWithJob(t)
	var calls atomic.Int32
	scanner := scanFunc(func(context.Context, *core.Job) error {
		time.Sleep(20 * time.Millisecond)
		if calls.Add(1) == 1 {
			return errors.New("first run failed")
		}
		return nil
	})

	d := NewDispatcher(NewExecutor(store, scanner, 0, testLogger()), 4, testLogger())
	task := core.ScanTask{JobID: job.ID, PlanLevel: "free"}
	require.NoError(t, d.Dispatch(context.Background(), task))
	require.NoError(t, d.Dispatch(context.Background(), task))
	d.Stop()

	// either run may commit last
	got := jobStatus(t, store, job.ID)
	assert.True(t, got.Status.IsTerminal(), "status %s", got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDispatcher_LimitsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	var mu sync.Mutex
	runner := runnerFunc(func(context.Context, core.ScanTask) {
		n := running.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
	})

	d := NewDispatcher(runner, 2, testLogger())
	for i := 0; i < 8; i++ {
		require.NoError(t, d.Dispatch(context.Background(), core.ScanTask{JobID: "job"}))
	}
	d.Stop()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatcher_RejectsAfterStop(t *testing.T) {
	d := NewDispatcher(runnerFunc(func(context.Context, core.ScanTask) {}), 1, testLogger())
	d.Stop()
	assert.ErrorIs(t, d.Dispatch(context.Background(), core.ScanTask{JobID: "job"}), ErrDispatcherStopped)
}

type runnerFunc func(ctx context.Context, task core.ScanTask)

func (f runnerFunc) Run(ctx context.Context, task core.ScanTask) { f(ctx, task) }
