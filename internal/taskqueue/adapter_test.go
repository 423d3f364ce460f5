package taskqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/taskqueue"
	"github.com/sevigo/scan-dispatch/mocks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		Backend:         config.QueueBackendMemory,
		WorkerURL:       "https://worker.example.com/run-scan",
		MaxJobLifetime:  time.Hour,
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
	}
}

func TestAdapter_Enqueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	scheduler := mocks.NewMockScheduler(ctrl)

	var got taskqueue.ScheduleRequest
	scheduler.EXPECT().
		Schedule(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req taskqueue.ScheduleRequest) (*taskqueue.TaskHandle, error) {
			got = req
			return &taskqueue.TaskHandle{Name: "tasks/1"}, nil
		})

	adapter := taskqueue.NewAdapter(queueConfig(), scheduler, discardLogger())
	before := time.Now().UTC()
	require.NoError(t, adapter.Enqueue(context.Background(), "job-1", "pro"))

	assert.Equal(t, "https://worker.example.com/run-scan", got.CallbackURL)
	assert.Equal(t, time.Hour, got.MaxLifetime)
	assert.Equal(t, "job-1", got.TaskName)
	assert.False(t, got.NotBefore.Before(before.Add(-time.Second)))
	assert.WithinDuration(t, time.Now(), got.NotBefore, 5*time.Second)

	var task core.ScanTask
	require.NoError(t, json.Unmarshal(got.Body, &task))
	assert.Equal(t, core.ScanTask{JobID: "job-1", PlanLevel: "pro"}, task)
}

func TestAdapter_Enqueue_DefaultLifetime(t *testing.T) {
	ctrl := gomock.NewController(t)
	scheduler := mocks.NewMockScheduler(ctrl)
	scheduler.EXPECT().
		Schedule(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req taskqueue.ScheduleRequest) (*taskqueue.TaskHandle, error) {
			assert.Equal(t, 60*time.Minute, req.MaxLifetime)
			return &taskqueue.TaskHandle{}, nil
		})

	cfg := queueConfig()
	cfg.MaxJobLifetime = 0
	require.NoError(t, taskqueue.NewAdapter(cfg, scheduler, discardLogger()).Enqueue(context.Background(), "job-1", "free"))
}

func TestAdapter_Enqueue_Failure(t *testing.T) {
	ctrl := gomock.NewController(t)
	scheduler := mocks.NewMockScheduler(ctrl)
	transport := errors.New("connection refused")
	scheduler.EXPECT().Schedule(gomock.Any(), gomock.Any()).Return(nil, transport)

	err := taskqueue.NewAdapter(queueConfig(), scheduler, discardLogger()).Enqueue(context.Background(), "job-1", "free")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrQueueUnavailable)
	assert.ErrorIs(t, err, transport)
}

func TestAdapter_CircuitBreakerOpens(t *testing.T) {
	ctrl := gomock.NewController(t)
	scheduler := mocks.NewMockScheduler(ctrl)
	scheduler.EXPECT().
		Schedule(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("unavailable")).
		Times(3)

	adapter := taskqueue.NewAdapter(queueConfig(), scheduler, discardLogger())
	for range 3 {
		assert.ErrorIs(t, adapter.Enqueue(context.Background(), "job", "free"), core.ErrQueueUnavailable)
	}

	// the scheduler is no longer called while the breaker is open
	err := adapter.Enqueue(context.Background(), "job", "free")
	assert.ErrorIs(t, err, core.ErrQueueUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestAdapter_WithMemoryScheduler(t *testing.T) {
	mem := taskqueue.NewMemoryScheduler(nil, discardLogger())
	adapter := taskqueue.NewAdapter(queueConfig(), mem, discardLogger())

	require.NoError(t, adapter.Enqueue(context.Background(), "job-1", "free"))
	require.Len(t, mem.Tasks(), 1)

	mem.FailWith(errors.New("down"))
	assert.ErrorIs(t, adapter.Enqueue(context.Background(), "job-2", "free"), core.ErrQueueUnavailable)
	assert.Len(t, mem.Tasks(), 1)
}
