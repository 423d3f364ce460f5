package taskqueue

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/sevigo/scan-dispatch/internal/config"
)

type fakeTasksClient struct {
	created   []*cloudtaskspb.CreateTaskRequest
	updated   []*cloudtaskspb.UpdateQueueRequest
	updateErr error
}

func (c *fakeTasksClient) CreateTask(_ context.Context, req *cloudtaskspb.CreateTaskRequest, _ ...gax.CallOption) (*cloudtaskspb.Task, error) {
	c.created = append(c.created, req)
	task := req.GetTask()
	return &cloudtaskspb.Task{Name: req.GetParent() + "/tasks/t1", ScheduleTime: task.GetScheduleTime()}, nil
}

func (c *fakeTasksClient) UpdateQueue(_ context.Context, req *cloudtaskspb.UpdateQueueRequest, _ ...gax.CallOption) (*cloudtaskspb.Queue, error) {
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	c.updated = append(c.updated, req)
	return &cloudtaskspb.Queue{
		Name:        req.GetQueue().GetName(),
		RetryConfig: &cloudtaskspb.RetryConfig{MaxRetryDuration: durationpb.New(req.GetQueue().GetRetryConfig().GetMaxRetryDuration().AsDuration())},
	}, nil
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		Backend:             config.QueueBackendCloudTasks,
		ProjectID:           "p",
		Location:            "l",
		QueueID:             "q",
		ServiceAccountEmail: "invoker@project.iam.gserviceaccount.com",
	}
}

func TestBuildCreateTaskRequest(t *testing.T) {
	notBefore := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req := ScheduleRequest{
		TaskName:    "job-1",
		CallbackURL: "https://worker.example.com/run-scan",
		Body:        []byte(`{"job_id":"job-1","plan_level":"free"}`),
		NotBefore:   notBefore,
		MaxLifetime: time.Hour,
	}

	tests := []struct {
		name           string
		serviceAccount string
		wantOIDC       bool
	}{
		{name: "with service account", serviceAccount: "invoker@project.iam.gserviceaccount.com", wantOIDC: true},
		{name: "without service account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := buildCreateTaskRequest("projects/p/locations/l/queues/q", tt.serviceAccount, req)
			assert.Equal(t, "projects/p/locations/l/queues/q", out.GetParent())
			assert.True(t, notBefore.Equal(out.GetTask().GetScheduleTime().AsTime()))

			httpReq := out.GetTask().GetHttpRequest()
			require.NotNil(t, httpReq)
			assert.Equal(t, cloudtaskspb.HttpMethod_POST, httpReq.GetHttpMethod())
			assert.Equal(t, req.CallbackURL, httpReq.GetUrl())
			assert.Equal(t, req.Body, httpReq.GetBody())
			assert.Equal(t, "application/json", httpReq.GetHeaders()["Content-Type"])

			if tt.wantOIDC {
				assert.Equal(t, tt.serviceAccount, httpReq.GetOidcToken().GetServiceAccountEmail())
				assert.Equal(t, req.CallbackURL, httpReq.GetOidcToken().GetAudience())
			} else {
				assert.Nil(t, httpReq.GetOidcToken())
			}
		})
	}
}

func TestBuildRetryWindowRequest(t *testing.T) {
	out := buildRetryWindowRequest("projects/p/locations/l/queues/q", 90*time.Minute)
	assert.Equal(t, "projects/p/locations/l/queues/q", out.GetQueue().GetName())
	assert.Equal(t, 90*time.Minute, out.GetQueue().GetRetryConfig().GetMaxRetryDuration().AsDuration())
	assert.Equal(t, []string{"retry_config.max_retry_duration"}, out.GetUpdateMask().GetPaths())
}

func TestCloudTasksScheduler_Schedule(t *testing.T) {
	client := &fakeTasksClient{}
	s := newCloudTasksScheduler(client, testQueueConfig(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	notBefore := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	handle, err := s.Schedule(context.Background(), ScheduleRequest{
		TaskName:    "job-1",
		CallbackURL: "https://worker.example.com/run-scan",
		Body:        []byte(`{"job_id":"job-1","plan_level":"free"}`),
		NotBefore:   notBefore,
		MaxLifetime: time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/p/locations/l/queues/q/tasks/t1", handle.Name)
	assert.True(t, notBefore.Equal(handle.ScheduleTime))

	require.Len(t, client.created, 1)
	assert.Equal(t, "invoker@project.iam.gserviceaccount.com",
		client.created[0].GetTask().GetHttpRequest().GetOidcToken().GetServiceAccountEmail())
}

func TestCloudTasksScheduler_EnsureRetryWindow(t *testing.T) {
	t.Run("applies lifetime", func(t *testing.T) {
		client := &fakeTasksClient{}
		s := newCloudTasksScheduler(client, testQueueConfig(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

		s.EnsureRetryWindow(context.Background(), 45*time.Minute)

		require.Len(t, client.updated, 1)
		assert.Equal(t, "projects/p/locations/l/queues/q", client.updated[0].GetQueue().GetName())
		assert.Equal(t, 45*time.Minute, client.updated[0].GetQueue().GetRetryConfig().GetMaxRetryDuration().AsDuration())
	})

	t.Run("failure is logged", func(t *testing.T) {
		var logs bytes.Buffer
		client := &fakeTasksClient{updateErr: errors.New("permission denied")}
		s := newCloudTasksScheduler(client, testQueueConfig(), slog.New(slog.NewTextHandler(&logs, nil)))

		s.EnsureRetryWindow(context.Background(), time.Hour)

		assert.Empty(t, client.updated)
		assert.Contains(t, logs.String(), "could not apply queue retry window")
		assert.Contains(t, logs.String(), "permission denied")
	})
}
