package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/sevigo/scan-dispatch/internal/config"
)

// tasksClient is the part of the Cloud Tasks client the scheduler uses.
type tasksClient interface {
	CreateTask(ctx context.Context, req *cloudtaskspb.CreateTaskRequest, opts ...gax.CallOption) (*cloudtaskspb.Task, error)
	UpdateQueue(ctx context.Context, req *cloudtaskspb.UpdateQueueRequest, opts ...gax.CallOption) (*cloudtaskspb.Queue, error)
}

// CloudTasksScheduler creates HTTP push tasks on a Google Cloud Tasks queue.
// Retry with backoff and the lifetime ceiling are properties of the queue; see
// ConfigureRetryWindow.
type CloudTasksScheduler struct {
	client         tasksClient
	queuePath      string
	serviceAccount string
	logger         *slog.Logger
}

// NewCloudTasksScheduler creates a client using application default credentials.
func NewCloudTasksScheduler(ctx context.Context, cfg *config.QueueConfig, logger *slog.Logger) (*CloudTasksScheduler, func(), error) {
	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to create cloud tasks client: %w", err)
	}
	s := newCloudTasksScheduler(client, cfg, logger)
	return s, func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close cloud tasks client", "error", err)
		}
	}, nil
}

func newCloudTasksScheduler(client tasksClient, cfg *config.QueueConfig, logger *slog.Logger) *CloudTasksScheduler {
	return &CloudTasksScheduler{
		client:         client,
		queuePath:      cfg.QueuePath(),
		serviceAccount: cfg.ServiceAccountEmail,
		logger:         logger,
	}
}

// Schedule creates the task.
func (s *CloudTasksScheduler) Schedule(ctx context.Context, req ScheduleRequest) (*TaskHandle, error) {
	task, err := s.client.CreateTask(ctx, buildCreateTaskRequest(s.queuePath, s.serviceAccount, req))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &TaskHandle{Name: task.GetName(), ScheduleTime: task.GetScheduleTime().AsTime()}, nil
}

// ConfigureRetryWindow sets how long the queue keeps retrying a task.
func (s *CloudTasksScheduler) ConfigureRetryWindow(ctx context.Context, lifetime time.Duration) error {
	q, err := s.client.UpdateQueue(ctx, buildRetryWindowRequest(s.queuePath, lifetime))
	if err != nil {
		return fmt.Errorf("update queue %s: %w", s.queuePath, err)
	}
	s.logger.Info("queue retry window updated",
		"queue", q.GetName(),
		"max_retry_duration", q.GetRetryConfig().GetMaxRetryDuration().AsDuration(),
	)
	return nil
}

// EnsureRetryWindow applies the lifetime ceiling to the queue. Failure is
// logged, not returned: the API can still enqueue, and the window can be set
// later with `scanctl queue configure`.
func (s *CloudTasksScheduler) EnsureRetryWindow(ctx context.Context, lifetime time.Duration) {
	if err := s.ConfigureRetryWindow(ctx, lifetime); err != nil {
		s.logger.Warn("could not apply queue retry window, tasks may outlive the job lifetime",
			"queue", s.queuePath, "max_job_lifetime", lifetime, "error", err)
	}
}

func buildCreateTaskRequest(queuePath, serviceAccount string, req ScheduleRequest) *cloudtaskspb.CreateTaskRequest {
	httpReq := &cloudtaskspb.HttpRequest{
		HttpMethod: cloudtaskspb.HttpMethod_POST,
		Url:        req.CallbackURL,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       req.Body,
	}
	if serviceAccount != "" {
		httpReq.AuthorizationHeader = &cloudtaskspb.HttpRequest_OidcToken{
			OidcToken: &cloudtaskspb.OidcToken{
				ServiceAccountEmail: serviceAccount,
				Audience:            req.CallbackURL,
			},
		}
	}

	task := &cloudtaskspb.Task{
		MessageType:  &cloudtaskspb.Task_HttpRequest{HttpRequest: httpReq},
		ScheduleTime: timestamppb.New(req.NotBefore),
	}
	return &cloudtaskspb.CreateTaskRequest{Parent: queuePath, Task: task}
}

func buildRetryWindowRequest(queuePath string, lifetime time.Duration) *cloudtaskspb.UpdateQueueRequest {
	return &cloudtaskspb.UpdateQueueRequest{
		Queue: &cloudtaskspb.Queue{
			Name: queuePath,
			RetryConfig: &cloudtaskspb.RetryConfig{
				MaxRetryDuration: durationpb.New(lifetime),
			},
		},
		UpdateMask: &fieldmaskpb.FieldMask{Paths: []string{"retry_config.max_retry_duration"}},
	}
}
