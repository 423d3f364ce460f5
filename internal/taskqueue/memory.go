package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryScheduler keeps tasks in process. With a Deliverer it also delivers
// them in the background, which is enough for local development where the API
// and the worker run side by side.
type MemoryScheduler struct {
	mu        sync.Mutex
	tasks     []ScheduleRequest
	err       error
	deliverer *Deliverer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewMemoryScheduler creates a MemoryScheduler. deliverer may be nil.
func NewMemoryScheduler(deliverer *Deliverer, logger *slog.Logger) *MemoryScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryScheduler{
		deliverer: deliverer,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Schedule records the request and starts delivery when a Deliverer is set.
func (m *MemoryScheduler) Schedule(_ context.Context, req ScheduleRequest) (*TaskHandle, error) {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	m.tasks = append(m.tasks, req)
	name := fmt.Sprintf("memory/%d/%s", len(m.tasks), req.TaskName)
	m.mu.Unlock()

	if m.deliverer != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.deliverer.Deliver(m.ctx, NewEnvelope(req)); err != nil {
				m.logger.Error("in-memory task delivery failed", "task", name, "error", err)
			}
		}()
	}
	return &TaskHandle{Name: name, ScheduleTime: req.NotBefore}, nil
}

// FailWith makes subsequent Schedule calls return err. A nil err clears it.
func (m *MemoryScheduler) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Tasks returns a copy of the recorded requests.
func (m *MemoryScheduler) Tasks() []ScheduleRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduleRequest(nil), m.tasks...)
}

// Close cancels pending deliveries and waits up to timeout for them to return.
func (m *MemoryScheduler) Close(timeout time.Duration) {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("in-memory deliveries did not stop in time")
	}
}
