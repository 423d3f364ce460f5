package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrTaskExpired is returned when a task could not be delivered before its
// lifetime ran out.
var ErrTaskExpired = errors.New("task lifetime exceeded")

// Envelope is the queued form of a ScheduleRequest for backends that do not
// perform HTTP delivery themselves.
type Envelope struct {
	TaskName    string          `json:"task_name"`
	CallbackURL string          `json:"callback_url"`
	Body        json.RawMessage `json:"body"`
	NotBefore   time.Time       `json:"not_before"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// NewEnvelope converts a request into an envelope.
func NewEnvelope(req ScheduleRequest) Envelope {
	return Envelope{
		TaskName:    req.TaskName,
		CallbackURL: req.CallbackURL,
		Body:        req.Body,
		NotBefore:   req.NotBefore,
		ExpiresAt:   req.NotBefore.Add(req.MaxLifetime),
	}
}

// Deliverer POSTs envelopes to their callback URL, retrying non-2xx responses
// with exponential backoff until the envelope expires.
type Deliverer struct {
	client      *http.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewDeliverer creates a Deliverer. When token is set every request carries it
// as a bearer credential.
func NewDeliverer(token string, logger *slog.Logger) *Deliverer {
	client := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		client = oauth2.NewClient(context.Background(), ts)
		client.Timeout = 30 * time.Second
	}
	return &Deliverer{
		client:      client,
		baseBackoff: time.Second,
		maxBackoff:  5 * time.Minute,
		now:         time.Now,
		logger:      logger,
	}
}

// Deliver blocks until the envelope is accepted, expires, or ctx is done.
func (d *Deliverer) Deliver(ctx context.Context, env Envelope) error {
	if wait := env.NotBefore.Sub(d.now()); wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		if !env.ExpiresAt.IsZero() && !d.now().Before(env.ExpiresAt) {
			return fmt.Errorf("%w: %s after %d attempts", ErrTaskExpired, env.TaskName, attempt)
		}

		err := d.post(ctx, env)
		if err == nil {
			d.logger.Debug("task delivered", "task", env.TaskName, "attempt", attempt+1)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := d.backoff(attempt)
		if !env.ExpiresAt.IsZero() {
			if remaining := env.ExpiresAt.Sub(d.now()); delay > remaining {
				delay = remaining
			}
		}
		d.logger.Warn("task delivery failed, retrying",
			"task", env.TaskName,
			"attempt", attempt+1,
			"retry_after", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (d *Deliverer) post(ctx context.Context, env Envelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.CallbackURL, bytes.NewReader(env.Body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Task-Name", env.TaskName)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Deliverer) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return d.maxBackoff
	}
	delay := d.baseBackoff << uint(attempt)
	if delay <= 0 || delay > d.maxBackoff {
		return d.maxBackoff
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
