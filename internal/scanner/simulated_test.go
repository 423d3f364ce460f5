package scanner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sevigo/scan-dispatch/internal/core"
)

func TestSimulated(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := &core.Job{ID: "job-1"}

	t.Run("completes", func(t *testing.T) {
		s := NewSimulated(10*time.Millisecond, logger)
		assert.NoError(t, s.Scan(context.Background(), job))
	})

	t.Run("honours cancellation", func(t *testing.T) {
		s := NewSimulated(time.Hour, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, s.Scan(ctx, job), context.DeadlineExceeded)
	})

	t.Run("default duration", func(t *testing.T) {
		assert.Equal(t, DefaultDuration, NewSimulated(0, logger).duration)
	})
}
