package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sevigo/scan-dispatch/internal/wire"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker failed to run", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker, cleanup, err := wire.InitializeWorker(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize worker: %w", err)
	}
	defer cleanup()

	go func() {
		if err := worker.Start(); err != nil {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		slog.Info("received shutdown signal")
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	if err := worker.Stop(); err != nil {
		return fmt.Errorf("failed to stop worker: %w", err)
	}
	return nil
}
