package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/server"
)

// Worker is the worker process: the /run-scan endpoint and the job executor.
type Worker struct {
	cfg        *config.Config
	server     *server.Server
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewWorker sets up the worker process.
func NewWorker(cfg *config.Config, dispatcher core.JobDispatcher, validator server.TokenValidator, logger *slog.Logger) *Worker {
	router := server.NewWorkerRouter(cfg, dispatcher, validator, logger)
	return &Worker{
		cfg:        cfg,
		server:     server.NewServer(cfg.Worker.Port, router, logger),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start runs the HTTP server.
func (w *Worker) Start() error {
	w.logger.Info("starting scan-dispatch worker",
		"worker_port", w.cfg.Worker.Port,
		"max_workers", w.cfg.Worker.MaxWorkers,
		"scan_timeout", w.cfg.Worker.ScanTimeout,
	)

	if err := w.server.Start(); err != nil {
		w.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop stops accepting tasks, then waits up to the shutdown timeout for
// running scans.
func (w *Worker) Stop() error {
	w.logger.Info("shutting down scan-dispatch worker")

	serverErr := w.server.Stop()
	if serverErr != nil {
		w.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop the dispatcher even if the server failed.
	}

	done := make(chan struct{})
	go func() {
		w.dispatcher.Stop()
		close(done)
	}()

	timeout := w.cfg.Worker.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		// jobs still running here stay in status running
		w.logger.Warn("scans still running at shutdown", "timeout", timeout)
		return fmt.Errorf("scans did not finish within %s", timeout)
	}

	if serverErr != nil {
		return serverErr
	}
	w.logger.Info("scan-dispatch worker stopped successfully")
	return nil
}
