// Package app assembles the API and worker processes from their components.
package app

import (
	"log/slog"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/ingest"
	"github.com/sevigo/scan-dispatch/internal/server"
	"github.com/sevigo/scan-dispatch/internal/storage"
)

// App is the API process: webhook ingestion and the job read API.
type App struct {
	cfg    *config.Config
	server *server.Server
	logger *slog.Logger
}

// NewApp sets up the API process.
func NewApp(cfg *config.Config, controller *ingest.Controller, store storage.Store, logger *slog.Logger) *App {
	router := server.NewRouter(cfg, controller, store, logger)
	return &App{
		cfg:    cfg,
		server: server.NewServer(cfg.Server.Port, router, logger),
		logger: logger,
	}
}

// Start runs the HTTP server.
func (a *App) Start() error {
	a.logger.Info("starting scan-dispatch API",
		"server_port", a.cfg.Server.Port,
		"queue_backend", a.cfg.Queue.Backend,
		"max_job_lifetime", a.cfg.Queue.MaxJobLifetime,
	)

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down scan-dispatch API")

	if err := a.server.Stop(); err != nil {
		a.logger.Error("error during HTTP server shutdown", "error", err)
		return err
	}

	a.logger.Info("scan-dispatch API stopped successfully")
	return nil
}
