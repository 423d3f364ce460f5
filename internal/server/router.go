package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/server/handler"
)

// NewRouter creates the API router: webhook ingestion and the job read API.
func NewRouter(cfg *config.Config, ingester handler.Ingester, jobs handler.JobReader, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Configure middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", handler.Health)

	webhookHandler := handler.NewWebhookHandler(cfg.GitHub.WebhookSecret, ingester, logger)
	r.Post("/webhooks/provider", webhookHandler.Handle)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/github", webhookHandler.Handle)

		jobsHandler := handler.NewJobsHandler(jobs, logger)
		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(cfg.Server.APIToken))
			r.Get("/jobs", jobsHandler.List)
			r.Get("/jobs/{jobID}", jobsHandler.Get)
		})
	})

	return r
}

// NewWorkerRouter creates the worker router. /run-scan must answer quickly, so
// it carries no request timeout. validator is only used when Cloud Tasks
// invokes the worker with OIDC tokens and may be nil otherwise.
func NewWorkerRouter(cfg *config.Config, dispatcher core.JobDispatcher, validator TokenValidator, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/", handler.Health)
	r.Get("/health", handler.Health)

	runScan := handler.NewRunScanHandler(dispatcher, logger)
	r.With(taskAuth(cfg, validator, logger)).Post("/run-scan", runScan.Handle)

	return r
}

// taskAuth picks how /run-scan authenticates the queue: OIDC tokens for the
// Cloud Tasks service account, otherwise the static worker token.
func taskAuth(cfg *config.Config, validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.Queue.Backend == config.QueueBackendCloudTasks && cfg.Queue.ServiceAccountEmail != "" {
		return oidcAuth(validator, cfg.Queue.WorkerURL, cfg.Queue.ServiceAccountEmail, logger)
	}
	return bearerAuth(cfg.Worker.AuthToken)
}

