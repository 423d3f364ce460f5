package wire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/wire"
	"google.golang.org/api/idtoken"

	"github.com/sevigo/scan-dispatch/internal/app"
	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/db"
	"github.com/sevigo/scan-dispatch/internal/dedup"
	"github.com/sevigo/scan-dispatch/internal/ingest"
	"github.com/sevigo/scan-dispatch/internal/jobs"
	"github.com/sevigo/scan-dispatch/internal/logger"
	"github.com/sevigo/scan-dispatch/internal/scanner"
	"github.com/sevigo/scan-dispatch/internal/server"
	"github.com/sevigo/scan-dispatch/internal/storage"
	"github.com/sevigo/scan-dispatch/internal/taskqueue"
)

var CommonSet = wire.NewSet(
	db.NewDatabase,
	provideDBConfig,
	provideSlogLogger,
	provideStore,
	wire.Bind(new(core.JobStore), new(storage.Store)),
)

var APISet = wire.NewSet(
	CommonSet,
	app.NewApp,
	ingest.NewController,
	taskqueue.NewAdapter,
	taskqueue.NewScheduler,
	provideServerConfig,
	provideQueueConfig,
	provideDeliveryGuard,
	wire.Bind(new(ingest.Enqueuer), new(*taskqueue.Adapter)),
)

var WorkerSet = wire.NewSet(
	CommonSet,
	app.NewWorker,
	provideWorkerConfig,
	provideScanner,
	provideExecutor,
	provideDispatcher,
	provideTokenValidator,
)

func provideServerConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideWorkerConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideDBConfig(cfg *config.Config) *config.DBConfig {
	return &cfg.Database
}

func provideQueueConfig(cfg *config.Config) *config.QueueConfig {
	return &cfg.Queue
}

func provideSlogLogger(cfg *config.Config) *slog.Logger {
	l := logger.NewLogger(cfg.Logging, logger.OpenOutput(cfg.Logging.Output))
	slog.SetDefault(l)
	return l
}

func provideStore(conn *db.DB) storage.Store {
	return storage.NewStore(conn.DB)
}

// provideDeliveryGuard returns nil unless delivery deduplication is enabled.
func provideDeliveryGuard(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ingest.DeliveryGuard, func(), error) {
	if !cfg.Server.DedupDeliveries {
		return nil, func() {}, nil
	}
	client, cleanup, err := dedup.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, func() {}, err
	}
	logger.Info("webhook delivery deduplication enabled", "redis", cfg.Redis.Addr, "ttl", cfg.Server.DedupTTL)
	return dedup.NewGuard(client, cfg.Server.DedupTTL), cleanup, nil
}

// provideTokenValidator returns nil unless Cloud Tasks invokes the worker
// with OIDC tokens.
func provideTokenValidator(ctx context.Context, cfg *config.Config) (server.TokenValidator, error) {
	if cfg.Queue.Backend != config.QueueBackendCloudTasks || cfg.Queue.ServiceAccountEmail == "" {
		return nil, nil
	}
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create ID token validator: %w", err)
	}
	return v, nil
}

func provideScanner(cfg *config.Config, logger *slog.Logger) core.Scanner {
	return scanner.NewSimulated(cfg.Worker.ScanDuration, logger)
}

func provideExecutor(store core.JobStore, s core.Scanner, cfg *config.Config, logger *slog.Logger) *jobs.Executor {
	return jobs.NewExecutor(store, s, cfg.Worker.ScanTimeout, logger)
}

func provideDispatcher(executor *jobs.Executor, cfg *config.Config, logger *slog.Logger) core.JobDispatcher {
	return jobs.NewDispatcher(executor, cfg.Worker.MaxWorkers, logger)
}
