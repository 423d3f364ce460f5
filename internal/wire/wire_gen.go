// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"

	"github.com/sevigo/scan-dispatch/internal/app"
	"github.com/sevigo/scan-dispatch/internal/db"
	"github.com/sevigo/scan-dispatch/internal/ingest"
	"github.com/sevigo/scan-dispatch/internal/taskqueue"
)

// InitializeApp creates and wires the API process.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := provideServerConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slogLogger := provideSlogLogger(cfg)

	// Database
	dbConn, dbCleanup, err := db.NewDatabase(provideDBConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := provideStore(dbConn)

	// Task queue
	scheduler, schedulerCleanup, err := taskqueue.NewScheduler(ctx, cfg, slogLogger)
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create task queue: %w", err)
	}
	adapter := taskqueue.NewAdapter(provideQueueConfig(cfg), scheduler, slogLogger)

	guard, guardCleanup, err := provideDeliveryGuard(ctx, cfg, slogLogger)
	if err != nil {
		schedulerCleanup()
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create delivery guard: %w", err)
	}

	controller := ingest.NewController(store, adapter, guard, slogLogger)
	application := app.NewApp(cfg, controller, store, slogLogger)

	cleanup := func() {
		guardCleanup()
		schedulerCleanup()
		dbCleanup()
	}
	return application, cleanup, nil
}

// InitializeWorker creates and wires the worker process.
func InitializeWorker(ctx context.Context) (*app.Worker, func(), error) {
	cfg, err := provideWorkerConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slogLogger := provideSlogLogger(cfg)

	dbConn, dbCleanup, err := db.NewDatabase(provideDBConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := provideStore(dbConn)

	scanner := provideScanner(cfg, slogLogger)
	executor := provideExecutor(store, scanner, cfg, slogLogger)
	dispatcher := provideDispatcher(executor, cfg, slogLogger)
	validator, err := provideTokenValidator(ctx, cfg)
	if err != nil {
		dbCleanup()
		return nil, nil, err
	}
	worker := app.NewWorker(cfg, dispatcher, validator, slogLogger)

	return worker, dbCleanup, nil
}
