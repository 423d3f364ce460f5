package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/logger"
	"github.com/sevigo/scan-dispatch/internal/taskqueue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manages the task queue backend",
}

var queueConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Sets the Cloud Tasks queue retry window to the maximum job lifetime",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Queue.Backend != config.QueueBackendCloudTasks {
			return fmt.Errorf("queue configure only applies to the %s backend, got %q", config.QueueBackendCloudTasks, cfg.Queue.Backend)
		}
		ctx := context.Background()
		scheduler, cleanup, err := taskqueue.NewCloudTasksScheduler(ctx, &cfg.Queue, logger.NewLogger(cfg.Logging, nil))
		if err != nil {
			return err
		}
		defer cleanup()

		if err := scheduler.ConfigureRetryWindow(ctx, cfg.Queue.MaxJobLifetime); err != nil {
			return err
		}
		successColor.Printf("✓ %s retries for at most %s\n", cfg.Queue.QueuePath(), cfg.Queue.MaxJobLifetime)
		return nil
	},
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Delivers tasks from the AMQP queue to the worker endpoint",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Queue.Backend != config.QueueBackendAMQP {
			return fmt.Errorf("relay only applies to the %s backend, got %q", config.QueueBackendAMQP, cfg.Queue.Backend)
		}
		l := logger.NewLogger(cfg.Logging, nil)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		relay, cleanup, err := taskqueue.NewRelay(&cfg.Queue, taskqueue.NewDeliverer(cfg.Worker.AuthToken, l), l)
		if err != nil {
			return err
		}
		defer cleanup()

		titleColor.Printf("relaying %s to %s\n", cfg.Queue.QueueName, cfg.Queue.WorkerURL)
		return relay.Run(ctx)
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	queueCmd.AddCommand(queueConfigureCmd)
	rootCmd.AddCommand(queueCmd, relayCmd)
}
