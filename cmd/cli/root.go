package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/db"
	"github.com/sevigo/scan-dispatch/internal/logger"
	"github.com/sevigo/scan-dispatch/internal/storage"
)

var (
	githubToken  string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "scanctl",
	Short: "scanctl is the command-line interface for scan-dispatch.",
	Long:  `A CLI for administering scan-dispatch: database migrations, the repository registry, job inspection and task queue setup.`,
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.PersistentFlags().StringVarP(&githubToken, "github-token", "t", "", "GitHub Token")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")

	if err := viper.BindPFlag("GITHUB_TOKEN", rootCmd.PersistentFlags().Lookup("github-token")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// env holds what most commands need: configuration, a logger and the store.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	conn   *db.DB
	store  storage.Store
}

// openEnv loads configuration and opens the database. Migrations run on open.
func openEnv(_ context.Context) (*env, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	l := logger.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(l)

	conn, cleanup, err := db.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &env{
		cfg:    cfg,
		logger: l,
		conn:   conn,
		store:  storage.NewStore(conn.DB),
	}, cleanup, nil
}
