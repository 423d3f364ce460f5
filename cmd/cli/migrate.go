package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies pending database migrations and prints the schema version",
	RunE: func(_ *cobra.Command, _ []string) error {
		e, cleanup, err := openEnv(context.Background())
		if err != nil {
			return err
		}
		defer cleanup()

		// NewDatabase already migrated; running again is a no-op.
		if err := e.conn.RunMigrations(); err != nil {
			return err
		}
		version, dirty, err := e.conn.MigrationVersion()
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}

		titleColor.Printf("%s schema ", e.conn.Driver())
		if dirty {
			errorColor.Printf("version %d (dirty)\n", version)
			return fmt.Errorf("database schema is dirty at version %d", version)
		}
		successColor.Printf("version %d\n", version)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.AddCommand(migrateCmd)
}
