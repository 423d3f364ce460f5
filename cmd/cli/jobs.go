package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/storage"
)

var (
	jobsWorkspace  string
	jobsRepository string
	jobsStatus     string
	jobsLimit      int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspects scan jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists recent scan jobs, newest first",
	RunE: func(_ *cobra.Command, _ []string) error {
		filter := storage.JobFilter{RepositoryID: jobsRepository, Limit: jobsLimit}
		if jobsStatus != "" {
			status, err := core.ParseJobStatus(jobsStatus)
			if err != nil {
				return err
			}
			filter.Status = status
		}

		ctx := context.Background()
		e, cleanup, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if jobsWorkspace != "" {
			ws, err := e.store.GetWorkspaceByName(ctx, jobsWorkspace)
			if err != nil {
				return err
			}
			filter.WorkspaceID = ws.ID
		}

		jobs, err := e.store.ListJobs(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to retrieve jobs: %w", err)
		}
		return printJobs(jobs)
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Shows a single scan job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		e, cleanup, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		job, err := e.store.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		return printJobs([]*core.Job{job})
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	jobsListCmd.Flags().StringVarP(&jobsWorkspace, "workspace", "w", "", "Only list jobs of this workspace (by name)")
	jobsListCmd.Flags().StringVarP(&jobsRepository, "repository", "r", "", "Only list jobs of this repository id")
	jobsListCmd.Flags().StringVarP(&jobsStatus, "status", "s", "", "Only list jobs in this status")
	jobsListCmd.Flags().IntVarP(&jobsLimit, "limit", "n", storage.DefaultListLimit, "Maximum number of jobs")

	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd)
	rootCmd.AddCommand(jobsCmd)
}
