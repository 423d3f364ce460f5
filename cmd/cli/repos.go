package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/scan-dispatch/internal/config"
	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/github"
	"github.com/sevigo/scan-dispatch/internal/gitutil"
)

var (
	repoWorkspace       string
	repoPlan            string
	repoProvider        string
	repoExternalID      string
	repoCreateWorkspace bool
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manages the registry of workspaces and repositories",
}

var reposAddCmd = &cobra.Command{
	Use:   "add <owner/repo>",
	Short: "Registers a repository under a workspace",
	Long: `Registers a repository so that its webhooks create scan jobs.
Without --external-id the repository id is looked up on GitHub.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		e, cleanup, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		ws, err := resolveWorkspace(ctx, e, repoWorkspace, repoPlan, repoCreateWorkspace)
		if err != nil {
			return err
		}

		owner, name, err := gitutil.ParseRepositoryRef(args[0])
		if err != nil {
			return err
		}
		externalID := repoExternalID
		if externalID == "" {
			externalID, err = lookupExternalID(ctx, e, owner, name)
			if err != nil {
				return err
			}
		}

		repo, err := e.store.CreateRepository(ctx, ws.ID, repoProvider, gitutil.FullName(owner, name), externalID)
		if err != nil {
			return err
		}
		successColor.Printf("✓ Registered %s ", repo.Name)
		dimColor.Printf("(%s %s, workspace %s, plan %s)\n", repo.Provider, repo.ExternalID, ws.Name, ws.PlanLevel)
		return nil
	},
}

var reposImportCmd = &cobra.Command{
	Use:   "import <registry.yaml>",
	Short: "Registers workspaces and repositories from a registry file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		e, cleanup, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		var added, skipped int
		for _, seed := range reg.Workspaces {
			ws, err := resolveWorkspace(ctx, e, seed.Name, seed.PlanLevel, true)
			if err != nil {
				return err
			}
			titleColor.Printf("workspace %s (%s)\n", ws.Name, ws.PlanLevel)

			for _, r := range seed.Repositories {
				externalID := r.ExternalID
				if externalID == "" {
					owner, name, err := gitutil.ParseRepositoryRef(r.Name)
					if err != nil {
						return err
					}
					if externalID, err = lookupExternalID(ctx, e, owner, name); err != nil {
						return err
					}
				}
				if _, err := e.store.FindRepositoryByExternalID(ctx, r.Provider, externalID); err == nil {
					dimColor.Printf("  - %s already registered\n", r.Name)
					skipped++
					continue
				} else if !errors.Is(err, core.ErrRepositoryNotFound) {
					return err
				}
				if _, err := e.store.CreateRepository(ctx, ws.ID, r.Provider, r.Name, externalID); err != nil {
					return err
				}
				successColor.Printf("  ✓ %s\n", r.Name)
				added++
			}
		}
		fmt.Printf("%d added, %d already registered\n", added, skipped)
		return nil
	},
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists registered repositories",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()
		e, cleanup, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		workspaceID := ""
		if repoWorkspace != "" {
			ws, err := e.store.GetWorkspaceByName(ctx, repoWorkspace)
			if err != nil {
				return err
			}
			workspaceID = ws.ID
		}
		repos, err := e.store.ListRepositories(ctx, workspaceID)
		if err != nil {
			return fmt.Errorf("failed to retrieve repositories: %w", err)
		}
		return printRepositories(repos)
	},
}

func resolveWorkspace(ctx context.Context, e *env, name, plan string, create bool) (*core.Workspace, error) {
	if name == "" {
		return nil, fmt.Errorf("a workspace name is required")
	}
	ws, err := e.store.GetWorkspaceByName(ctx, name)
	if err == nil {
		if plan != "" && plan != ws.PlanLevel {
			warnColor.Printf("workspace %s already exists with plan %s, ignoring %s\n", ws.Name, ws.PlanLevel, plan)
		}
		return ws, nil
	}
	if !errors.Is(err, core.ErrWorkspaceNotFound) || !create {
		return nil, err
	}
	return e.store.CreateWorkspace(ctx, name, plan)
}

func lookupExternalID(ctx context.Context, e *env, owner, name string) (string, error) {
	client, err := github.NewClientForRepository(ctx, &e.cfg.GitHub, owner, name, e.logger)
	if err != nil {
		return "", fmt.Errorf("cannot look up %s without --external-id: %w", gitutil.FullName(owner, name), err)
	}
	info, err := client.GetRepository(ctx, owner, name)
	if err != nil {
		return "", err
	}
	return info.ExternalID(), nil
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	reposAddCmd.Flags().StringVarP(&repoWorkspace, "workspace", "w", "", "Workspace that owns the repository")
	reposAddCmd.Flags().StringVar(&repoPlan, "plan", "", "Plan level for a newly created workspace")
	reposAddCmd.Flags().StringVar(&repoProvider, "provider", core.ProviderGitHub, "Repository provider")
	reposAddCmd.Flags().StringVar(&repoExternalID, "external-id", "", "Provider repository id")
	reposAddCmd.Flags().BoolVar(&repoCreateWorkspace, "create-workspace", false, "Create the workspace if it does not exist")
	_ = reposAddCmd.MarkFlagRequired("workspace")

	reposListCmd.Flags().StringVarP(&repoWorkspace, "workspace", "w", "", "Only list repositories of this workspace")

	reposCmd.AddCommand(reposAddCmd, reposImportCmd, reposListCmd)
	rootCmd.AddCommand(reposCmd)
}
