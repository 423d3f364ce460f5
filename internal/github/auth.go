package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"

	"github.com/sevigo/scan-dispatch/internal/config"
)

// NewClientForRepository returns a client able to read owner/repo. A personal
// access token is preferred; otherwise the GitHub App installation covering the
// repository is used.
func NewClientForRepository(ctx context.Context, cfg *config.GitHubConfig, owner, repo string, logger *slog.Logger) (Client, error) {
	if cfg.Token != "" {
		return NewPATClient(ctx, cfg.Token, logger), nil
	}
	if cfg.AppID == 0 || cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("either GITHUB_TOKEN or GITHUB_APP_ID and GITHUB_PRIVATE_KEY_PATH must be set")
	}

	privateKey, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.PrivateKeyPath, err)
	}

	// the apps transport authenticates as the App itself
	appTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, cfg.AppID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}
	appClient := github.NewClient(&http.Client{Transport: appTransport})

	installation, _, err := appClient.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to find app installation for %s/%s: %w", owner, repo, err)
	}
	logger.Info("using GitHub App installation", "installation_id", installation.GetID(), "repo", owner+"/"+repo)

	itr, err := ghinstallation.New(http.DefaultTransport, cfg.AppID, installation.GetID(), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport: %w", err)
	}
	return NewGitHubClient(github.NewClient(&http.Client{Transport: itr}), logger), nil
}
