// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// RepositoryInfo is the repository metadata needed to register a repository.
type RepositoryInfo struct {
	ID            int64
	FullName      string
	Private       bool
	DefaultBranch string
}

// ExternalID returns the provider id in the form stored on repositories.
func (r *RepositoryInfo) ExternalID() string {
	return strconv.FormatInt(r.ID, 10)
}

// Client defines the GitHub operations the application needs.
type Client interface {
	GetRepository(ctx context.Context, owner, repo string) (*RepositoryInfo, error)
}

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient wraps the official go-github client to provide a focused,
// testable interface for application-specific GitHub operations.
func NewGitHubClient(client *github.Client, logger *slog.Logger) Client {
	return &gitHubClient{client: client, logger: logger}
}

// NewPATClient creates a new GitHub client authenticated with a Personal Access Token (PAT).
func NewPATClient(ctx context.Context, token string, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)
	return &gitHubClient{client: client, logger: logger}
}

// GetRepository fetches repository metadata.
func (g *gitHubClient) GetRepository(ctx context.Context, owner, repo string) (*RepositoryInfo, error) {
	r, _, err := g.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}
	if r.GetID() == 0 {
		return nil, fmt.Errorf("repository %s/%s has no id", owner, repo)
	}
	g.logger.Debug("fetched repository", "repo", r.GetFullName(), "id", r.GetID())
	return &RepositoryInfo{
		ID:            r.GetID(),
		FullName:      r.GetFullName(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
	}, nil
}
