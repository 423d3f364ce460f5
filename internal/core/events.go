package core

import (
	"fmt"
	"strconv"

	"github.com/google/go-github/v73/github"
)

// Pull request actions that start a scan.
const (
	ActionOpened      = "opened"
	ActionSynchronize = "synchronize"
)

// PullRequestEvent is the internal view of a GitHub pull_request webhook.
type PullRequestEvent struct {
	DeliveryID     string
	Action         string
	RepoExternalID string
	RepoFullName   string
	PRNumber       int
	HeadSHA        string
	InstallationID int64
}

// Actionable reports whether the event should produce a scan job: a pull
// request was opened or new commits were pushed to it.
func (e *PullRequestEvent) Actionable() bool {
	if e == nil {
		return false
	}
	return ActionTriggersScan(e.Action)
}

// ActionTriggersScan reports whether a pull_request action starts a scan.
func ActionTriggersScan(action string) bool {
	return action == ActionOpened || action == ActionSynchronize
}

// EventFromPullRequest transforms a raw GitHub PullRequestEvent into the
// application's internal representation. It rejects payloads that lack the
// data needed to create a job; it does not filter by action.
func EventFromPullRequest(event *github.PullRequestEvent) (*PullRequestEvent, error) {
	if event == nil {
		return nil, fmt.Errorf("pull request event is empty")
	}

	repo := event.GetRepo()
	if repo == nil || repo.GetID() == 0 {
		return nil, fmt.Errorf("repository id is missing from the event")
	}

	pr := event.GetPullRequest()
	if pr == nil {
		return nil, fmt.Errorf("pull request is missing from the event")
	}

	number := event.GetNumber()
	if number == 0 {
		number = pr.GetNumber()
	}

	return &PullRequestEvent{
		Action:         event.GetAction(),
		RepoExternalID: strconv.FormatInt(repo.GetID(), 10),
		RepoFullName:   repo.GetFullName(),
		PRNumber:       number,
		HeadSHA:        pr.GetHead().GetSHA(),
		InstallationID: event.GetInstallation().GetID(),
	}, nil
}
