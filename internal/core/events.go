package core

import (
	"fmt"

	"github.com/google/go-github/v73/github"
)

// PullRequestEvent is the application's internal view of a pull request
// webhook. It is immutable once created and triggers exactly one pipeline
// run.
type PullRequestEvent struct {
	RepoOwner    string
	RepoName     string
	RepoFullName string

	PRNumber int
	PRTitle  string
	PRBody   string
	HeadSHA  string
	BaseRef  string

	InstallationID int64
}

// Key identifies the pull request across successive events. Runs for the
// same key are processed sequentially, newest superseding oldest.
func (e *PullRequestEvent) Key() string {
	return fmt.Sprintf("%s#%d", e.RepoFullName, e.PRNumber)
}

// reviewedActions are the webhook actions that trigger a review.
var reviewedActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// EventFromPullRequest transforms a raw GitHub PullRequestEvent into the
// internal representation. It acts as an anti-corruption layer: the payload
// is validated here so that jobs can rely on every field being present.
func EventFromPullRequest(event *github.PullRequestEvent) (*PullRequestEvent, error) {
	if !reviewedActions[event.GetAction()] {
		return nil, fmt.Errorf("action %q does not trigger a review", event.GetAction())
	}

	repo := event.GetRepo()
	if repo == nil || repo.GetOwner() == nil || repo.GetOwner().GetLogin() == "" || repo.GetName() == "" {
		return nil, fmt.Errorf("repository or owner information is missing from the event")
	}

	pr := event.GetPullRequest()
	if pr == nil {
		return nil, fmt.Errorf("pull request data is missing from the event")
	}
	if pr.GetNumber() <= 0 {
		return nil, fmt.Errorf("invalid pull request number: %d", pr.GetNumber())
	}
	if pr.GetHead().GetSHA() == "" {
		return nil, fmt.Errorf("pull request has no head SHA")
	}

	if event.GetInstallation() == nil || event.GetInstallation().GetID() == 0 {
		return nil, fmt.Errorf("installation ID is missing from the event")
	}

	return &PullRequestEvent{
		RepoOwner:      repo.GetOwner().GetLogin(),
		RepoName:       repo.GetName(),
		RepoFullName:   repo.GetFullName(),
		PRNumber:       pr.GetNumber(),
		PRTitle:        pr.GetTitle(),
		PRBody:         pr.GetBody(),
		HeadSHA:        pr.GetHead().GetSHA(),
		BaseRef:        pr.GetBase().GetRef(),
		InstallationID: event.GetInstallation().GetID(),
	}, nil
}
