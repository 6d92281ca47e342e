// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"log/slog"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ChangedFile holds the filename and patch data for a single file included
// in a pull request, in the order the host returned it.
type ChangedFile struct {
	Filename string
	Patch    string
}

// Client defines the set of GitHub operations the review pipeline needs.
// Implementations are always scoped to a single installation token (or a
// PAT for the CLI), so the credential never has to travel alongside it.
//
//go:generate mockgen -destination=../mocks/mock_github_client.go -package=mocks . Client
type Client interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]ChangedFile, error)
	CreateReview(ctx context.Context, owner, repo string, number int, body string) (int64, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
	GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

type gitHubClient struct {
	client  *github.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient wraps the official go-github client to provide a focused,
// testable interface. Every outbound call waits on the shared host-API rate
// limiter first.
func NewClient(client *github.Client, limiter *rate.Limiter, logger *slog.Logger) Client {
	return &gitHubClient{client: client, limiter: limiter, logger: logger}
}

// NewPATClient creates a client authenticated with a Personal Access Token.
// This is used by the CLI where an App installation is not available.
func NewPATClient(ctx context.Context, token string, limiter *rate.Limiter, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &gitHubClient{client: github.NewClient(tc), limiter: limiter, logger: logger}
}

func (g *gitHubClient) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// GetPullRequest retrieves a single pull request by its number.
func (g *gitHubClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		g.logger.Error("failed to get pull request", "owner", owner, "repo", repo, "pr", number, "error", err)
		return nil, err
	}
	return pr, nil
}

// ListChangedFiles retrieves the files modified in a pull request. It pages
// through the results (the API returns at most 100 files per page) and
// preserves the host's ordering.
func (g *gitHubClient) ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]ChangedFile, error) {
	var allFiles []ChangedFile
	opts := &github.ListOptions{PerPage: 100}

	for {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		files, resp, err := g.client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			g.logger.Error("failed to list files for pull request", "owner", owner, "repo", repo, "pr", number, "error", err)
			return nil, err
		}

		for _, file := range files {
			allFiles = append(allFiles, ChangedFile{
				Filename: file.GetFilename(),
				Patch:    file.GetPatch(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allFiles, nil
}

// CreateReview creates a pull request review with the given summary body and
// returns the review id.
func (g *gitHubClient) CreateReview(ctx context.Context, owner, repo string, number int, body string) (int64, error) {
	if err := g.wait(ctx); err != nil {
		return 0, err
	}
	reviewRequest := &github.PullRequestReviewRequest{
		Body:  &body,
		Event: github.Ptr("COMMENT"),
	}
	review, _, err := g.client.PullRequests.CreateReview(ctx, owner, repo, number, reviewRequest)
	if err != nil {
		g.logger.Error("failed to create pull request review", "owner", owner, "repo", repo, "pr", number, "error", err)
		return 0, err
	}
	return review.GetID(), nil
}

// CreateComment creates a plain issue comment on a pull request.
func (g *gitHubClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	comment := &github.IssueComment{Body: &body}
	_, _, err := g.client.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		g.logger.Error("failed to create comment", "owner", owner, "repo", repo, "pr", number, "error", err)
	}
	return err
}

// GetFileContent fetches the content of a single file at the given ref.
func (g *gitHubClient) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	file, _, _, err := g.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, err
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}
