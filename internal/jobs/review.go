// Package jobs defines background tasks such as automated code reviews.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sevigo/review-relay/internal/core"
	"github.com/sevigo/review-relay/internal/github"
	"github.com/sevigo/review-relay/internal/storage"
)

// ClientProvider hands out installation-scoped GitHub clients.
type ClientProvider interface {
	InstallationClient(ctx context.Context, installationID int64) (github.Client, error)
}

// DiffFetcher retrieves the normalized diff for a pull request.
type DiffFetcher interface {
	Fetch(ctx context.Context, client github.Client, event *core.PullRequestEvent, repoCfg *core.RepoConfig) (*core.DiffDocument, error)
}

// PromptBuilder renders the model instruction from the diff and metadata.
type PromptBuilder interface {
	Build(diff *core.DiffDocument, event *core.PullRequestEvent, repoCfg *core.RepoConfig) (*core.ReviewPrompt, error)
}

// Reviewer invokes the model and parses its reply.
type Reviewer interface {
	Review(ctx context.Context, prompt *core.ReviewPrompt) (*core.ReviewResult, error)
}

// Publisher posts reviews and failure notices back to the host.
type Publisher interface {
	Publish(ctx context.Context, client github.Client, event *core.PullRequestEvent, result *core.ReviewResult) (*core.PublishedComment, error)
	PublishFailure(ctx context.Context, client github.Client, event *core.PullRequestEvent, report core.FailureReport)
}

// ReviewJob runs the review pipeline for one pull request event:
// authenticate, fetch diff, build prompt, invoke model, publish. Each
// transition fails fast; a failure terminates the run and degrades to a
// best-effort comment on the PR instead of crashing anything.
type ReviewJob struct {
	clients   ClientProvider
	fetcher   DiffFetcher
	prompts   PromptBuilder
	reviewer  Reviewer
	publisher Publisher
	store     storage.Store
	logger    *slog.Logger
}

// NewReviewJob wires the pipeline components into a runnable job.
func NewReviewJob(clients ClientProvider, fetcher DiffFetcher, prompts PromptBuilder, reviewer Reviewer, publisher Publisher, store storage.Store, logger *slog.Logger) core.Job {
	if clients == nil || fetcher == nil || prompts == nil || reviewer == nil || publisher == nil {
		panic("review job dependencies cannot be nil")
	}
	if store == nil {
		store = storage.NewNoopStore()
	}
	return &ReviewJob{
		clients:   clients,
		fetcher:   fetcher,
		prompts:   prompts,
		reviewer:  reviewer,
		publisher: publisher,
		store:     store,
		logger:    logger,
	}
}

// Run executes the pipeline for a single event.
func (j *ReviewJob) Run(ctx context.Context, event *core.PullRequestEvent) error {
	if err := validateEvent(event); err != nil {
		j.logger.Error("event validation failed", "error", err)
		return err
	}

	log := j.logger.With("pr", event.Key(), "head_sha", event.HeadSHA)
	log.Info("starting review run")

	if j.alreadyReviewed(ctx, event) {
		log.Info("head SHA already reviewed, skipping duplicate delivery")
		return nil
	}

	// Received -> Authenticated
	client, err := j.clients.InstallationClient(ctx, event.InstallationID)
	if err != nil {
		// Without a token there is no way to post the fallback comment.
		return j.fail(ctx, nil, event, core.StageAuthenticated, err)
	}

	repoCfg, err := github.LoadRepoConfig(ctx, client, event)
	if err != nil && !errors.Is(err, github.ErrRepoConfigNotFound) {
		log.Warn("ignoring malformed repo config", "error", err)
		repoCfg = core.DefaultRepoConfig()
	}

	// Authenticated -> DiffFetched
	diff, err := j.fetcher.Fetch(ctx, client, event, repoCfg)
	if err != nil {
		return j.fail(ctx, client, event, core.StageDiffFetched, err)
	}

	// DiffFetched -> PromptBuilt
	prompt, err := j.prompts.Build(diff, event, repoCfg)
	if err != nil {
		return j.fail(ctx, client, event, core.StagePromptBuilt, err)
	}

	// PromptBuilt -> Reviewed
	result, err := j.reviewer.Review(ctx, prompt)
	if err != nil {
		return j.fail(ctx, client, event, core.StageReviewed, err)
	}

	// A run superseded by a newer push must not post a stale comment.
	if err := ctx.Err(); err != nil {
		log.Info("run superseded before publish, skipping")
		j.record(event, storage.StatusSuperseded, 0, core.StageReviewed)
		return err
	}

	// Reviewed -> Published
	published, err := j.publisher.Publish(ctx, client, event, result)
	if err != nil {
		return j.fail(ctx, client, event, core.StagePublished, err)
	}

	j.record(event, storage.StatusPublished, published.ReviewID, "")
	log.Info("review run completed", "review_id", published.ReviewID, "findings", result.Count())
	return nil
}

// fail terminates the run, posts the best-effort fallback comment and
// records the receipt. A failure in the publish stage itself is only logged;
// it is never retried with another comment.
func (j *ReviewJob) fail(ctx context.Context, client github.Client, event *core.PullRequestEvent, stage core.Stage, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		// A superseded run must stay silent: no stale failure comment.
		j.logger.Info("run cancelled, suppressing fallback comment", "pr", event.Key(), "stage", stage)
		j.record(event, storage.StatusSuperseded, 0, stage)
		return err
	}

	report := core.NewFailureReport(stage, err)
	j.logger.Error("review run failed",
		"pr", event.Key(),
		"stage", report.Stage,
		"kind", report.Kind,
		"error", err)

	if client != nil && stage != core.StagePublished {
		// The fallback must not inherit a cancelled or exhausted context.
		fallbackCtx := context.WithoutCancel(ctx)
		j.publisher.PublishFailure(fallbackCtx, client, event, report)
	}

	j.record(event, storage.StatusFailed, 0, stage)
	return err
}

// alreadyReviewed reports whether this exact head SHA already produced a
// published review, which makes the current delivery a duplicate.
func (j *ReviewJob) alreadyReviewed(ctx context.Context, event *core.PullRequestEvent) bool {
	rec, err := j.store.LatestReview(ctx, event.RepoFullName, event.PRNumber)
	if err != nil {
		j.logger.Warn("receipt lookup failed", "pr", event.Key(), "error", err)
		return false
	}
	return rec != nil && rec.Status == storage.StatusPublished && rec.HeadSHA == event.HeadSHA
}

// record persists the run receipt. Best-effort: a storage failure never
// affects the run outcome.
func (j *ReviewJob) record(event *core.PullRequestEvent, status string, reviewID int64, stage core.Stage) {
	rec := &storage.ReviewRecord{
		RepoFullName: event.RepoFullName,
		PRNumber:     event.PRNumber,
		HeadSHA:      event.HeadSHA,
		Status:       status,
	}
	if reviewID != 0 {
		rec.ReviewID = sql.NullInt64{Int64: reviewID, Valid: true}
	}
	if stage != "" {
		rec.FailureStage = sql.NullString{String: string(stage), Valid: true}
	}

	if err := j.store.SaveReview(context.Background(), rec); err != nil {
		j.logger.Warn("failed to save review receipt", "pr", event.Key(), "error", err)
	}
}

func validateEvent(event *core.PullRequestEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.RepoOwner == "" || event.RepoName == "" || event.RepoFullName == "" {
		return fmt.Errorf("repository identification is incomplete")
	}
	if event.PRNumber <= 0 {
		return fmt.Errorf("pull request number must be positive, got: %d", event.PRNumber)
	}
	if event.HeadSHA == "" {
		return fmt.Errorf("head SHA cannot be empty")
	}
	if event.InstallationID <= 0 {
		return fmt.Errorf("installation ID must be positive, got: %d", event.InstallationID)
	}
	return nil
}
