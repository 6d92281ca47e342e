package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sevigo/review-relay/internal/config"
	"github.com/sevigo/review-relay/internal/core"
	"github.com/sevigo/review-relay/internal/github"
	"github.com/sevigo/review-relay/internal/llm"
	"github.com/sevigo/review-relay/internal/logger"
)

var (
	postReview bool
	verbose    bool
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	dimColor     = color.New(color.FgHiBlack)
)

var reviewCmd = &cobra.Command{
	Use:   "review [pr-url]",
	Short: "Run an AI code review for a GitHub Pull Request",
	Long: `Run an AI code review for a GitHub Pull Request.

The review command fetches the PR diff, sends it to the model with the
fixed category taxonomy and renders the structured feedback. With --post
the review is also published on the pull request.

Examples:
  relay review https://github.com/owner/repo/pull/123
  relay review --post https://github.com/owner/repo/pull/123`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewCmd.Flags().BoolVar(&postReview, "post", false, "Publish the review as a PR comment")
	reviewCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose log output")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateCLI(); err != nil {
		return fmt.Errorf("invalid configuration: %w\n\nTip: set GITHUB_TOKEN and ANTHROPIC_API_KEY in the environment or .env", err)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := logger.New(level, "text", os.Stderr)

	owner, repoName, prNumber, err := parsePullRequestURL(args[0])
	if err != nil {
		return fmt.Errorf("invalid PR URL: %w\n\nExpected format: https://github.com/owner/repo/pull/123", err)
	}

	titleColor.Println("🚀 Review Relay - PR Review")
	dimColor.Printf("   Target: %s/%s#%d\n\n", owner, repoName, prNumber)

	ghClient := github.NewPATClient(ctx, cfg.GitHub.Token, nil, log)

	fmt.Println("Fetching PR metadata...")
	pr, err := ghClient.GetPullRequest(ctx, owner, repoName, prNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch PR: %w\n\nTip: check that the PR exists and your token has access", err)
	}

	event := &core.PullRequestEvent{
		RepoOwner:    owner,
		RepoName:     repoName,
		RepoFullName: fmt.Sprintf("%s/%s", owner, repoName),
		PRNumber:     prNumber,
		PRTitle:      pr.GetTitle(),
		PRBody:       pr.GetBody(),
		HeadSHA:      pr.GetHead().GetSHA(),
		BaseRef:      pr.GetBase().GetRef(),
	}

	repoCfg, err := github.LoadRepoConfig(ctx, ghClient, event)
	if err != nil && !errors.Is(err, github.ErrRepoConfigNotFound) {
		log.Warn("ignoring malformed repo config", "error", err)
		repoCfg = core.DefaultRepoConfig()
	}

	fmt.Println("Fetching diff...")
	fetcher := github.NewDiffFetcher(cfg.DiffSizeLimitBytes, log)
	diff, err := fetcher.Fetch(ctx, ghClient, event, repoCfg)
	if err != nil {
		return err
	}
	dimColor.Printf("   %d files, %d bytes\n", diff.FileCount, diff.ByteLen)

	builder, err := llm.NewPromptBuilder()
	if err != nil {
		return err
	}
	prompt, err := builder.Build(diff, event, repoCfg)
	if err != nil {
		return err
	}

	fmt.Println("Generating review...")
	start := time.Now()
	reviewer := llm.NewReviewClient(cfg.Model, nil, log)
	result, err := reviewer.Review(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to generate review: %w", err)
	}
	dimColor.Printf("   %d findings in %s\n\n", result.Count(), time.Since(start).Round(time.Millisecond))

	body := github.RenderReview(result)
	rendered, err := glamour.Render(body, "dark")
	if err != nil {
		// Fall back to the raw Markdown on terminals glamour can't handle.
		rendered = body
	}
	fmt.Print(rendered)

	if postReview {
		publisher := github.NewReviewPublisher(log)
		published, err := publisher.Publish(ctx, ghClient, event, result)
		if err != nil {
			return err
		}
		successColor.Printf("\n✓ Review posted (id %d)\n", published.ReviewID)
	}

	return nil
}

var prURLRegex = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)

// parsePullRequestURL extracts owner, repo and PR number from a GitHub pull
// request URL of the form https://github.com/{owner}/{repo}/pull/{number}.
func parsePullRequestURL(url string) (owner, repo string, prNumber int, err error) {
	url = strings.TrimSuffix(url, "/")

	matches := prURLRegex.FindStringSubmatch(url)
	if len(matches) != 4 {
		return "", "", 0, fmt.Errorf("unrecognized pull request URL: %s", url)
	}

	prNumber, err = strconv.Atoi(matches[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number %q: %w", matches[3], err)
	}

	return matches[1], matches[2], prNumber, nil
}
