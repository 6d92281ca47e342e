package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/review-relay/internal/core"
)

// ReviewPublisher renders a ReviewResult into Markdown and posts it as a
// single PR review. Publishing is attempted exactly once per pipeline run.
type ReviewPublisher struct {
	logger *slog.Logger
}

// NewReviewPublisher creates a publisher.
func NewReviewPublisher(logger *slog.Logger) *ReviewPublisher {
	return &ReviewPublisher{logger: logger}
}

// Publish posts the rendered review as a COMMENT review on the pull request
// and returns the host's receipt.
func (p *ReviewPublisher) Publish(ctx context.Context, client Client, event *core.PullRequestEvent, result *core.ReviewResult) (*core.PublishedComment, error) {
	body := RenderReview(result)

	reviewID, err := client.CreateReview(ctx, event.RepoOwner, event.RepoName, event.PRNumber, body)
	if err != nil {
		return nil, core.NewPublishError(err, "failed to post review on %s", event.Key())
	}

	p.logger.Info("review posted", "pr", event.Key(), "review_id", reviewID, "findings", result.Count())
	return &core.PublishedComment{ReviewID: reviewID}, nil
}

// PublishFailure posts a short, non-sensitive failure notice as an issue
// comment. It is best-effort: errors are logged, never propagated, so a
// broken fallback can not mask the original failure.
func (p *ReviewPublisher) PublishFailure(ctx context.Context, client Client, event *core.PullRequestEvent, report core.FailureReport) {
	var sb strings.Builder
	sb.WriteString("## ⚠️ AI Code Review Failed\n\n")
	fmt.Fprintf(&sb, "The review could not be completed (stage: `%s`).\n\n", report.Stage)
	fmt.Fprintf(&sb, "> %s\n\n", report.Message)
	sb.WriteString("Please check the webhook logs or contact the maintainer.\n")

	if err := client.CreateComment(ctx, event.RepoOwner, event.RepoName, event.PRNumber, sb.String()); err != nil {
		p.logger.Error("failed to post failure comment", "pr", event.Key(), "stage", report.Stage, "error", err)
		return
	}
	p.logger.Info("failure comment posted", "pr", event.Key(), "stage", report.Stage, "kind", report.Kind)
}

// categoryHeadings maps each category to its section heading. Order of the
// rendered sections always follows core.Categories().
var categoryHeadings = map[core.Category]string{
	core.CategorySecurity:     "🔐 Security Issues",
	core.CategoryArchitecture: "🏗️ Architectural Concerns",
	core.CategoryPerformance:  "⚡ Performance Issues",
	core.CategoryQuality:      "🧹 Code Quality",
}

// RenderReview renders the result as Markdown grouped by category in the
// fixed taxonomy order, with severity markers per finding.
func RenderReview(result *core.ReviewResult) string {
	var sb strings.Builder
	sb.WriteString("## 🤖 AI Code Review\n\n")

	if result.Degraded {
		sb.WriteString("> [!NOTE]\n> The model reply did not match the expected structure; its raw output is included under Code Quality.\n\n")
	}

	if result.Count() == 0 {
		sb.WriteString("✅ No issues found in any category.\n")
		return sb.String()
	}

	for _, cat := range core.Categories() {
		findings := result.Findings[cat]
		fmt.Fprintf(&sb, "### %s\n\n", categoryHeadings[cat])
		if len(findings) == 0 {
			sb.WriteString("_No findings._\n\n")
			continue
		}
		for _, f := range findings {
			sb.WriteString("- ")
			fmt.Fprintf(&sb, "%s **%s**", severityEmoji(f.Severity), f.Severity)
			if f.File != "" {
				if f.Line > 0 {
					fmt.Fprintf(&sb, " `%s:%d`", f.File, f.Line)
				} else {
					fmt.Fprintf(&sb, " `%s`", f.File)
				}
			}
			sb.WriteString(": ")
			sb.WriteString(strings.TrimSpace(f.Message))
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}

// severityEmoji returns the marker for the given severity level.
func severityEmoji(severity core.Severity) string {
	switch severity {
	case core.SeverityCritical:
		return "🔴"
	case core.SeverityHigh:
		return "🟠"
	case core.SeverityMedium:
		return "🟡"
	case core.SeverityLow:
		return "🟢"
	default:
		return "⚪"
	}
}
