package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/review-relay/internal/core"
)

// DiffFetcher retrieves the changed files of a pull request and normalizes
// them into a single diff document, enforcing the configured size limit
// before anything is sent to the model.
type DiffFetcher struct {
	limitBytes int
	logger     *slog.Logger
}

// NewDiffFetcher creates a fetcher with the given maximum diff size in bytes.
func NewDiffFetcher(limitBytes int, logger *slog.Logger) *DiffFetcher {
	return &DiffFetcher{limitBytes: limitBytes, logger: logger}
}

// Fetch retrieves the patches for the PR, drops files excluded by the repo
// config, and concatenates the rest preserving file boundaries and host
// ordering. A diff over the size limit is rejected, never truncated.
func (f *DiffFetcher) Fetch(ctx context.Context, client Client, event *core.PullRequestEvent, repoCfg *core.RepoConfig) (*core.DiffDocument, error) {
	files, err := client.ListChangedFiles(ctx, event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		return nil, core.NewFetchError(err, "failed to list changed files for %s", event.Key())
	}

	if repoCfg == nil {
		repoCfg = core.DefaultRepoConfig()
	}

	var sb strings.Builder
	fileCount := 0
	for _, file := range files {
		if file.Patch == "" {
			// Binary or renamed-without-changes entries carry no patch.
			continue
		}
		if repoCfg.Excluded(file.Filename) {
			f.logger.Debug("excluding file from review", "file", file.Filename, "pr", event.Key())
			continue
		}

		fmt.Fprintf(&sb, "diff --git a/%s b/%s\n", file.Filename, file.Filename)
		sb.WriteString(file.Patch)
		if !strings.HasSuffix(file.Patch, "\n") {
			sb.WriteByte('\n')
		}
		fileCount++
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, core.NewValidationError("pull request has no code changes to review")
	}

	if len(text) > f.limitBytes {
		return nil, core.NewSizeLimitError(
			"pull request diff is too large (%d bytes); maximum supported size is %d bytes, please break this PR into smaller changes",
			len(text), f.limitBytes)
	}

	f.logger.Info("fetched pull request diff",
		"pr", event.Key(),
		"files", fileCount,
		"bytes", len(text))

	return &core.DiffDocument{
		Text:      text,
		ByteLen:   len(text),
		FileCount: fileCount,
	}, nil
}
