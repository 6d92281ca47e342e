package github_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/review-relay/internal/core"
	"github.com/sevigo/review-relay/internal/github"
	"github.com/sevigo/review-relay/internal/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() *core.PullRequestEvent {
	return &core.PullRequestEvent{
		RepoOwner:      "sevigo",
		RepoName:       "review-relay",
		RepoFullName:   "sevigo/review-relay",
		PRNumber:       42,
		PRTitle:        "Add retry policy",
		HeadSHA:        "abc123",
		BaseRef:        "main",
		InstallationID: 777,
	}
}

func TestDiffFetcherConcatenatesInHostOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		ListChangedFiles(gomock.Any(), "sevigo", "review-relay", 42).
		Return([]github.ChangedFile{
			{Filename: "b.go", Patch: "@@ -1 +1 @@\n-old\n+new"},
			{Filename: "a.go", Patch: "@@ -2 +2 @@\n-foo\n+bar\n"},
		}, nil)

	fetcher := github.NewDiffFetcher(50000, testLogger())
	diff, err := fetcher.Fetch(context.Background(), client, testEvent(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, diff.FileCount)
	assert.Equal(t, len(diff.Text), diff.ByteLen)

	// Host order is preserved, not sorted.
	posB := strings.Index(diff.Text, "diff --git a/b.go b/b.go")
	posA := strings.Index(diff.Text, "diff --git a/a.go b/a.go")
	require.GreaterOrEqual(t, posB, 0)
	require.Greater(t, posA, posB)

	// Each patch ends with a newline even when the host omitted it.
	assert.Contains(t, diff.Text, "-old\n+new\ndiff --git")
}

func TestDiffFetcherSkipsEmptyPatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		ListChangedFiles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]github.ChangedFile{
			{Filename: "image.png", Patch: ""},
			{Filename: "main.go", Patch: "@@ -1 +1 @@\n+code\n"},
		}, nil)

	fetcher := github.NewDiffFetcher(50000, testLogger())
	diff, err := fetcher.Fetch(context.Background(), client, testEvent(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, diff.FileCount)
	assert.NotContains(t, diff.Text, "image.png")
}

func TestDiffFetcherAppliesExcludePaths(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		ListChangedFiles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]github.ChangedFile{
			{Filename: "vendor/dep/dep.go", Patch: "@@ vendored @@\n+x\n"},
			{Filename: "go.lock", Patch: "@@ lock @@\n+y\n"},
			{Filename: "main.go", Patch: "@@ -1 +1 @@\n+code\n"},
		}, nil)

	repoCfg := &core.RepoConfig{ExcludePaths: []string{"vendor/", "*.lock"}}

	fetcher := github.NewDiffFetcher(50000, testLogger())
	diff, err := fetcher.Fetch(context.Background(), client, testEvent(), repoCfg)
	require.NoError(t, err)

	assert.Equal(t, 1, diff.FileCount)
	assert.Contains(t, diff.Text, "main.go")
	assert.NotContains(t, diff.Text, "vendor/dep/dep.go")
	assert.NotContains(t, diff.Text, "go.lock")
}

func TestDiffFetcherRejectsOversizedDiff(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		ListChangedFiles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]github.ChangedFile{
			{Filename: "big.go", Patch: strings.Repeat("+x\n", 300)},
		}, nil)

	fetcher := github.NewDiffFetcher(100, testLogger())
	diff, err := fetcher.Fetch(context.Background(), client, testEvent(), nil)

	require.Error(t, err)
	assert.Nil(t, diff)
	assert.True(t, core.IsKind(err, core.KindSizeLimit))
	assert.Contains(t, core.SafeMessage(err), "smaller changes")
}

func TestDiffFetcherRejectsEmptyDiff(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		ListChangedFiles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]github.ChangedFile{}, nil)

	fetcher := github.NewDiffFetcher(50000, testLogger())
	_, err := fetcher.Fetch(context.Background(), client, testEvent(), nil)

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestDiffFetcherWrapsListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	cause := errors.New("422 Unprocessable Entity")
	client.EXPECT().
		ListChangedFiles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, cause)

	fetcher := github.NewDiffFetcher(50000, testLogger())
	_, err := fetcher.Fetch(context.Background(), client, testEvent(), nil)

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindFetch))
	assert.ErrorIs(t, err, cause)
}
