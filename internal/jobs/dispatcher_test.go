package jobs_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-relay/internal/core"
	"github.com/sevigo/review-relay/internal/jobs"
)

// blockingJob records every run and holds each one until released.
type blockingJob struct {
	started   chan string
	release   chan struct{}
	cancelled atomic.Int64

	mu   sync.Mutex
	runs []string
}

func newBlockingJob() *blockingJob {
	return &blockingJob{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (j *blockingJob) Run(ctx context.Context, event *core.PullRequestEvent) error {
	j.mu.Lock()
	j.runs = append(j.runs, event.HeadSHA)
	j.mu.Unlock()
	j.started <- event.HeadSHA

	select {
	case <-ctx.Done():
		j.cancelled.Add(1)
		return ctx.Err()
	case <-j.release:
		return nil
	}
}

func dispatchEvent(sha string, prNumber int) *core.PullRequestEvent {
	return &core.PullRequestEvent{
		RepoOwner:      "sevigo",
		RepoName:       "review-relay",
		RepoFullName:   "sevigo/review-relay",
		PRNumber:       prNumber,
		HeadSHA:        sha,
		InstallationID: 777,
	}
}

func TestDispatcherRunsJobs(t *testing.T) {
	job := newBlockingJob()
	d := jobs.NewDispatcher(job, 2, testLogger())

	require.NoError(t, d.Dispatch(context.Background(), dispatchEvent("sha-1", 1)))

	select {
	case sha := <-job.started:
		assert.Equal(t, "sha-1", sha)
	case <-time.After(time.Second):
		t.Fatal("job was never started")
	}

	close(job.release)
	d.Stop()
}

func TestDispatcherSupersedesInFlightRun(t *testing.T) {
	job := newBlockingJob()
	d := jobs.NewDispatcher(job, 2, testLogger())

	// First push starts and blocks inside the job.
	require.NoError(t, d.Dispatch(context.Background(), dispatchEvent("old-sha", 1)))
	select {
	case <-job.started:
	case <-time.After(time.Second):
		t.Fatal("first run never started")
	}

	// A newer push for the same PR cancels the blocked run.
	require.NoError(t, d.Dispatch(context.Background(), dispatchEvent("new-sha", 1)))
	select {
	case sha := <-job.started:
		assert.Equal(t, "new-sha", sha)
	case <-time.After(time.Second):
		t.Fatal("superseding run never started")
	}

	close(job.release)
	d.Stop()

	assert.Equal(t, int64(1), job.cancelled.Load(), "the older run must be cancelled")
}

func TestDispatcherKeepsDistinctPRsIndependent(t *testing.T) {
	job := newBlockingJob()
	d := jobs.NewDispatcher(job, 2, testLogger())

	require.NoError(t, d.Dispatch(context.Background(), dispatchEvent("sha-a", 1)))
	require.NoError(t, d.Dispatch(context.Background(), dispatchEvent("sha-b", 2)))

	for range 2 {
		select {
		case <-job.started:
		case <-time.After(time.Second):
			t.Fatal("both runs should start concurrently")
		}
	}

	close(job.release)
	d.Stop()

	assert.Zero(t, job.cancelled.Load(), "runs for different PRs must not cancel each other")
}

func TestDispatcherStopDrainsQueue(t *testing.T) {
	job := newBlockingJob()
	close(job.release)
	d := jobs.NewDispatcher(job, 1, testLogger())

	for i := range 5 {
		require.NoError(t, d.Dispatch(context.Background(), dispatchEvent("sha", i+1)))
	}

	d.Stop()

	job.mu.Lock()
	defer job.mu.Unlock()
	assert.Len(t, job.runs, 5, "queued jobs must finish before Stop returns")
}
