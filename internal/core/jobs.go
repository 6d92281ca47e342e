package core

import (
	"context"
)

// JobDispatcher defines the contract for a system that can accept and queue
// background jobs for asynchronous processing. This interface decouples the
// event source (the webhook handler) from the job execution mechanism.
type JobDispatcher interface {
	// Dispatch accepts a PullRequestEvent and queues it for processing.
	// It returns an error if the job cannot be queued, for example when the
	// queue is full, providing a mechanism for backpressure.
	Dispatch(ctx context.Context, event *PullRequestEvent) error

	// Stop drains the queue and waits for in-flight jobs to finish.
	Stop()
}

// Job represents a single, executable unit of work processed by the
// dispatcher. Each job is triggered by one PullRequestEvent.
type Job interface {
	// Run executes the job's logic. The context is cancelled when a newer
	// event for the same pull request supersedes this run.
	Run(ctx context.Context, event *PullRequestEvent) error
}
