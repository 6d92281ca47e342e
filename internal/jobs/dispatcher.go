package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sevigo/review-relay/internal/core"
)

// runHandle identifies one queued or in-flight run so a newer event for the
// same pull request can cancel it.
type runHandle struct {
	cancel context.CancelFunc
}

type queuedRun struct {
	ctx    context.Context
	handle *runHandle
	event  *core.PullRequestEvent
}

// dispatcher implements core.JobDispatcher with a bounded worker pool.
// Events for distinct pull requests run concurrently; a newer event for the
// same pull request cancels and supersedes the older run, so stale reviews
// are never posted.
type dispatcher struct {
	job        core.Job
	queue      chan *queuedRun
	maxWorkers int
	wg         sync.WaitGroup
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*runHandle
}

// NewDispatcher initializes a dispatcher with a worker pool. If maxWorkers
// is 0 or negative, it defaults to 1.
func NewDispatcher(job core.Job, maxWorkers int, logger *slog.Logger) core.JobDispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	d := &dispatcher{
		job:        job,
		maxWorkers: maxWorkers,
		queue:      make(chan *queuedRun, 100),
		logger:     logger,
		inflight:   make(map[string]*runHandle),
	}
	d.startWorkers()
	return d
}

func (d *dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

func (d *dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Info("starting review worker", "id", workerID)

	for run := range d.queue {
		d.processRun(workerID, run)
	}

	d.logger.Info("shutting down review worker", "id", workerID)
}

func (d *dispatcher) processRun(workerID int, run *queuedRun) {
	defer d.release(run)

	if run.ctx.Err() != nil {
		d.logger.Info("skipping superseded run", "worker_id", workerID, "pr", run.event.Key())
		return
	}

	d.logger.Info("worker processing review",
		"worker_id", workerID,
		"pr", run.event.Key())

	if err := d.job.Run(run.ctx, run.event); err != nil {
		d.logger.Error("review job failed",
			"pr", run.event.Key(),
			"error", err)
	}
}

// release removes the run from the in-flight table, unless a newer run for
// the same key already replaced it.
func (d *dispatcher) release(run *queuedRun) {
	run.handle.cancel()
	d.mu.Lock()
	if d.inflight[run.event.Key()] == run.handle {
		delete(d.inflight, run.event.Key())
	}
	d.mu.Unlock()
}

// Dispatch queues an event for processing. Any older run for the same pull
// request is cancelled first.
func (d *dispatcher) Dispatch(_ context.Context, event *core.PullRequestEvent) error {
	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel}

	d.mu.Lock()
	if prev, ok := d.inflight[event.Key()]; ok {
		d.logger.Info("superseding in-flight review", "pr", event.Key())
		prev.cancel()
	}
	d.inflight[event.Key()] = handle
	d.mu.Unlock()

	d.logger.Info("queuing review job", "pr", event.Key(), "head_sha", event.HeadSHA)

	select {
	case d.queue <- &queuedRun{ctx: runCtx, handle: handle, event: event}:
		return nil
	default:
		d.release(&queuedRun{ctx: runCtx, handle: handle, event: event})
		return fmt.Errorf("job queue is full, cannot accept new review job")
	}
}

// Stop gracefully shuts down the dispatcher, waiting for all workers to
// finish.
func (d *dispatcher) Stop() {
	d.logger.Info("stopping dispatcher and waiting for jobs to finish")
	close(d.queue)
	d.wg.Wait()
	d.logger.Info("all review jobs have finished")
}
