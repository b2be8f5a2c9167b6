// Package worker runs queued batch jobs.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
	"github.com/JakeFAU/flight-fare-crawler/internal/metrics"
	"github.com/JakeFAU/flight-fare-crawler/internal/runner"
)

// BatchRunner executes one batch.
type BatchRunner interface {
	Run(ctx context.Context, req batch.Request, policy batch.Policy, opts runner.RunOptions) (runner.Outcome, error)
}

// Worker consumes job IDs and executes the batches they name.
type Worker struct {
	queue  jobs.Queue
	store  jobs.Store
	runner BatchRunner
	clock  batch.Clock
	policy batch.Policy
	logger *zap.Logger
}

// New constructs a Worker. policy is the base every job's overrides apply to.
func New(
	queue jobs.Queue,
	store jobs.Store,
	r BatchRunner,
	clock batch.Clock,
	policy batch.Policy,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		store:  store,
		runner: r,
		clock:  clock,
		policy: policy,
		logger: logger,
	}
}

// Run processes jobs until ctx ends or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jobs.ErrQueueClosed) {
				return
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, id)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("batch_id", id))
	job, err := w.store.GetJob(ctx, id)
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		logger.Warn("skipping finished job", zap.String("status", string(job.Status)))
		return
	}
	if err := w.store.MarkRunning(ctx, id, w.clock.Now()); err != nil {
		logger.Error("mark running failed", zap.Error(err))
		return
	}
	logger.Info("batch started")

	res := w.execute(ctx, job)
	// The batch has already run; record its outcome even during shutdown.
	if err := w.store.CompleteJob(context.WithoutCancel(ctx), id, w.clock.Now(), res); err != nil {
		logger.Error("complete job failed", zap.Error(err))
		return
	}
	logger.Info("batch finished", zap.String("status", string(res.Status)))
}

func (w *Worker) execute(ctx context.Context, job jobs.Job) (res jobs.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("batch panicked", zap.String("batch_id", job.ID), zap.Any("panic", rec))
			res = jobs.Result{Status: jobs.StatusFailed, Error: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	policy := job.Policy.Apply(w.policy)
	outcome, err := w.runner.Run(ctx, job.Request, policy, runner.RunOptions{
		BatchID: job.ID,
		SinkURI: job.SinkURI,
		Shuffle: job.Shuffle,
	})
	if outcome.BatchID == "" {
		// Pre-flight failure: nothing was scheduled.
		msg := "batch did not start"
		if err != nil {
			msg = err.Error()
		}
		return jobs.Result{Status: jobs.StatusFailed, Error: msg}
	}
	sum := outcome.Summary
	res = jobs.Result{
		Status:   jobs.StatusFor(sum.Result()),
		Summary:  &sum,
		Artifact: outcome.Artifact,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
