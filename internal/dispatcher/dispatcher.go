// Package dispatcher accepts batch submissions and fans queued work out to a
// pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
	"github.com/JakeFAU/flight-fare-crawler/internal/worker"
)

// Dispatcher owns the queue, the job store and the workers draining them.
type Dispatcher struct {
	queue   jobs.Queue
	store   jobs.Store
	ids     batch.IDGenerator
	clock   batch.Clock
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue jobs.Queue, store jobs.Store, ids batch.IDGenerator, clock batch.Clock, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		store:   store,
		ids:     ids,
		clock:   clock,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	d.queue.Close()
	wg.Wait()
}

// Submit records job as queued and enqueues it. ID and CreatedAt are
// assigned here.
func (d *Dispatcher) Submit(ctx context.Context, job jobs.Job) (jobs.Job, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return jobs.Job{}, fmt.Errorf("generate batch id: %w", err)
	}
	job.ID = id
	job.Status = jobs.StatusQueued
	job.CreatedAt = d.clock.Now()
	job.StartedAt, job.FinishedAt = nil, nil
	job.Summary, job.Artifact, job.Error = nil, nil, ""
	if err := d.store.CreateJob(ctx, job); err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", err)
	}
	if err := d.queue.Enqueue(ctx, job.ID); err != nil {
		failErr := d.store.CompleteJob(context.WithoutCancel(ctx), job.ID, d.clock.Now(), jobs.Result{
			Status: jobs.StatusFailed,
			Error:  "enqueue failed: " + err.Error(),
		})
		if failErr != nil {
			return jobs.Job{}, fmt.Errorf("queue enqueue: %w (mark failed: %v)", err, failErr)
		}
		return jobs.Job{}, fmt.Errorf("queue enqueue: %w", err)
	}
	return job, nil
}
