// Package memory provides an in-process job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
)

// Queue is a bounded in-memory queue of job IDs with context-aware
// operations.
type Queue struct {
	ch   chan string
	done chan struct{}
	once sync.Once
}

var _ jobs.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan string, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job ID, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case <-q.done:
		return jobs.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return jobs.ErrQueueClosed
	case q.ch <- jobID:
		return nil
	}
}

// Dequeue pops the next job ID.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return "", jobs.ErrQueueClosed
	case id := <-q.ch:
		return id, nil
	}
}

// Len reports how many IDs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close wakes every blocked caller. IDs still queued are dropped.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
