// Package jobs models batches submitted to the service and the contracts of
// the stores and queues that carry them.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/summary"
)

// Status is the lifecycle state of a submitted batch.
type Status string

// Lifecycle states. Queued and Running are the only non-terminal ones.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

// StatusFor maps a summary result label onto a job status.
func StatusFor(result string) Status {
	switch result {
	case summary.ResultSuccess:
		return StatusSucceeded
	case summary.ResultPartial:
		return StatusPartial
	default:
		return StatusFailed
	}
}

var (
	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("job not found")
	// ErrExists is returned when a job ID is reused.
	ErrExists = errors.New("job already exists")
	// ErrQueueClosed is returned by Dequeue after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// Job is a submitted batch and, once finished, its outcome.
type Job struct {
	ID         string                `json:"id"`
	Status     Status                `json:"status"`
	Request    batch.Request         `json:"request"`
	Policy     batch.PolicyOverrides `json:"policy"`
	SinkURI    string                `json:"sink_uri,omitempty"`
	Shuffle    bool                  `json:"shuffle,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	Summary    *summary.Summary      `json:"summary,omitempty"`
	Artifact   *batch.Artifact       `json:"artifact,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Result is what a worker records when a job stops running.
type Result struct {
	Status   Status
	Summary  *summary.Summary
	Artifact *batch.Artifact
	Error    string
}

// Store persists jobs.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	MarkRunning(ctx context.Context, id string, at time.Time) error
	CompleteJob(ctx context.Context, id string, at time.Time, res Result) error
}

// RecordReader returns the rows saved for a batch in aggregated order.
type RecordReader interface {
	Records(ctx context.Context, batchID string) ([]batch.Flat, error)
}

// Queue hands job IDs to workers.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (string, error)
	Close()
}
