package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
)

// JobStore keeps submitted batches and their rows for a single process.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]jobs.Job
	rows map[string][]batch.Flat
}

var (
	_ jobs.Store        = (*JobStore)(nil)
	_ jobs.RecordReader = (*JobStore)(nil)
	_ batch.RecordStore = (*JobStore)(nil)
)

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]jobs.Job),
		rows: make(map[string][]batch.Flat),
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", jobs.ErrExists, job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, id string) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	return job, nil
}

// MarkRunning records the start of a job. Restarting a running job keeps
// the original start time.
func (s *JobStore) MarkRunning(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	job.Status = jobs.StatusRunning
	if job.StartedAt == nil {
		job.StartedAt = pointerTime(at)
	}
	s.jobs[id] = job
	return nil
}

// CompleteJob records the outcome of a job.
func (s *JobStore) CompleteJob(_ context.Context, id string, at time.Time, res jobs.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	job.Status = res.Status
	job.Summary = res.Summary
	job.Artifact = res.Artifact
	job.Error = res.Error
	job.FinishedAt = pointerTime(at)
	s.jobs[id] = job
	return nil
}

// SaveRecords replaces the rows kept for batchID.
func (s *JobStore) SaveRecords(_ context.Context, batchID string, _ time.Time, rows []batch.Flat) error {
	out := make([]batch.Flat, len(rows))
	for i, row := range rows {
		out[i] = maps.Clone(row)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[batchID] = out
	return nil
}

// Records returns copies of the rows saved for batchID.
func (s *JobStore) Records(_ context.Context, batchID string) ([]batch.Flat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.rows[batchID]
	if !ok {
		if _, known := s.jobs[batchID]; !known {
			return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, batchID)
		}
		return []batch.Flat{}, nil
	}
	out := make([]batch.Flat, len(rows))
	for i, row := range rows {
		out[i] = maps.Clone(row)
	}
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
