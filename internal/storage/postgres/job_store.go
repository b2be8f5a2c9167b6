package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
)

// JobStore implements jobs.Store on the batch_jobs table.
type JobStore struct {
	db DB
}

var _ jobs.Store = (*JobStore)(nil)

// NewJobStore creates a JobStore over db.
func NewJobStore(db DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &JobStore{db: db}, nil
}

// CreateJob inserts job. Reusing an ID yields jobs.ErrExists.
func (s *JobStore) CreateJob(ctx context.Context, job jobs.Job) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	policy, err := json.Marshal(job.Policy)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO batch_jobs (id, status, request, policy, sink_uri, shuffle, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING`,
		job.ID, string(job.Status), request, policy, job.SinkURI, job.Shuffle, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", jobs.ErrExists, job.ID)
	}
	return nil
}

// GetJob loads a job by ID.
func (s *JobStore) GetJob(ctx context.Context, id string) (jobs.Job, error) {
	var (
		job                       jobs.Job
		status                    string
		request, policy           []byte
		summaryJSON, artifactJSON []byte
	)
	err := s.db.QueryRow(ctx, `
SELECT id, status, request, policy, sink_uri, shuffle, created_at, started_at, finished_at, summary, artifact, error
FROM batch_jobs WHERE id = $1`, id).Scan(
		&job.ID, &status, &request, &policy, &job.SinkURI, &job.Shuffle,
		&job.CreatedAt, &job.StartedAt, &job.FinishedAt, &summaryJSON, &artifactJSON, &job.Error,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	if err != nil {
		return jobs.Job{}, fmt.Errorf("select job: %w", err)
	}
	job.Status = jobs.Status(status)
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return jobs.Job{}, fmt.Errorf("decode request: %w", err)
	}
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &job.Policy); err != nil {
			return jobs.Job{}, fmt.Errorf("decode policy: %w", err)
		}
	}
	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &job.Summary); err != nil {
			return jobs.Job{}, fmt.Errorf("decode summary: %w", err)
		}
	}
	if len(artifactJSON) > 0 {
		if err := json.Unmarshal(artifactJSON, &job.Artifact); err != nil {
			return jobs.Job{}, fmt.Errorf("decode artifact: %w", err)
		}
	}
	return job, nil
}

// MarkRunning sets the job running, keeping the first start time.
func (s *JobStore) MarkRunning(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE batch_jobs SET status = $2, started_at = COALESCE(started_at, $3)
WHERE id = $1`, id, string(jobs.StatusRunning), at)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	return nil
}

// CompleteJob records the outcome of a job.
func (s *JobStore) CompleteJob(ctx context.Context, id string, at time.Time, res jobs.Result) error {
	summaryJSON, err := nullableJSON(res.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	artifactJSON, err := nullableJSON(res.Artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
UPDATE batch_jobs SET status = $2, finished_at = $3, summary = $4, artifact = $5, error = $6
WHERE id = $1`, id, string(res.Status), at, summaryJSON, artifactJSON, res.Error)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	return nil
}

func nullableJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
