package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
	"github.com/JakeFAU/flight-fare-crawler/internal/summary"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	created := time.Date(2027, 1, 2, 3, 4, 5, 0, time.UTC)
	job := jobs.Job{ID: "job-1", Status: jobs.StatusQueued, CreatedAt: created}

	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := store.CreateJob(ctx, job); !errors.Is(err, jobs.ErrExists) {
		t.Fatalf("expected duplicate job error, got %v", err)
	}

	started := created.Add(time.Second)
	if err := store.MarkRunning(ctx, job.ID, started); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := store.MarkRunning(ctx, job.ID, started.Add(time.Minute)); err != nil {
		t.Fatalf("MarkRunning() repeat error = %v", err)
	}
	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.StatusRunning || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected running job: %+v", got)
	}

	sum := &summary.Summary{Total: 2}
	finished := started.Add(time.Minute)
	res := jobs.Result{Status: jobs.StatusPartial, Summary: sum, Artifact: &batch.Artifact{URI: "memory://b.csv"}}
	if err := store.CompleteJob(ctx, job.ID, finished, res); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}
	got, _ = store.GetJob(ctx, job.ID)
	if got.Status != jobs.StatusPartial || got.Summary.Total != 2 || got.Artifact.URI != "memory://b.csv" {
		t.Fatalf("unexpected finished job: %+v", got)
	}
	if !got.FinishedAt.Equal(finished) {
		t.Fatalf("expected finish time %v, got %v", finished, got.FinishedAt)
	}
}

func TestJobStoreUnknownJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.MarkRunning(ctx, "missing", time.Now()); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.CompleteJob(ctx, "missing", time.Now(), jobs.Result{}); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Records(ctx, "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJobStoreRecordsAreCopies(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	if err := store.CreateJob(ctx, jobs.Job{ID: "b1"}); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	rows, err := store.Records(ctx, "b1")
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected empty rows for a known job, got %v (%v)", rows, err)
	}

	in := []batch.Flat{{"price": 300, "status": "Ran successfully."}}
	if err := store.SaveRecords(ctx, "b1", time.Now(), in); err != nil {
		t.Fatalf("SaveRecords() error = %v", err)
	}
	in[0]["price"] = 1

	rows, err = store.Records(ctx, "b1")
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if rows[0]["price"] != 300 {
		t.Fatalf("expected stored copy, got %v", rows[0]["price"])
	}
	rows[0]["price"] = 2
	again, _ := store.Records(ctx, "b1")
	if again[0]["price"] != 300 {
		t.Fatal("expected Records to return copies")
	}
}
