// Package runner drives one batch end to end: pre-flight, scheduling,
// aggregation and the optional export, storage and notification steps.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/metrics"
	"github.com/JakeFAU/flight-fare-crawler/internal/progress"
	"github.com/JakeFAU/flight-fare-crawler/internal/summary"
)

// Options wires the optional collaborators. Nil fields disable the step they
// serve.
type Options struct {
	IDs       batch.IDGenerator
	Clock     batch.Clock
	Sink      batch.Sink
	Store     batch.RecordStore
	Publisher batch.Publisher
	// Topic is required for Publisher to be used.
	Topic   string
	Emitter progress.Emitter
	Logger  *zap.Logger
}

// RunOptions tune a single run.
type RunOptions struct {
	// BatchID is used as-is when set; otherwise one is generated.
	BatchID string
	// SinkURI selects where the sorted rows are written. Empty skips export.
	SinkURI string
	// Shuffle randomizes the task order before scheduling.
	Shuffle bool
}

// Outcome is everything a finished batch produced.
type Outcome struct {
	BatchID   string          `json:"batch_id"`
	StartedAt time.Time       `json:"started_at"`
	Records   []batch.Record  `json:"-"`
	Rows      []batch.Flat    `json:"-"`
	Summary   summary.Summary `json:"summary"`
	Artifact  *batch.Artifact `json:"artifact,omitempty"`
}

// Notification is published once a batch is complete.
type Notification struct {
	BatchID  string         `json:"batch_id"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	SinkURI  string         `json:"sink_uri,omitempty"`
	Checksum string         `json:"checksum,omitempty"`
}

// Runner executes batches.
type Runner struct {
	scheduler *batch.Scheduler
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New builds a Runner around scheduler.
func New(scheduler *batch.Scheduler, opts Options) (*Runner, error) {
	if scheduler == nil {
		return nil, errors.New("runner: scheduler is required")
	}
	if opts.IDs == nil {
		return nil, errors.New("runner: id generator is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("runner: clock is required")
	}
	if opts.Emitter == nil {
		opts.Emitter = progress.NopEmitter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		scheduler: scheduler,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("github.com/JakeFAU/flight-fare-crawler/internal/runner"),
	}, nil
}

// Run checks req and policy, then runs the batch. Pre-flight failures return
// an empty Outcome. Once scheduling starts the Outcome is always complete;
// failures in export, storage or notification are joined into the error.
func (r *Runner) Run(ctx context.Context, req batch.Request, policy batch.Policy, opts RunOptions) (Outcome, error) {
	tasks, err := req.Tasks()
	if err != nil {
		return Outcome{}, fmt.Errorf("build tasks: %w", err)
	}
	return r.RunTasks(ctx, tasks, policy, opts)
}

// RunTasks runs an already expanded task list.
func (r *Runner) RunTasks(ctx context.Context, tasks []batch.Task, policy batch.Policy, opts RunOptions) (Outcome, error) {
	if err := policy.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("invalid policy: %w", err)
	}
	batchID := opts.BatchID
	if batchID == "" {
		id, err := r.opts.IDs.NewID()
		if err != nil {
			return Outcome{}, fmt.Errorf("generate batch id: %w", err)
		}
		batchID = id
	}
	tasks = append([]batch.Task(nil), tasks...)
	if opts.Shuffle {
		batch.Shuffle(tasks)
	}

	ctx, span := r.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("flights.batch_id", batchID),
		attribute.Int("flights.tasks", len(tasks)),
		attribute.Int("flights.n_jobs", policy.Jobs),
	))
	defer span.End()

	logger := r.logger.With(zap.String("batch_id", batchID))
	eventID := progress.BatchIDBytes(batchID)
	started := r.opts.Clock.Now()
	r.opts.Emitter.Emit(progress.Event{
		BatchID: eventID,
		TS:      started,
		Stage:   progress.StageBatchStart,
		Total:   len(tasks),
	})
	logger.Info("batch started",
		zap.Int("tasks", len(tasks)),
		zap.Int("n_jobs", policy.Jobs),
		zap.Duration("task_timeout", policy.TaskTimeout),
	)

	obs := &progressObserver{emitter: r.opts.Emitter, clock: r.opts.Clock, batchID: eventID}
	records := r.scheduler.WithObserver(obs).Run(ctx, tasks, policy)

	finished := r.opts.Clock.Now()
	out := Outcome{
		BatchID:   batchID,
		StartedAt: started,
		Records:   records,
		Rows:      batch.Aggregate(records),
		Summary:   summary.Of(records, finished.Sub(started)),
	}
	result := out.Summary.Result()
	metrics.ObserveBatch(result)
	r.opts.Emitter.Emit(progress.Event{
		BatchID: eventID,
		TS:      finished,
		Stage:   progress.StageBatchDone,
		Status:  result,
		Dur:     out.Summary.Elapsed,
	})
	logger.Info("batch finished",
		zap.String("result", result),
		zap.Any("by_status", out.Summary.ByStatus),
		zap.Int64("p50_ms", out.Summary.Latency.P50),
		zap.Int64("p90_ms", out.Summary.Latency.P90),
		zap.Int64("p99_ms", out.Summary.Latency.P99),
		zap.Int64("max_ms", out.Summary.Latency.Max),
		zap.Duration("elapsed", out.Summary.Elapsed),
	)
	span.SetAttributes(attribute.String("flights.result", result))

	// Post-processing runs on a context detached from cancellation so an
	// interrupted batch still keeps what it collected.
	postCtx := context.WithoutCancel(ctx)
	err := r.persist(postCtx, &out, opts.SinkURI, started, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "post-processing failed")
	}
	return out, err
}

func (r *Runner) persist(ctx context.Context, out *Outcome, sinkURI string, scrapedAt time.Time, logger *zap.Logger) error {
	var errs []error

	if sinkURI != "" && r.opts.Sink != nil {
		art, err := r.opts.Sink.Write(ctx, sinkURI, out.Rows)
		if err != nil {
			errs = append(errs, fmt.Errorf("write sink %s: %w", sinkURI, err))
		} else {
			out.Artifact = &art
			logger.Info("batch exported",
				zap.String("uri", art.URI),
				zap.String("format", art.Format),
				zap.Int("bytes", art.Bytes),
				zap.String("checksum", art.Checksum),
			)
		}
	}

	if r.opts.Store != nil {
		if err := r.opts.Store.SaveRecords(ctx, out.BatchID, scrapedAt, out.Rows); err != nil {
			errs = append(errs, fmt.Errorf("store records: %w", err))
		}
	}

	if r.opts.Publisher != nil && r.opts.Topic != "" {
		note := Notification{
			BatchID:  out.BatchID,
			Total:    out.Summary.Total,
			ByStatus: out.Summary.ByStatus,
		}
		if out.Artifact != nil {
			note.SinkURI = out.Artifact.URI
			note.Checksum = out.Artifact.Checksum
		}
		msgID, err := r.opts.Publisher.Publish(ctx, r.opts.Topic, note)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish batch notification: %w", err))
		} else {
			logger.Debug("batch notification published", zap.String("message_id", msgID))
		}
	}

	return errors.Join(errs...)
}

type progressObserver struct {
	emitter progress.Emitter
	clock   batch.Clock
	batchID [16]byte
}

func (o *progressObserver) TaskStarted(index int, task batch.Task) {
	o.emitter.Emit(progress.Event{
		BatchID: o.batchID,
		TS:      o.clock.Now(),
		Stage:   progress.StageTaskStart,
		Index:   index,
		Route:   task.Route(),
	})
}

func (o *progressObserver) TaskFinished(index int, rec batch.Record) {
	o.emitter.Emit(progress.Event{
		BatchID: o.batchID,
		TS:      o.clock.Now(),
		Stage:   progress.StageTaskDone,
		Index:   index,
		Route:   rec.Task.Route(),
		Status:  rec.Status.Kind.String(),
		Dur:     rec.Duration,
		Note:    rec.Status.String(),
	})
}
