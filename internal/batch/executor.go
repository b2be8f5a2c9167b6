package batch

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

	"github.com/JakeFAU/flight-fare-crawler/internal/metrics"
)

const (
	retryBackoff       = 5 * time.Second
	retryBackoffJitter = time.Second
	tracerName         = "github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

// Executor runs a single task against the Scraper. It never returns an error:
// every outcome is encoded in the Record's Status.
type Executor struct {
	scraper Scraper
	pauser  Pauser
	jitter  Jitter
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewExecutor wires an Executor. Nil pauser, jitter and logger fall back to
// TimerPauser, RandJitter and a no-op logger.
func NewExecutor(scraper Scraper, pauser Pauser, jitter Jitter, logger *zap.Logger) *Executor {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if jitter == nil {
		jitter = RandJitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		scraper: scraper,
		pauser:  pauser,
		jitter:  jitter,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// Execute scrapes task under a hard timeout. A captcha raises sig. Transient
// failures are retried once after a jittered backoff and the second outcome is
// final whatever it is.
func (e *Executor) Execute(ctx context.Context, task Task, timeout time.Duration, sig *Signal) Record {
	ctx, span := e.tracer.Start(ctx, "batch.task", trace.WithAttributes(
		attribute.String("flights.route", task.Route()),
		attribute.String("flights.seat_class", task.SeatClass),
	))
	defer span.End()

	metrics.IncTasksInFlight()
	defer metrics.DecTasksInFlight()

	start := time.Now()
	rec := e.race(ctx, task, timeout, sig)
	rec.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("flights.status", rec.Status.Kind.String()),
		attribute.Int("flights.attempts", rec.Attempts),
	)
	if rec.Status.Kind != StatusSuccess {
		span.SetStatus(codes.Error, rec.Status.String())
	}
	return rec
}

// race runs the attempts in their own goroutine so an unresponsive scraper
// cannot hold the caller past the deadline.
func (e *Executor) race(ctx context.Context, task Task, timeout time.Duration, sig *Signal) Record {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Record, 1)
	go func() {
		done <- e.attempt(runCtx, task, sig)
	}()

	select {
	case rec := <-done:
		if rec.Status.Kind == StatusError && runCtx.Err() != nil {
			return e.abandoned(ctx, task, timeout, rec.Attempts)
		}
		return rec
	case <-runCtx.Done():
		return e.abandoned(ctx, task, timeout, 0)
	}
}

func (e *Executor) abandoned(parent context.Context, task Task, timeout time.Duration, attempts int) Record {
	if parent.Err() != nil {
		rec := newRecord(task, Cancelled(ReasonInterrupted))
		rec.Attempts = attempts
		return rec
	}
	e.logger.Warn("task timed out",
		zap.String("route", task.Route()),
		zap.Duration("timeout", timeout),
	)
	rec := newRecord(task, TimedOut(timeout))
	rec.Attempts = attempts
	return rec
}

func (e *Executor) attempt(ctx context.Context, task Task, sig *Signal) Record {
	itin, err := e.scrape(ctx, task, 1)
	attempts := 1

	var transient *TransientError
	if errors.As(err, &transient) {
		delay := jitteredDelay(e.jitter, retryBackoff, retryBackoffJitter)
		e.logger.Info("transient scrape failure, retrying once",
			zap.String("route", task.Route()),
			zap.String("reason", transient.Kind.String()),
			zap.Duration("backoff", delay),
		)
		metrics.ObserveRetry(transient.Kind.String())
		if perr := e.pauser.Pause(ctx, delay); perr != nil {
			rec := newRecord(task, Failed(perr.Error()))
			rec.Attempts = attempts
			return rec
		}
		itin, err = e.scrape(ctx, task, 2)
		attempts = 2
	}

	rec := e.classify(ctx, task, itin, err, sig)
	rec.Attempts = attempts
	return rec
}

func (e *Executor) classify(ctx context.Context, task Task, itin Itinerary, err error, sig *Signal) Record {
	switch {
	case err == nil:
		return recordFromItinerary(task, itin, Succeeded())
	case errors.Is(err, ErrCaptchaDetected):
		// An abandoned attempt no longer speaks for the batch.
		if ctx.Err() == nil && sig.Set() {
			e.logger.Warn("captcha detected, cancelling queued tasks", zap.String("route", task.Route()))
		}
		metrics.ObserveCaptcha()
		return newRecord(task, CaptchaDetected())
	case IsTransient(err):
		return recordFromItinerary(task, itin, Failed(err.Error()))
	default:
		e.logger.Warn("scrape failed", zap.String("route", task.Route()), zap.Error(err))
		return newRecord(task, Failed(err.Error()))
	}
}

// scrape calls the Scraper once. A success without a price is reported as a
// transient price failure and panics are converted to errors.
func (e *Executor) scrape(ctx context.Context, task Task, attempt int) (itin Itinerary, err error) {
	ctx, span := e.tracer.Start(ctx, "batch.scrape", trace.WithAttributes(attribute.Int("flights.attempt", attempt)))
	defer span.End()
	metrics.ObserveAttempt(attempt)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scraper panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
		}
	}()

	itin, err = e.scraper.Scrape(ctx, task)
	if err == nil && itin.Price == nil {
		err = &TransientError{Kind: TransientPriceNotFound}
	}
	return itin, err
}
