package batch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// staggerWindow bounds the random sleep each concurrent task takes before
// competing for an admission slot.
const staggerWindow = 2 * time.Second

// Scheduler dispatches a batch of tasks and reassembles their records in
// input order.
type Scheduler struct {
	exec     *Executor
	pauser   Pauser
	jitter   Jitter
	observer Observer
	logger   *zap.Logger
}

// NewScheduler wires a Scheduler around exec. Nil pauser, jitter and logger
// fall back to the same defaults as NewExecutor.
func NewScheduler(exec *Executor, pauser Pauser, jitter Jitter, logger *zap.Logger) *Scheduler {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if jitter == nil {
		jitter = RandJitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		exec:     exec,
		pauser:   pauser,
		jitter:   jitter,
		observer: nopObserver{},
		logger:   logger,
	}
}

// WithObserver returns a copy of s that reports lifecycle callbacks to o.
func (s *Scheduler) WithObserver(o Observer) *Scheduler {
	cp := *s
	if o == nil {
		o = nopObserver{}
	}
	cp.observer = o
	return &cp
}

// Run executes tasks under policy and returns one record per task, in the
// order of tasks. A fresh Signal is created for every call.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, policy Policy) []Record {
	sig := NewSignal()
	if policy.Jobs <= 1 {
		return s.runSequential(ctx, tasks, policy, sig)
	}
	return s.runConcurrent(ctx, tasks, policy, sig)
}

func (s *Scheduler) runSequential(ctx context.Context, tasks []Task, policy Policy, sig *Signal) []Record {
	out := make([]Record, len(tasks))
	warned := false
	for i, task := range tasks {
		if rec, skip := s.gate(ctx, task, sig); skip {
			if !warned {
				s.logger.Warn("skipping remaining tasks",
					zap.Int("remaining", len(tasks)-i),
					zap.String("reason", rec.Status.Message),
				)
				warned = true
			}
			out[i] = rec
			s.observer.TaskFinished(i, rec)
			continue
		}

		s.observer.TaskStarted(i, task)
		out[i] = s.exec.Execute(ctx, task, policy.TaskTimeout, sig)
		s.observer.TaskFinished(i, out[i])

		if i < len(tasks)-1 && policy.Delay > 0 && !sig.IsSet() {
			delay := jitteredDelay(s.jitter, policy.Delay, policy.DelayJitter)
			// An interrupted pause surfaces through gate on the next task.
			_ = s.pauser.Pause(ctx, delay)
		}
	}
	return out
}

func (s *Scheduler) runConcurrent(ctx context.Context, tasks []Task, policy Policy, sig *Signal) []Record {
	out := make([]Record, len(tasks))
	slots := semaphore.NewWeighted(int64(policy.Jobs))

	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			out[i] = s.runAdmitted(ctx, i, task, policy, slots, sig)
		}(i, tasks[i])
	}
	wg.Wait()
	return out
}

func (s *Scheduler) runAdmitted(
	ctx context.Context,
	index int,
	task Task,
	policy Policy,
	slots *semaphore.Weighted,
	sig *Signal,
) Record {
	stagger := time.Duration(s.jitter.Uniform(0, staggerWindow.Seconds()) * float64(time.Second))
	_ = s.pauser.Pause(ctx, stagger)

	if err := slots.Acquire(ctx, 1); err != nil {
		rec := newRecord(task, Cancelled(ReasonInterrupted))
		s.observer.TaskFinished(index, rec)
		return rec
	}
	defer slots.Release(1)

	if rec, skip := s.gate(ctx, task, sig); skip {
		s.observer.TaskFinished(index, rec)
		return rec
	}

	s.observer.TaskStarted(index, task)
	rec := s.exec.Execute(ctx, task, policy.TaskTimeout, sig)
	s.observer.TaskFinished(index, rec)
	return rec
}

// gate decides whether a task may still be dispatched.
func (s *Scheduler) gate(ctx context.Context, task Task, sig *Signal) (Record, bool) {
	switch {
	case sig.IsSet():
		return newRecord(task, Cancelled(ReasonCaptcha)), true
	case ctx.Err() != nil:
		return newRecord(task, Cancelled(ReasonInterrupted)), true
	default:
		return Record{}, false
	}
}

type nopObserver struct{}

func (nopObserver) TaskStarted(int, Task)     {}
func (nopObserver) TaskFinished(int, Record) {}
