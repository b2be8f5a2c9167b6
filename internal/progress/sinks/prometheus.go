package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/flight-fare-crawler/internal/progress"
)

// PrometheusSink turns batch and task lifecycle events into Prometheus
// collectors.
type PrometheusSink struct {
	batchesStarted   prometheus.Counter
	batchesCompleted *prometheus.CounterVec
	batchesRunning   prometheus.Gauge
	batchRuntime     prometheus.Histogram

	tasksCompleted *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec

	mu      sync.Mutex
	running map[[16]byte]struct{}
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flights_batches_started_total",
			Help: "Batches that have started.",
		}),
		batchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flights_batches_completed_total",
			Help: "Batches completed partitioned by result.",
		}, []string{"result"}),
		batchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flights_batches_running",
			Help: "Batches currently running.",
		}),
		batchRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flights_batch_runtime_seconds",
			Help:    "Wall time per completed batch.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flights_tasks_completed_total",
			Help: "Tasks completed partitioned by status.",
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flights_task_duration_seconds",
			Help:    "Task wall time partitioned by status.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120, 180},
		}, []string{"status"}),
		running: make(map[[16]byte]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.batchesStarted,
		s.batchesCompleted,
		s.batchesRunning,
		s.batchRuntime,
		s.tasksCompleted,
		s.taskDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageBatchStart:
			s.batchesStarted.Inc()
			if s.track(evt.BatchID, true) {
				s.batchesRunning.Inc()
			}
		case progress.StageBatchDone:
			s.batchesCompleted.WithLabelValues(evt.Status).Inc()
			if evt.Dur > 0 {
				s.batchRuntime.Observe(evt.Dur.Seconds())
			}
			if s.track(evt.BatchID, false) {
				s.batchesRunning.Dec()
			}
		case progress.StageTaskDone:
			s.tasksCompleted.WithLabelValues(evt.Status).Inc()
			if evt.Dur > 0 {
				s.taskDuration.WithLabelValues(evt.Status).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// track records a batch as running or finished and reports whether the state
// changed.
func (s *PrometheusSink) track(id [16]byte, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		if ok {
			return false
		}
		s.running[id] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, id)
	return true
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
