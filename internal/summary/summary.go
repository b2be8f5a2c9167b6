// Package summary condenses a finished batch into status counts and task
// latency percentiles.
package summary

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

const (
	minLatencyMS = 1
	maxLatencyMS = int64(time.Hour / time.Millisecond)
	sigFigs      = 3
)

// Batch outcome labels.
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailed  = "failed"
)

// Latency holds task wall-time percentiles in milliseconds.
type Latency struct {
	P50  int64   `json:"p50_ms"`
	P90  int64   `json:"p90_ms"`
	P99  int64   `json:"p99_ms"`
	Max  int64   `json:"max_ms"`
	Mean float64 `json:"mean_ms"`
}

// Summary describes a finished batch.
type Summary struct {
	Total     int            `json:"total"`
	Attempted int            `json:"attempted"`
	ByStatus  map[string]int `json:"by_status"`
	Latency   Latency        `json:"latency"`
	Elapsed   time.Duration  `json:"elapsed_ns"`
}

// Result collapses the status counts into a single label. A batch with no
// tasks counts as a success.
func (s Summary) Result() string {
	ok := s.ByStatus[batch.StatusSuccess.String()]
	switch {
	case ok == s.Total:
		return ResultSuccess
	case ok == 0:
		return ResultFailed
	default:
		return ResultPartial
	}
}

// Recorder accumulates task outcomes. It is not safe for concurrent use.
type Recorder struct {
	hist     *hdrhistogram.Histogram
	byStatus map[string]int
	total    int
	attempts int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		hist:     hdrhistogram.New(minLatencyMS, maxLatencyMS, sigFigs),
		byStatus: make(map[string]int),
	}
}

// Add counts rec. Only tasks that reached the scraper feed the latency
// histogram; cancelled tasks would drag the percentiles towards zero.
func (r *Recorder) Add(rec batch.Record) {
	r.total++
	r.byStatus[rec.Status.Kind.String()]++
	if rec.Attempts == 0 && rec.Status.Kind != batch.StatusTimedOut {
		return
	}
	r.attempts++
	ms := rec.Duration.Milliseconds()
	if ms < minLatencyMS {
		ms = minLatencyMS
	}
	if ms > maxLatencyMS {
		ms = maxLatencyMS
	}
	// Values are clamped to the trackable range, so RecordValue cannot fail.
	_ = r.hist.RecordValue(ms)
}

// Summary snapshots the recorder.
func (r *Recorder) Summary(elapsed time.Duration) Summary {
	byStatus := make(map[string]int, len(r.byStatus))
	for k, v := range r.byStatus {
		byStatus[k] = v
	}
	s := Summary{
		Total:     r.total,
		Attempted: r.attempts,
		ByStatus:  byStatus,
		Elapsed:   elapsed,
	}
	if r.hist.TotalCount() > 0 {
		s.Latency = Latency{
			P50:  r.hist.ValueAtQuantile(50),
			P90:  r.hist.ValueAtQuantile(90),
			P99:  r.hist.ValueAtQuantile(99),
			Max:  r.hist.Max(),
			Mean: r.hist.Mean(),
		}
	}
	return s
}

// Of summarizes records in one call.
func Of(records []batch.Record, elapsed time.Duration) Summary {
	r := NewRecorder()
	for _, rec := range records {
		r.Add(rec)
	}
	return r.Summary(elapsed)
}
