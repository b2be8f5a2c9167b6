package batch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

// step is one scripted scraper response.
type step struct {
	itin  batch.Itinerary
	err   error
	block bool
	panic string
	delay time.Duration
}

// scriptedScraper replays steps per arrival code. Codes without a script
// succeed with a priced itinerary.
type scriptedScraper struct {
	mu      sync.Mutex
	scripts map[string][]step
	calls   map[string]int
	total   atomic.Int64

	active    atomic.Int64
	maxActive atomic.Int64
}

func newScriptedScraper(scripts map[string][]step) *scriptedScraper {
	if scripts == nil {
		scripts = map[string][]step{}
	}
	return &scriptedScraper{scripts: scripts, calls: map[string]int{}}
}

func (s *scriptedScraper) Scrape(ctx context.Context, task batch.Task) (batch.Itinerary, error) {
	s.total.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		cur := s.maxActive.Load()
		if n <= cur || s.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	s.mu.Lock()
	i := s.calls[task.ArrivalCode]
	s.calls[task.ArrivalCode]++
	script := s.scripts[task.ArrivalCode]
	s.mu.Unlock()

	if i >= len(script) {
		return pricedItinerary(300, 0), nil
	}
	st := script[i]
	if st.panic != "" {
		panic(st.panic)
	}
	if st.block {
		<-ctx.Done()
		return batch.Itinerary{}, ctx.Err()
	}
	if st.delay > 0 {
		select {
		case <-time.After(st.delay):
		case <-ctx.Done():
			return batch.Itinerary{}, ctx.Err()
		}
	}
	return st.itin, st.err
}

func (s *scriptedScraper) Calls(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[code]
}

// recordingPauser returns immediately and remembers every requested pause.
type recordingPauser struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.pauses = append(p.pauses, d)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *recordingPauser) Pauses() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.pauses...)
}

// midJitter always returns the middle of the range.
type midJitter struct{}

func (midJitter) Uniform(lo, hi float64) float64 { return (lo + hi) / 2 }

// recordingObserver captures lifecycle callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	started  []int
	finished map[int]batch.Record
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{finished: map[int]batch.Record{}}
}

func (o *recordingObserver) TaskStarted(index int, _ batch.Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, index)
}

func (o *recordingObserver) TaskFinished(index int, rec batch.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished[index] = rec
}

func intPtr(v int) *int { return &v }

func pricedItinerary(price, diff int) batch.Itinerary {
	return batch.Itinerary{
		Outbound: batch.Leg{Airline: "Delta", DepartureAirport: "JFK", ArrivalAirport: "LAX", NumStops: intPtr(0)},
		Inbound:  batch.Leg{Airline: "Delta", DepartureAirport: "LAX", ArrivalAirport: "JFK", NumStops: intPtr(1)},
		Price:    intPtr(price),
		Classification: func() batch.Classification {
			if diff > 0 {
				return batch.ClassificationLow
			}
			return batch.ClassificationTypical
		}(),
		Difference: intPtr(diff),
		URL:        "https://www.google.com/travel/flights?tfs=abc",
	}
}

func task(code string) batch.Task {
	return batch.Task{
		DepartureCode:    "JFK",
		DepartureCountry: "United States of America",
		ArrivalCode:      code,
		ArrivalCountry:   "United States of America",
		StartDate:        "01/10/2027",
		EndDate:          "01/17/2027",
		SeatClass:        "economy (include basic)",
	}
}

func tasks(codes ...string) []batch.Task {
	out := make([]batch.Task, len(codes))
	for i, c := range codes {
		out[i] = task(c)
	}
	return out
}
