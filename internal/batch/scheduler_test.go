package batch_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

func newScheduler(s batch.Scraper, p batch.Pauser, j batch.Jitter) *batch.Scheduler {
	return batch.NewScheduler(batch.NewExecutor(s, p, j, nil), p, j, nil)
}

func statuses(records []batch.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Status.String()
	}
	return out
}

func codes(records []batch.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ArrivalCode
	}
	return out
}

func TestSequentialPacesBetweenTasks(t *testing.T) {
	t.Parallel()

	scraper := newScriptedScraper(nil)
	pauser := &recordingPauser{}
	policy := batch.Policy{Jobs: 1, TaskTimeout: time.Second, Delay: 2 * time.Second, DelayJitter: 500 * time.Millisecond}

	records := newScheduler(scraper, pauser, batch.RandJitter{}).Run(context.Background(), tasks("A", "B", "C", "D"), policy)

	assert.Equal(t, []string{"A", "B", "C", "D"}, codes(records))
	pauses := pauser.Pauses()
	require.Len(t, pauses, 3)
	for _, p := range pauses {
		assert.GreaterOrEqual(t, p, 1500*time.Millisecond)
		assert.LessOrEqual(t, p, 2500*time.Millisecond)
	}
}

func TestScheduledTripLengthReachesRows(t *testing.T) {
	t.Parallel()

	scraper := newScriptedScraper(map[string][]step{
		"A": {{itin: pricedItinerary(300, 100)}},
		"B": {{err: batch.ErrCaptchaDetected}},
	})
	input := []batch.Task{timedTask("A", 7), timedTask("B", 3), timedTask("C", 10), task("D")}
	policy := batch.Policy{Jobs: 1, TaskTimeout: time.Second}

	records := newScheduler(scraper, &recordingPauser{}, batch.RandJitter{}).Run(context.Background(), input, policy)
	require.Len(t, records, 4)
	assert.Equal(t, batch.StatusCancelled, records[2].Status.Kind)
	require.NotNil(t, records[2].Time)
	assert.Equal(t, 10.0, *records[2].Time)

	byCode := map[string]batch.Flat{}
	for _, row := range batch.Aggregate(records) {
		byCode[row["arrival_airport"].(string)] = row
	}
	assert.Equal(t, 7.0, byCode["A"]["time"])
	assert.Equal(t, "Ran successfully.", byCode["A"]["status"])
	assert.Equal(t, 3.0, byCode["B"]["time"])
	assert.Equal(t, "Error: CAPTCHA detected", byCode["B"]["status"])
	assert.Equal(t, 10.0, byCode["C"]["time"])
	assert.Nil(t, byCode["D"]["time"])
}

func TestSequentialWithoutDelayNeverPauses(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	policy := batch.Policy{Jobs: 1, TaskTimeout: time.Second}
	records := newScheduler(newScriptedScraper(nil), pauser, batch.RandJitter{}).Run(context.Background(), tasks("A", "B"), policy)

	assert.Len(t, records, 2)
	assert.Empty(t, pauser.Pauses())
}

func TestSequentialDelayClampsAtZero(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	jitter := fixedJitter(-5)
	policy := batch.Policy{Jobs: 1, TaskTimeout: time.Second, Delay: time.Second, DelayJitter: 5 * time.Second}
	newScheduler(newScriptedScraper(nil), pauser, jitter).Run(context.Background(), tasks("A", "B"), policy)

	assert.Equal(t, []time.Duration{0}, pauser.Pauses())
}

func TestSequentialCaptchaCancelsRemaining(t *testing.T) {
	t.Parallel()

	scraper := newScriptedScraper(map[string][]step{"B": {{err: batch.ErrCaptchaDetected}}})
	pauser := &recordingPauser{}
	obs := newRecordingObserver()
	policy := batch.Policy{Jobs: 1, TaskTimeout: time.Second, Delay: time.Second}

	records := newScheduler(scraper, pauser, midJitter{}).WithObserver(obs).Run(context.Background(), tasks("A", "B", "C"), policy)

	assert.Equal(t, []string{
		"Ran successfully.",
		"Error: CAPTCHA detected",
		"Cancelled: CAPTCHA detected in earlier task",
	}, statuses(records))
	assert.EqualValues(t, 2, scraper.total.Load())
	assert.Equal(t, 0, scraper.Calls("C"))
	// Only the pause after A; none after the captcha.
	assert.Len(t, pauser.Pauses(), 1)
	assert.Equal(t, []int{0, 1}, obs.started)
	assert.Len(t, obs.finished, 3)
	assert.Nil(t, records[2].Price)
	assert.Equal(t, 0, records[2].Attempts)
}

func TestSequentialTimeoutScenario(t *testing.T) {
	t.Parallel()

	scraper := newScriptedScraper(map[string][]step{"A": {{block: true}}})
	policy := batch.Policy{Jobs: 1, TaskTimeout: time.Second}

	records := newScheduler(scraper, &recordingPauser{}, midJitter{}).Run(context.Background(), tasks("A"), policy)

	require.Len(t, records, 1)
	assert.Equal(t, "Error: Task timed out after 1s", records[0].Status.String())
	assert.Nil(t, records[0].Price)
}

func TestSequentialInterruptedContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scraper := newScriptedScraper(nil)
	records := newScheduler(scraper, &recordingPauser{}, midJitter{}).Run(ctx, tasks("A", "B"), batch.Policy{Jobs: 1, TaskTimeout: time.Second})

	assert.Equal(t, []string{"Cancelled: batch interrupted", "Cancelled: batch interrupted"}, statuses(records))
	assert.Zero(t, scraper.total.Load())
}

func TestConcurrentBoundsAdmissionAndKeepsOrder(t *testing.T) {
	t.Parallel()

	script := map[string][]step{}
	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("T%02d", i)
		script[names[i]] = []step{{itin: pricedItinerary(100+i, i), delay: 10 * time.Millisecond}}
	}
	scraper := newScriptedScraper(script)
	pauser := &recordingPauser{}
	policy := batch.Policy{Jobs: 3, TaskTimeout: time.Second, Delay: time.Hour}

	records := newScheduler(scraper, pauser, batch.RandJitter{}).Run(context.Background(), tasks(names...), policy)

	assert.Equal(t, names, codes(records))
	assert.LessOrEqual(t, scraper.maxActive.Load(), int64(3))
	for _, r := range records {
		assert.Equal(t, batch.StatusSuccess, r.Status.Kind)
	}
	// One stagger pause per task, never the sequential delay.
	pauses := pauser.Pauses()
	require.Len(t, pauses, len(names))
	for _, p := range pauses {
		assert.GreaterOrEqual(t, p, time.Duration(0))
		assert.LessOrEqual(t, p, 2*time.Second)
	}
}

func TestConcurrentCaptchaCancelsUndispatched(t *testing.T) {
	t.Parallel()

	script := map[string][]step{"C": {{err: batch.ErrCaptchaDetected}}}
	scraper := newScriptedScraper(script)
	names := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	records := newScheduler(scraper, &recordingPauser{}, midJitter{}).Run(context.Background(), tasks(names...), batch.Policy{Jobs: 2, TaskTimeout: time.Second})

	require.Len(t, records, len(names))
	assert.Equal(t, names, codes(records))
	var captcha, cancelled, ran int
	for _, r := range records {
		switch r.Status.Kind {
		case batch.StatusCaptcha:
			captcha++
		case batch.StatusCancelled:
			cancelled++
			assert.Equal(t, "Cancelled: CAPTCHA detected in earlier task", r.Status.String())
		case batch.StatusSuccess:
			ran++
		default:
			t.Fatalf("unexpected status %q", r.Status)
		}
	}
	assert.Equal(t, 1, captcha)
	assert.EqualValues(t, captcha+ran, scraper.total.Load())
}

func TestConcurrentInterruptedContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scraper := newScriptedScraper(nil)
	records := newScheduler(scraper, &recordingPauser{}, midJitter{}).Run(ctx, tasks("A", "B", "C"), batch.Policy{Jobs: 2, TaskTimeout: time.Second})

	for _, r := range records {
		assert.Equal(t, "Cancelled: batch interrupted", r.Status.String())
	}
	assert.Zero(t, scraper.total.Load())
}

func TestSchedulerReportsEveryTaskOnce(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "n")
		jobs := rapid.IntRange(1, 4).Draw(rt, "jobs")
		script := map[string][]step{}
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("T%02d", i)
			switch rapid.IntRange(0, 3).Draw(rt, "outcome") {
			case 0:
				script[names[i]] = []step{{itin: pricedItinerary(200, i)}}
			case 1:
				script[names[i]] = []step{{err: errors.New("boom")}}
			case 2:
				script[names[i]] = []step{{err: &batch.TransientError{Kind: batch.TransientDateEntry}}}
			case 3:
				script[names[i]] = []step{{err: batch.ErrCaptchaDetected}}
			}
		}
		obs := newRecordingObserver()
		records := newScheduler(newScriptedScraper(script), &recordingPauser{}, midJitter{}).
			WithObserver(obs).
			Run(context.Background(), tasks(names...), batch.Policy{Jobs: jobs, TaskTimeout: time.Second, Delay: time.Second})

		if len(records) != n {
			rt.Fatalf("got %d records for %d tasks", len(records), n)
		}
		for i, r := range records {
			if r.ArrivalCode != names[i] {
				rt.Fatalf("record %d is %s, want %s", i, r.ArrivalCode, names[i])
			}
			if r.Status.String() == "" {
				rt.Fatalf("record %d has no status", i)
			}
		}
		if len(obs.finished) != n {
			rt.Fatalf("observer saw %d finished tasks, want %d", len(obs.finished), n)
		}
	})
}

type fixedJitter float64

func (f fixedJitter) Uniform(float64, float64) float64 { return float64(f) }
