package batch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// TimerPauser sleeps on a timer and wakes early when the context ends.
type TimerPauser struct{}

// Pause implements Pauser.
func (TimerPauser) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RandJitter draws from the runtime's goroutine-safe generator.
type RandJitter struct{}

// Uniform implements Jitter.
func (RandJitter) Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*rand.Float64()
}

func jitteredDelay(j Jitter, base, spread time.Duration) time.Duration {
	s := spread.Seconds()
	d := base.Seconds() + j.Uniform(-s, s)
	if d < 0 {
		return 0
	}
	return time.Duration(d * float64(time.Second))
}
