package batch_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
)

func TestSignalSetOnce(t *testing.T) {
	t.Parallel()

	sig := batch.NewSignal()
	assert.False(t, sig.IsSet())

	var raised atomic.Int64
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sig.Set() {
				raised.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, raised.Load())
	assert.True(t, sig.IsSet())
	select {
	case <-sig.Done():
	default:
		t.Fatal("done channel should be closed once the signal is set")
	}
}

func TestNilSignalIsNeverSet(t *testing.T) {
	t.Parallel()

	var sig *batch.Signal
	assert.False(t, sig.IsSet())
}
