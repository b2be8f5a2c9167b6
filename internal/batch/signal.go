package batch

import (
	"sync"
	"sync/atomic"
)

// Signal is a batch-scoped, write-once cancellation flag. Setting it stops new
// dispatches; work already admitted runs to completion.
type Signal struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewSignal returns an unset Signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set raises the flag. It reports true only for the call that raised it.
func (s *Signal) Set() bool {
	raised := false
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
		raised = true
	})
	return raised
}

// IsSet reports whether the flag has been raised. A nil Signal is never set.
func (s *Signal) IsSet() bool {
	if s == nil {
		return false
	}
	return s.set.Load()
}

// Done is closed once the flag is raised.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
