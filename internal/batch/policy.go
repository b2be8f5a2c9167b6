package batch

import (
	"errors"
	"time"
)

// Defaults applied by DefaultPolicy.
const (
	DefaultJobs        = 1
	DefaultTaskTimeout = 120 * time.Second
	DefaultDelay       = 3 * time.Second
	DefaultDelayJitter = 500 * time.Millisecond
)

// Policy controls how a batch is scheduled.
type Policy struct {
	// Jobs bounds concurrently admitted scrapes. 1 selects sequential mode.
	Jobs int
	// TaskTimeout is the hard budget for one task, retry included.
	TaskTimeout time.Duration
	// Delay and DelayJitter pace sequential mode only.
	Delay       time.Duration
	DelayJitter time.Duration
}

// DefaultPolicy returns the stock scheduling policy.
func DefaultPolicy() Policy {
	return Policy{
		Jobs:        DefaultJobs,
		TaskTimeout: DefaultTaskTimeout,
		Delay:       DefaultDelay,
		DelayJitter: DefaultDelayJitter,
	}
}

// Validate rejects policies the scheduler cannot honour.
func (p Policy) Validate() error {
	switch {
	case p.Jobs < 1:
		return errors.New("n_jobs must be >= 1")
	case p.TaskTimeout <= 0:
		return errors.New("task_timeout must be > 0")
	case p.Delay < 0:
		return errors.New("delay_seconds must be >= 0")
	case p.DelayJitter < 0:
		return errors.New("delay_jitter must be >= 0")
	}
	return nil
}

// PolicyOverrides carries optional policy fields as they appear in task files
// and API requests. Durations are expressed in seconds.
type PolicyOverrides struct {
	Jobs         *int     `json:"n_jobs,omitempty" yaml:"n_jobs,omitempty"`
	TaskTimeout  *float64 `json:"task_timeout,omitempty" yaml:"task_timeout,omitempty"`
	DelaySeconds *float64 `json:"delay_seconds,omitempty" yaml:"delay_seconds,omitempty"`
	DelayJitter  *float64 `json:"delay_jitter,omitempty" yaml:"delay_jitter,omitempty"`
}

// Apply returns base with every set override applied.
func (o PolicyOverrides) Apply(base Policy) Policy {
	if o.Jobs != nil {
		base.Jobs = *o.Jobs
	}
	if o.TaskTimeout != nil {
		base.TaskTimeout = seconds(*o.TaskTimeout)
	}
	if o.DelaySeconds != nil {
		base.Delay = seconds(*o.DelaySeconds)
	}
	if o.DelayJitter != nil {
		base.DelayJitter = seconds(*o.DelayJitter)
	}
	return base
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
