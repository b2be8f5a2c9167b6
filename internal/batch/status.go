package batch

import (
	"strconv"
	"time"
)

// StatusKind enumerates the closed set of task outcomes.
type StatusKind int

// Task outcomes. StatusTransient never leaves the executor: a transient
// failure is retried once and the second attempt decides the final kind.
const (
	StatusSuccess StatusKind = iota
	StatusTransient
	StatusTimedOut
	StatusCaptcha
	StatusCancelled
	StatusError
)

// Cancellation reasons carried by cancelled records.
const (
	ReasonCaptcha     = "CAPTCHA detected in earlier task"
	ReasonInterrupted = "batch interrupted"
)

const successText = "Ran successfully."

// String returns a stable label suitable for metrics and JSON.
func (k StatusKind) String() string {
	switch k {
	case StatusSuccess:
		return "success"
	case StatusTransient:
		return "transient"
	case StatusTimedOut:
		return "timed_out"
	case StatusCaptcha:
		return "captcha"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the outcome attached to a Record.
type Status struct {
	Kind StatusKind
	// Message is the error text for failures or the reason for cancellations.
	Message string
	// Timeout is set for StatusTimedOut.
	Timeout time.Duration
}

// Succeeded reports a completed scrape.
func Succeeded() Status { return Status{Kind: StatusSuccess} }

// TimedOut reports a task that exceeded its budget.
func TimedOut(timeout time.Duration) Status {
	return Status{Kind: StatusTimedOut, Timeout: timeout}
}

// CaptchaDetected reports the task that tripped bot detection.
func CaptchaDetected() Status { return Status{Kind: StatusCaptcha} }

// Cancelled reports a task that was never attempted.
func Cancelled(reason string) Status {
	return Status{Kind: StatusCancelled, Message: reason}
}

// Failed reports any other failure with its message.
func Failed(msg string) Status { return Status{Kind: StatusError, Message: msg} }

// String renders the human readable status text stored with each record.
func (s Status) String() string {
	switch s.Kind {
	case StatusSuccess:
		return successText
	case StatusTimedOut:
		return "Error: Task timed out after " + formatSeconds(s.Timeout) + "s"
	case StatusCaptcha:
		return "Error: CAPTCHA detected"
	case StatusCancelled:
		reason := s.Message
		if reason == "" {
			reason = ReasonCaptcha
		}
		return "Cancelled: " + reason
	default:
		return "Error: " + s.Message
	}
}

// MarshalText encodes the status as its display text.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
