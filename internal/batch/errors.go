package batch

import "errors"

var (
	// ErrCaptchaDetected is returned by a Scraper when the target served a
	// bot-detection page. It aborts the rest of the batch.
	ErrCaptchaDetected = errors.New("captcha detected")
	// ErrLengthMismatch wraps pre-flight failures on parallel request lists.
	ErrLengthMismatch = errors.New("request lists differ in length")
)

// TransientKind names a recoverable scrape failure.
type TransientKind int

// Known transient failures. Each earns exactly one retry.
const (
	TransientDateEntry TransientKind = iota + 1
	TransientPriceNotFound
)

func (k TransientKind) String() string {
	switch k {
	case TransientDateEntry:
		return "Error entering departure date"
	case TransientPriceNotFound:
		return "Price not found"
	default:
		return "transient failure"
	}
}

// TransientError is returned by a Scraper for failures worth one retry. The
// Itinerary returned with it may be partially populated.
type TransientError struct {
	Kind TransientKind
	Err  error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
