package batch

import (
	"context"
	"io"
	"time"
)

// Scraper performs one itinerary search. Implementations report bot
// detection with ErrCaptchaDetected and recoverable failures with
// *TransientError; any other error is treated as final.
type Scraper interface {
	Scrape(ctx context.Context, task Task) (Itinerary, error)
}

// Pauser suspends the caller for d or until ctx ends.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// Jitter draws uniformly from [lo, hi). Implementations must be safe for
// concurrent use.
type Jitter interface {
	Uniform(lo, hi float64) float64
}

// Observer receives task lifecycle callbacks from the Scheduler. Calls may
// arrive concurrently in concurrent mode.
type Observer interface {
	TaskStarted(index int, task Task)
	TaskFinished(index int, rec Record)
}

// Sink persists flattened rows to a destination URI.
type Sink interface {
	Write(ctx context.Context, uri string, rows []Flat) (Artifact, error)
}

// RecordStore keeps flattened rows for later analysis.
type RecordStore interface {
	SaveRecords(ctx context.Context, batchID string, scrapedAt time.Time, rows []Flat) error
}

// Publisher announces finished batches.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator issues batch identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Hasher fingerprints exported payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// BlobStore stores exported payloads.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Artifact describes one written export.
type Artifact struct {
	URI      string `json:"uri"`
	Checksum string `json:"checksum"`
	Bytes    int    `json:"bytes"`
	Format   string `json:"format"`
}
