// Package progress defines the lifecycle events emitted while a batch runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageBatchStart Stage = "BATCH_START"
	StageTaskStart  Stage = "TASK_START"
	StageTaskDone   Stage = "TASK_DONE"
	StageBatchDone  Stage = "BATCH_DONE"
)

// Event captures one step of batch progress.
type Event struct {
	// BatchID identifies the batch run using the 16-byte UUID form.
	BatchID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Index is the task's position in scheduling order. Unused for batch stages.
	Index int
	// Route labels the task for task stages.
	Route string
	// Status is the outcome label for TASK_DONE and BATCH_DONE.
	Status string
	// Total is the task count announced by BATCH_START.
	Total int
	// Dur is the task or batch wall time.
	Dur time.Duration
	// Note carries low-volume context such as the status text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == [16]byte{} {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart:
		if e.Total < 0 {
			return errors.New("batch start requires total >= 0")
		}
	case StageBatchDone:
		if e.Status == "" {
			return errors.New("batch done requires status")
		}
	case StageTaskStart, StageTaskDone:
		if e.Route == "" {
			return fmt.Errorf("%s requires route", e.Stage)
		}
		if e.Index < 0 {
			return fmt.Errorf("%s requires index >= 0", e.Stage)
		}
		if e.Stage == StageTaskDone && e.Status == "" {
			return errors.New("task done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// BatchUUID converts the binary batch ID to uuid.UUID.
func (e Event) BatchUUID() uuid.UUID {
	return uuid.UUID(e.BatchID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// BatchIDBytes converts a batch identifier into the Event form. Identifiers
// that are not UUIDs are mapped to a stable name-based UUID.
func BatchIDBytes(batchID string) [16]byte {
	id, err := uuid.Parse(batchID)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(batchID))
	}
	return UUIDToBytes(id)
}
