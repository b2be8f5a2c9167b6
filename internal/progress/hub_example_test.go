package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type countingSink struct {
	done int
}

func (s *countingSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StageTaskDone {
			s.done++
		}
	}
	return nil
}

func (s *countingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit shows task completions reaching a sink once the hub closes.
func ExampleHub_Emit() {
	sink := &countingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	id := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	hub.Emit(Event{BatchID: id, TS: time.Unix(0, 0), Stage: StageBatchStart, Total: 1})
	hub.Emit(Event{
		BatchID: id,
		TS:      time.Unix(1, 0),
		Stage:   StageTaskDone,
		Route:   "JFK->LHR",
		Status:  "success",
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("tasks finished: %d\n", sink.done)
	// Output:
	// tasks finished: 1
}
