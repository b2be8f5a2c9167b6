package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("batch_id", evt.BatchUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageBatchStart:
			fields = append(fields, zap.Int("total", evt.Total))
		case progress.StageTaskStart:
			fields = append(fields, zap.Int("index", evt.Index), zap.String("route", evt.Route))
		case progress.StageTaskDone:
			fields = append(fields,
				zap.Int("index", evt.Index),
				zap.String("route", evt.Route),
				zap.String("status", evt.Status),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
		case progress.StageBatchDone:
			fields = append(fields, zap.String("status", evt.Status), zap.Duration("dur", evt.Dur))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
