package analysis

import (
	"go.uber.org/zap"

	"swapScope/internal/model"
)

// MultiProgress fans an event out to every sink in order.
type MultiProgress []ProgressSink

func (m MultiProgress) Notify(event model.ProgressEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(event)
		}
	}
}

// LogProgress writes progress events to a zap logger.
type LogProgress struct {
	logger *zap.Logger
}

func NewLogProgress(logger *zap.Logger) *LogProgress {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogProgress{logger: logger.With(zap.String("component", "progress"))}
}

func (l *LogProgress) Notify(event model.ProgressEvent) {
	fields := []zap.Field{
		zap.String("job", event.JobID),
		zap.String("wallet", event.Wallet),
		zap.String("state", event.State),
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	switch event.Kind {
	case model.ProgressHeartbeat:
		l.logger.Info("still working", fields...)
	case model.ProgressCompleted:
		l.logger.Info("analysis completed", append(fields, zap.Int("rows", event.Rows))...)
	case model.ProgressFailed:
		l.logger.Warn("analysis failed", fields...)
	case model.ProgressCancelled:
		if event.Error != "" {
			l.logger.Warn("analysis aborted", fields...)
			return
		}
		l.logger.Info("analysis cancelled", fields...)
	default:
		l.logger.Info("analysis "+string(event.Kind), fields...)
	}
}
