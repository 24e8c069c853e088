package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// LogPublisher writes each event as a structured log line. It is the
// default sink when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, e ledger.Event) error {
	p.logger.Info("event",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("aggregate_id", e.AggregateID),
		zap.Time("occurred_at", e.OccurredAt),
		zap.Any("payload", e.Payload))
	return nil
}
