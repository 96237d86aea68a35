package messaging

import (
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// AuditLog subscribes a handler that writes every event as one info line.
// Admin resets are logged at warn.
func AuditLog(bus shared.EventSubscriber, log *logger.Logger) error {
	log = log.With(logger.Component("audit"))
	return bus.SubscribeAll(func(e shared.Event) error {
		fields := []logger.Field{
			logger.String("event_type", string(e.EventType())),
			logger.UserID(e.AggregateID()),
			logger.Time("occurred_at", e.OccurredAt()),
		}
		for k, v := range e.Payload() {
			fields = append(fields, logger.Any(k, v))
		}

		if e.EventType() == shared.EventProgressReset {
			log.Warn("progress event", fields...)
			return nil
		}
		log.Info("progress event", fields...)
		return nil
	})
}
