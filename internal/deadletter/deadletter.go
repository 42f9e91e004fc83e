package deadletter

import (
	"context"

	"devpulse/internal/logger"
	"devpulse/internal/queue"
	"devpulse/pkg/models"
)

// LogHandler returns the stock failed-queue handler: log each event and
// drop it. Matches the queue manager's default behavior but makes the
// choice explicit in wiring.
func LogHandler(log logger.Logger) queue.FailedHandler {
	return func(ctx context.Context, queueName string, events []models.Event) {
		for _, evt := range events {
			log.ErrorwCtx(ctx, "Event exhausted retries",
				"failed_queue", queueName,
				"event_id", evt.ID,
				"event_type", evt.Type,
				"severity", evt.Severity,
			)
		}
	}
}
