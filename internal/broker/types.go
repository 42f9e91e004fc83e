package broker

import (
	"context"

	"devpulse/pkg/models"
)

// Producer writes event envelopes to an external topic. Only the producer
// side lives in this service; downstream consumers (persistence, reports)
// run elsewhere.
type Producer interface {
	Publish(ctx context.Context, topic string, evt models.Event) error
	Close() error
}
