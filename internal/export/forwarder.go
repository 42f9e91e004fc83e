package export

import (
	"context"
	"time"

	"devpulse/internal/broker"
	"devpulse/internal/bus"
	"devpulse/internal/config"
	"devpulse/internal/logger"
	"devpulse/pkg/circuitbreaker"
	"devpulse/pkg/metrics"
	"devpulse/pkg/models"
	"devpulse/pkg/retry"
)

// Forwarder ships every delivered event to the export topic, where the
// platform's persistence and reporting consumers pick them up. It runs as a
// wildcard subscriber; export failures surface as system:error events like
// any other handler failure and never affect local dispatch.
type Forwarder struct {
	producer broker.Producer
	topic    string
	breaker  *circuitbreaker.Wrapper
	policy   retry.Policy
	log      logger.Logger
}

func NewForwarder(producer broker.Producer, cfg config.ExportConfig, log logger.Logger) *Forwarder {
	f := &Forwarder{
		producer: producer,
		topic:    cfg.Topic,
		policy:   policyFromConfig(cfg.Retry),
		log:      log,
	}

	if cfg.Breaker.Enabled {
		bc := circuitbreaker.DefaultConfig("export")
		if cfg.Breaker.MaxRequests > 0 {
			bc.MaxRequests = cfg.Breaker.MaxRequests
		}
		if cfg.Breaker.Interval > 0 {
			bc.Interval = cfg.Breaker.Interval
		}
		if cfg.Breaker.Timeout > 0 {
			bc.Timeout = cfg.Breaker.Timeout
		}
		f.breaker = circuitbreaker.NewWrapper(bc)
	}

	return f
}

// Attach subscribes the forwarder to every event type.
func (f *Forwarder) Attach(b *bus.Bus) string {
	return b.Subscribe("*", f.Handle, bus.SubscribeOptions{})
}

// Handle is the bus handler: write the event to the export topic, retrying
// with backoff inside one breaker request.
func (f *Forwarder) Handle(ctx context.Context, evt models.Event) error {
	start := time.Now()
	err := f.write(ctx, evt)
	metrics.ObserveExportWriteDuration(f.topic, time.Since(start))

	if err != nil {
		metrics.ExportedEventsTotal.WithLabelValues(f.topic, "error").Inc()
		f.log.WarnwCtx(ctx, "Event export failed",
			"topic", f.topic,
			"event_id", evt.ID,
			"error", err,
		)
		return err
	}

	metrics.ExportedEventsTotal.WithLabelValues(f.topic, "ok").Inc()
	return nil
}

func (f *Forwarder) write(ctx context.Context, evt models.Event) error {
	publish := func() error {
		return retry.Retry(ctx, f.policy, func() error {
			return f.producer.Publish(ctx, f.topic, evt)
		})
	}

	if f.breaker == nil {
		return publish()
	}
	_, err := f.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, publish()
	})
	return err
}

func (f *Forwarder) Close() error {
	return f.producer.Close()
}

func policyFromConfig(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	return policy
}
