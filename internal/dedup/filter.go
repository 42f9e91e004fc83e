package dedup

import (
	"context"
	"time"

	"devpulse/internal/config"
	"devpulse/internal/constants"
	"devpulse/internal/logger"
	"devpulse/pkg/metrics"
	"devpulse/pkg/models"
)

// Filter suppresses events whose ID was already published inside the TTL
// window. Installed as a bus global filter: true keeps the event, false
// drops it. Redis errors follow the configured fallback so a cache outage
// degrades to either pass-through or blackout, never an error surfaced to
// the producer.
type Filter struct {
	repo     Repository
	ttl      time.Duration
	failOpen bool
	log      logger.Logger
}

func NewFilter(repo Repository, cfg config.DedupConfig, log logger.Logger) *Filter {
	ttlSeconds := cfg.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultDedupTTLSeconds
	}
	return &Filter{
		repo:     repo,
		ttl:      time.Duration(ttlSeconds) * time.Second,
		failOpen: cfg.OnError != constants.FallbackDeny,
		log:      log,
	}
}

// Allow reports whether the event is first-seen. Signature matches
// bus.GlobalFilter so it can be installed directly.
func (f *Filter) Allow(ctx context.Context, evt models.Event) bool {
	key := constants.DedupKeyPrefix + evt.ID
	unique, err := f.repo.SetNX(ctx, key, time.Now().Unix(), f.ttl)
	if err != nil {
		metrics.DedupCheckedTotal.WithLabelValues("error").Inc()
		if f.failOpen {
			f.log.WarnwCtx(ctx, "Duplicate check failed, allowing event",
				"event_id", evt.ID,
				"error", err,
			)
			return true
		}
		f.log.WarnwCtx(ctx, "Duplicate check failed, dropping event",
			"event_id", evt.ID,
			"error", err,
		)
		return false
	}

	if unique {
		metrics.DedupCheckedTotal.WithLabelValues("unique").Inc()
	} else {
		metrics.DedupCheckedTotal.WithLabelValues("duplicate").Inc()
		f.log.DebugwCtx(ctx, "Duplicate event suppressed", "event_id", evt.ID)
	}
	return unique
}
