package bus

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"devpulse/internal/logger"
	apperrors "devpulse/pkg/errors"
	"devpulse/pkg/logging"
	"devpulse/pkg/metrics"
	"devpulse/pkg/models"
)

// GlobalFilter decides whether an event proceeds past statistics to
// transformation and dispatch. A false result drops the event silently.
type GlobalFilter func(ctx context.Context, evt models.Event) bool

// Enqueuer is the queue manager seam. Enqueue must never block the caller.
type Enqueuer interface {
	Enqueue(ctx context.Context, evt models.Event)
	Depth() int
}

type globalFilter struct {
	id string
	fn GlobalFilter
}

// Bus is the pattern-based publish/subscribe dispatcher. A Bus is an
// explicit instance handed to producers and consumers; nothing here is a
// process-wide singleton, so tests can run several buses side by side.
type Bus struct {
	mu           sync.RWMutex
	registry     *registry
	transformers *transformerSet
	filters      []globalFilter

	stats    *statsCollector
	enqueuer Enqueuer
	log      logger.Logger

	handlers sync.WaitGroup
	closed   bool
}

func New(log logger.Logger) *Bus {
	return &Bus{
		registry:     newRegistry(),
		transformers: newTransformerSet(),
		stats:        newStatsCollector(),
		log:          log,
	}
}

// SetEnqueuer wires the queue manager in after construction; the bus and
// manager reference each other, so one side has to be attached late.
func (b *Bus) SetEnqueuer(e Enqueuer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueuer = e
}

// Subscribe registers a handler for an exact event type, or for every event
// when pattern is "*". Returns the subscription id.
func (b *Bus) Subscribe(pattern string, handler Handler, opts SubscribeOptions) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.registry.add(pattern, nil, handler, opts)
	metrics.SetActiveSubscribers(b.registry.count())
	return sub.id
}

// SubscribePattern registers a handler for every event whose type matches
// the regular expression.
func (b *Bus) SubscribePattern(pattern *regexp.Regexp, handler Handler, opts SubscribeOptions) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.registry.add(pattern.String(), pattern, handler, opts)
	metrics.SetActiveSubscribers(b.registry.count())
	return sub.id
}

// Unsubscribe removes a subscription. Idempotent: false for unknown ids.
// Safe to call from inside a handler; in-flight dispatch iterates a
// snapshot and is not corrupted, though an invocation already started is
// not cancelled.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := b.registry.remove(id)
	if removed {
		metrics.SetActiveSubscribers(b.registry.count())
	}
	return removed
}

// AddGlobalFilter installs a predicate applied to every published event.
// Returns an id for RemoveGlobalFilter.
func (b *Bus) AddGlobalFilter(fn GlobalFilter) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.filters = append(b.filters, globalFilter{id: id, fn: fn})
	return id
}

func (b *Bus) RemoveGlobalFilter(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, f := range b.filters {
		if f.id == id {
			// Copy instead of splicing in place: publish iterates the slice
			// outside the lock.
			next := make([]globalFilter, 0, len(b.filters)-1)
			next = append(next, b.filters[:i]...)
			next = append(next, b.filters[i+1:]...)
			b.filters = next
			return true
		}
	}
	return false
}

// RegisterTransformer chains fn onto the exact-type transformer list for
// eventType. Chains run in registration order.
func (b *Bus) RegisterTransformer(eventType string, fn Transformer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transformers.register(eventType, fn)
}

func (b *Bus) RegisterPatternTransformer(pattern *regexp.Regexp, fn Transformer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transformers.registerPattern(pattern, fn)
}

// Publish runs the full pipeline: validate, count, filter, transform,
// dispatch synchronously, then hand the event to the queue manager. The
// only error a caller can see is a validation failure; subscriber failures
// never surface here.
func (b *Bus) Publish(ctx context.Context, evt models.Event) error {
	return b.publish(ctx, evt, false)
}

// PublishDirect is Publish without the queue hand-off. Diagnostics
// (system:error, queue:overflow) go through here so a full queue can never
// feed itself more events.
func (b *Bus) PublishDirect(ctx context.Context, evt models.Event) error {
	return b.publish(ctx, evt, true)
}

// PublishBatch publishes sequentially; validation failures are collected
// and do not stop the rest of the batch.
func (b *Bus) PublishBatch(ctx context.Context, events []models.Event) error {
	var errs []error
	for _, evt := range events {
		if err := b.publish(ctx, evt, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) publish(ctx context.Context, evt models.Event, directOnly bool) error {
	if err := evt.Validate(); err != nil {
		metrics.EventsRejectedTotal.Inc()
		return apperrors.ErrValidation.WithCause(err).WithDetail("event_type", evt.Type)
	}
	// Payload shapes for known types are checked here too, so a malformed
	// event never reaches a subscriber or a queue.
	if _, err := models.DecodePayload(evt); err != nil {
		metrics.EventsRejectedTotal.Inc()
		return apperrors.ErrValidation.WithCause(err).WithDetail("event_type", evt.Type)
	}

	b.stats.record(evt, time.Now())
	metrics.EventsPublishedTotal.WithLabelValues(string(evt.Category), string(evt.Severity)).Inc()

	b.mu.RLock()
	filters := b.filters
	enqueuer := b.enqueuer
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return nil
	}

	for _, f := range filters {
		if !f.fn(ctx, evt) {
			metrics.EventsFilteredTotal.Inc()
			return nil
		}
	}

	b.mu.RLock()
	evt = b.transformers.apply(evt.Clone())
	subs := b.registry.match(evt.Type)
	b.mu.RUnlock()

	start := time.Now()
	b.dispatch(ctx, evt, subs)
	metrics.ObserveDispatchDuration(time.Since(start))

	// Direct dispatch above happens-before any queued delivery of the same
	// publish call.
	if !directOnly && enqueuer != nil {
		enqueuer.Enqueue(ctx, evt)
	}

	return nil
}

// Redeliver replays a processed batch through the dispatch path. Queued
// delivery is the same dispatch, deferred: subscribers cannot tell the two
// apart. Redelivery never re-routes to queues and never re-counts publish
// totals.
func (b *Bus) Redeliver(ctx context.Context, queueName string, events []models.Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return apperrors.ErrQueueClosed
	}

	for _, evt := range events {
		b.mu.RLock()
		subs := b.registry.match(evt.Type)
		b.mu.RUnlock()
		b.dispatch(ctx, evt, subs)
	}

	b.stats.recordRedelivery(len(events))
	metrics.EventsRedeliveredTotal.WithLabelValues(queueName).Add(float64(len(events)))
	return nil
}

func (b *Bus) dispatch(ctx context.Context, evt models.Event, subs []*subscription) {
	for _, sub := range subs {
		if sub.opts.Filter != nil && !sub.opts.Filter(evt) {
			continue
		}
		if !sub.tryClaim() {
			continue
		}
		if sub.opts.Once {
			// Claimed the single firing; drop the registration before the
			// handler runs so a re-publish cannot race it back in.
			b.Unsubscribe(sub.id)
		}

		if sub.opts.Sync {
			b.invoke(ctx, sub, evt)
			continue
		}

		b.handlers.Add(1)
		go func(sub *subscription) {
			defer b.handlers.Done()
			b.invoke(ctx, sub, evt)
		}(sub)
	}
}

// invoke isolates one handler call: panics become errors, errors become a
// synthetic system:error event, dispatch to the remaining subscribers is
// never interrupted.
func (b *Bus) invoke(ctx context.Context, sub *subscription, evt models.Event) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.RecoverPanic(r)
			}
		}()
		err = sub.handler(ctx, evt)
	}()

	if err == nil {
		return
	}

	metrics.HandlerErrorsTotal.WithLabelValues(evt.Type).Inc()
	b.log.ErrorwCtx(logging.WithEventID(ctx, evt.ID), "Subscriber handler failed",
		"error", err,
		"subscription_id", sub.id,
		"event_type", evt.Type,
	)

	// A failing system:error handler is suppressed rather than re-reported;
	// this is the one place errors are dropped to break the loop.
	if evt.Type == models.TypeSystemError {
		return
	}

	errEvt := models.NewEventBuilder(models.TypeSystemError, models.CategorySystem).
		WithSeverity(models.SeverityError).
		WithSource("event-bus").
		WithField("subscriber_id", sub.id).
		WithField("event_id", evt.ID).
		WithField("event_type", evt.Type).
		WithField("error", err.Error()).
		WithCorrelationID(evt.ID).
		Build()

	if pubErr := b.PublishDirect(ctx, errEvt); pubErr != nil {
		b.log.ErrorwCtx(ctx, "Failed to publish system:error event", "error", pubErr)
	}
}

// Statistics returns an observational snapshot.
func (b *Bus) Statistics() Statistics {
	snap := b.stats.snapshot(time.Now())
	snap.Subscribers = b.SubscriberCount()
	return snap
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.count()
}

// QueueSize reports the total depth of the attached queue manager, zero
// when none is wired.
func (b *Bus) QueueSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.enqueuer == nil {
		return 0
	}
	return b.enqueuer.Depth()
}

// Close stops accepting events and waits for in-flight async handlers up to
// the timeout. Handlers still running after that are abandoned, not killed.
func (b *Bus) Close(timeout time.Duration) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return apperrors.ErrTimeout.WithDetail("stage", "handler drain")
	}
}
