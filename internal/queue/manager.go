package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"devpulse/internal/config"
	"devpulse/internal/constants"
	"devpulse/internal/logger"
	celpkg "devpulse/pkg/cel"
	"devpulse/pkg/logging"
	"devpulse/pkg/metrics"
	"devpulse/pkg/models"
)

// Processor consumes one flushed batch. An error fails the whole batch:
// every member is retried together. The stock processor redelivers through
// the event bus; tests swap in fakes.
type Processor func(ctx context.Context, events []models.Event) error

// FailedHandler receives events that exhausted their retry attempts. It runs
// outside the retry loop; its own failures are logged, never retried.
type FailedHandler func(ctx context.Context, queueName string, events []models.Event)

// DiagnosticPublisher emits queue:overflow events. Wired to the bus's
// direct-only publish so a full queue cannot feed itself more events.
type DiagnosticPublisher func(ctx context.Context, evt models.Event)

// Manager owns the named queues, routes incoming events, and drives the two
// flush triggers: a size check on every enqueue and a periodic sweep that
// drains tiers high to low. A higher tier is fully drained before a lower
// one is touched, so a saturated high tier starves lower tiers; that is the
// intended ordering guarantee, not an accident.
type Manager struct {
	mu             sync.RWMutex
	queues         map[string]*queue
	sweepOrder     []*queue // tier descending, name ascending on ties
	processors     map[string]Processor
	failedHandlers map[string]FailedHandler

	router   *router
	diag     DiagnosticPublisher
	log      logger.Logger
	interval time.Duration

	flushes sync.WaitGroup
	stop    chan struct{}
	done    chan struct{}
	started bool
	stopped bool
}

func NewManager(cfg config.QueuesConfig, eval *celpkg.Evaluator, diag DiagnosticPublisher, log logger.Logger) (*Manager, error) {
	m := &Manager{
		queues:         make(map[string]*queue),
		processors:     make(map[string]Processor),
		failedHandlers: make(map[string]FailedHandler),
		diag:           diag,
		log:            log,
		interval:       cfg.FlushInterval,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	if m.interval <= 0 {
		m.interval = constants.DefaultFlushInterval
	}

	for _, def := range cfg.Definitions {
		if _, dup := m.queues[def.Name]; dup {
			return nil, fmt.Errorf("queue %q defined twice", def.Name)
		}
		m.queues[def.Name] = newQueue(def.Name, def.Tier, def.BatchSize, def.MaxBytes, def.MaxAttempts)
	}
	if _, ok := m.queues[constants.DefaultQueueName]; !ok {
		m.queues[constants.DefaultQueueName] = newQueue(
			constants.DefaultQueueName,
			constants.MinPriorityTier,
			constants.DefaultBatchSize,
			constants.DefaultMaxQueueBytes,
			constants.DefaultMaxAttempts,
		)
	}

	for _, q := range m.queues {
		m.sweepOrder = append(m.sweepOrder, q)
	}
	sort.Slice(m.sweepOrder, func(i, j int) bool {
		if m.sweepOrder[i].tier != m.sweepOrder[j].tier {
			return m.sweepOrder[i].tier > m.sweepOrder[j].tier
		}
		return m.sweepOrder[i].name < m.sweepOrder[j].name
	})

	router, err := newRouter(cfg.Routing, eval, log)
	if err != nil {
		return nil, err
	}
	m.router = router

	return m, nil
}

// RegisterProcessor installs the batch consumer for one queue. Must be
// called before Start; a queue without a processor is never flushed.
func (m *Manager) RegisterProcessor(queueName string, p Processor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[queueName]; !ok {
		return fmt.Errorf("unknown queue %q", queueName)
	}
	m.processors[queueName] = p
	return nil
}

// RegisterFailedHandler replaces the default log-and-drop handler for one
// queue's failed companion.
func (m *Manager) RegisterFailedHandler(queueName string, h FailedHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[queueName]; !ok {
		return fmt.Errorf("unknown queue %q", queueName)
	}
	m.failedHandlers[queueName] = h
	return nil
}

// Enqueue routes the event and admits it to its queue. Never blocks and
// never reports failure to the producer; admission drops surface as
// queue:overflow diagnostics and metrics instead.
func (m *Manager) Enqueue(ctx context.Context, evt models.Event) {
	name := m.router.route(ctx, evt)

	m.mu.RLock()
	q, ok := m.queues[name]
	m.mu.RUnlock()
	if !ok {
		// Validated config cannot reach this; guard for hand-built rules.
		m.log.Warnw("Routing rule targets unknown queue, using default",
			"queue", name, "event_type", evt.Type)
		m.mu.RLock()
		q = m.queues[constants.DefaultQueueName]
		m.mu.RUnlock()
	}

	res := q.add(evt)

	for _, victim := range res.evicted {
		m.emitOverflow(ctx, q, victim, true)
	}
	if !res.accepted {
		m.emitOverflow(ctx, q, evt, false)
		return
	}

	if q.depth() >= q.batchSize {
		m.triggerFlush(q, false)
	}
}

// Depth reports the total number of pending events across all queues.
func (m *Manager) Depth() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, q := range m.queues {
		total += q.depth()
	}
	return total
}

// Stats returns the snapshot for one queue.
func (m *Manager) Stats(queueName string) (Stats, bool) {
	m.mu.RLock()
	q, ok := m.queues[queueName]
	m.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	return q.stats(), true
}

// AllStats returns every queue's snapshot keyed by name.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stats, len(m.queues))
	for name, q := range m.queues {
		out[name] = q.stats()
	}
	return out
}

// QueueNames returns the configured queue names in sweep order.
func (m *Manager) QueueNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sweepOrder))
	for _, q := range m.sweepOrder {
		names = append(names, q.name)
	}
	return names
}

// Start launches the sweep loop. Processors must already be registered.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.sweepLoop()
}

// Stop halts the sweep, runs one final drain, and waits for in-flight
// flushes. Events still pending after the final drain (no processor, or a
// failing one) stay in memory and are lost with the process.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	if started {
		close(m.stop)
		select {
		case <-m.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.sweep()

	flushed := make(chan struct{})
	go func() {
		m.flushes.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) sweepLoop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// sweep flushes every queue with pending events, highest tier first. The
// drain of each queue is complete before the next queue starts.
func (m *Manager) sweep() {
	m.mu.RLock()
	order := m.sweepOrder
	m.mu.RUnlock()

	for _, q := range order {
		if q.depth() == 0 {
			continue
		}
		m.flushQueue(context.Background(), q, true)
	}
}

// triggerFlush starts an asynchronous size-triggered flush. The per-queue
// flushing flag makes the goroutine a no-op when a flush is already
// running.
func (m *Manager) triggerFlush(q *queue, drainAll bool) {
	if q.flushing.Load() {
		return
	}
	m.flushes.Add(1)
	go func() {
		defer m.flushes.Done()
		m.flushQueue(context.Background(), q, drainAll)
	}()
}

// flushQueue drains q in batchSize chunks while it owns the flushing flag.
// drainAll empties the queue (time trigger); otherwise only full batches
// are taken (size trigger), leaving the remainder for the next sweep.
func (m *Manager) flushQueue(ctx context.Context, q *queue, drainAll bool) {
	if !q.flushing.CompareAndSwap(false, true) {
		return
	}
	defer q.flushing.Store(false)

	m.mu.RLock()
	proc := m.processors[q.name]
	m.mu.RUnlock()
	if proc == nil {
		return
	}

	for {
		if !drainAll && q.depth() < q.batchSize {
			return
		}
		batch := q.takeBatch()
		if len(batch) == 0 {
			return
		}
		if retried := m.processBatch(ctx, q, proc, batch); retried {
			// The batch went back to the head; flushing it again now would
			// busy-loop on the same failure. Leave it for the next sweep.
			return
		}
	}
}

// processBatch runs one processor call and settles the outcome: success
// marks the batch processed, failure increments every member's attempt
// counter, re-enqueues survivors at the head, and dead-letters the rest.
// Returns true when events were re-enqueued for retry.
func (m *Manager) processBatch(ctx context.Context, q *queue, proc Processor, batch []pendingEvent) bool {
	events := make([]models.Event, len(batch))
	for i, p := range batch {
		events[i] = p.evt
	}

	ctx = logging.WithQueue(ctx, q.name)
	start := time.Now()
	err := proc(ctx, events)
	metrics.ObserveQueueFlushDuration(q.name, time.Since(start))

	if err == nil {
		q.markProcessed(len(batch), time.Now())
		return false
	}

	m.log.WarnwCtx(ctx, "Queue batch processing failed",
		"queue", q.name,
		"batch_size", len(batch),
		"error", err,
	)

	var retry []pendingEvent
	var exhausted []models.Event
	for _, p := range batch {
		p.attempts++
		if p.attempts >= q.maxAttempts {
			exhausted = append(exhausted, p.evt)
		} else {
			retry = append(retry, p)
		}
	}

	if len(exhausted) > 0 {
		q.deadLetter(exhausted)
		m.drainFailed(ctx, q)
	}
	if len(retry) > 0 {
		for _, victim := range q.requeueHead(retry) {
			m.emitOverflow(ctx, q, victim, true)
		}
	}
	return len(retry) > 0
}

// drainFailed hands the failed companion's contents to the queue's handler,
// defaulting to log-and-drop.
func (m *Manager) drainFailed(ctx context.Context, q *queue) {
	events := q.takeFailed()
	if len(events) == 0 {
		return
	}

	m.mu.RLock()
	handler := m.failedHandlers[q.name]
	m.mu.RUnlock()

	if handler == nil {
		for _, evt := range events {
			m.log.ErrorwCtx(ctx, "Event exhausted retries, dropping",
				"queue", q.name,
				"event_id", evt.ID,
				"event_type", evt.Type,
				"attempts", q.maxAttempts,
			)
		}
		return
	}
	handler(ctx, q.name+constants.FailedQueueSuffix, events)
}

func (m *Manager) emitOverflow(ctx context.Context, q *queue, dropped models.Event, evicted bool) {
	m.log.Warnw("Queue overflow",
		"queue", q.name,
		"dropped_id", dropped.ID,
		"dropped_type", dropped.Type,
		"evicted", evicted,
	)
	if m.diag == nil {
		return
	}

	stats := q.stats()
	evt := models.NewEventBuilder(models.TypeQueueOverflow, models.CategorySystem).
		WithSeverity(models.SeverityWarn).
		WithSource("queue-manager").
		WithField("queue", q.name).
		WithField("dropped_id", dropped.ID).
		WithField("dropped_type", dropped.Type).
		WithField("evicted", evicted).
		WithField("pending_bytes", stats.PendingBytes).
		Build()
	m.diag(ctx, evt)
}
