package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"devpulse/internal/constants"
	"devpulse/pkg/metrics"
	"devpulse/pkg/models"
)

// pendingEvent is one buffered event plus its bookkeeping. The serialized
// size is computed once at admission and the attempt counter travels with
// the event through retries.
type pendingEvent struct {
	evt      models.Event
	size     int
	attempts int
}

// admissionResult tells the manager what happened to an incoming event so
// it can emit queue:overflow diagnostics outside the queue lock.
type admissionResult struct {
	accepted bool
	evicted  []models.Event
}

// Stats is a point-in-time view of one queue. Throughput is averaged over
// the queue's lifetime; nothing here drives flow control beyond the byte
// cap enforced at admission.
type Stats struct {
	Name            string    `json:"name"`
	Tier            int       `json:"tier"`
	Depth           int       `json:"depth"`
	PendingBytes    int64     `json:"pending_bytes"`
	Enqueued        int64     `json:"enqueued"`
	Processed       int64     `json:"processed"`
	Retried         int64     `json:"retried"`
	DeadLettered    int64     `json:"dead_lettered"`
	Dropped         int64     `json:"dropped"`
	Evicted         int64     `json:"evicted"`
	EventsPerSecond float64   `json:"events_per_second"`
	LastFlush       time.Time `json:"last_flush,omitempty"`
}

// queue is one named priority buffer. All pending-list mutation happens
// under mu; the flushing flag serializes flushes so a queue never runs two
// processor calls concurrently with itself.
type queue struct {
	name        string
	tier        int
	batchSize   int
	maxBytes    int64
	maxAttempts int

	mu      sync.Mutex
	pending []pendingEvent
	bytes   int64
	failed  []models.Event // dead-letter hand-off buffer, drained per flush

	flushing atomic.Bool

	enqueued     int64
	processed    int64
	retried      int64
	deadLettered int64
	dropped      int64
	evicted      int64
	lastFlush    time.Time
	createdAt    time.Time
}

func newQueue(name string, tier, batchSize, maxBytes, maxAttempts int) *queue {
	if batchSize <= 0 {
		batchSize = constants.DefaultBatchSize
	}
	if maxBytes <= 0 {
		maxBytes = constants.DefaultMaxQueueBytes
	}
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultMaxAttempts
	}
	return &queue{
		name:        name,
		tier:        tier,
		batchSize:   batchSize,
		maxBytes:    int64(maxBytes),
		maxAttempts: maxAttempts,
		createdAt:   time.Now(),
	}
}

// add admits an event, evicting lower-severity pending events when the byte
// cap would be exceeded. Admission is decided before anything is evicted:
// if the strictly lower-ranked pending events cannot cover the deficit, the
// incoming event is dropped and the queue is left untouched. Never blocks.
func (q *queue) add(evt models.Event) admissionResult {
	p := pendingEvent{evt: evt, size: evt.Size()}

	q.mu.Lock()
	defer q.mu.Unlock()

	incoming := evt.Severity.Rank()
	deficit := q.bytes + int64(p.size) - q.maxBytes
	if deficit > 0 && q.evictableBytesLocked(incoming) < deficit {
		q.dropped++
		metrics.QueueDroppedTotal.WithLabelValues(q.name, "overflow").Inc()
		return admissionResult{}
	}

	// The deficit is covered by strictly lower-ranked events, so every
	// victim the loop picks is below the incoming rank.
	var evicted []models.Event
	for q.bytes+int64(p.size) > q.maxBytes {
		evicted = append(evicted, q.evictLowestLocked())
	}

	q.pending = append(q.pending, p)
	q.bytes += int64(p.size)
	q.enqueued++
	q.publishGauges()
	metrics.QueueEnqueuedTotal.WithLabelValues(q.name).Inc()
	return admissionResult{accepted: true, evicted: evicted}
}

// evictableBytesLocked sums the sizes of pending events ranked strictly
// below rank. Caller holds the lock.
func (q *queue) evictableBytesLocked(rank int) int64 {
	var total int64
	for _, p := range q.pending {
		if p.evt.Severity.Rank() < rank {
			total += int64(p.size)
		}
	}
	return total
}

// evictLowestLocked removes and returns the oldest pending event with the
// lowest severity rank. Caller holds the lock and guarantees the queue is
// not empty.
func (q *queue) evictLowestLocked() models.Event {
	idx := 0
	best := q.pending[0].evt.Severity.Rank()
	for i, p := range q.pending[1:] {
		if rank := p.evt.Severity.Rank(); rank < best {
			idx = i + 1
			best = rank
		}
	}

	victim := q.pending[idx]
	q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
	q.bytes -= int64(victim.size)
	q.evicted++
	metrics.QueueDroppedTotal.WithLabelValues(q.name, "evicted").Inc()
	return victim.evt
}

// takeBatch atomically removes up to batchSize events from the head. Events
// arriving while the batch is being processed accumulate in the remaining
// buffer and are not part of the in-flight batch.
func (q *queue) takeBatch() []pendingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	if n == 0 {
		return nil
	}
	if n > q.batchSize {
		n = q.batchSize
	}

	batch := make([]pendingEvent, n)
	copy(batch, q.pending[:n])
	q.pending = append(q.pending[:0], q.pending[n:]...)
	for _, p := range batch {
		q.bytes -= int64(p.size)
	}
	q.publishGauges()
	return batch
}

// requeueHead puts a failed batch back at the front of the queue in its
// original order. Arrivals during the in-flight batch may have reclaimed
// the bytes takeBatch released; the lowest-severity arrivals are evicted
// until the batch fits again, so the byte cap holds across retries. The
// batch fit under the cap once, so draining every arrival always suffices
// and a retried batch is never dropped for size.
func (q *queue) requeueHead(batch []pendingEvent) []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	var batchBytes int64
	for _, p := range batch {
		batchBytes += int64(p.size)
	}

	var evicted []models.Event
	for len(q.pending) > 0 && q.bytes+batchBytes > q.maxBytes {
		evicted = append(evicted, q.evictLowestLocked())
	}

	q.pending = append(batch, q.pending...)
	q.bytes += batchBytes
	q.retried += int64(len(batch))
	q.publishGauges()
	metrics.QueueRetriesTotal.WithLabelValues(q.name).Add(float64(len(batch)))
	return evicted
}

// deadLetter moves events into the failed companion buffer. Each event
// lands there exactly once; the manager drains the buffer to the configured
// failed handler after the flush that produced it.
func (q *queue) deadLetter(events []models.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.failed = append(q.failed, events...)
	q.deadLettered += int64(len(events))
	metrics.QueueDeadLetteredTotal.WithLabelValues(q.name).Add(float64(len(events)))
}

func (q *queue) takeFailed() []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.failed) == 0 {
		return nil
	}
	out := q.failed
	q.failed = nil
	return out
}

func (q *queue) markProcessed(n int, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.processed += int64(n)
	q.lastFlush = at
	metrics.QueueProcessedTotal.WithLabelValues(q.name).Add(float64(n))
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *queue) stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	elapsed := time.Since(q.createdAt).Seconds()
	var perSecond float64
	if elapsed > 0 {
		perSecond = float64(q.processed) / elapsed
	}

	return Stats{
		Name:            q.name,
		Tier:            q.tier,
		Depth:           len(q.pending),
		PendingBytes:    q.bytes,
		Enqueued:        q.enqueued,
		Processed:       q.processed,
		Retried:         q.retried,
		DeadLettered:    q.deadLettered,
		Dropped:         q.dropped,
		Evicted:         q.evicted,
		EventsPerSecond: perSecond,
		LastFlush:       q.lastFlush,
	}
}

// publishGauges refreshes the depth and bytes gauges. Caller holds the lock.
func (q *queue) publishGauges() {
	metrics.SetQueueDepth(q.name, len(q.pending))
	metrics.SetQueuePendingBytes(q.name, int(q.bytes))
}
