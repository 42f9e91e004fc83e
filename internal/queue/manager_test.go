package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devpulse/internal/config"
	"devpulse/internal/logger"
	celpkg "devpulse/pkg/cel"
	"devpulse/pkg/models"
)

func newTestManager(t *testing.T, cfg config.QueuesConfig, diag DiagnosticPublisher) *Manager {
	t.Helper()
	eval, err := celpkg.NewEvaluator()
	require.NoError(t, err)
	m, err := NewManager(cfg, eval, diag, logger.NopLogger())
	require.NoError(t, err)
	return m
}

func infoEvent(source string) models.Event {
	return models.NewEventBuilder(models.TypeFileChange, models.CategoryFile).
		WithSource(source).
		WithField("path", "/tmp/watched.go").
		Build()
}

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]models.Event
	err     error
}

func (r *batchRecorder) process(ctx context.Context, events []models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	return r.err
}

func (r *batchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *batchRecorder) all() [][]models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

func TestSweepDeliversPendingBatch(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{{Name: "default", Tier: 1, BatchSize: 100}},
	}, nil)

	rec := &batchRecorder{}
	require.NoError(t, m.RegisterProcessor("default", rec.process))

	evt := infoEvent("watcher")
	m.Enqueue(context.Background(), evt)
	assert.Equal(t, 1, m.Depth())

	m.sweep()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, evt.ID, rec.all()[0][0].ID)
	assert.Zero(t, m.Depth())

	stats, ok := m.Stats("default")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Processed)
}

func TestSizeTriggerFlushesWithoutTimer(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		FlushInterval: time.Hour, // timer must never fire in this test
		Definitions:   []config.QueueDefinition{{Name: "default", Tier: 1, BatchSize: 2}},
	}, nil)

	flushed := make(chan []models.Event, 1)
	require.NoError(t, m.RegisterProcessor("default", func(ctx context.Context, events []models.Event) error {
		flushed <- events
		return nil
	}))

	m.Enqueue(context.Background(), infoEvent("watcher"))
	select {
	case <-flushed:
		t.Fatal("flush fired below the batch size threshold")
	case <-time.After(50 * time.Millisecond):
	}

	m.Enqueue(context.Background(), infoEvent("watcher"))
	select {
	case batch := <-flushed:
		assert.Len(t, batch, 2)
	case <-time.After(time.Second):
		t.Fatal("size trigger did not flush")
	}
}

func TestSweepDrainsTiersHighToLow(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{
			{Name: "background", Tier: 1, BatchSize: 100},
			{Name: "critical", Tier: 5, BatchSize: 100},
			{Name: "standard", Tier: 3, BatchSize: 100},
		},
		Routing: []config.RoutingRule{
			{Queue: "critical", Severities: []string{"critical"}},
			{Queue: "standard", Severities: []string{"warn", "error"}},
			{Queue: "background"},
		},
	}, nil)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"background", "critical", "standard"} {
		name := name
		require.NoError(t, m.RegisterProcessor(name, func(ctx context.Context, events []models.Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}))
	}

	ctx := context.Background()
	m.Enqueue(ctx, infoEvent("watcher")) // -> background
	m.Enqueue(ctx, models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
		WithSeverity(models.SeverityCritical).WithSource("builder").Build()) // -> critical
	m.Enqueue(ctx, models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
		WithSeverity(models.SeverityWarn).WithSource("builder").Build()) // -> standard

	m.sweep()

	assert.Equal(t, []string{"critical", "standard", "background"}, order)
	assert.Equal(t, []string{"critical", "standard", "background", "default"}, m.QueueNames())
}

func TestFailedBatchRetriesThenDeadLettersOnce(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{{Name: "default", Tier: 1, BatchSize: 100, MaxAttempts: 3}},
	}, nil)

	rec := &batchRecorder{err: fmt.Errorf("downstream unavailable")}
	require.NoError(t, m.RegisterProcessor("default", rec.process))

	var mu sync.Mutex
	var failedQueue string
	var failed []models.Event
	calls := 0
	require.NoError(t, m.RegisterFailedHandler("default", func(ctx context.Context, queueName string, events []models.Event) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		failedQueue = queueName
		failed = append(failed, events...)
	}))

	evt := infoEvent("watcher")
	m.Enqueue(context.Background(), evt)

	// Attempts one and two re-enqueue at the head; the third dead-letters.
	m.sweep()
	assert.Equal(t, 1, m.Depth())
	m.sweep()
	assert.Equal(t, 1, m.Depth())
	m.sweep()
	assert.Zero(t, m.Depth())

	assert.Equal(t, 3, rec.count())
	assert.Equal(t, 1, calls)
	require.Len(t, failed, 1)
	assert.Equal(t, evt.ID, failed[0].ID)
	assert.Equal(t, "default:failed", failedQueue)

	// No resurrection: later sweeps see an empty queue.
	m.sweep()
	assert.Equal(t, 3, rec.count())
	assert.Len(t, failed, 1)

	stats, _ := m.Stats("default")
	assert.Equal(t, int64(2), stats.Retried)
	assert.Equal(t, int64(1), stats.DeadLettered)
	assert.Zero(t, stats.Processed)
}

func TestRetriedEventsKeepHeadPosition(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{{Name: "default", Tier: 1, BatchSize: 1, MaxAttempts: 5}},
	}, nil)

	rec := &batchRecorder{err: fmt.Errorf("flaky")}
	require.NoError(t, m.RegisterProcessor("default", rec.process))

	first := infoEvent("watcher")
	second := infoEvent("watcher")
	q := m.queues["default"]
	q.add(first)
	q.add(second)

	m.flushQueue(context.Background(), q, true)

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	m.sweep()
	m.sweep()

	batches := rec.all()
	require.Len(t, batches, 3)
	assert.Equal(t, first.ID, batches[0][0].ID) // failed attempt
	assert.Equal(t, first.ID, batches[1][0].ID) // retried ahead of second
	assert.Equal(t, second.ID, batches[2][0].ID)
}

func TestRoutingEvaluatedOnceNotOnRetry(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{
			{Name: "errors", Tier: 4, BatchSize: 100, MaxAttempts: 5},
		},
		Routing: []config.RoutingRule{
			{Queue: "errors", Severities: []string{"info"}},
		},
	}, nil)

	rec := &batchRecorder{err: fmt.Errorf("not yet")}
	require.NoError(t, m.RegisterProcessor("errors", rec.process))
	defaultRec := &batchRecorder{}
	require.NoError(t, m.RegisterProcessor("default", defaultRec.process))

	m.Enqueue(context.Background(), infoEvent("watcher"))
	m.sweep()
	m.sweep()

	// Both attempts came from the originally routed queue.
	assert.Equal(t, 2, rec.count())
	assert.Zero(t, defaultRec.count())
}

func TestOverflowEvictsLowerSeverity(t *testing.T) {
	filler := infoEvent("watcher")
	maxBytes := filler.Size() + filler.Size()/2 // room for one event, not two

	var mu sync.Mutex
	var diags []models.Event
	diag := func(ctx context.Context, evt models.Event) {
		mu.Lock()
		defer mu.Unlock()
		diags = append(diags, evt)
	}

	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{
			{Name: "default", Tier: 1, BatchSize: 100, MaxBytes: maxBytes},
		},
	}, diag)

	ctx := context.Background()
	m.Enqueue(ctx, filler)
	require.Equal(t, 1, m.Depth())

	critical := models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
		WithSeverity(models.SeverityCritical).
		WithSource("builder").
		Build()
	m.Enqueue(ctx, critical)

	// The info event was evicted to make room for the critical one.
	assert.Equal(t, 1, m.Depth())
	stats, _ := m.Stats("default")
	assert.Equal(t, int64(1), stats.Evicted)
	assert.Zero(t, stats.Dropped)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, diags, 1)
	assert.Equal(t, models.TypeQueueOverflow, diags[0].Type)
	assert.Equal(t, filler.ID, diags[0].Data["dropped_id"])
	assert.Equal(t, true, diags[0].Data["evicted"])
}

func TestOverflowDropsIncomingWhenNotHigherSeverity(t *testing.T) {
	filler := infoEvent("watcher")
	maxBytes := filler.Size() + filler.Size()/2

	var mu sync.Mutex
	var diags []models.Event
	diag := func(ctx context.Context, evt models.Event) {
		mu.Lock()
		defer mu.Unlock()
		diags = append(diags, evt)
	}

	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{
			{Name: "default", Tier: 1, BatchSize: 100, MaxBytes: maxBytes},
		},
	}, diag)

	ctx := context.Background()
	m.Enqueue(ctx, filler)
	incoming := infoEvent("watcher") // equal severity never evicts a peer
	m.Enqueue(ctx, incoming)

	assert.Equal(t, 1, m.Depth())
	stats, _ := m.Stats("default")
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Zero(t, stats.Evicted)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, diags, 1)
	assert.Equal(t, incoming.ID, diags[0].Data["dropped_id"])
	assert.Equal(t, false, diags[0].Data["evicted"])
}

func TestRequeueEvictsArrivalsToHoldByteCap(t *testing.T) {
	first := infoEvent("watcher")
	maxBytes := first.Size() + first.Size()/2

	var mu sync.Mutex
	var diags []models.Event
	diag := func(ctx context.Context, evt models.Event) {
		mu.Lock()
		defer mu.Unlock()
		diags = append(diags, evt)
	}

	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{
			{Name: "default", Tier: 1, BatchSize: 1, MaxBytes: maxBytes, MaxAttempts: 5},
		},
	}, diag)

	q := m.queues["default"]
	var arrival models.Event
	require.NoError(t, m.RegisterProcessor("default", func(ctx context.Context, events []models.Event) error {
		// Fills the queue back to the cap while the batch is in flight.
		arrival = infoEvent("watcher")
		q.add(arrival)
		return fmt.Errorf("downstream unavailable")
	}))

	q.add(first)
	m.flushQueue(context.Background(), q, true)

	// The arrival was evicted so the retried batch fits under the cap.
	stats, _ := m.Stats("default")
	assert.LessOrEqual(t, stats.PendingBytes, int64(maxBytes))
	assert.Equal(t, 1, stats.Depth)
	assert.Equal(t, int64(1), stats.Evicted)
	assert.Equal(t, int64(1), stats.Retried)

	batch := q.takeBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, first.ID, batch[0].evt.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, diags, 1)
	assert.Equal(t, arrival.ID, diags[0].Data["dropped_id"])
	assert.Equal(t, true, diags[0].Data["evicted"])
}

func TestOverflowDropLeavesPendingEventsUntouched(t *testing.T) {
	filler := infoEvent("watcher")

	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{
			{Name: "default", Tier: 1, BatchSize: 100, MaxBytes: 3 * filler.Size()},
		},
	}, nil)

	ctx := context.Background()
	m.Enqueue(ctx, filler)
	m.Enqueue(ctx, infoEvent("watcher"))
	require.Equal(t, 2, m.Depth())

	// Evicting both fillers still cannot fit this one; nothing is evicted.
	oversized := models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
		WithSeverity(models.SeverityCritical).
		WithSource("builder").
		WithField("output", strings.Repeat("x", 4*filler.Size())).
		Build()
	m.Enqueue(ctx, oversized)

	assert.Equal(t, 2, m.Depth())
	stats, _ := m.Stats("default")
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Zero(t, stats.Evicted)
}

func TestBatchExtractionLeavesLateArrivals(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{{Name: "default", Tier: 1, BatchSize: 2}},
	}, nil)

	var late models.Event
	var mu sync.Mutex
	var batches [][]models.Event
	require.NoError(t, m.RegisterProcessor("default", func(ctx context.Context, events []models.Event) error {
		mu.Lock()
		batches = append(batches, events)
		first := len(batches) == 1
		mu.Unlock()
		if first {
			// Arrives mid-processing; must start a fresh buffer, not join
			// the in-flight batch.
			late = infoEvent("watcher")
			m.queues["default"].add(late)
		}
		return nil
	}))

	q := m.queues["default"]
	q.add(infoEvent("watcher"))
	q.add(infoEvent("watcher"))

	m.sweep()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	require.Len(t, batches[1], 1)
	assert.Equal(t, late.ID, batches[1][0].ID)
}

func TestQueueWithoutProcessorIsNotFlushed(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		Definitions: []config.QueueDefinition{{Name: "default", Tier: 1, BatchSize: 1}},
	}, nil)

	m.Enqueue(context.Background(), infoEvent("watcher"))
	m.sweep()
	assert.Equal(t, 1, m.Depth())
}

func TestStartStopDrainsOnShutdown(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{
		FlushInterval: time.Hour,
		Definitions:   []config.QueueDefinition{{Name: "default", Tier: 1, BatchSize: 100}},
	}, nil)

	rec := &batchRecorder{}
	require.NoError(t, m.RegisterProcessor("default", rec.process))

	m.Start()
	m.Enqueue(context.Background(), infoEvent("watcher"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, 1, rec.count())
	assert.Zero(t, m.Depth())

	// Stop is idempotent.
	require.NoError(t, m.Stop(ctx))
}

func TestUnknownQueueRegistrationsRejected(t *testing.T) {
	m := newTestManager(t, config.QueuesConfig{}, nil)

	assert.Error(t, m.RegisterProcessor("missing", func(ctx context.Context, events []models.Event) error {
		return nil
	}))
	assert.Error(t, m.RegisterFailedHandler("missing", func(ctx context.Context, q string, events []models.Event) {}))
}

func TestDuplicateQueueDefinitionRejected(t *testing.T) {
	eval, err := celpkg.NewEvaluator()
	require.NoError(t, err)

	_, err = NewManager(config.QueuesConfig{
		Definitions: []config.QueueDefinition{
			{Name: "jobs", Tier: 2},
			{Name: "jobs", Tier: 3},
		},
	}, eval, nil, logger.NopLogger())
	assert.Error(t, err)
}
