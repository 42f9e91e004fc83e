package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total number of events accepted by the bus (count)",
		},
		[]string{"category", "severity"},
	)

	EventsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_events_rejected_total",
			Help: "Total number of events rejected at the publish boundary (count)",
		},
	)

	EventsFilteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_events_filtered_total",
			Help: "Total number of events dropped by global filters (count)",
		},
	)

	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bus_dispatch_duration_ms",
			Help:    "Synchronous dispatch duration per publish in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	HandlerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_handler_errors_total",
			Help: "Total number of subscriber handler failures (count)",
		},
		[]string{"event_type"},
	)

	EventsRedeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_redelivered_total",
			Help: "Total number of events replayed through dispatch by queue processors (count)",
		},
		[]string{"queue"},
	)

	ActiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bus_active_subscribers",
			Help: "Number of registered subscribers (count)",
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of events pending in a queue (count)",
		},
		[]string{"queue"},
	)

	QueuePendingBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_pending_bytes",
			Help: "Approximate bytes pending in a queue",
		},
		[]string{"queue"},
	)

	QueueEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueued_total",
			Help: "Total number of events admitted to a queue (count)",
		},
		[]string{"queue"},
	)

	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Total number of events successfully processed from a queue (count)",
		},
		[]string{"queue"},
	)

	QueueFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_flush_duration_ms",
			Help:    "Duration of one batch flush in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"queue"},
	)

	QueueRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_retries_total",
			Help: "Total number of per-event retry re-enqueues (count)",
		},
		[]string{"queue"},
	)

	QueueDeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dead_lettered_total",
			Help: "Total number of events moved to a failed queue (count)",
		},
		[]string{"queue"},
	)

	QueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dropped_total",
			Help: "Total number of events dropped by admission control (count)",
		},
		[]string{"queue", "reason"},
	)

	ExportedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_events_total",
			Help: "Total number of events forwarded to the export topic (count)",
		},
		[]string{"topic", "status"},
	)

	ExportWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "export_write_duration_ms",
			Help:    "Duration of export topic writes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)

	DedupCheckedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_checked_total",
			Help: "Total number of duplicate checks against the seen-event cache (count)",
		},
		[]string{"result"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterBusMetrics() {
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventsRejectedTotal)
	prometheus.MustRegister(EventsFilteredTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(HandlerErrorsTotal)
	prometheus.MustRegister(EventsRedeliveredTotal)
	prometheus.MustRegister(ActiveSubscribers)
}

func RegisterQueueMetrics() {
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueuePendingBytes)
	prometheus.MustRegister(QueueEnqueuedTotal)
	prometheus.MustRegister(QueueProcessedTotal)
	prometheus.MustRegister(QueueFlushDuration)
	prometheus.MustRegister(QueueRetriesTotal)
	prometheus.MustRegister(QueueDeadLetteredTotal)
	prometheus.MustRegister(QueueDroppedTotal)
}

func RegisterExportMetrics() {
	prometheus.MustRegister(ExportedEventsTotal)
	prometheus.MustRegister(ExportWriteDuration)
}

func RegisterDedupMetrics() {
	prometheus.MustRegister(DedupCheckedTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterConsoleMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveDispatchDuration(duration time.Duration) {
	DispatchDuration.Observe(float64(duration.Microseconds()) / 1000.0)
}

func ObserveQueueFlushDuration(queue string, duration time.Duration) {
	QueueFlushDuration.WithLabelValues(queue).Observe(float64(duration.Milliseconds()))
}

func ObserveExportWriteDuration(topic string, duration time.Duration) {
	ExportWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}

func SetQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func SetQueuePendingBytes(queue string, bytes int) {
	QueuePendingBytes.WithLabelValues(queue).Set(float64(bytes))
}

func SetActiveSubscribers(count int) {
	ActiveSubscribers.Set(float64(count))
}
