package bus

import (
	"sync"
	"time"

	"devpulse/pkg/models"
)

// Statistics is an observational snapshot; it is never authoritative state.
type Statistics struct {
	TotalEvents   int64                     `json:"total_events"`
	ByCategory    map[models.Category]int64 `json:"events_by_category"`
	BySeverity    map[models.Severity]int64 `json:"events_by_severity"`
	EventsPerHour int64                     `json:"events_per_hour"`
	LastEventTime time.Time                 `json:"last_event_time"`
	Redelivered   int64                     `json:"redelivered"`
	Subscribers   int                       `json:"subscribers"`
}

const minuteBuckets = 60

// statsCollector counts accepted events. The rolling events-per-hour figure
// comes from a ring of per-minute buckets; buckets skipped between events
// are zeroed on the next record or snapshot.
type statsCollector struct {
	mu          sync.Mutex
	total       int64
	byCategory  map[models.Category]int64
	bySeverity  map[models.Severity]int64
	lastEvent   time.Time
	redelivered int64
	ring        [minuteBuckets]int64
	ringMinute  int64 // unix minute the current bucket belongs to
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		byCategory: make(map[models.Category]int64),
		bySeverity: make(map[models.Severity]int64),
	}
}

func (s *statsCollector) record(evt models.Event, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byCategory[evt.Category]++
	s.bySeverity[evt.Severity]++
	s.lastEvent = now

	s.advance(now)
	s.ring[s.ringMinute%minuteBuckets]++
}

func (s *statsCollector) recordRedelivery(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redelivered += int64(n)
}

func (s *statsCollector) snapshot(now time.Time) Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advance(now)

	var perHour int64
	for _, n := range s.ring {
		perHour += n
	}

	byCat := make(map[models.Category]int64, len(s.byCategory))
	for k, v := range s.byCategory {
		byCat[k] = v
	}
	bySev := make(map[models.Severity]int64, len(s.bySeverity))
	for k, v := range s.bySeverity {
		bySev[k] = v
	}

	return Statistics{
		TotalEvents:   s.total,
		ByCategory:    byCat,
		BySeverity:    bySev,
		EventsPerHour: perHour,
		LastEventTime: s.lastEvent,
		Redelivered:   s.redelivered,
	}
}

// advance zeroes the buckets between the last recorded minute and now.
// Caller holds the lock.
func (s *statsCollector) advance(now time.Time) {
	minute := now.Unix() / 60
	if s.ringMinute == 0 {
		s.ringMinute = minute
		return
	}

	for s.ringMinute < minute {
		s.ringMinute++
		s.ring[s.ringMinute%minuteBuckets] = 0
	}
}
