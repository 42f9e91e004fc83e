package bus

import (
	"context"
	"regexp"
	"sync/atomic"

	"github.com/google/uuid"

	"devpulse/internal/constants"
	"devpulse/pkg/models"
)

// Handler consumes one event. Errors are isolated per subscriber and
// surfaced as system:error events, never propagated to the publisher.
type Handler func(ctx context.Context, evt models.Event) error

// SubscribeOptions tune one subscription. Handlers run asynchronously
// (fanned out) unless Sync is set.
type SubscribeOptions struct {
	Priority int
	Once     bool
	Sync     bool
	Filter   func(evt models.Event) bool
}

type subscription struct {
	id      string
	pattern string
	regex   *regexp.Regexp
	handler Handler
	opts    SubscribeOptions
	fired   atomic.Bool // once-subscriptions flip this before the first invoke
	seq     uint64      // insertion order, stable tie-break
}

// tryClaim reserves the single firing of a once-subscription. Regular
// subscriptions always pass.
func (s *subscription) tryClaim() bool {
	if !s.opts.Once {
		return true
	}
	return s.fired.CompareAndSwap(false, true)
}

// registry holds pattern buckets. Exact buckets and the wildcard bucket are
// keyed directly; regex subscriptions are tested against each event type at
// dispatch time. Buckets stay sorted by descending priority, insertion
// order on ties. Callers synchronize access; the registry itself is not
// goroutine safe.
type registry struct {
	exact    map[string][]*subscription
	patterns []*subscription
	wildcard []*subscription
	byID     map[string]*subscription
	seq      uint64
}

func newRegistry() *registry {
	return &registry{
		exact: make(map[string][]*subscription),
		byID:  make(map[string]*subscription),
	}
}

func (r *registry) add(pattern string, regex *regexp.Regexp, handler Handler, opts SubscribeOptions) *subscription {
	r.seq++
	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		regex:   regex,
		handler: handler,
		opts:    opts,
		seq:     r.seq,
	}
	r.byID[sub.id] = sub

	switch {
	case regex != nil:
		r.patterns = insertByPriority(r.patterns, sub)
	case pattern == constants.WildcardPattern:
		r.wildcard = insertByPriority(r.wildcard, sub)
	default:
		r.exact[pattern] = insertByPriority(r.exact[pattern], sub)
	}

	return sub
}

func (r *registry) remove(id string) bool {
	sub, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	switch {
	case sub.regex != nil:
		r.patterns = removeSub(r.patterns, id)
	case sub.pattern == constants.WildcardPattern:
		r.wildcard = removeSub(r.wildcard, id)
	default:
		bucket := removeSub(r.exact[sub.pattern], id)
		if len(bucket) == 0 {
			delete(r.exact, sub.pattern)
		} else {
			r.exact[sub.pattern] = bucket
		}
	}

	return true
}

// match returns every subscription whose pattern covers eventType: the
// exact bucket first, then regex matches, then the wildcard bucket. The
// returned slice is a snapshot; dispatch iterates it without holding the
// bus lock, so unsubscribing mid-dispatch is safe.
func (r *registry) match(eventType string) []*subscription {
	matched := make([]*subscription, 0, len(r.exact[eventType])+len(r.wildcard))
	matched = append(matched, r.exact[eventType]...)

	for _, sub := range r.patterns {
		if sub.regex.MatchString(eventType) {
			matched = append(matched, sub)
		}
	}

	matched = append(matched, r.wildcard...)
	return matched
}

func (r *registry) count() int {
	return len(r.byID)
}

func insertByPriority(bucket []*subscription, sub *subscription) []*subscription {
	// Descending priority; equal priorities keep insertion order, so the
	// new subscription goes after existing peers.
	idx := len(bucket)
	for i, existing := range bucket {
		if existing.opts.Priority < sub.opts.Priority {
			idx = i
			break
		}
	}

	bucket = append(bucket, nil)
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = sub
	return bucket
}

func removeSub(bucket []*subscription, id string) []*subscription {
	for i, sub := range bucket {
		if sub.id == id {
			return append(bucket[:i], bucket[i+1:]...)
		}
	}
	return bucket
}
