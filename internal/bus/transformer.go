package bus

import (
	"regexp"

	"devpulse/pkg/models"
)

// Transformer maps an event to a possibly modified event of the same
// identity. Transformers may rewrite Data and Metadata; the bus restores
// the original ID after each call.
type Transformer func(evt models.Event) models.Event

type patternTransformer struct {
	regex *regexp.Regexp
	fns   []Transformer
}

// transformerSet chains transformers per pattern in registration order:
// type-exact chains run first, then every matching regex chain.
type transformerSet struct {
	exact    map[string][]Transformer
	patterns []*patternTransformer
}

func newTransformerSet() *transformerSet {
	return &transformerSet{
		exact: make(map[string][]Transformer),
	}
}

func (t *transformerSet) register(eventType string, fn Transformer) {
	t.exact[eventType] = append(t.exact[eventType], fn)
}

func (t *transformerSet) registerPattern(regex *regexp.Regexp, fn Transformer) {
	for _, pt := range t.patterns {
		if pt.regex.String() == regex.String() {
			pt.fns = append(pt.fns, fn)
			return
		}
	}
	t.patterns = append(t.patterns, &patternTransformer{regex: regex, fns: []Transformer{fn}})
}

func (t *transformerSet) apply(evt models.Event) models.Event {
	id := evt.ID

	for _, fn := range t.exact[evt.Type] {
		evt = fn(evt)
		evt.ID = id
	}

	for _, pt := range t.patterns {
		if !pt.regex.MatchString(evt.Type) {
			continue
		}
		for _, fn := range pt.fns {
			evt = fn(evt)
			evt.ID = id
		}
	}

	return evt
}
