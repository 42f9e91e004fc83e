package queue

import (
	"context"
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"devpulse/internal/config"
	"devpulse/internal/constants"
	"devpulse/internal/logger"
	celpkg "devpulse/pkg/cel"
	"devpulse/pkg/models"
)

// rule is one compiled routing rule. Severities and categories are OR
// lists; an empty list places no constraint. The optional CEL program is
// ANDed with them.
type rule struct {
	queue      string
	severities map[models.Severity]struct{}
	categories map[models.Category]struct{}
	program    celgo.Program
}

func (r *rule) matches(ctx context.Context, eval *celpkg.Evaluator, evt models.Event, log logger.Logger) bool {
	if len(r.severities) > 0 {
		if _, ok := r.severities[evt.Severity]; !ok {
			return false
		}
	}
	if len(r.categories) > 0 {
		if _, ok := r.categories[evt.Category]; !ok {
			return false
		}
	}
	if r.program != nil {
		ok, err := eval.EvaluateProgram(ctx, r.program, evt)
		if err != nil {
			// An expression that fails at runtime matches nothing; the
			// event falls through to later rules or the default queue.
			log.Warnw("Routing expression evaluation failed",
				"queue", r.queue,
				"error", err,
			)
			return false
		}
		return ok
	}
	return true
}

// router assigns every event to exactly one queue. Rules run in config
// order, first match wins, and events matching no rule land on the default
// queue. Routing happens once at enqueue; retries keep their queue.
type router struct {
	rules []*rule
	eval  *celpkg.Evaluator
	log   logger.Logger
}

func newRouter(cfg []config.RoutingRule, eval *celpkg.Evaluator, log logger.Logger) (*router, error) {
	r := &router{eval: eval, log: log}

	for i, rc := range cfg {
		compiled := &rule{queue: rc.Queue}

		if len(rc.Severities) > 0 {
			compiled.severities = make(map[models.Severity]struct{}, len(rc.Severities))
			for _, s := range rc.Severities {
				compiled.severities[models.Severity(s)] = struct{}{}
			}
		}
		if len(rc.Categories) > 0 {
			compiled.categories = make(map[models.Category]struct{}, len(rc.Categories))
			for _, c := range rc.Categories {
				compiled.categories[models.Category(c)] = struct{}{}
			}
		}
		if rc.Expression != "" {
			program, err := eval.CompileFilter(rc.Expression)
			if err != nil {
				return nil, fmt.Errorf("routing rule %d (%s): %w", i, rc.Queue, err)
			}
			compiled.program = program
		}

		r.rules = append(r.rules, compiled)
	}

	return r, nil
}

func (r *router) route(ctx context.Context, evt models.Event) string {
	for _, rl := range r.rules {
		if rl.matches(ctx, r.eval, evt, r.log) {
			return rl.queue
		}
	}
	return constants.DefaultQueueName
}
