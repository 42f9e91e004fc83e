package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devpulse/internal/config"
	"devpulse/internal/logger"
	celpkg "devpulse/pkg/cel"
	"devpulse/pkg/models"
)

func newTestRouter(t *testing.T, rules []config.RoutingRule) *router {
	t.Helper()
	eval, err := celpkg.NewEvaluator()
	require.NoError(t, err)
	r, err := newRouter(rules, eval, logger.NopLogger())
	require.NoError(t, err)
	return r
}

func TestRouterFirstMatchWins(t *testing.T) {
	r := newTestRouter(t, []config.RoutingRule{
		{Queue: "critical", Severities: []string{"critical"}},
		{Queue: "builds", Categories: []string{"build", "test"}},
		{Queue: "everything"},
	})

	tests := []struct {
		name  string
		evt   models.Event
		queue string
	}{
		{
			name: "severity rule",
			evt: models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
				WithSeverity(models.SeverityCritical).WithSource("builder").Build(),
			queue: "critical",
		},
		{
			name: "category rule after severity miss",
			evt: models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
				WithSource("builder").Build(),
			queue: "builds",
		},
		{
			name: "catch-all rule",
			evt: models.NewEventBuilder(models.TypeGitCommit, models.CategoryGit).
				WithSource("git-poller").Build(),
			queue: "everything",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.queue, r.route(context.Background(), tt.evt))
		})
	}
}

func TestRouterDefaultFallback(t *testing.T) {
	r := newTestRouter(t, []config.RoutingRule{
		{Queue: "critical", Severities: []string{"critical"}},
	})

	evt := models.NewEventBuilder(models.TypeGitCommit, models.CategoryGit).
		WithSource("git-poller").Build()
	assert.Equal(t, "default", r.route(context.Background(), evt))

	// No rules at all also falls back.
	empty := newTestRouter(t, nil)
	assert.Equal(t, "default", empty.route(context.Background(), evt))
}

func TestRouterExpressionRules(t *testing.T) {
	r := newTestRouter(t, []config.RoutingRule{
		{Queue: "ci", Expression: `source == "ci-runner" && event_type.startsWith("build:")`},
		{Queue: "noisy", Severities: []string{"debug"}, Expression: `category == "file"`},
	})

	ci := models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
		WithSource("ci-runner").Build()
	assert.Equal(t, "ci", r.route(context.Background(), ci))

	// Expression ANDs with the severity list: debug alone is not enough.
	debugGit := models.NewEventBuilder(models.TypeGitCommit, models.CategoryGit).
		WithSeverity(models.SeverityDebug).WithSource("git-poller").Build()
	assert.Equal(t, "default", r.route(context.Background(), debugGit))

	debugFile := models.NewEventBuilder(models.TypeFileChange, models.CategoryFile).
		WithSeverity(models.SeverityDebug).WithSource("watcher").Build()
	assert.Equal(t, "noisy", r.route(context.Background(), debugFile))
}

func TestRouterRejectsInvalidExpression(t *testing.T) {
	eval, err := celpkg.NewEvaluator()
	require.NoError(t, err)

	_, err = newRouter([]config.RoutingRule{
		{Queue: "bad", Expression: `severity ==`},
	}, eval, logger.NopLogger())
	assert.Error(t, err)
}
