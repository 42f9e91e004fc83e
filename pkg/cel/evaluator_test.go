package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devpulse/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid severity check",
			expr:      `severity == "critical"`,
			wantError: false,
		},
		{
			name:      "valid category membership",
			expr:      `category in ["git", "build"]`,
			wantError: false,
		},
		{
			name:      "valid data access",
			expr:      `event_type == "git:commit" && data.branch == "main"`,
			wantError: false,
		},
		{
			name:      "non-bool expression",
			expr:      `source`,
			wantError: true,
		},
		{
			name:      "invalid syntax",
			expr:      `severity === !!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `priority > 3`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluateFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	evt := models.NewEventBuilder(models.TypeGitCommit, models.CategoryGit).
		WithSeverity(models.SeverityWarn).
		WithSource("git-poller").
		WithField("branch", "main").
		WithMetadata(models.Metadata{Project: "devpulse"}).
		Build()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{
			name: "severity match",
			expr: `severity == "warn"`,
			want: true,
		},
		{
			name: "severity mismatch",
			expr: `severity == "critical"`,
			want: false,
		},
		{
			name: "category and data",
			expr: `category == "git" && data.branch == "main"`,
			want: true,
		},
		{
			name: "metadata access",
			expr: `metadata.project == "devpulse"`,
			want: true,
		},
		{
			name: "type prefix",
			expr: `event_type.startsWith("git:")`,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvaluateFilter(context.Background(), tt.expr, evt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompiledProgramReuse(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	program, err := eval.CompileFilter(`severity == "error" || severity == "critical"`)
	require.NoError(t, err)

	errEvt := models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
		WithSeverity(models.SeverityError).
		WithSource("builder").
		Build()
	infoEvt := models.NewEventBuilder(models.TypeBuildResult, models.CategoryBuild).
		WithSource("builder").
		Build()

	got, err := eval.EvaluateProgram(context.Background(), program, errEvt)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = eval.EvaluateProgram(context.Background(), program, infoEvt)
	require.NoError(t, err)
	assert.False(t, got)
}
