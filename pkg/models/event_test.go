package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBuilder(t *testing.T) {
	ts := time.Now()
	evt := NewEventBuilder(TypeGitCommit, CategoryGit).
		WithSeverity(SeverityInfo).
		WithSource("git-poller").
		WithTimestamp(ts).
		WithField("hash", "abc123").
		WithMetadata(Metadata{Project: "devpulse"}).
		WithCorrelationID("corr-1").
		Build()

	require.NoError(t, evt.Validate())
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, TypeGitCommit, evt.Type)
	assert.Equal(t, ts.UnixMilli(), evt.Timestamp)
	assert.Equal(t, "abc123", evt.Data["hash"])
	assert.Equal(t, "devpulse", evt.Metadata.Project)
	assert.Equal(t, "corr-1", evt.CorrelationID)
}

func TestEventBuilderDefaultsTimestamp(t *testing.T) {
	evt := NewEventBuilder("custom:thing", CategoryActivity).
		WithSource("test").
		Build()
	assert.Greater(t, evt.Timestamp, int64(0))
	assert.Equal(t, SeverityInfo, evt.Severity)
}

func TestEventValidate(t *testing.T) {
	valid := NewEventBuilder(TypeFileChange, CategoryFile).
		WithSource("watcher").
		WithField("path", "/tmp/a.go").
		Build()

	tests := []struct {
		name      string
		mutate    func(e *Event)
		wantError bool
	}{
		{
			name:      "valid event",
			mutate:    func(e *Event) {},
			wantError: false,
		},
		{
			name:      "missing id",
			mutate:    func(e *Event) { e.ID = "" },
			wantError: true,
		},
		{
			name:      "missing type",
			mutate:    func(e *Event) { e.Type = "" },
			wantError: true,
		},
		{
			name:      "missing source",
			mutate:    func(e *Event) { e.Source = "" },
			wantError: true,
		},
		{
			name:      "unknown category",
			mutate:    func(e *Event) { e.Category = "bogus" },
			wantError: true,
		},
		{
			name:      "unknown severity",
			mutate:    func(e *Event) { e.Severity = "shouting" },
			wantError: true,
		},
		{
			name:      "zero timestamp",
			mutate:    func(e *Event) { e.Timestamp = 0 },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := valid.Clone()
			tt.mutate(&evt)
			err := evt.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityDebug.Rank(), SeverityInfo.Rank())
	assert.Less(t, SeverityInfo.Rank(), SeverityWarn.Rank())
	assert.Less(t, SeverityWarn.Rank(), SeverityError.Rank())
	assert.Less(t, SeverityError.Rank(), SeverityCritical.Rank())
}

func TestCloneIsDeep(t *testing.T) {
	evt := NewEventBuilder(TypeGitCommit, CategoryGit).
		WithSource("git-poller").
		WithField("hash", "abc").
		WithMetadata(Metadata{User: "dev"}).
		Build()

	clone := evt.Clone()
	clone.Data["hash"] = "changed"
	clone.Metadata.User = "other"

	assert.Equal(t, "abc", evt.Data["hash"])
	assert.Equal(t, "dev", evt.Metadata.User)
}

func TestDecodePayloadKnownTypes(t *testing.T) {
	commit := NewEventBuilder(TypeGitCommit, CategoryGit).
		WithSource("git-poller").
		WithField("hash", "abc123").
		WithField("author", "dev").
		WithField("files_changed", []interface{}{"main.go", "go.mod"}).
		Build()

	decoded, err := DecodePayload(commit)
	require.NoError(t, err)
	p, ok := decoded.(GitCommitPayload)
	require.True(t, ok)
	assert.Equal(t, "abc123", p.Hash)
	assert.Equal(t, []string{"main.go", "go.mod"}, p.FilesChanged)
}

func TestDecodePayloadMissingRequiredField(t *testing.T) {
	evt := NewEventBuilder(TypeGitCommit, CategoryGit).
		WithSource("git-poller").
		Build()

	_, err := DecodePayload(evt)
	assert.Error(t, err)
}

func TestDecodePayloadUnknownTypeFallsBack(t *testing.T) {
	evt := NewEventBuilder("custom:signal", CategoryUser).
		WithSource("plugin").
		WithField("k", "v").
		Build()

	decoded, err := DecodePayload(evt)
	require.NoError(t, err)
	p, ok := decoded.(GenericPayload)
	require.True(t, ok)
	assert.Equal(t, "v", p["k"])
}

func TestEventSizePositive(t *testing.T) {
	evt := NewEventBuilder(TypeFileChange, CategoryFile).
		WithSource("watcher").
		WithField("path", "/src/main.go").
		Build()
	assert.Greater(t, evt.Size(), 0)
}
