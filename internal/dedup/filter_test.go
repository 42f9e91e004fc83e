package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"devpulse/internal/config"
	"devpulse/internal/constants"
	"devpulse/internal/logger"
	"devpulse/pkg/models"
)

type fakeRepository struct {
	seen map[string]bool
	err  error
	keys []string
}

func (f *fakeRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.keys = append(f.keys, key)
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func testEvent() models.Event {
	return models.NewEventBuilder(models.TypeGitCommit, models.CategoryGit).
		WithSource("git-poller").
		Build()
}

func TestFilterSuppressesRepeats(t *testing.T) {
	repo := &fakeRepository{}
	f := NewFilter(repo, config.DedupConfig{TTLSeconds: 60}, logger.NopLogger())

	evt := testEvent()
	ctx := context.Background()

	assert.True(t, f.Allow(ctx, evt))
	assert.False(t, f.Allow(ctx, evt))

	other := testEvent()
	assert.True(t, f.Allow(ctx, other))

	assert.Equal(t, constants.DedupKeyPrefix+evt.ID, repo.keys[0])
}

func TestFilterFallbackOnCacheError(t *testing.T) {
	repo := &fakeRepository{err: fmt.Errorf("connection refused")}
	evt := testEvent()
	ctx := context.Background()

	allow := NewFilter(repo, config.DedupConfig{OnError: constants.FallbackAllow}, logger.NopLogger())
	assert.True(t, allow.Allow(ctx, evt))

	deny := NewFilter(repo, config.DedupConfig{OnError: constants.FallbackDeny}, logger.NopLogger())
	assert.False(t, deny.Allow(ctx, evt))
}
