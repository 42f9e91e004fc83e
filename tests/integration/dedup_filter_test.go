package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devpulse/internal/dedup"
	"devpulse/pkg/models"
)

func TestDedupRepository_SetNX(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	key := "test:dedup:key1"
	value := time.Now().Unix()
	ttl := 5 * time.Second

	unique, err := repo.SetNX(ctx, key, value, ttl)
	require.NoError(t, err)
	assert.True(t, unique)

	unique, err = repo.SetNX(ctx, key, value+1, ttl)
	require.NoError(t, err)
	assert.False(t, unique)
}

func TestDedupRepository_SetNX_TTL(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	key := "test:dedup:key2"
	ttl := 1 * time.Second

	unique, err := repo.SetNX(ctx, key, time.Now().Unix(), ttl)
	require.NoError(t, err)
	assert.True(t, unique)

	// Wait for TTL to expire
	time.Sleep(2 * time.Second)

	unique, err = repo.SetNX(ctx, key, time.Now().Unix(), ttl)
	require.NoError(t, err)
	assert.True(t, unique)
}

func TestDedupFilter_SuppressesRepublishedEvent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)

	ctx := context.Background()
	filter := dedup.NewFilter(dedup.NewRepository(infra.RedisClient), createTestDedupConfig(), createTestLogger())

	evt := createTestEvent(models.TypeGitCommit, models.CategoryGit)

	assert.True(t, filter.Allow(ctx, evt))
	assert.False(t, filter.Allow(ctx, evt))

	// A different event ID is a different occurrence.
	other := createTestEvent(models.TypeGitCommit, models.CategoryGit)
	assert.True(t, filter.Allow(ctx, other))
}
