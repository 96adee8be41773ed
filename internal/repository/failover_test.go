package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"contentsync/internal/logging"
	"contentsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenCache fails every call, standing in for an unreachable redis.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Upsert(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	return errCacheDown
}

func (brokenCache) Get(ctx context.Context, contentType, contentID, cacheKey string) (*models.CacheEntry, error) {
	return nil, errCacheDown
}

func (brokenCache) Invalidate(ctx context.Context, contentType, contentID string) (int, error) {
	return 0, errCacheDown
}

func (brokenCache) CleanupExpired(ctx context.Context) (int, error) {
	return 0, errCacheDown
}

func (brokenCache) Stats(ctx context.Context) (models.CacheStats, error) {
	return models.CacheStats{}, errCacheDown
}

func TestFailoverFallsBackToMemory(t *testing.T) {
	fallback := NewMemoryCacheRepository(time.Hour)
	repo := NewFailoverCacheRepository(brokenCache{}, fallback, logging.Nop())

	ctx := context.Background()

	entry := &models.CacheEntry{ContentType: "content", ContentID: "abc", CacheData: `{"x":1}`}
	require.NoError(t, repo.Upsert(ctx, entry, time.Hour))

	// Primary is now marked down; reads are served from the fallback
	got, err := repo.Get(ctx, "content", "abc", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"x":1}`, got.CacheData)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
}

func TestFailoverPrefersHealthyPrimary(t *testing.T) {
	primary := NewMemoryCacheRepository(time.Hour)
	fallback := NewMemoryCacheRepository(time.Hour)
	repo := NewFailoverCacheRepository(primary, fallback, logging.Nop())

	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.CacheEntry{ContentType: "page", ContentID: "p1", CacheData: `{}`}, time.Hour))

	primaryStats, err := primary.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, primaryStats.TotalEntries)

	fallbackStats, err := fallback.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fallbackStats.TotalEntries)
}
