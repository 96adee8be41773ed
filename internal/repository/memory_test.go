package repository

import (
	"context"
	"testing"
	"time"

	"contentsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRepository(t *testing.T) {
	repo := NewMemoryCacheRepository(time.Hour)
	ctx := context.Background()

	entry := &models.CacheEntry{ContentType: "content", ContentID: "abc", CacheData: `{"a":1}`}
	require.NoError(t, repo.Upsert(ctx, entry, time.Hour))

	got, err := repo.Get(ctx, "content", "abc", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"a":1}`, got.CacheData)

	// Expired entries are not served but remain counted until cleanup
	require.NoError(t, repo.Upsert(ctx, &models.CacheEntry{ContentType: "content", ContentID: "old", CacheData: `{}`}, -time.Minute))

	got, err = repo.Get(ctx, "content", "old", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.ActiveEntries)
	assert.Equal(t, 1, stats.ExpiredEntries)

	removed, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = repo.Invalidate(ctx, "content", "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntries)
}
