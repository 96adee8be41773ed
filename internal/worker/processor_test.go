package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentsync/internal/config"
	"contentsync/internal/database"
	"contentsync/internal/domain"
	"contentsync/internal/events"
	"contentsync/internal/logging"
	"contentsync/internal/models"
	"contentsync/internal/repository"
)

// stubValidator rejects payloads carrying a "reject" key.
type stubValidator struct{}

func (stubValidator) Validate(contentType string, data map[string]interface{}) models.ValidationResult {
	if _, bad := data["reject"]; bad {
		return models.ValidationResult{Valid: false, Errors: []string{"rejected by rule"}}
	}
	return models.ValidationResult{Valid: true}
}

var errCacheDown = errors.New("cache unavailable")

// brokenCache fails every call, forcing retryable item errors.
type brokenCache struct{}

func (brokenCache) Upsert(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	return errCacheDown
}
func (brokenCache) Get(ctx context.Context, contentType, contentID, cacheKey string) (*models.CacheEntry, error) {
	return nil, errCacheDown
}
func (brokenCache) Invalidate(ctx context.Context, contentType, contentID string) (int, error) {
	return 0, errCacheDown
}
func (brokenCache) CleanupExpired(ctx context.Context) (int, error) { return 0, errCacheDown }
func (brokenCache) Stats(ctx context.Context) (models.CacheStats, error) {
	return models.CacheStats{}, errCacheDown
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Sync.BatchSize = 10
	cfg.Sync.MaxRetries = 3
	cfg.Sync.RetryInitialSeconds = 30
	cfg.Sync.RetryMaxSeconds = 3600
	cfg.Sync.RetryBackoffFactor = 2
	cfg.Cache.DefaultTTLHours = 24
	return cfg
}

func setupProcessor(t *testing.T, cache domain.CacheRepository) (*SyncProcessor, *database.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sync.db")
	db, err := database.NewDB(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if cache == nil {
		cache = repository.NewMemoryCacheRepository(24 * time.Hour)
	}
	p := NewSyncProcessor(db, cache, stubValidator{}, events.NewEventBus(), testConfig(), logging.Nop())
	return p, db, path
}

func enqueueUpdate(t *testing.T, db *database.DB, contentType, contentID string, data map[string]interface{}) string {
	t.Helper()
	payload, err := json.Marshal(models.SyncPayload{Data: data})
	require.NoError(t, err)
	id, err := db.Enqueue(context.Background(), contentType, contentID, models.OpUpdate, string(payload), models.DefaultPriority)
	require.NoError(t, err)
	return id
}

func TestProcessOnceAppliesUpdate(t *testing.T) {
	cache := repository.NewMemoryCacheRepository(24 * time.Hour)
	p, db, _ := setupProcessor(t, cache)
	ctx := context.Background()

	id := enqueueUpdate(t, db, "content", "about-us", map[string]interface{}{"title": "About us"})

	report, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncReport{TotalProcessed: 1, TotalSuccess: 1}, report)

	item, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, item.Status)
	require.NotNil(t, item.CompletedAt)

	live, err := db.GetContent(ctx, "content", "about-us")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Contains(t, live.Data, "About us")

	versions, err := db.ListVersions(ctx, "content", "about-us", 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, models.ChangeUpdate, versions[0].ChangeType)

	entry, err := cache.Get(ctx, "content", "about-us", "")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.ExpiresAt.After(time.Now()))

	logs, err := db.ListSyncLogs(ctx, time.Now().Add(-time.Minute), time.Now().Add(time.Minute), "")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
}

func TestProcessOnceRejectsConcurrentRun(t *testing.T) {
	p, _, _ := setupProcessor(t, nil)

	p.running.Store(true)
	_, err := p.ProcessOnce(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	p.running.Store(false)
	_, err = p.ProcessOnce(context.Background())
	assert.NoError(t, err)
}

func TestProcessOnceRespectsPause(t *testing.T) {
	p, db, _ := setupProcessor(t, nil)
	ctx := context.Background()

	require.NoError(t, db.PutSetting(ctx, database.SettingSyncPaused, "true"))
	id := enqueueUpdate(t, db, "content", "home", map[string]interface{}{"title": "Home"})

	report, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.TotalProcessed)

	item, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, item.Status)
}

func TestValidationFailureIsTerminal(t *testing.T) {
	p, db, _ := setupProcessor(t, nil)
	ctx := context.Background()

	id := enqueueUpdate(t, db, "content", "bad", map[string]interface{}{"reject": true})

	report, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFailures)

	item, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, item.Status)
	require.NotNil(t, item.ErrorMessage)
	assert.Contains(t, *item.ErrorMessage, "validation failed")

	// No content and no version must survive a rejected write
	live, err := db.GetContent(ctx, "content", "bad")
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestCacheFailureSchedulesRetry(t *testing.T) {
	p, db, _ := setupProcessor(t, brokenCache{})
	ctx := context.Background()

	id := enqueueUpdate(t, db, "content", "flaky", map[string]interface{}{"title": "Flaky"})

	report, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFailures)

	item, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRetry, item.Status)
	assert.Equal(t, 1, item.RetryCount)
	require.NotNil(t, item.ScheduledFor)
	assert.True(t, item.ScheduledFor.After(time.Now()))
}

func TestRetryCeilingFailsPermanently(t *testing.T) {
	p, db, path := setupProcessor(t, brokenCache{})
	ctx := context.Background()

	id := enqueueUpdate(t, db, "content", "doomed", map[string]interface{}{"title": "Doomed"})

	raw, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	require.NoError(t, err)
	defer raw.Close()

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := p.ProcessOnce(ctx)
		require.NoError(t, err)
		// Pull the retry back into the due window for the next pass
		_, err = raw.Exec(`UPDATE content_sync_queue SET scheduled_for = ? WHERE id = ?`, time.Now().Add(-time.Second), id)
		require.NoError(t, err)
	}

	item, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, item.Status)
	assert.Equal(t, 3, item.RetryCount)
	require.NotNil(t, item.CompletedAt)
}

func TestDeleteSnapshotsBeforeRemoval(t *testing.T) {
	cache := repository.NewMemoryCacheRepository(24 * time.Hour)
	p, db, _ := setupProcessor(t, cache)
	ctx := context.Background()

	require.NoError(t, db.UpsertContent(ctx, &models.ContentItem{
		ContentType: "page",
		ContentID:   "legacy",
		Data:        `{"title":"Legacy"}`,
	}))
	require.NoError(t, cache.Upsert(ctx, &models.CacheEntry{
		ContentType: "page",
		ContentID:   "legacy",
		CacheData:   `{"title":"Legacy"}`,
	}, time.Hour))

	_, err := db.Enqueue(ctx, "page", "legacy", models.OpDelete, "{}", models.DefaultPriority)
	require.NoError(t, err)

	report, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSuccess)

	live, err := db.GetContent(ctx, "page", "legacy")
	require.NoError(t, err)
	assert.Nil(t, live)

	versions, err := db.ListVersions(ctx, "page", "legacy", 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, models.ChangeDelete, versions[0].ChangeType)
	assert.Equal(t, `{"title":"Legacy"}`, versions[0].ContentData)

	entry, err := cache.Get(ctx, "page", "legacy", "")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRefreshCacheSkipsVersioning(t *testing.T) {
	cache := repository.NewMemoryCacheRepository(24 * time.Hour)
	p, db, _ := setupProcessor(t, cache)
	ctx := context.Background()

	require.NoError(t, db.UpsertContent(ctx, &models.ContentItem{
		ContentType: "event",
		ContentID:   "gala",
		Data:        `{"title":"Gala"}`,
	}))

	payload, err := json.Marshal(models.SyncPayload{RefreshCache: true, CacheKey: "list"})
	require.NoError(t, err)
	_, err = db.Enqueue(ctx, "event", "gala", models.OpUpdate, string(payload), models.HighPriority)
	require.NoError(t, err)

	report, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSuccess)

	entry, err := cache.Get(ctx, "event", "gala", "list")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, `{"title":"Gala"}`, entry.CacheData)

	versions, err := db.ListVersions(ctx, "event", "gala", 0)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestMalformedPayloadFailsWithoutRetry(t *testing.T) {
	p, db, _ := setupProcessor(t, nil)
	ctx := context.Background()

	id, err := db.Enqueue(ctx, "content", "garbled", models.OpUpdate, "{not json", models.DefaultPriority)
	require.NoError(t, err)

	_, err = p.ProcessOnce(ctx)
	require.NoError(t, err)

	item, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, item.Status)
}
