package database

import (
	"context"
	"testing"
	"time"

	"contentsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncLogAppendAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	errMsg := "validation failed: title is required"
	entries := []*models.SyncLogEntry{
		{QueueItemID: "q-1", ContentType: "content", ContentID: "a", Operation: models.OpUpdate, Success: true, DurationMs: 12},
		{QueueItemID: "q-2", ContentType: "page", ContentID: "b", Operation: models.OpCreate, Success: false, ErrorMessage: &errMsg, DurationMs: 4},
	}
	for _, e := range entries {
		require.NoError(t, db.AppendSyncLog(ctx, e))
		assert.NotZero(t, e.ID)
	}

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	all, err := db.ListSyncLogs(ctx, start, end, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pages, err := db.ListSyncLogs(ctx, start, end, "page")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.False(t, pages[0].Success)
	require.NotNil(t, pages[0].ErrorMessage)
	assert.Equal(t, errMsg, *pages[0].ErrorMessage)

	none, err := db.ListSyncLogs(ctx, start.Add(-2*time.Hour), start.Add(-time.Hour), "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPerformanceMetrics(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.AppendSyncLog(ctx, &models.SyncLogEntry{
			QueueItemID: "q", ContentType: "content", ContentID: "a",
			Operation: models.OpUpdate, Success: true, DurationMs: 10,
		}))
	}
	require.NoError(t, db.AppendSyncLog(ctx, &models.SyncLogEntry{
		QueueItemID: "q", ContentType: "content", ContentID: "a",
		Operation: models.OpUpdate, Success: false, DurationMs: 30,
	}))

	metrics, err := db.PerformanceMetrics(ctx, 7)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.Equal(t, "content", m.ContentType)
	assert.Equal(t, 4, m.Attempts)
	assert.Equal(t, 3, m.Successes)
	assert.InDelta(t, 0.75, m.SuccessRate, 0.001)
	assert.InDelta(t, 15.0, m.AvgDurationMs, 0.001)
}

func TestQueueStatusBreakdown(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, err := db.Enqueue(ctx, "content", "a", models.OpUpdate, "{}", 5)
	require.NoError(t, err)
	_, err = db.Enqueue(ctx, "content", "b", models.OpUpdate, "{}", 5)
	require.NoError(t, err)
	pageID, err := db.Enqueue(ctx, "page", "p", models.OpCreate, "{}", 5)
	require.NoError(t, err)
	require.NoError(t, db.MarkCompleted(ctx, pageID))

	rows, err := db.QueueStatus(ctx)
	require.NoError(t, err)

	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.ContentType+"/"+r.Status] = r.ItemCount
	}
	assert.Equal(t, 2, counts["content/pending"])
	assert.Equal(t, 1, counts["page/completed"])
}

func TestRecentActivity(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	id, err := db.Enqueue(ctx, "content", "a", models.OpUpdate, "{}", 5)
	require.NoError(t, err)
	require.NoError(t, db.MarkCompleted(ctx, id))
	require.NoError(t, db.AppendSyncLog(ctx, &models.SyncLogEntry{
		QueueItemID: id, ContentType: "content", ContentID: "a",
		Operation: models.OpUpdate, Success: true, DurationMs: 8,
	}))

	// A log entry whose queue row is gone reports status "purged"
	require.NoError(t, db.AppendSyncLog(ctx, &models.SyncLogEntry{
		QueueItemID: "gone", ContentType: "page", ContentID: "p",
		Operation: models.OpDelete, Success: true, DurationMs: 2,
	}))

	activity, err := db.RecentActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activity, 2)

	byID := make(map[string]models.ActivityEntry)
	for _, a := range activity {
		byID[a.QueueItemID] = a
	}
	assert.Equal(t, models.StatusCompleted, byID[id].Status)
	assert.Equal(t, "purged", byID["gone"].Status)
}

func TestCheckSyncHealth(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	db.SetHealthThresholds(2, 1)

	checks, err := db.CheckSyncHealth(ctx)
	require.NoError(t, err)
	require.Len(t, checks, 3)
	for _, c := range checks {
		assert.True(t, c.Healthy, "empty queue should be healthy: %s", c.Check)
	}

	// Breach the pending threshold
	for i := 0; i < 3; i++ {
		_, err := db.Enqueue(ctx, "content", string(rune('a'+i)), models.OpUpdate, "{}", 5)
		require.NoError(t, err)
	}
	// And create one terminal failure
	id, err := db.Enqueue(ctx, "content", "z", models.OpUpdate, "{}", 5)
	require.NoError(t, err)
	require.NoError(t, db.MarkFailed(ctx, id, "boom", nil))

	checks, err = db.CheckSyncHealth(ctx)
	require.NoError(t, err)

	byCheck := make(map[string]models.HealthRow)
	for _, c := range checks {
		byCheck[c.Check] = c
	}
	assert.False(t, byCheck["pending_backlog"].Healthy)
	assert.Equal(t, "warn", byCheck["pending_backlog"].Status)
	assert.False(t, byCheck["failed_items"].Healthy)
	assert.Equal(t, "critical", byCheck["failed_items"].Status)
	assert.True(t, byCheck["stale_processing"].Healthy)
}
