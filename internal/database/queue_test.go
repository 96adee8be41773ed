package database

import (
	"context"
	"testing"
	"time"

	"contentsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, err := db.Enqueue(ctx, "", "abc", models.OpUpdate, "{}", 5)
	assert.Error(t, err)

	_, err = db.Enqueue(ctx, "content", "abc", "rename", "{}", 5)
	assert.Error(t, err)

	id, err := db.Enqueue(ctx, "content", "abc", models.OpUpdate, "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	item, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Equal(t, models.DefaultPriority, item.Priority)
	assert.Equal(t, "{}", item.Payload)
}

func TestDequeuePriorityOrdering(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	lowID, err := db.Enqueue(ctx, "content", "low", models.OpUpdate, "{}", 2)
	require.NoError(t, err)
	highID, err := db.Enqueue(ctx, "content", "high", models.OpUpdate, "{}", 8)
	require.NoError(t, err)
	midID, err := db.Enqueue(ctx, "content", "mid", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	var order []string
	for {
		item, err := db.DequeueNext(ctx)
		require.NoError(t, err)
		if item == nil {
			break
		}
		order = append(order, item.ID)
		require.NoError(t, db.MarkCompleted(ctx, item.ID))
	}

	require.Equal(t, []string{highID, midID, lowID}, order)
}

func TestDequeueFIFOWithinPriority(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	var want []string
	for i := 0; i < 5; i++ {
		id, err := db.Enqueue(ctx, "content", string(rune('a'+i)), models.OpUpdate, "{}", 5)
		require.NoError(t, err)
		want = append(want, id)
		time.Sleep(2 * time.Millisecond)
	}

	var got []string
	for {
		item, err := db.DequeueNext(ctx)
		require.NoError(t, err)
		if item == nil {
			break
		}
		got = append(got, item.ID)
		require.NoError(t, db.MarkCompleted(ctx, item.ID))
	}

	assert.Equal(t, want, got)
}

func TestDequeueNoDoubleDispatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, err := db.Enqueue(ctx, "content", "solo", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	first, err := db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, models.StatusProcessing, first.Status)

	// The claimed item must not be handed out again.
	second, err := db.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestDequeueSkipsEntityAlreadyProcessing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, err := db.Enqueue(ctx, "content", "same", models.OpUpdate, "{}", 5)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = db.Enqueue(ctx, "content", "same", models.OpUpdate, "{}", 5)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	otherID, err := db.Enqueue(ctx, "content", "other", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	first, err := db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "same", first.ContentID)

	// Second item for the same entity is held back while the first is in flight.
	next, err := db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, otherID, next.ID)

	require.NoError(t, db.MarkCompleted(ctx, first.ID))
	afterwards, err := db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, afterwards)
	assert.Equal(t, "same", afterwards.ContentID)
}

func TestMarkFailedRetryScheduling(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	id, err := db.Enqueue(ctx, "content", "flaky", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	item, err := db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	// Future retry keeps the item out of the dequeue window
	future := time.Now().Add(time.Hour)
	require.NoError(t, db.MarkFailed(ctx, id, "temporary error", &future))

	got, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "temporary error", *got.ErrorMessage)

	item, err = db.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, item)

	// Past retry makes it due again
	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.MarkFailed(ctx, id, "temporary error", &past))

	item, err = db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, 2, item.RetryCount)
}

func TestRetryCeilingAndBulkRequeue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	id, err := db.Enqueue(ctx, "content", "doomed", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	item, err := db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	// Terminal failure: no retry time
	require.NoError(t, db.MarkFailed(ctx, id, "gave up", nil))

	got, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)

	item, err = db.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, item)

	count, err := db.BulkRequeueFailed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err = db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Nil(t, got.ErrorMessage)

	item, err = db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id, item.ID)
}

func TestBulkRequeueFailedScopedByType(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	pageID, err := db.Enqueue(ctx, "page", "p1", models.OpUpdate, "{}", 5)
	require.NoError(t, err)
	eventID, err := db.Enqueue(ctx, "event", "e1", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		item, err := db.DequeueNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		require.NoError(t, db.MarkFailed(ctx, item.ID, "boom", nil))
	}

	count, err := db.BulkRequeueFailed(ctx, "page")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	page, err := db.GetQueueItem(ctx, pageID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, page.Status)

	event, err := db.GetQueueItem(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, event.Status)
}

func TestListQueueItemsFilter(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, err := db.Enqueue(ctx, "page", "p1", models.OpCreate, "{}", 5)
	require.NoError(t, err)
	_, err = db.Enqueue(ctx, "event", "e1", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	all, err := db.ListQueueItems(ctx, models.QueueFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pages, err := db.ListQueueItems(ctx, models.QueueFilter{ContentType: "page"})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "p1", pages[0].ContentID)

	pending, err := db.ListQueueItems(ctx, models.QueueFilter{Status: models.StatusPending, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = db.ListQueueItems(ctx, models.QueueFilter{Status: "bogus"})
	assert.Error(t, err)
}

func TestPurgeQueue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	oldID, err := db.Enqueue(ctx, "content", "old", models.OpUpdate, "{}", 5)
	require.NoError(t, err)
	freshID, err := db.Enqueue(ctx, "content", "fresh", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	require.NoError(t, db.MarkCompleted(ctx, oldID))
	require.NoError(t, db.MarkCompleted(ctx, freshID))

	// Backdate one completion past the retention window
	past := time.Now().Add(-48 * time.Hour)
	_, err = db.db.ExecContext(ctx, `UPDATE content_sync_queue SET completed_at = ? WHERE id = ?`, past, oldID)
	require.NoError(t, err)

	count, err := db.PurgeQueue(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	gone, err := db.GetQueueItem(ctx, oldID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := db.GetQueueItem(ctx, freshID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestReclaimStale(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	id, err := db.Enqueue(ctx, "content", "stuck", models.OpUpdate, "{}", 5)
	require.NoError(t, err)

	item, err := db.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	// Nothing is stale yet
	count, err := db.ReclaimStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Backdate the claim so the sweep picks it up
	past := time.Now().Add(-time.Hour)
	_, err = db.db.ExecContext(ctx, `UPDATE content_sync_queue SET processed_at = ? WHERE id = ?`, past, id)
	require.NoError(t, err)

	count, err = db.ReclaimStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := db.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}
