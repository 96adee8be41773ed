package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"contentsync/internal/models"

	"github.com/google/uuid"
)

const queueColumns = `id, content_type, content_id, operation, status, priority, payload,
              retry_count, error_message, scheduled_for, created_at, processed_at, completed_at`

// Enqueue inserts a pending queue item and returns its generated id.
func (db *DB) Enqueue(ctx context.Context, contentType, contentID, operation, payload string, priority int) (string, error) {
	if contentType == "" || contentID == "" {
		return "", fmt.Errorf("content_type and content_id are required")
	}
	if !models.ValidOperation(operation) {
		return "", fmt.Errorf("invalid operation: %s", operation)
	}
	if priority <= 0 {
		priority = models.DefaultPriority
	}
	if payload == "" {
		payload = "{}"
	}

	id := uuid.NewString()
	query := `INSERT INTO content_sync_queue (id, content_type, content_id, operation, status, priority, payload, retry_count, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`
	_, err := db.db.ExecContext(ctx, query,
		id, contentType, contentID, operation, models.StatusPending, priority, payload, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue sync item: %w", err)
	}
	return id, nil
}

// DequeueNext atomically claims the next due item: highest priority first,
// oldest created within a priority, skipping entities that already have an
// item being processed. Returns nil when nothing is due.
func (db *DB) DequeueNext(ctx context.Context) (*models.SyncQueueItem, error) {
	now := time.Now()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dequeue tx: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + queueColumns + `
              FROM content_sync_queue q
              WHERE q.status IN ('pending', 'retry')
                AND (q.scheduled_for IS NULL OR q.scheduled_for <= ?)
                AND NOT EXISTS (
                    SELECT 1 FROM content_sync_queue p
                    WHERE p.content_type = q.content_type
                      AND p.content_id = q.content_id
                      AND p.status = 'processing'
                )
              ORDER BY q.priority DESC, q.created_at ASC
              LIMIT 1`

	item, err := scanQueueItem(tx.QueryRowContext(ctx, query, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next sync item: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE content_sync_queue SET status = ?, processed_at = ? WHERE id = ? AND status IN ('pending', 'retry')`,
		models.StatusProcessing, now, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim sync item %s: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected == 0 {
		// Claimed by a concurrent worker between select and update.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dequeue: %w", err)
	}

	item.Status = models.StatusProcessing
	item.ProcessedAt = &now
	return item, nil
}

// MarkCompleted finishes a queue item successfully.
func (db *DB) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now()
	_, err := db.db.ExecContext(ctx,
		`UPDATE content_sync_queue SET status = ?, error_message = NULL, scheduled_for = NULL, completed_at = ? WHERE id = ?`,
		models.StatusCompleted, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark sync item %s completed: %w", id, err)
	}
	return nil
}

// MarkFailed records a failure. A non-nil retryAt reschedules the item for
// another attempt; nil makes the failure terminal.
func (db *DB) MarkFailed(ctx context.Context, id, errMsg string, retryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	if retryAt != nil {
		query = `UPDATE content_sync_queue SET status = ?, error_message = ?, scheduled_for = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{models.StatusRetry, errMsg, retryAt, id}
	} else {
		query = `UPDATE content_sync_queue SET status = ?, error_message = ?, scheduled_for = NULL, retry_count = retry_count + 1, completed_at = ? WHERE id = ?`
		args = []interface{}{models.StatusFailed, errMsg, now, id}
	}

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark sync item %s failed: %w", id, err)
	}
	return nil
}

// ListQueueItems returns a paginated slice, newest first.
func (db *DB) ListQueueItems(ctx context.Context, filter models.QueueFilter) ([]models.SyncQueueItem, error) {
	var conds []string
	var args []interface{}

	if filter.Status != "" {
		if !models.ValidStatus(filter.Status) {
			return nil, fmt.Errorf("invalid status filter: %s", filter.Status)
		}
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ContentType != "" {
		conds = append(conds, "content_type = ?")
		args = append(args, filter.ContentType)
	}

	query := `SELECT ` + queueColumns + ` FROM content_sync_queue`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync items: %w", err)
	}
	defer rows.Close()

	var items []models.SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetQueueItem returns a single item by id, nil when absent.
func (db *DB) GetQueueItem(ctx context.Context, id string) (*models.SyncQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM content_sync_queue WHERE id = ?`
	item, err := scanQueueItem(db.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync item %s: %w", id, err)
	}
	return item, nil
}

// BulkRequeueFailed resets failed items back to pending for manual recovery.
func (db *DB) BulkRequeueFailed(ctx context.Context, contentType string) (int, error) {
	query := `UPDATE content_sync_queue
              SET status = ?, retry_count = 0, error_message = NULL, scheduled_for = NULL, processed_at = NULL, completed_at = NULL
              WHERE status = ?`
	args := []interface{}{models.StatusPending, models.StatusFailed}
	if contentType != "" {
		query += " AND content_type = ?"
		args = append(args, contentType)
	}

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read requeue result: %w", err)
	}
	return int(affected), nil
}

// PurgeQueue deletes finished rows older than the cutoff. Without an explicit
// status list it targets completed and failed rows.
func (db *DB) PurgeQueue(ctx context.Context, olderThanHours int, statuses ...string) (int, error) {
	if olderThanHours <= 0 {
		olderThanHours = models.DefaultPurgeRetentionHours
	}
	if len(statuses) == 0 {
		statuses = []string{models.StatusCompleted, models.StatusFailed}
	}
	for _, s := range statuses {
		if !models.ValidStatus(s) {
			return 0, fmt.Errorf("invalid purge status: %s", s)
		}
	}

	cutoff := time.Now().Add(-time.Duration(olderThanHours) * time.Hour)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]interface{}, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, s)
	}
	args = append(args, cutoff)

	query := `DELETE FROM content_sync_queue
              WHERE status IN (` + placeholders + `) AND COALESCE(completed_at, created_at) < ?`
	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sync queue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}
	return int(affected), nil
}

// ReclaimStale returns processing items older than the cutoff to pending.
// There is no worker lease mechanism, so a crashed worker leaves its claimed
// item in processing until this sweep picks it up.
func (db *DB) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := db.db.ExecContext(ctx,
		`UPDATE content_sync_queue SET status = ?, processed_at = NULL WHERE status = ? AND processed_at < ?`,
		models.StatusPending, models.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reclaim result: %w", err)
	}
	if affected > 0 {
		db.logger.Warn().Int64("count", affected).Msg("reclaimed stale processing items")
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*models.SyncQueueItem, error) {
	var item models.SyncQueueItem
	err := row.Scan(
		&item.ID, &item.ContentType, &item.ContentID, &item.Operation, &item.Status,
		&item.Priority, &item.Payload, &item.RetryCount, &item.ErrorMessage,
		&item.ScheduledFor, &item.CreatedAt, &item.ProcessedAt, &item.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
