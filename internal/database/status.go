package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"contentsync/internal/models"
)

// QueueStatus returns item counts grouped by content type and status.
func (db *DB) QueueStatus(ctx context.Context) ([]models.QueueStatusRow, error) {
	query := `SELECT content_type, status, COUNT(*)
              FROM content_sync_queue
              GROUP BY content_type, status
              ORDER BY content_type, status`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue status: %w", err)
	}
	defer rows.Close()

	var result []models.QueueStatusRow
	for rows.Next() {
		var r models.QueueStatusRow
		if err := rows.Scan(&r.ContentType, &r.Status, &r.ItemCount); err != nil {
			return nil, fmt.Errorf("failed to scan queue status: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// RecentActivity joins the sync log to queue items, newest first. Queue rows
// may already be purged, so the status falls back to "purged".
func (db *DB) RecentActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 {
		limit = models.DefaultRecentActivityLimit
	}
	query := `SELECT l.queue_item_id, l.content_type, l.content_id, l.operation,
                     q.status, l.success, l.error_message, l.created_at
              FROM content_sync_logs l
              LEFT JOIN content_sync_queue q ON q.id = l.queue_item_id
              ORDER BY l.created_at DESC
              LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		var status sql.NullString
		err := rows.Scan(&e.QueueItemID, &e.ContentType, &e.ContentID, &e.Operation,
			&status, &e.Success, &e.ErrorMessage, &e.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if status.Valid {
			e.Status = status.String
		} else {
			e.Status = "purged"
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CheckSyncHealth evaluates the queue backlog, terminal failures and stuck
// processing items against configured thresholds.
func (db *DB) CheckSyncHealth(ctx context.Context) ([]models.HealthRow, error) {
	var pending, failed, stale int

	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_sync_queue WHERE status IN ('pending', 'retry')`).Scan(&pending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending items: %w", err)
	}

	err = db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_sync_queue WHERE status = 'failed'`).Scan(&failed)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed items: %w", err)
	}

	staleCutoff := time.Now().Add(-time.Duration(models.DefaultStaleProcessingMinutes) * time.Minute)
	err = db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_sync_queue WHERE status = 'processing' AND processed_at < ?`,
		staleCutoff).Scan(&stale)
	if err != nil {
		return nil, fmt.Errorf("failed to count stale items: %w", err)
	}

	rows := []models.HealthRow{
		healthRow("pending_backlog", pending, pending <= db.pendingWarnThreshold, "warn",
			fmt.Sprintf("%d items awaiting processing", pending)),
		healthRow("failed_items", failed, failed < db.failedCritThreshold, "critical",
			fmt.Sprintf("%d items require manual requeue", failed)),
		healthRow("stale_processing", stale, stale == 0, "warn",
			fmt.Sprintf("%d items stuck in processing", stale)),
	}
	return rows, nil
}

func healthRow(check string, metric int, healthy bool, badStatus, detail string) models.HealthRow {
	status := "ok"
	if !healthy {
		status = badStatus
	}
	return models.HealthRow{
		Check:   check,
		Status:  status,
		Detail:  detail,
		Metric:  metric,
		Healthy: healthy,
	}
}
