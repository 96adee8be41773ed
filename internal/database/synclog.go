package database

import (
	"context"
	"fmt"
	"time"

	"contentsync/internal/models"
)

// AppendSyncLog records the outcome of one processed queue item.
func (db *DB) AppendSyncLog(ctx context.Context, entry *models.SyncLogEntry) error {
	now := time.Now()
	query := `INSERT INTO content_sync_logs (queue_item_id, content_type, content_id, operation, success, error_message, duration_ms, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.db.ExecContext(ctx, query,
		entry.QueueItemID, entry.ContentType, entry.ContentID, entry.Operation,
		entry.Success, entry.ErrorMessage, entry.DurationMs, now)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = now
	return nil
}

// ListSyncLogs returns log entries in [start, end], newest first, optionally
// filtered by content type.
func (db *DB) ListSyncLogs(ctx context.Context, start, end time.Time, contentType string) ([]models.SyncLogEntry, error) {
	query := `SELECT id, queue_item_id, content_type, content_id, operation, success, error_message, duration_ms, created_at
              FROM content_sync_logs
              WHERE created_at >= ? AND created_at <= ?`
	args := []interface{}{start, end}
	if contentType != "" {
		query += " AND content_type = ?"
		args = append(args, contentType)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var entries []models.SyncLogEntry
	for rows.Next() {
		var e models.SyncLogEntry
		err := rows.Scan(&e.ID, &e.QueueItemID, &e.ContentType, &e.ContentID, &e.Operation,
			&e.Success, &e.ErrorMessage, &e.DurationMs, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PerformanceMetrics aggregates success rate and latency per content type per
// day over the trailing window.
func (db *DB) PerformanceMetrics(ctx context.Context, days int) ([]models.PerformanceMetric, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	query := `SELECT strftime('%Y-%m-%d', created_at) AS day,
                     content_type,
                     COUNT(*) AS attempts,
                     SUM(CASE WHEN success THEN 1 ELSE 0 END) AS successes,
                     COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
              FROM content_sync_logs
              WHERE created_at >= ?
              GROUP BY day, content_type
              ORDER BY day DESC, content_type ASC`

	rows, err := db.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate performance metrics: %w", err)
	}
	defer rows.Close()

	var metrics []models.PerformanceMetric
	for rows.Next() {
		var m models.PerformanceMetric
		if err := rows.Scan(&m.Day, &m.ContentType, &m.Attempts, &m.Successes, &m.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan performance metric: %w", err)
		}
		if m.Attempts > 0 {
			m.SuccessRate = float64(m.Successes) / float64(m.Attempts)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
