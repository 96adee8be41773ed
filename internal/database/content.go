package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"contentsync/internal/models"
)

// GetContent returns the live state of a content instance, nil when absent.
func (db *DB) GetContent(ctx context.Context, contentType, contentID string) (*models.ContentItem, error) {
	query := `SELECT content_type, content_id, data, created_at, updated_at
              FROM content_items WHERE content_type = ? AND content_id = ?`

	var item models.ContentItem
	err := db.db.QueryRowContext(ctx, query, contentType, contentID).Scan(
		&item.ContentType, &item.ContentID, &item.Data, &item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content %s/%s: %w", contentType, contentID, err)
	}
	return &item, nil
}

// UpsertContent writes the live state, creating the row if needed.
func (db *DB) UpsertContent(ctx context.Context, item *models.ContentItem) error {
	now := time.Now()
	query := `INSERT INTO content_items (content_type, content_id, data, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(content_type, content_id) DO UPDATE SET
                  data = excluded.data,
                  updated_at = excluded.updated_at`

	_, err := db.db.ExecContext(ctx, query, item.ContentType, item.ContentID, item.Data, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert content %s/%s: %w", item.ContentType, item.ContentID, err)
	}
	item.UpdatedAt = now
	return nil
}

// DeleteContent removes the live state of a content instance.
func (db *DB) DeleteContent(ctx context.Context, contentType, contentID string) error {
	_, err := db.db.ExecContext(ctx,
		`DELETE FROM content_items WHERE content_type = ? AND content_id = ?`,
		contentType, contentID)
	if err != nil {
		return fmt.Errorf("failed to delete content %s/%s: %w", contentType, contentID, err)
	}
	return nil
}
