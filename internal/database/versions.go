package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"contentsync/internal/models"
)

const versionColumns = `id, content_type, content_id, version_number, content_data,
              change_type, change_summary, created_by, created_at`

// RecordVersion appends a snapshot with the next version number for the
// content instance, starting at 1.
func (db *DB) RecordVersion(ctx context.Context, contentType, contentID, contentData, changeType string, changeSummary, createdBy *string) (int, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin version tx: %w", err)
	}
	defer tx.Rollback()

	version, err := insertVersionTx(ctx, tx, contentType, contentID, contentData, changeType, changeSummary, createdBy)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit version: %w", err)
	}
	return version, nil
}

// insertVersionTx computes max+1 and inserts inside the caller's transaction,
// keeping numbering gapless under the sqlite write lock.
func insertVersionTx(ctx context.Context, tx *sql.Tx, contentType, contentID, contentData, changeType string, changeSummary, createdBy *string) (int, error) {
	var current int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM content_versions WHERE content_type = ? AND content_id = ?`,
		contentType, contentID).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("failed to read current version: %w", err)
	}

	version := current + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO content_versions (content_type, content_id, version_number, content_data, change_type, change_summary, created_by, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		contentType, contentID, version, contentData, changeType, changeSummary, createdBy, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert version %d: %w", version, err)
	}
	return version, nil
}

// ListVersions returns history for a content instance, newest first.
func (db *DB) ListVersions(ctx context.Context, contentType, contentID string, limit int) ([]models.ContentVersion, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + versionColumns + `
              FROM content_versions
              WHERE content_type = ? AND content_id = ?
              ORDER BY version_number DESC LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, contentType, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []models.ContentVersion
	for rows.Next() {
		var v models.ContentVersion
		err := rows.Scan(&v.ID, &v.ContentType, &v.ContentID, &v.VersionNumber, &v.ContentData,
			&v.ChangeType, &v.ChangeSummary, &v.CreatedBy, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetVersion returns a specific version, nil when absent.
func (db *DB) GetVersion(ctx context.Context, contentType, contentID string, versionNumber int) (*models.ContentVersion, error) {
	query := `SELECT ` + versionColumns + `
              FROM content_versions
              WHERE content_type = ? AND content_id = ? AND version_number = ?`

	var v models.ContentVersion
	err := db.db.QueryRowContext(ctx, query, contentType, contentID, versionNumber).Scan(
		&v.ID, &v.ContentType, &v.ContentID, &v.VersionNumber, &v.ContentData,
		&v.ChangeType, &v.ChangeSummary, &v.CreatedBy, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version %d: %w", versionNumber, err)
	}
	return &v, nil
}

// RollbackContent restores a content instance to a prior version. The state
// immediately before the rollback is recorded first, then the restored state,
// so history is never rewritten. Returns false without touching anything when
// the target version does not exist; infrastructure errors propagate.
func (db *DB) RollbackContent(ctx context.Context, contentType, contentID string, targetVersion int, rollbackBy *string) (bool, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin rollback tx: %w", err)
	}
	defer tx.Rollback()

	var targetData string
	err = tx.QueryRowContext(ctx,
		`SELECT content_data FROM content_versions WHERE content_type = ? AND content_id = ? AND version_number = ?`,
		contentType, contentID, targetVersion).Scan(&targetData)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch rollback target: %w", err)
	}

	// Snapshot the live state before it is overwritten.
	var liveData string
	haveLive := true
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM content_items WHERE content_type = ? AND content_id = ?`,
		contentType, contentID).Scan(&liveData)
	if err == sql.ErrNoRows {
		haveLive = false
	} else if err != nil {
		return false, fmt.Errorf("failed to fetch live content: %w", err)
	}

	if haveLive {
		summary := fmt.Sprintf("pre-rollback snapshot (restoring version %d)", targetVersion)
		if _, err := insertVersionTx(ctx, tx, contentType, contentID, liveData, models.ChangeUpdate, &summary, rollbackBy); err != nil {
			return false, err
		}
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO content_items (content_type, content_id, data, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(content_type, content_id) DO UPDATE SET
             data = excluded.data,
             updated_at = excluded.updated_at`,
		contentType, contentID, targetData, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to restore live content: %w", err)
	}

	summary := fmt.Sprintf("rolled back to version %d", targetVersion)
	if _, err := insertVersionTx(ctx, tx, contentType, contentID, targetData, models.ChangeUpdate, &summary, rollbackBy); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rollback: %w", err)
	}

	db.logger.Info().
		Str("content_type", contentType).
		Str("content_id", contentID).
		Int("target_version", targetVersion).
		Msg("content rolled back")
	return true, nil
}
