package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Well-known sync_settings keys.
const (
	SettingSyncPaused      = "sync_paused"
	SettingLastProcessedAt = "last_processed_at"
	SettingLastCleanupAt   = "last_cleanup_at"
)

// GetSetting reads one sync_settings value; ok is false when the key is absent.
func (db *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.db.QueryRowContext(ctx, `SELECT value FROM sync_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// PutSetting upserts one sync_settings value.
func (db *DB) PutSetting(ctx context.Context, key, value string) error {
	query := `INSERT INTO sync_settings (key, value, updated_at)
              VALUES (?, ?, ?)
              ON CONFLICT(key) DO UPDATE SET
                  value = excluded.value,
                  updated_at = excluded.updated_at`

	if _, err := db.db.ExecContext(ctx, query, key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to put setting %s: %w", key, err)
	}
	return nil
}

// SyncPaused reports whether processing has been switched off via settings.
func (db *DB) SyncPaused(ctx context.Context) (bool, error) {
	value, ok, err := db.GetSetting(ctx, SettingSyncPaused)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}
