package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the sqlite handle holding the sync queue, live content,
// version history, sync logs and settings.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger

	pendingWarnThreshold int
	failedCritThreshold  int
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so concurrent
	// transactions wait on the busy handler instead of deadlocking on upgrade.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "database").Logger()
	}
	log.Info().Str("path", path).Msg("database initialized")

	return &DB{
		db:                   db,
		logger:               log,
		pendingWarnThreshold: 100,
		failedCritThreshold:  10,
	}, nil
}

// SetHealthThresholds overrides the defaults used by CheckSyncHealth.
func (db *DB) SetHealthThresholds(pendingWarn, failedCrit int) {
	if pendingWarn > 0 {
		db.pendingWarnThreshold = pendingWarn
	}
	if failedCrit > 0 {
		db.failedCritThreshold = failedCrit
	}
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Живое состояние контента
		`CREATE TABLE IF NOT EXISTS content_items (
            content_type TEXT NOT NULL,
            content_id TEXT NOT NULL,
            data TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            PRIMARY KEY (content_type, content_id)
        )`,

		// Очередь синхронизации
		`CREATE TABLE IF NOT EXISTS content_sync_queue (
            id TEXT PRIMARY KEY,
            content_type TEXT NOT NULL,
            content_id TEXT NOT NULL,
            operation TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            priority INTEGER NOT NULL DEFAULT 5,
            payload TEXT NOT NULL DEFAULT '{}',
            retry_count INTEGER NOT NULL DEFAULT 0,
            error_message TEXT,
            scheduled_for DATETIME,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            completed_at DATETIME
        )`,

		// История версий, только добавление
		`CREATE TABLE IF NOT EXISTS content_versions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            content_type TEXT NOT NULL,
            content_id TEXT NOT NULL,
            version_number INTEGER NOT NULL,
            content_data TEXT NOT NULL,
            change_type TEXT NOT NULL,
            change_summary TEXT,
            created_by TEXT,
            created_at DATETIME NOT NULL,
            UNIQUE (content_type, content_id, version_number)
        )`,

		// Журнал результатов синхронизации
		`CREATE TABLE IF NOT EXISTS content_sync_logs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            queue_item_id TEXT NOT NULL,
            content_type TEXT NOT NULL,
            content_id TEXT NOT NULL,
            operation TEXT NOT NULL,
            success BOOLEAN NOT NULL,
            error_message TEXT,
            duration_ms INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,

		// Настройки синхронизации ключ-значение
		`CREATE TABLE IF NOT EXISTS sync_settings (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON content_sync_queue(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON content_sync_queue(content_type, content_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_dispatch ON content_sync_queue(status, priority, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_entity ON content_versions(content_type, content_id, version_number)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_created ON content_sync_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_entity ON content_sync_logs(content_type, content_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}
