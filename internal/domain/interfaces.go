package domain

import (
	"context"
	"time"

	"contentsync/internal/models"
)

// QueueStore is durable FIFO-within-priority storage of pending sync work.
type QueueStore interface {
	Enqueue(ctx context.Context, contentType, contentID, operation, payload string, priority int) (string, error)
	DequeueNext(ctx context.Context) (*models.SyncQueueItem, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string, retryAt *time.Time) error
	ListQueueItems(ctx context.Context, filter models.QueueFilter) ([]models.SyncQueueItem, error)
	BulkRequeueFailed(ctx context.Context, contentType string) (int, error)
	PurgeQueue(ctx context.Context, olderThanHours int, statuses ...string) (int, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
	QueueStatus(ctx context.Context) ([]models.QueueStatusRow, error)
	RecentActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error)
	CheckSyncHealth(ctx context.Context) ([]models.HealthRow, error)
}

// ContentStore holds the live state the processor mutates.
type ContentStore interface {
	GetContent(ctx context.Context, contentType, contentID string) (*models.ContentItem, error)
	UpsertContent(ctx context.Context, item *models.ContentItem) error
	DeleteContent(ctx context.Context, contentType, contentID string) error
}

// VersionStore is the append-only history with rollback support.
type VersionStore interface {
	RecordVersion(ctx context.Context, contentType, contentID, contentData, changeType string, changeSummary, createdBy *string) (int, error)
	ListVersions(ctx context.Context, contentType, contentID string, limit int) ([]models.ContentVersion, error)
	GetVersion(ctx context.Context, contentType, contentID string, versionNumber int) (*models.ContentVersion, error)
	RollbackContent(ctx context.Context, contentType, contentID string, targetVersion int, rollbackBy *string) (bool, error)
}

// LogStore records processing outcomes, append-only.
type LogStore interface {
	AppendSyncLog(ctx context.Context, entry *models.SyncLogEntry) error
	ListSyncLogs(ctx context.Context, start, end time.Time, contentType string) ([]models.SyncLogEntry, error)
	PerformanceMetrics(ctx context.Context, days int) ([]models.PerformanceMetric, error)
}

// SettingsStore is the sync_settings key-value table.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// CacheRepository is the fast-read denormalized cache with TTL.
type CacheRepository interface {
	Upsert(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error
	Get(ctx context.Context, contentType, contentID, cacheKey string) (*models.CacheEntry, error)
	Invalidate(ctx context.Context, contentType, contentID string) (int, error)
	CleanupExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Processor drains the queue and enacts operations.
type Processor interface {
	ProcessOnce(ctx context.Context) (models.SyncReport, error)
}

// Validator checks a payload against content-type-specific rules.
type Validator interface {
	Validate(contentType string, data map[string]interface{}) models.ValidationResult
}

// EventPublisher fans out domain events to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncService is the single entry point UI and automation use.
type SyncService interface {
	QueueContentSync(ctx context.Context, contentType, contentID, operation string, data map[string]interface{}, priority int) (string, error)
	TriggerContentSync(ctx context.Context, contentType, contentID string) (string, error)
	RefreshContentCache(ctx context.Context, contentType, contentID string) (string, error)
	RollbackContent(ctx context.Context, contentType, contentID string, targetVersion int, rollbackBy string) (bool, error)
	ProcessQueue(ctx context.Context) (models.SyncReport, error)
	CleanupCache(ctx context.Context) (int, error)
	RetryFailedItems(ctx context.Context, contentType string) (int, error)
	GetSyncOverview(ctx context.Context) (*models.Overview, error)
	GetPerformanceMetrics(ctx context.Context, days int) ([]models.PerformanceMetric, error)
	ExportSyncLogs(ctx context.Context, start, end time.Time, contentType string) (string, error)
}
