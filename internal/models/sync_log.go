package models

import "time"

// SyncLogEntry records the outcome of processing one queue item.
// Entries are append-only and never mutated after write.
type SyncLogEntry struct {
	ID           int64     `json:"id"`
	QueueItemID  string    `json:"queue_item_id"`
	ContentType  string    `json:"content_type"`
	ContentID    string    `json:"content_id"`
	Operation    string    `json:"operation"`
	Success      bool      `json:"success"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// SyncReport aggregates one processing run.
type SyncReport struct {
	TotalProcessed int `json:"total_processed"`
	TotalSuccess   int `json:"total_success"`
	TotalFailures  int `json:"total_failures"`
}

// QueueStatusRow is one cell of the queue status breakdown.
type QueueStatusRow struct {
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
	ItemCount   int    `json:"item_count"`
}

// CacheStats is the aggregate cache view for dashboards.
type CacheStats struct {
	TotalEntries   int        `json:"total_entries"`
	ActiveEntries  int        `json:"active_entries"`
	ExpiredEntries int        `json:"expired_entries"`
	OldestEntry    *time.Time `json:"oldest_entry,omitempty"`
	NewestEntry    *time.Time `json:"newest_entry,omitempty"`
}

// PerformanceMetric aggregates sync outcomes per content type per day.
type PerformanceMetric struct {
	Day           string  `json:"day"` // YYYY-MM-DD
	ContentType   string  `json:"content_type"`
	Attempts      int     `json:"attempts"`
	Successes     int     `json:"successes"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// ActivityEntry is one row of recent sync activity (log joined to queue).
type ActivityEntry struct {
	QueueItemID  string    `json:"queue_item_id"`
	ContentType  string    `json:"content_type"`
	ContentID    string    `json:"content_id"`
	Operation    string    `json:"operation"`
	Status       string    `json:"status"`
	Success      bool      `json:"success"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// HealthRow is one named health check result.
type HealthRow struct {
	Check   string `json:"check"`
	Status  string `json:"status"` // ok, warn, critical
	Detail  string `json:"detail"`
	Metric  int    `json:"metric"`
	Healthy bool   `json:"healthy"`
}

// ValidationResult is the outcome of content-type-specific validation.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Overview bundles the dashboard fetches into one snapshot.
type Overview struct {
	QueueStatus    []QueueStatusRow    `json:"queue_status"`
	CacheStats     CacheStats          `json:"cache_stats"`
	RecentActivity []ActivityEntry     `json:"recent_activity"`
	Health         []HealthRow         `json:"health"`
	FetchedAt      time.Time           `json:"fetched_at"`
	Metrics        []PerformanceMetric `json:"metrics,omitempty"`
}
