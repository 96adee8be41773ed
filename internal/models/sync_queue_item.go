package models

import "time"

// SyncQueueItem is one unit of pending synchronization work for a single
// content instance.
type SyncQueueItem struct {
	ID           string     `json:"id"`
	ContentType  string     `json:"content_type"`
	ContentID    string     `json:"content_id"`
	Operation    string     `json:"operation"` // create, update, delete
	Status       string     `json:"status"`    // pending, processing, completed, failed, retry
	Priority     int        `json:"priority"`
	Payload      string     `json:"payload"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// SyncPayload is the decoded form of SyncQueueItem.Payload.
type SyncPayload struct {
	Data         map[string]interface{} `json:"data,omitempty"`
	RefreshCache bool                   `json:"refresh_cache,omitempty"`
	CacheKey     string                 `json:"cache_key,omitempty"`
	TriggeredBy  string                 `json:"triggered_by,omitempty"`
}

// QueueFilter narrows ListQueueItems results.
type QueueFilter struct {
	Status      string
	ContentType string
	Limit       int
	Offset      int
}
