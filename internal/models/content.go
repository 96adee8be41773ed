package models

import "time"

// ContentItem is the live, authoritative state of a content instance.
type ContentItem struct {
	ContentType string    `json:"content_type"`
	ContentID   string    `json:"content_id"`
	Data        string    `json:"data"` // JSON snapshot
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContentVersion is an immutable historical snapshot of a content instance.
type ContentVersion struct {
	ID            int64     `json:"id"`
	ContentType   string    `json:"content_type"`
	ContentID     string    `json:"content_id"`
	VersionNumber int       `json:"version_number"`
	ContentData   string    `json:"content_data"`
	ChangeType    string    `json:"change_type"` // create, update, delete, publish
	ChangeSummary *string   `json:"change_summary,omitempty"`
	CreatedBy     *string   `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CacheEntry is a time-limited denormalized snapshot kept for fast reads.
type CacheEntry struct {
	ContentType string    `json:"content_type"`
	ContentID   string    `json:"content_id"`
	CacheKey    string    `json:"cache_key,omitempty"`
	CacheData   string    `json:"cache_data"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}
