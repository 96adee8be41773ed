package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"contentsync/internal/models"
)

// MemoryCacheRepository is the in-process fallback cache with the same
// expiry semantics as the redis implementation.
type MemoryCacheRepository struct {
	mu         sync.RWMutex
	entries    map[string]models.CacheEntry
	defaultTTL time.Duration
}

func NewMemoryCacheRepository(defaultTTL time.Duration) *MemoryCacheRepository {
	if defaultTTL <= 0 {
		defaultTTL = time.Duration(models.DefaultCacheTTLHours) * time.Hour
	}
	return &MemoryCacheRepository{
		entries:    make(map[string]models.CacheEntry),
		defaultTTL: defaultTTL,
	}
}

func (r *MemoryCacheRepository) Upsert(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.defaultTTL
	}

	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entryKey(entry.ContentType, entry.ContentID, entry.CacheKey)] = *entry
	return nil
}

func (r *MemoryCacheRepository) Get(ctx context.Context, contentType, contentID, cacheKey string) (*models.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[entryKey(contentType, contentID, cacheKey)]
	if !ok || entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}

func (r *MemoryCacheRepository) Invalidate(ctx context.Context, contentType, contentID string) (int, error) {
	prefix := entityPrefix(contentType, contentID)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key := range r.entries {
		if key == prefix || strings.HasPrefix(key, prefix+":") {
			delete(r.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryCacheRepository) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.entries {
		if entry.Expired(now) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryCacheRepository) Stats(ctx context.Context) (models.CacheStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats models.CacheStats
	now := time.Now()
	for _, entry := range r.entries {
		stats.TotalEntries++
		if entry.Expired(now) {
			stats.ExpiredEntries++
		} else {
			stats.ActiveEntries++
		}

		created := entry.CreatedAt
		if stats.OldestEntry == nil || created.Before(*stats.OldestEntry) {
			t := created
			stats.OldestEntry = &t
		}
		if stats.NewestEntry == nil || created.After(*stats.NewestEntry) {
			t := created
			stats.NewestEntry = &t
		}
	}
	return stats, nil
}
