package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"contentsync/internal/config"
	"contentsync/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "content_cache:"
	cacheIndexKey  = "content_cache:index"
)

// RedisCacheRepository keeps denormalized content snapshots in redis.
// Expiry is tracked inside the entry rather than via redis TTL so that
// expired entries stay countable until CleanupExpired removes them.
type RedisCacheRepository struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisCacheRepository(client *redis.Client, defaultTTL time.Duration) *RedisCacheRepository {
	if defaultTTL <= 0 {
		defaultTTL = time.Duration(models.DefaultCacheTTLHours) * time.Hour
	}
	return &RedisCacheRepository{client: client, defaultTTL: defaultTTL}
}

func entryKey(contentType, contentID, cacheKey string) string {
	key := fmt.Sprintf("%s%s:%s", cacheKeyPrefix, contentType, contentID)
	if cacheKey != "" {
		key += ":" + cacheKey
	}
	return key
}

func entityPrefix(contentType, contentID string) string {
	return fmt.Sprintf("%s%s:%s", cacheKeyPrefix, contentType, contentID)
}

func (r *RedisCacheRepository) Upsert(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if ttl == 0 {
		ttl = r.defaultTTL
	}

	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	key := entryKey(entry.ContentType, entry.ContentID, entry.CacheKey)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, cacheIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

// Get returns the entry for the key, nil when absent or already expired.
func (r *RedisCacheRepository) Get(ctx context.Context, contentType, contentID, cacheKey string) (*models.CacheEntry, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	val, err := r.client.Get(ctx, entryKey(contentType, contentID, cacheKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}

// Invalidate removes every entry for the content instance, including
// cache-key variants, and returns how many were deleted.
func (r *RedisCacheRepository) Invalidate(ctx context.Context, contentType, contentID string) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	keys, err := r.entityKeys(ctx, contentType, contentID)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, cacheIndexKey, toInterfaces(keys)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to invalidate cache entries: %w", err)
	}
	return len(keys), nil
}

// CleanupExpired removes entries past their expiry and returns the count.
func (r *RedisCacheRepository) CleanupExpired(ctx context.Context) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	members, err := r.client.SMembers(ctx, cacheIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read cache index: %w", err)
	}

	now := time.Now()
	removed := 0
	for _, key := range members {
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			// Index entry without a value; drop it from the index.
			r.client.SRem(ctx, cacheIndexKey, key)
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to read cache entry %s: %w", key, err)
		}

		var entry models.CacheEntry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			return removed, fmt.Errorf("failed to unmarshal cache entry %s: %w", key, err)
		}
		if entry.Expired(now) {
			pipe := r.client.TxPipeline()
			pipe.Del(ctx, key)
			pipe.SRem(ctx, cacheIndexKey, key)
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, fmt.Errorf("failed to delete expired entry %s: %w", key, err)
			}
			removed++
		}
	}
	return removed, nil
}

func (r *RedisCacheRepository) Stats(ctx context.Context) (models.CacheStats, error) {
	var stats models.CacheStats
	if r.client == nil {
		return stats, fmt.Errorf("redis client is nil")
	}

	members, err := r.client.SMembers(ctx, cacheIndexKey).Result()
	if err != nil {
		return stats, fmt.Errorf("failed to read cache index: %w", err)
	}

	now := time.Now()
	for _, key := range members {
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read cache entry %s: %w", key, err)
		}

		var entry models.CacheEntry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			return stats, fmt.Errorf("failed to unmarshal cache entry %s: %w", key, err)
		}

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

func (r *RedisCacheRepository) entityKeys(ctx context.Context, contentType, contentID string) ([]string, error) {
	members, err := r.client.SMembers(ctx, cacheIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache index: %w", err)
	}

	prefix := entityPrefix(contentType, contentID)
	var keys []string
	for _, key := range members {
		if key == prefix || strings.HasPrefix(key, prefix+":") {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func toInterfaces(keys []string) []interface{} {
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
