package repository

import (
	"context"
	"sync/atomic"
	"time"

	"contentsync/internal/domain"
	"contentsync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverCacheRepository serves from the primary (redis) cache and falls
// back to the in-memory cache when the primary errors, probing the primary
// again after a cooldown.
type FailoverCacheRepository struct {
	primary   domain.CacheRepository
	fallback  domain.CacheRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos of the last failed primary call
}

const failoverRecoveryInterval = time.Minute

func NewFailoverCacheRepository(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the primary should be attempted on this call.
func (r *FailoverCacheRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return time.Since(last) > failoverRecoveryInterval
}

func (r *FailoverCacheRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary cache repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverCacheRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("primary cache repository recovered")
	}
}

func (r *FailoverCacheRepository) Upsert(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Upsert(ctx, entry, ttl)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Upsert(ctx, entry, ttl)
}

func (r *FailoverCacheRepository) Get(ctx context.Context, contentType, contentID, cacheKey string) (*models.CacheEntry, error) {
	if r.usePrimary() {
		entry, err := r.primary.Get(ctx, contentType, contentID, cacheKey)
		if err == nil {
			r.markUp()
			return entry, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx, contentType, contentID, cacheKey)
}

func (r *FailoverCacheRepository) Invalidate(ctx context.Context, contentType, contentID string) (int, error) {
	if r.usePrimary() {
		count, err := r.primary.Invalidate(ctx, contentType, contentID)
		if err == nil {
			r.markUp()
			return count, nil
		}
		r.markDown(err)
	}
	return r.fallback.Invalidate(ctx, contentType, contentID)
}

func (r *FailoverCacheRepository) CleanupExpired(ctx context.Context) (int, error) {
	if r.usePrimary() {
		count, err := r.primary.CleanupExpired(ctx)
		if err == nil {
			r.markUp()
			return count, nil
		}
		r.markDown(err)
	}
	return r.fallback.CleanupExpired(ctx)
}

func (r *FailoverCacheRepository) Stats(ctx context.Context) (models.CacheStats, error) {
	if r.usePrimary() {
		stats, err := r.primary.Stats(ctx)
		if err == nil {
			r.markUp()
			return stats, nil
		}
		r.markDown(err)
	}
	return r.fallback.Stats(ctx)
}
