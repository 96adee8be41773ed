package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"contentsync/internal/config"
	"contentsync/internal/database"
	"contentsync/internal/domain"
	"contentsync/internal/events"
	"contentsync/internal/models"
)

// ContentSyncService is the single entry point admin surfaces and automation
// use. It validates input, delegates storage to the database layer and keeps
// the cache consistent with rollbacks and refreshes.
type ContentSyncService struct {
	db        *database.DB
	cache     domain.CacheRepository
	processor domain.Processor
	bus       domain.EventPublisher
	cfg       *config.Config
	logger    zerolog.Logger
}

func NewContentSyncService(db *database.DB, cache domain.CacheRepository, processor domain.Processor, bus domain.EventPublisher, cfg *config.Config, logger *zerolog.Logger) *ContentSyncService {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &ContentSyncService{
		db:        db,
		cache:     cache,
		processor: processor,
		bus:       bus,
		cfg:       cfg,
		logger:    log.With().Str("component", "sync_service").Logger(),
	}
}

// QueueContentSync enqueues one operation for later processing and returns
// the queue item id.
func (s *ContentSyncService) QueueContentSync(ctx context.Context, contentType, contentID, operation string, data map[string]interface{}, priority int) (string, error) {
	payload, err := json.Marshal(models.SyncPayload{Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	id, err := s.db.Enqueue(ctx, contentType, contentID, operation, string(payload), priority)
	if err != nil {
		return "", err
	}

	s.logger.Info().
		Str("item_id", id).
		Str("content_type", contentType).
		Str("content_id", contentID).
		Str("operation", operation).
		Msg("sync queued")
	s.publish(events.EventSyncQueued, id, contentType, contentID, operation)
	return id, nil
}

// TriggerContentSync re-enqueues the current live content at high priority.
func (s *ContentSyncService) TriggerContentSync(ctx context.Context, contentType, contentID string) (string, error) {
	live, err := s.db.GetContent(ctx, contentType, contentID)
	if err != nil {
		return "", fmt.Errorf("failed to load live content: %w", err)
	}
	if live == nil {
		return "", fmt.Errorf("no live content for %s/%s", contentType, contentID)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(live.Data), &data); err != nil {
		return "", fmt.Errorf("failed to decode live content: %w", err)
	}

	payload, err := json.Marshal(models.SyncPayload{Data: data, TriggeredBy: "manual"})
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	id, err := s.db.Enqueue(ctx, contentType, contentID, models.OpUpdate, string(payload), models.HighPriority)
	if err != nil {
		return "", err
	}
	s.publish(events.EventSyncQueued, id, contentType, contentID, models.OpUpdate)
	return id, nil
}

// RefreshContentCache drops current cache entries for the entity and enqueues
// a high-priority cache rebuild.
func (s *ContentSyncService) RefreshContentCache(ctx context.Context, contentType, contentID string) (string, error) {
	if _, err := s.cache.Invalidate(ctx, contentType, contentID); err != nil {
		return "", fmt.Errorf("failed to invalidate cache: %w", err)
	}

	payload, err := json.Marshal(models.SyncPayload{RefreshCache: true, TriggeredBy: "manual"})
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	id, err := s.db.Enqueue(ctx, contentType, contentID, models.OpUpdate, string(payload), models.HighPriority)
	if err != nil {
		return "", err
	}
	s.logger.Info().
		Str("content_type", contentType).
		Str("content_id", contentID).
		Msg("cache refresh queued")
	return id, nil
}

// RollbackContent restores a prior version and invalidates the cache so reads
// do not serve the replaced state.
func (s *ContentSyncService) RollbackContent(ctx context.Context, contentType, contentID string, targetVersion int, rollbackBy string) (bool, error) {
	var by *string
	if rollbackBy != "" {
		by = &rollbackBy
	}

	ok, err := s.db.RollbackContent(ctx, contentType, contentID, targetVersion, by)
	if err != nil || !ok {
		return ok, err
	}

	if _, err := s.cache.Invalidate(ctx, contentType, contentID); err != nil {
		s.logger.Error().Err(err).
			Str("content_type", contentType).
			Str("content_id", contentID).
			Msg("failed to invalidate cache after rollback")
	}

	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventContentRollback, events.SyncEventPayload{
			ContentType: contentType,
			ContentID:   contentID,
			Success:     true,
			Version:     targetVersion,
			OccurredAt:  time.Now(),
		})
	}
	return true, nil
}

// ProcessQueue runs one processing pass.
func (s *ContentSyncService) ProcessQueue(ctx context.Context) (models.SyncReport, error) {
	return s.processor.ProcessOnce(ctx)
}

// CleanupCache removes expired cache entries and returns how many were
// dropped.
func (s *ContentSyncService) CleanupCache(ctx context.Context) (int, error) {
	removed, err := s.cache.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.db.PutSetting(ctx, database.SettingLastCleanupAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record cleanup timestamp")
	}
	return removed, nil
}

// RetryFailedItems requeues terminally failed items, optionally scoped to one
// content type.
func (s *ContentSyncService) RetryFailedItems(ctx context.Context, contentType string) (int, error) {
	count, err := s.db.BulkRequeueFailed(ctx, contentType)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int("count", count).Str("content_type", contentType).Msg("failed items requeued")
	}
	return count, nil
}

// GetSyncOverview fetches the dashboard snapshot, querying its parts
// concurrently.
func (s *ContentSyncService) GetSyncOverview(ctx context.Context) (*models.Overview, error) {
	overview := &models.Overview{FetchedAt: time.Now()}

	limit := s.cfg.Sync.RecentActivityLimit
	if limit <= 0 {
		limit = models.DefaultRecentActivityLimit
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	wg.Add(5)
	go func() {
		defer wg.Done()
		rows, err := s.db.QueueStatus(ctx)
		if err != nil {
			fail(err)
			return
		}
		overview.QueueStatus = rows
	}()
	go func() {
		defer wg.Done()
		stats, err := s.cache.Stats(ctx)
		if err != nil {
			fail(err)
			return
		}
		overview.CacheStats = stats
	}()
	go func() {
		defer wg.Done()
		activity, err := s.db.RecentActivity(ctx, limit)
		if err != nil {
			fail(err)
			return
		}
		overview.RecentActivity = activity
	}()
	go func() {
		defer wg.Done()
		health, err := s.db.CheckSyncHealth(ctx)
		if err != nil {
			fail(err)
			return
		}
		overview.Health = health
	}()
	go func() {
		defer wg.Done()
		metrics, err := s.db.PerformanceMetrics(ctx, 7)
		if err != nil {
			fail(err)
			return
		}
		overview.Metrics = metrics
	}()
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("failed to build sync overview: %w", firstErr)
	}
	return overview, nil
}

// GetPerformanceMetrics returns per-day success aggregates.
func (s *ContentSyncService) GetPerformanceMetrics(ctx context.Context, days int) ([]models.PerformanceMetric, error) {
	return s.db.PerformanceMetrics(ctx, days)
}

func (s *ContentSyncService) publish(eventType, itemID, contentType, contentID, operation string) {
	if s.bus == nil {
		return
	}
	_ = s.bus.PublishJSON(eventType, events.SyncEventPayload{
		QueueItemID: itemID,
		ContentType: contentType,
		ContentID:   contentID,
		Operation:   operation,
		OccurredAt:  time.Now(),
	})
}
