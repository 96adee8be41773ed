package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"contentsync/internal/config"
	"contentsync/internal/database"
	"contentsync/internal/domain"
	"contentsync/internal/events"
	"contentsync/internal/metrics"
	"contentsync/internal/models"
)

// ErrSyncInProgress is returned when a processing run is requested while
// another run holds the guard.
var ErrSyncInProgress = errors.New("synchronization already in progress")

// terminalError marks failures that will not succeed on retry.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// SyncProcessor drains the queue and applies operations to the live store,
// version history and cache.
type SyncProcessor struct {
	db        *database.DB
	cache     domain.CacheRepository
	validator domain.Validator
	bus       domain.EventPublisher
	policy    RetryPolicy
	batchSize int
	cacheTTL  time.Duration
	logger    zerolog.Logger
	running   atomic.Bool
}

// NewSyncProcessor wires the processor from config.
func NewSyncProcessor(db *database.DB, cache domain.CacheRepository, validator domain.Validator, bus domain.EventPublisher, cfg *config.Config, logger *zerolog.Logger) *SyncProcessor {
	batch := cfg.Sync.BatchSize
	if batch <= 0 {
		batch = models.DefaultBatchSize
	}
	ttlHours := cfg.Cache.DefaultTTLHours
	if ttlHours <= 0 {
		ttlHours = models.DefaultCacheTTLHours
	}
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &SyncProcessor{
		db:        db,
		cache:     cache,
		validator: validator,
		bus:       bus,
		policy:    PolicyFromConfig(cfg.Sync),
		batchSize: batch,
		cacheTTL:  time.Duration(ttlHours) * time.Hour,
		logger:    log.With().Str("component", "processor").Logger(),
	}
}

// ProcessOnce drains up to one batch of due items. Only one run may be active
// per processor instance.
func (p *SyncProcessor) ProcessOnce(ctx context.Context) (models.SyncReport, error) {
	var report models.SyncReport

	if !p.running.CompareAndSwap(false, true) {
		return report, ErrSyncInProgress
	}
	defer p.running.Store(false)

	paused, err := p.db.SyncPaused(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read pause setting: %w", err)
	}
	if paused {
		p.logger.Info().Msg("sync is paused, skipping run")
		return report, nil
	}

	for i := 0; i < p.batchSize; i++ {
		item, err := p.db.DequeueNext(ctx)
		if err != nil {
			return report, fmt.Errorf("failed to dequeue: %w", err)
		}
		if item == nil {
			break
		}

		start := time.Now()
		version, itemErr := p.handleItem(ctx, item)
		elapsed := time.Since(start)

		report.TotalProcessed++
		if itemErr == nil {
			report.TotalSuccess++
			if err := p.db.MarkCompleted(ctx, item.ID); err != nil {
				p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to mark item completed")
			}
			p.publish(events.EventSyncCompleted, item, version, nil)
		} else {
			report.TotalFailures++
			p.retryOrFail(ctx, item, itemErr)
		}

		metrics.ObserveSyncItem(item.ContentType, itemErr == nil, elapsed)
		p.appendLog(ctx, item, itemErr, elapsed)
	}

	if err := p.db.PutSetting(ctx, database.SettingLastProcessedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		p.logger.Warn().Err(err).Msg("failed to record last processed timestamp")
	}

	p.logger.Info().
		Int("processed", report.TotalProcessed).
		Int("success", report.TotalSuccess).
		Int("failures", report.TotalFailures).
		Msg("processing run finished")

	return report, nil
}

// handleItem applies one queue item and returns the version number recorded,
// if any.
func (p *SyncProcessor) handleItem(ctx context.Context, item *models.SyncQueueItem) (int, error) {
	var payload models.SyncPayload
	if err := json.Unmarshal([]byte(item.Payload), &payload); err != nil {
		return 0, &terminalError{err: fmt.Errorf("failed to decode payload: %w", err)}
	}

	if payload.RefreshCache {
		return 0, p.refreshCache(ctx, item, payload)
	}

	switch item.Operation {
	case models.OpCreate, models.OpUpdate:
		return p.applyWrite(ctx, item, payload)
	case models.OpDelete:
		return p.applyDelete(ctx, item)
	default:
		return 0, &terminalError{err: fmt.Errorf("unknown operation %q", item.Operation)}
	}
}

// refreshCache rebuilds the cache entry from live content without touching
// version history.
func (p *SyncProcessor) refreshCache(ctx context.Context, item *models.SyncQueueItem, payload models.SyncPayload) error {
	live, err := p.db.GetContent(ctx, item.ContentType, item.ContentID)
	if err != nil {
		return fmt.Errorf("failed to load live content: %w", err)
	}
	if live == nil {
		if _, err := p.cache.Invalidate(ctx, item.ContentType, item.ContentID); err != nil {
			return fmt.Errorf("failed to invalidate cache: %w", err)
		}
		return nil
	}

	entry := &models.CacheEntry{
		ContentType: item.ContentType,
		ContentID:   item.ContentID,
		CacheKey:    payload.CacheKey,
		CacheData:   live.Data,
	}
	if err := p.cache.Upsert(ctx, entry, p.cacheTTL); err != nil {
		return fmt.Errorf("failed to refresh cache entry: %w", err)
	}

	if p.bus != nil {
		_ = p.bus.PublishJSON(events.EventCacheRefreshed, events.SyncEventPayload{
			QueueItemID: item.ID,
			ContentType: item.ContentType,
			ContentID:   item.ContentID,
			Success:     true,
			OccurredAt:  time.Now(),
		})
	}
	return nil
}

// applyWrite validates the payload, updates the live store, records a version
// and refreshes the cache.
func (p *SyncProcessor) applyWrite(ctx context.Context, item *models.SyncQueueItem, payload models.SyncPayload) (int, error) {
	result := p.validator.Validate(item.ContentType, payload.Data)
	if !result.Valid {
		return 0, &terminalError{err: fmt.Errorf("validation failed: %s", strings.Join(result.Errors, "; "))}
	}

	data, err := json.Marshal(payload.Data)
	if err != nil {
		return 0, &terminalError{err: fmt.Errorf("failed to encode content data: %w", err)}
	}

	if err := p.db.UpsertContent(ctx, &models.ContentItem{
		ContentType: item.ContentType,
		ContentID:   item.ContentID,
		Data:        string(data),
	}); err != nil {
		return 0, fmt.Errorf("failed to upsert content: %w", err)
	}

	changeType := models.ChangeUpdate
	if item.Operation == models.OpCreate {
		changeType = models.ChangeCreate
	}
	var createdBy *string
	if payload.TriggeredBy != "" {
		createdBy = &payload.TriggeredBy
	}
	version, err := p.db.RecordVersion(ctx, item.ContentType, item.ContentID, string(data), changeType, nil, createdBy)
	if err != nil {
		return 0, fmt.Errorf("failed to record version: %w", err)
	}

	entry := &models.CacheEntry{
		ContentType: item.ContentType,
		ContentID:   item.ContentID,
		CacheKey:    payload.CacheKey,
		CacheData:   string(data),
	}
	if err := p.cache.Upsert(ctx, entry, p.cacheTTL); err != nil {
		return version, fmt.Errorf("failed to update cache: %w", err)
	}
	return version, nil
}

// applyDelete snapshots the live content into history, removes it and
// invalidates the cache.
func (p *SyncProcessor) applyDelete(ctx context.Context, item *models.SyncQueueItem) (int, error) {
	live, err := p.db.GetContent(ctx, item.ContentType, item.ContentID)
	if err != nil {
		return 0, fmt.Errorf("failed to load live content: %w", err)
	}

	var version int
	if live != nil {
		version, err = p.db.RecordVersion(ctx, item.ContentType, item.ContentID, live.Data, models.ChangeDelete, nil, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to record delete version: %w", err)
		}
	}

	if err := p.db.DeleteContent(ctx, item.ContentType, item.ContentID); err != nil {
		return version, fmt.Errorf("failed to delete content: %w", err)
	}
	if _, err := p.cache.Invalidate(ctx, item.ContentType, item.ContentID); err != nil {
		return version, fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return version, nil
}

// retryOrFail reschedules a failed item with backoff, or fails it for good
// when the error is terminal or the retry ceiling is reached.
func (p *SyncProcessor) retryOrFail(ctx context.Context, item *models.SyncQueueItem, itemErr error) {
	attempt := item.RetryCount + 1

	var terr *terminalError
	terminal := errors.As(itemErr, &terr) || attempt >= p.policy.MaxRetries

	if terminal {
		if err := p.db.MarkFailed(ctx, item.ID, itemErr.Error(), nil); err != nil {
			p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to mark item failed")
		}
		p.logger.Warn().
			Str("item_id", item.ID).
			Str("content_type", item.ContentType).
			Str("content_id", item.ContentID).
			Int("attempt", attempt).
			Err(itemErr).
			Msg("sync item failed permanently")
		p.publish(events.EventSyncFailed, item, 0, itemErr)
		return
	}

	next := time.Now().Add(p.policy.NextDelay(attempt))
	if err := p.db.MarkFailed(ctx, item.ID, itemErr.Error(), &next); err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to schedule retry")
	}
	p.logger.Warn().
		Str("item_id", item.ID).
		Int("attempt", attempt).
		Time("retry_at", next).
		Err(itemErr).
		Msg("sync item scheduled for retry")
}

func (p *SyncProcessor) appendLog(ctx context.Context, item *models.SyncQueueItem, itemErr error, elapsed time.Duration) {
	entry := &models.SyncLogEntry{
		QueueItemID: item.ID,
		ContentType: item.ContentType,
		ContentID:   item.ContentID,
		Operation:   item.Operation,
		Success:     itemErr == nil,
		DurationMs:  elapsed.Milliseconds(),
	}
	if itemErr != nil {
		msg := itemErr.Error()
		entry.ErrorMessage = &msg
	}
	if err := p.db.AppendSyncLog(ctx, entry); err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to append sync log")
	}
}

func (p *SyncProcessor) publish(eventType string, item *models.SyncQueueItem, version int, itemErr error) {
	if p.bus == nil {
		return
	}
	payload := events.SyncEventPayload{
		QueueItemID: item.ID,
		ContentType: item.ContentType,
		ContentID:   item.ContentID,
		Operation:   item.Operation,
		Success:     itemErr == nil,
		Version:     version,
		OccurredAt:  time.Now(),
	}
	if itemErr != nil {
		payload.Error = itemErr.Error()
	}
	if err := p.bus.PublishJSON(eventType, payload); err != nil {
		p.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
