package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"contentsync/internal/config"
	"contentsync/internal/database"
	"contentsync/internal/domain"
	"contentsync/internal/metrics"
	"contentsync/internal/models"
)

// Scheduler drives the processor on a fixed interval and runs periodic
// housekeeping: stale item reclaim, queue purge and cache cleanup.
type Scheduler struct {
	db            *database.DB
	cache         domain.CacheRepository
	processor     domain.Processor
	pollInterval  time.Duration
	purgeInterval time.Duration
	staleAfter    time.Duration
	retentionHrs  int
	logger        zerolog.Logger
}

// NewScheduler wires the scheduler from config.
func NewScheduler(db *database.DB, cache domain.CacheRepository, processor domain.Processor, cfg config.SyncConfig, logger *zerolog.Logger) *Scheduler {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	poll := cfg.PollIntervalSeconds
	if poll <= 0 {
		poll = 60
	}
	purge := cfg.PurgeIntervalMinutes
	if purge <= 0 {
		purge = 60
	}
	stale := cfg.StaleReclaimMinutes
	if stale <= 0 {
		stale = models.DefaultStaleProcessingMinutes
	}
	retention := cfg.PurgeRetentionHours
	if retention <= 0 {
		retention = models.DefaultPurgeRetentionHours
	}
	return &Scheduler{
		db:            db,
		cache:         cache,
		processor:     processor,
		pollInterval:  time.Duration(poll) * time.Second,
		purgeInterval: time.Duration(purge) * time.Minute,
		staleAfter:    time.Duration(stale) * time.Minute,
		retentionHrs:  retention,
		logger:        log.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("poll_interval", s.pollInterval).
		Dur("purge_interval", s.purgeInterval).
		Msg("scheduler started")

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()
	purgeTicker := time.NewTicker(s.purgeInterval)
	defer purgeTicker.Stop()

	// Первый проход сразу, не дожидаясь тика
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-pollTicker.C:
			s.tick(ctx)
		case <-purgeTicker.C:
			s.housekeep(ctx)
		}
	}
}

// tick runs one reclaim-then-process cycle and refreshes gauges.
func (s *Scheduler) tick(ctx context.Context) {
	reclaimed, err := s.db.ReclaimStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to reclaim stale items")
	} else if reclaimed > 0 {
		s.logger.Warn().Int("count", reclaimed).Msg("reclaimed stale processing items")
	}

	report, err := s.processor.ProcessOnce(ctx)
	if err != nil && !errors.Is(err, ErrSyncInProgress) {
		s.logger.Error().Err(err).Msg("processing run failed")
	}
	if report.TotalProcessed > 0 {
		s.logger.Info().
			Int("processed", report.TotalProcessed).
			Int("failures", report.TotalFailures).
			Msg("scheduled run processed items")
	}

	s.updateGauges(ctx)
}

// housekeep purges settled queue rows and drops expired cache entries.
func (s *Scheduler) housekeep(ctx context.Context) {
	purged, err := s.db.PurgeQueue(ctx, s.retentionHrs, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to purge queue")
	} else if purged > 0 {
		s.logger.Info().Int("count", purged).Msg("purged settled queue items")
	}

	removed, err := s.cache.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to clean up cache")
	} else if removed > 0 {
		s.logger.Info().Int("count", removed).Msg("removed expired cache entries")
	}

	if err := s.db.PutSetting(ctx, database.SettingLastCleanupAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record cleanup timestamp")
	}
}

func (s *Scheduler) updateGauges(ctx context.Context) {
	rows, err := s.db.QueueStatus(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read queue status")
		return
	}
	depth := map[string]int{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusRetry:      0,
		models.StatusFailed:     0,
	}
	for _, row := range rows {
		depth[row.Status] += row.ItemCount
	}
	for status, n := range depth {
		metrics.SetQueueDepth(status, n)
	}

	stats, err := s.cache.Stats(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read cache stats")
		return
	}
	metrics.SetCacheEntries("active", stats.ActiveEntries)
	metrics.SetCacheEntries("expired", stats.ExpiredEntries)
}
