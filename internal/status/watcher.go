package status

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"contentsync/internal/config"
	"contentsync/internal/domain"
	"contentsync/internal/models"
)

// ErrActionInProgress is returned when an imperative action is requested
// while another one is still running.
var ErrActionInProgress = errors.New("another sync action is in progress")

// UpdateFunc receives each fresh overview snapshot.
type UpdateFunc func(*models.Overview)

// Watcher polls the sync service for the dashboard overview and serializes
// imperative actions so the UI cannot fire overlapping runs.
type Watcher struct {
	service  domain.SyncService
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	overview *models.Overview
	lastErr  error
	onUpdate []UpdateFunc

	busy atomic.Bool
}

func NewWatcher(service domain.SyncService, cfg config.SyncConfig, logger *zerolog.Logger) *Watcher {
	poll := cfg.StatusPollSeconds
	if poll <= 0 {
		poll = models.DefaultStatusPollSeconds
	}
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &Watcher{
		service:  service,
		interval: time.Duration(poll) * time.Second,
		logger:   log.With().Str("component", "status_watcher").Logger(),
	}
}

// OnUpdate registers a callback invoked after every successful refresh.
// Callbacks must be registered before Run starts.
func (w *Watcher) OnUpdate(fn UpdateFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = append(w.onUpdate, fn)
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.Refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// Refresh fetches a fresh overview snapshot immediately.
func (w *Watcher) Refresh(ctx context.Context) {
	overview, err := w.service.GetSyncOverview(ctx)

	w.mu.Lock()
	w.lastErr = err
	if err == nil {
		w.overview = overview
	}
	callbacks := append([]UpdateFunc(nil), w.onUpdate...)
	w.mu.Unlock()

	if err != nil {
		w.logger.Error().Err(err).Msg("failed to refresh sync overview")
		return
	}
	for _, fn := range callbacks {
		fn(overview)
	}
}

// Overview returns the latest snapshot, which may be nil before the first
// successful refresh.
func (w *Watcher) Overview() (*models.Overview, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.overview, w.lastErr
}

// Busy reports whether an imperative action is currently running.
func (w *Watcher) Busy() bool {
	return w.busy.Load()
}

// ProcessNow runs one processing pass and refetches the overview.
func (w *Watcher) ProcessNow(ctx context.Context) (models.SyncReport, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return models.SyncReport{}, ErrActionInProgress
	}
	defer w.busy.Store(false)

	report, err := w.service.ProcessQueue(ctx)
	w.Refresh(ctx)
	return report, err
}

// CleanupCache drops expired cache entries and refetches the overview.
func (w *Watcher) CleanupCache(ctx context.Context) (int, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return 0, ErrActionInProgress
	}
	defer w.busy.Store(false)

	removed, err := w.service.CleanupCache(ctx)
	w.Refresh(ctx)
	return removed, err
}

// RetryFailed requeues failed items and refetches the overview.
func (w *Watcher) RetryFailed(ctx context.Context, contentType string) (int, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return 0, ErrActionInProgress
	}
	defer w.busy.Store(false)

	count, err := w.service.RetryFailedItems(ctx, contentType)
	w.Refresh(ctx)
	return count, err
}

// QueueSync enqueues one operation and refetches the overview.
func (w *Watcher) QueueSync(ctx context.Context, contentType, contentID, operation string, data map[string]interface{}, priority int) (string, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return "", ErrActionInProgress
	}
	defer w.busy.Store(false)

	id, err := w.service.QueueContentSync(ctx, contentType, contentID, operation, data, priority)
	w.Refresh(ctx)
	return id, err
}

// RefreshCache queues a cache rebuild and refetches the overview.
func (w *Watcher) RefreshCache(ctx context.Context, contentType, contentID string) (string, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return "", ErrActionInProgress
	}
	defer w.busy.Store(false)

	id, err := w.service.RefreshContentCache(ctx, contentType, contentID)
	w.Refresh(ctx)
	return id, err
}

// Rollback restores a prior version and refetches the overview.
func (w *Watcher) Rollback(ctx context.Context, contentType, contentID string, targetVersion int, rollbackBy string) (bool, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return false, ErrActionInProgress
	}
	defer w.busy.Store(false)

	ok, err := w.service.RollbackContent(ctx, contentType, contentID, targetVersion, rollbackBy)
	w.Refresh(ctx)
	return ok, err
}
