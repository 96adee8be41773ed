package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contentsync/internal/config"
	"contentsync/internal/database"
	"contentsync/internal/domain"
	"contentsync/internal/events"
	"contentsync/internal/logging"
	"contentsync/internal/metrics"
	"contentsync/internal/models"
	"contentsync/internal/repository"
	"contentsync/internal/service"
	"contentsync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()
	db.SetHealthThresholds(cfg.Sync.PendingWarnThreshold, cfg.Sync.FailedCritThreshold)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, cacheCloser := initCache(cfg, &logger)
	if cacheCloser != nil {
		defer (func() { _ = cacheCloser.Close() })()
	}

	startMetrics(ctx, cfg, &logger)

	bus := events.NewEventBus()
	subscribeSyncEvents(bus, &logger)

	processor := worker.NewSyncProcessor(db, cache, service.NewContentValidator(), bus, cfg, &logger)
	scheduler := worker.NewScheduler(db, cache, processor, cfg.Sync, &logger)

	logger.Info().Msg("sync worker started")
	scheduler.Run(ctx)
	logger.Info().Msg("sync worker stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "worker-main").Logger()

	return cfg, logger, closer, nil
}

func initCache(cfg *config.Config, logger *zerolog.Logger) (domain.CacheRepository, io.Closer) {
	ttlHours := cfg.Cache.DefaultTTLHours
	if ttlHours <= 0 {
		ttlHours = models.DefaultCacheTTLHours
	}
	ttl := time.Duration(ttlHours) * time.Hour
	memory := repository.NewMemoryCacheRepository(ttl)

	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis is not configured, using in-memory cache")
		return memory, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory cache")
		_ = client.Close()
		return memory, nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	primary := repository.NewRedisCacheRepository(client, ttl)
	return repository.NewFailoverCacheRepository(primary, memory, logger), client
}

// subscribeSyncEvents logs terminal outcomes so operators can follow the
// worker without the API.
func subscribeSyncEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventSyncFailed, func(event *events.Event) error {
		logger.Warn().RawJSON("payload", event.Payload).Msg("sync item failed")
		return nil
	})
	bus.Subscribe(events.EventContentRollback, func(event *events.Event) error {
		logger.Info().RawJSON("payload", event.Payload).Msg("content rolled back")
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
