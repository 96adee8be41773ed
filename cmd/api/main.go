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

	"contentsync/internal/api"
	"contentsync/internal/config"
	"contentsync/internal/database"
	"contentsync/internal/domain"
	"contentsync/internal/events"
	"contentsync/internal/logging"
	"contentsync/internal/metrics"
	"contentsync/internal/models"
	"contentsync/internal/repository"
	"contentsync/internal/service"
	"contentsync/internal/status"
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

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	cache, cacheCloser := initCache(cfg, &logger)
	if cacheCloser != nil {
		defer (func() { _ = cacheCloser.Close() })()
	}

	bus := events.NewEventBus()
	processor := worker.NewSyncProcessor(db, cache, service.NewContentValidator(), bus, cfg, &logger)
	syncService := service.NewContentSyncService(db, cache, processor, bus, cfg, &logger)
	watcher := status.NewWatcher(syncService, cfg.Sync, &logger)
	httpServer := api.NewHTTPServer(cfg.API, db, syncService, watcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)
	go watcher.Run(ctx)

	return startServer(ctx, httpServer, cfg, &logger)
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	db.SetHealthThresholds(cfg.Sync.PendingWarnThreshold, cfg.Sync.FailedCritThreshold)
	return db, nil
}

// initCache builds a redis-backed cache with in-memory failover, or a pure
// in-memory cache when redis is not configured.
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

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
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
