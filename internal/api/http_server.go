package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"contentsync/internal/config"
	"contentsync/internal/database"
	"contentsync/internal/domain"
	"contentsync/internal/metrics"
	"contentsync/internal/status"
)

// HTTPServer exposes the sync service to admin panels and automation.
type HTTPServer struct {
	cfg     config.APIConfig
	db      *database.DB
	service domain.SyncService
	watcher *status.Watcher
	server  *http.Server
	auth    *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, db *database.DB, service domain.SyncService, watcher *status.Watcher) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, db: db, service: service, watcher: watcher}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/sync/overview", srv.handleOverview)
	mux.HandleFunc("/api/v1/sync/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/sync/queue", srv.handleQueue)
	mux.HandleFunc("/api/v1/sync/process", srv.handleProcess)
	mux.HandleFunc("/api/v1/sync/trigger", srv.handleTrigger)
	mux.HandleFunc("/api/v1/sync/retry-failed", srv.handleRetryFailed)
	mux.HandleFunc("/api/v1/sync/metrics", srv.handleMetrics)
	mux.HandleFunc("/api/v1/sync/health", srv.handleHealth)
	mux.HandleFunc("/api/v1/cache/cleanup", srv.handleCacheCleanup)
	mux.HandleFunc("/api/v1/cache/refresh", srv.handleCacheRefresh)
	mux.HandleFunc("/api/v1/content/rollback", srv.handleRollback)
	mux.HandleFunc("/api/v1/versions/", srv.handleVersions)
	mux.HandleFunc("/api/v1/logs/export", srv.handleLogsExport)

	handler := loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the composed handler, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	log.Printf("HTTP API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)
		metrics.IncHTTP(r.URL.Path)
		log.Printf("http method=%s path=%s status=%d dur=%s", r.Method, r.URL.Path, recorder.status, dur)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
