package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contentsync/internal/models"
	"contentsync/internal/status"
)

func (s *HTTPServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	overview, err := s.service.GetSyncOverview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build overview")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.watcher == nil {
		writeError(w, http.StatusNotFound, "status watcher is not running")
		return
	}

	overview, err := s.watcher.Overview()
	resp := map[string]any{
		"busy":     s.watcher.Busy(),
		"overview": overview,
	}
	if err != nil {
		resp["last_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listQueue(w, r)
	case http.MethodPost:
		s.enqueue(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) listQueue(w http.ResponseWriter, r *http.Request) {
	filter := models.QueueFilter{
		Status:      strings.TrimSpace(r.URL.Query().Get("status")),
		ContentType: strings.TrimSpace(r.URL.Query().Get("content_type")),
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := s.db.ListQueueItems(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queue items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) enqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContentType string                 `json:"content_type"`
		ContentID   string                 `json:"content_id"`
		Operation   string                 `json:"operation"`
		Data        map[string]interface{} `json:"data"`
		Priority    int                    `json:"priority"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ContentType == "" || body.ContentID == "" {
		writeError(w, http.StatusBadRequest, "content_type and content_id are required")
		return
	}
	if !models.ValidOperation(body.Operation) {
		writeError(w, http.StatusBadRequest, "invalid operation")
		return
	}

	id, err := s.service.QueueContentSync(r.Context(), body.ContentType, body.ContentID, body.Operation, body.Data, body.Priority)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *HTTPServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var report models.SyncReport
	var err error
	if s.watcher != nil {
		report, err = s.watcher.ProcessNow(r.Context())
	} else {
		report, err = s.service.ProcessQueue(r.Context())
	}
	if err != nil {
		if errors.Is(err, status.ErrActionInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ContentType string `json:"content_type"`
		ContentID   string `json:"content_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.service.TriggerContentSync(r.Context(), body.ContentType, body.ContentID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *HTTPServer) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := strings.TrimSpace(r.URL.Query().Get("content_type"))

	var count int
	var err error
	if s.watcher != nil {
		count, err = s.watcher.RetryFailed(r.Context(), contentType)
	} else {
		count, err = s.service.RetryFailedItems(r.Context(), contentType)
	}
	if err != nil {
		if errors.Is(err, status.ErrActionInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to requeue items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": count})
}

func (s *HTTPServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	rows, err := s.service.GetPerformanceMetrics(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read metrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": rows})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rows, err := s.db.CheckSyncHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check health")
		return
	}

	healthy := true
	for _, row := range rows {
		if !row.Healthy {
			healthy = false
			break
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"healthy": healthy, "checks": rows})
}

func (s *HTTPServer) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var removed int
	var err error
	if s.watcher != nil {
		removed, err = s.watcher.CleanupCache(r.Context())
	} else {
		removed, err = s.service.CleanupCache(r.Context())
	}
	if err != nil {
		if errors.Is(err, status.ErrActionInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "cache cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *HTTPServer) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ContentType string `json:"content_type"`
		ContentID   string `json:"content_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ContentType == "" || body.ContentID == "" {
		writeError(w, http.StatusBadRequest, "content_type and content_id are required")
		return
	}

	id, err := s.service.RefreshContentCache(r.Context(), body.ContentType, body.ContentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to queue cache refresh")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *HTTPServer) handleRollback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ContentType string `json:"content_type"`
		ContentID   string `json:"content_id"`
		Version     int    `json:"version"`
		RollbackBy  string `json:"rollback_by"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ContentType == "" || body.ContentID == "" || body.Version <= 0 {
		writeError(w, http.StatusBadRequest, "content_type, content_id and version are required")
		return
	}

	ok, err := s.service.RollbackContent(r.Context(), body.ContentType, body.ContentID, body.Version, body.RollbackBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rollback failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rolled_back": true})
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/versions/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "path must be /api/v1/versions/{content_type}/{content_id}")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	versions, err := s.db.ListVersions(r.Context(), parts[0], parts[1], limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list versions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *HTTPServer) handleLogsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start, err := parseDateParam(r.URL.Query().Get("start"), time.Now().AddDate(0, 0, -7))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date; expected YYYY-MM-DD")
		return
	}
	end, err := parseDateParam(r.URL.Query().Get("end"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end date; expected YYYY-MM-DD")
		return
	}

	contentType := strings.TrimSpace(r.URL.Query().Get("content_type"))
	path, err := s.service.ExportSyncLogs(r.Context(), start, end.Add(24*time.Hour-time.Nanosecond), contentType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_path": path})
}

func parseDateParam(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", raw)
}
