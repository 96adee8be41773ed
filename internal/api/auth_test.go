package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"contentsync/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	auth := NewHTTPAuth(config.APIConfig{})
	h := auth.Wrap(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/overview", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingOrInvalidKey(t *testing.T) {
	cfg := config.APIConfig{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []config.APIClientKey{{Key: "secret", Name: "admin"}}
	auth := NewHTTPAuth(cfg)
	h := auth.Wrap(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/overview", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/overview", nil)
	req.Header.Set("x-api-key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sync/overview", nil)
	req.Header.Set("x-api-key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthPermissionScoping(t *testing.T) {
	cfg := config.APIConfig{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []config.APIClientKey{
		{Key: "reader", Name: "dashboard", Permissions: []string{"read:sync"}},
	}
	auth := NewHTTPAuth(cfg)
	h := auth.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/overview", nil)
	req.Header.Set("x-api-key", "reader")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sync/process", nil)
	req.Header.Set("x-api-key", "reader")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthCustomHeaderName(t *testing.T) {
	cfg := config.APIConfig{}
	cfg.Auth.Enabled = true
	cfg.Auth.HeaderAPIKey = "X-Sync-Key"
	cfg.Auth.APIKeys = []config.APIClientKey{{Key: "secret"}}
	auth := NewHTTPAuth(cfg)
	h := auth.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/overview", nil)
	req.Header.Set("X-Sync-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitPerKey(t *testing.T) {
	cfg := config.APIConfig{}
	cfg.RateLimit.RPS = 1
	cfg.RateLimit.Burst = 2
	auth := NewHTTPAuth(cfg)
	h := auth.Wrap(okHandler())

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/overview", nil)
		req.Header.Set("x-api-key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))

	// A different key gets its own bucket
	assert.Equal(t, http.StatusOK, send("b"))
}
