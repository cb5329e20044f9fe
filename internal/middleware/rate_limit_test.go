package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyatra/voyatra/internal/middleware"
)

func newRateLimitedServer(cfg middleware.RateLimitConfig) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Identity())
	e.Use(middleware.RateLimit(cfg))
	e.GET("/test", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return e
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.Store = middleware.NewMemoryRateLimitStore()
	cfg.Limit = 5
	cfg.BurstSize = 0
	e := newRateLimitedServer(cfg)

	for range 5 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.Store = middleware.NewMemoryRateLimitStore()
	cfg.Limit = 2
	cfg.BurstSize = 0
	cfg.Window = time.Minute
	e := newRateLimitedServer(cfg)

	for range 2 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-Ratelimit-Remaining"))
}

func TestRateLimit_SeparateKeysPerUser(t *testing.T) {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.Store = middleware.NewMemoryRateLimitStore()
	cfg.Limit = 1
	cfg.BurstSize = 0
	e := newRateLimitedServer(cfg)

	for _, user := range []string{"user-a", "user-b"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(middleware.UserIDHeader, user)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "each user has its own budget")
	}
}

func TestRateLimit_SkipsHealthPath(t *testing.T) {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.Store = middleware.NewMemoryRateLimitStore()
	cfg.Limit = 1
	cfg.BurstSize = 0
	e := newRateLimitedServer(cfg)

	for range 10 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_NoStoreIsNoOp(t *testing.T) {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.Limit = 1
	cfg.BurstSize = 0
	e := newRateLimitedServer(cfg)

	for range 10 {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
