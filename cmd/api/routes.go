// Package main provides the API server entry point.
package main

import (
	"github.com/labstack/echo/v4"

	httphandler "github.com/voyatra/voyatra/internal/handler/http"
	"github.com/voyatra/voyatra/internal/infrastructure/httpserver"
	"github.com/voyatra/voyatra/internal/middleware"
)

// SetupRoutes configures all API routes and middleware chains.
func SetupRoutes(c *Container) *httpserver.Router {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	routerConfig := httpserver.RouterConfig{
		Logger:         c.Logger,
		CORSConfig:     middleware.DefaultCORSConfig(),
		LoggingConfig:  middleware.DefaultLoggingConfig(),
		RecoveryConfig: middleware.DefaultRecoveryConfig(),
		APIPrefix:      httpserver.DefaultAPIPrefix,
	}

	// Appends are rate limited per caller when Redis is available.
	if c.Redis != nil {
		rateLimitConfig := middleware.DefaultRateLimitConfig()
		rateLimitConfig.Logger = c.Logger
		rateLimitConfig.Store = middleware.NewRedisRateLimitStore(&redisRateLimitAdapter{client: c.Redis}, "")
		routerConfig.RateLimitMiddleware = middleware.RateLimit(rateLimitConfig)
	}

	router := httpserver.NewRouter(e, routerConfig)

	router.RegisterHealthEndpoints(c.HealthCheckers...)
	router.RegisterMetricsEndpoint()

	router.RegisterAll(
		httphandler.NewEventHandler(c.Store),
		httphandler.NewAuditHandler(c.Audit),
	)

	if c.Config.IsDevelopment() {
		router.PrintRoutes()
	}

	return router
}
