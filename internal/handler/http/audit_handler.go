package httphandler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/voyatra/voyatra/internal/infrastructure/httpserver"
)

// AuditSource defines the audit queries the handler needs.
// Declared on the consumer side per project guidelines.
type AuditSource interface {
	UserActivity(ctx context.Context, userID string, start, end time.Time, limit int) ([]map[string]any, error)
	AggregateHistory(ctx context.Context, aggregateType, aggregateID string) ([]map[string]any, error)
	ErrorHistory(ctx context.Context, start, end time.Time, limit int) ([]map[string]any, error)
}

// AuditHandler serves the audit and compliance query endpoints.
type AuditHandler struct {
	audit AuditSource
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(audit AuditSource) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes registers audit routes with the router.
func (h *AuditHandler) RegisterRoutes(r *httpserver.Router) {
	r.API().GET("/audit/users/:id/activity", h.UserActivity)
	r.API().GET("/audit/aggregates/:type/:id/history", h.AggregateHistory)
	r.API().GET("/audit/errors", h.ErrorHistory)
}

// UserActivity handles GET /api/v1/audit/users/:id/activity.
// Returns one user's activity trail, newest first.
func (h *AuditHandler) UserActivity(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_USER_ID", "user ID must not be empty")
	}

	window, limit, err := timeWindowParams(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
	}

	records, err := h.audit.UserActivity(c.Request().Context(), userID, window.start, window.end, limit)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, records)
}

// AggregateHistory handles GET /api/v1/audit/aggregates/:type/:id/history.
// Returns the full ordered history of one aggregate.
func (h *AuditHandler) AggregateHistory(c echo.Context) error {
	aggregateType := c.Param("type")
	aggregateID := c.Param("id")

	records, err := h.audit.AggregateHistory(c.Request().Context(), aggregateType, aggregateID)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, records)
}

// ErrorHistory handles GET /api/v1/audit/errors.
// Returns recent error events across the platform, newest first.
func (h *AuditHandler) ErrorHistory(c echo.Context) error {
	window, limit, err := timeWindowParams(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
	}

	records, err := h.audit.ErrorHistory(c.Request().Context(), window.start, window.end, limit)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, records)
}
