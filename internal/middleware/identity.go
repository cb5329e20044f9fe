// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/voyatra/voyatra/internal/application/appcore"
)

// Identity propagation headers.
const (
	// CorrelationIDHeader carries the correlation ID of the business operation.
	CorrelationIDHeader = "X-Correlation-ID"

	// TraceIDHeader carries the distributed-tracing trace ID.
	TraceIDHeader = "X-Trace-ID"

	// UserIDHeader identifies the acting user for audit attribution.
	UserIDHeader = "X-User-ID"
)

// Identity extracts the caller identity headers and stores them in the
// request context, so that appended events inherit them for auditing.
// A missing correlation ID is generated, and the effective value is
// echoed back in the response headers.
func Identity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()

			correlationID := req.Header.Get(CorrelationIDHeader)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			ctx = appcore.WithCorrelationID(ctx, correlationID)
			c.Response().Header().Set(CorrelationIDHeader, correlationID)

			if traceID := req.Header.Get(TraceIDHeader); traceID != "" {
				ctx = appcore.WithTraceID(ctx, traceID)
			}

			if userID := req.Header.Get(UserIDHeader); userID != "" {
				ctx = appcore.WithUserID(ctx, userID)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
