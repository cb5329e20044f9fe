// Package httphandler contains the HTTP handlers for the public API.
package httphandler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/infrastructure/httpserver"
)

// maxQueryLimit caps the limit query parameter to keep responses bounded.
const maxQueryLimit = 1000

// AppendEventRequest represents the request to append a new event.
type AppendEventRequest struct {
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Data          map[string]any    `json:"event_data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// EventStore defines the store operations the handler needs.
// Declared on the consumer side per project guidelines.
type EventStore interface {
	Append(ctx context.Context, draft event.Draft) (*event.Event, error)
	GetEvents(ctx context.Context, aggregateType, aggregateID string, fromVersion, toVersion int) ([]event.Event, error)
	GetEventsByType(ctx context.Context, eventType event.Type, start, end time.Time, limit int) ([]event.Event, error)
	GetUserEvents(ctx context.Context, userID string, start, end time.Time, limit int) ([]event.Event, error)
}

// EventHandler handles event append and query HTTP requests.
type EventHandler struct {
	store EventStore
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(store EventStore) *EventHandler {
	return &EventHandler{store: store}
}

// RegisterRoutes registers event routes with the router.
func (h *EventHandler) RegisterRoutes(r *httpserver.Router) {
	r.API().POST("/events", h.Append)
	r.API().GET("/events", h.ListByType)
	r.API().GET("/aggregates/:type/:id/events", h.ListForAggregate)
	r.API().GET("/users/:id/events", h.ListForUser)
}

// Append handles POST /api/v1/events.
// The acting user and correlation identifiers come from the request
// context; the client network details are recorded in the metadata.
func (h *EventHandler) Append(c echo.Context) error {
	var req AppendEventRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	draft := event.Draft{
		Type:          event.Type(req.EventType),
		AggregateID:   req.AggregateID,
		AggregateType: req.AggregateType,
		Data:          req.Data,
		Metadata:      enrichMetadata(c, req.Metadata),
	}

	evt, err := h.store.Append(c.Request().Context(), draft)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondCreated(c, evt)
}

// ListForAggregate handles GET /api/v1/aggregates/:type/:id/events.
// Returns the aggregate's events ascending by version, optionally
// bounded by from_version/to_version.
func (h *EventHandler) ListForAggregate(c echo.Context) error {
	aggregateType := c.Param("type")
	aggregateID := c.Param("id")

	fromVersion, err := intQueryParam(c, "from_version")
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_VERSION", "from_version must be a non-negative integer")
	}
	toVersion, err := intQueryParam(c, "to_version")
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_VERSION", "to_version must be a non-negative integer")
	}

	events, err := h.store.GetEvents(c.Request().Context(), aggregateType, aggregateID, fromVersion, toVersion)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, events)
}

// ListByType handles GET /api/v1/events?type=...&start=...&end=...&limit=...
// Returns events of one type inside the time window, newest first.
func (h *EventHandler) ListByType(c echo.Context) error {
	eventType := event.Type(c.QueryParam("type"))
	if !event.IsKnownType(eventType) {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "UNKNOWN_EVENT_TYPE", "type must name a registered event type")
	}

	window, limit, err := timeWindowParams(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
	}

	events, err := h.store.GetEventsByType(c.Request().Context(), eventType, window.start, window.end, limit)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, events)
}

// ListForUser handles GET /api/v1/users/:id/events.
// Returns events caused by one actor inside the time window, newest first.
func (h *EventHandler) ListForUser(c echo.Context) error {
	userID := c.Param("id")

	window, limit, err := timeWindowParams(c)
	if err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
	}

	events, err := h.store.GetUserEvents(c.Request().Context(), userID, window.start, window.end, limit)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, events)
}

// enrichMetadata adds the client network details the append API captures
// for every event. Client-supplied keys are preserved.
func enrichMetadata(c echo.Context, metadata map[string]string) map[string]string {
	enriched := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		enriched[k] = v
	}

	if ip := c.RealIP(); ip != "" {
		enriched["ip_address"] = ip
	}
	if ua := c.Request().UserAgent(); ua != "" {
		enriched["user_agent"] = ua
	}

	return enriched
}
