package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/voyatra/voyatra/internal/domain/event"
)

const contextTimeout = 30 * time.Second

// NewTestContext creates context with timeout for tests
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), contextTimeout)
	t.Cleanup(cancel)
	return ctx
}

// BookingDraft builds a valid booking event draft for tests.
func BookingDraft(aggregateID string, modifiers ...func(*event.Draft)) event.Draft {
	draft := event.Draft{
		Type:          event.TypeBookingCreated,
		AggregateID:   aggregateID,
		AggregateType: "Booking",
		Data: map[string]any{
			"hotel_id":  "hotel-42",
			"check_in":  "2026-06-01",
			"check_out": "2026-06-05",
		},
		UserID: "user-1",
	}
	for _, modify := range modifiers {
		modify(&draft)
	}
	return draft
}

// WithEventType overrides the draft's event type.
func WithEventType(eventType event.Type) func(*event.Draft) {
	return func(d *event.Draft) { d.Type = eventType }
}

// WithUser overrides the draft's acting user.
func WithUser(userID string) func(*event.Draft) {
	return func(d *event.Draft) { d.UserID = userID }
}

// WithData overrides the draft's payload.
func WithData(data map[string]any) func(*event.Draft) {
	return func(d *event.Draft) { d.Data = data }
}
