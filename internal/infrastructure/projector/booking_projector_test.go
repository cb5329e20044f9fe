package projector_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/domain/uuid"
	"github.com/voyatra/voyatra/internal/infrastructure/projector"
)

func bookingEvent(eventType event.Type, version int, data map[string]any) event.Event {
	return event.Event{
		ID:            uuid.NewUUID(),
		Type:          eventType,
		AggregateID:   "b1",
		AggregateType: projector.BookingAggregateType,
		Version:       version,
		Data:          data,
		UserID:        "user-1",
		Timestamp:     time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(version) * time.Minute),
	}
}

func TestApplyBookingEvent_Lifecycle(t *testing.T) {
	var state projector.BookingState

	state = projector.ApplyBookingEvent(state, bookingEvent(event.TypeBookingCreated, 1, map[string]any{
		"hotel_id":  "hotel-42",
		"check_in":  "2026-06-10",
		"check_out": "2026-06-15",
	}))

	assert.Equal(t, "b1", state.BookingID)
	assert.Equal(t, "created", state.Status)
	assert.Equal(t, "hotel-42", state.HotelID)
	assert.Equal(t, "2026-06-10", state.CheckIn)
	assert.Equal(t, "user-1", state.UserID)
	assert.Equal(t, 1, state.Version)

	state = projector.ApplyBookingEvent(state, bookingEvent(event.TypeBookingConfirmed, 2, map[string]any{}))
	assert.Equal(t, "confirmed", state.Status)
	assert.Equal(t, 2, state.Version)

	state = projector.ApplyBookingEvent(state, bookingEvent(event.TypeBookingCompleted, 3, map[string]any{}))
	assert.Equal(t, "completed", state.Status)
	assert.Equal(t, 3, state.Version)

	// Payload fields from creation survive later status changes.
	assert.Equal(t, "hotel-42", state.HotelID)
}

func TestApplyBookingEvent_Cancellation(t *testing.T) {
	var state projector.BookingState

	state = projector.ApplyBookingEvent(state, bookingEvent(event.TypeBookingCreated, 1, map[string]any{
		"hotel_id": "hotel-7",
	}))
	state = projector.ApplyBookingEvent(state, bookingEvent(event.TypeBookingCancelled, 2, map[string]any{
		"reason": "customer request",
	}))

	assert.Equal(t, "cancelled", state.Status)
	assert.Equal(t, 2, state.Version)
}

func TestApplyBookingEvent_Deterministic(t *testing.T) {
	history := []event.Event{
		bookingEvent(event.TypeBookingCreated, 1, map[string]any{"hotel_id": "hotel-1"}),
		bookingEvent(event.TypeBookingConfirmed, 2, map[string]any{}),
		bookingEvent(event.TypeBookingCancelled, 3, map[string]any{}),
	}

	fold := func() projector.BookingState {
		var s projector.BookingState
		for _, evt := range history {
			s = projector.ApplyBookingEvent(s, evt)
		}
		return s
	}

	assert.Equal(t, fold(), fold())
}

func TestApplyBookingEvent_IgnoresUnknownPayloadShapes(t *testing.T) {
	var state projector.BookingState

	// Non-string hotel_id is skipped rather than panicking.
	state = projector.ApplyBookingEvent(state, bookingEvent(event.TypeBookingCreated, 1, map[string]any{
		"hotel_id": 12345,
	}))

	assert.Empty(t, state.HotelID)
	assert.Equal(t, "created", state.Status)
}
