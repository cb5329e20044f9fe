package eventstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/infrastructure/eventstore"
)

func TestAuditQueries_UserActivity(t *testing.T) {
	store := newTestStore()
	audit := eventstore.NewAuditQueries(store)
	ctx := context.Background()

	_, err := store.Append(ctx, event.Draft{
		Type:          event.TypeBookingCreated,
		AggregateID:   "b1",
		AggregateType: "Booking",
		Data:          map[string]any{"hotel_id": "h-1"},
		UserID:        "user-1",
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, event.Draft{
		Type:          event.TypePaymentAuthorized,
		AggregateID:   "p1",
		AggregateType: "Payment",
		Data:          map[string]any{"amount": 120.0},
		UserID:        "user-1",
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, event.Draft{
		Type:          event.TypeBookingCreated,
		AggregateID:   "b2",
		AggregateType: "Booking",
		Data:          map[string]any{"hotel_id": "h-2"},
		UserID:        "user-2",
	})
	require.NoError(t, err)

	records, err := audit.UserActivity(ctx, "user-1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)

	// Newest first, only user-1's trail.
	require.Len(t, records, 2)
	assert.Equal(t, "payment.authorized", records[0]["event_type"])
	assert.Equal(t, "booking.created", records[1]["event_type"])
	assert.Equal(t, "user-1", records[0]["user_id"])
}

func TestAuditQueries_AggregateHistory(t *testing.T) {
	store := newTestStore()
	audit := eventstore.NewAuditQueries(store)
	ctx := context.Background()

	for _, eventType := range []event.Type{
		event.TypeBookingCreated,
		event.TypeBookingConfirmed,
		event.TypeBookingCompleted,
	} {
		_, err := store.Append(ctx, event.Draft{
			Type:          eventType,
			AggregateID:   "b1",
			AggregateType: "Booking",
			Data:          map[string]any{"step": eventType.String()},
		})
		require.NoError(t, err)
	}

	records, err := audit.AggregateHistory(ctx, "Booking", "b1")
	require.NoError(t, err)

	// Full history in version order.
	require.Len(t, records, 3)
	assert.Equal(t, 1, records[0]["event_version"])
	assert.Equal(t, 2, records[1]["event_version"])
	assert.Equal(t, 3, records[2]["event_version"])
	assert.Equal(t, "booking.created", records[0]["event_type"])
	assert.Equal(t, "booking.completed", records[2]["event_type"])
}

func TestAuditQueries_AggregateHistory_Empty(t *testing.T) {
	store := newTestStore()
	audit := eventstore.NewAuditQueries(store)

	records, err := audit.AggregateHistory(context.Background(), "Booking", "missing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAuditQueries_ErrorHistory(t *testing.T) {
	store := newTestStore()
	audit := eventstore.NewAuditQueries(store)
	ctx := context.Background()

	_, err := store.Append(ctx, event.Draft{
		Type:          event.TypePaymentFailed,
		AggregateID:   "p1",
		AggregateType: "Payment",
		Data:          map[string]any{"reason": "card declined"},
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, event.Draft{
		Type:          event.TypeSystemError,
		AggregateID:   "svc-pricing",
		AggregateType: "System",
		Data:          map[string]any{"message": "upstream timeout"},
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, event.Draft{
		Type:          event.TypeBookingCreated,
		AggregateID:   "b1",
		AggregateType: "Booking",
		Data:          map[string]any{"hotel_id": "h-1"},
	})
	require.NoError(t, err)

	records, err := audit.ErrorHistory(ctx, time.Time{}, time.Time{}, 10)
	require.NoError(t, err)

	// Only error-class events, merged across types, newest first.
	require.Len(t, records, 2)
	assert.Equal(t, "system.error", records[0]["event_type"])
	assert.Equal(t, "payment.failed", records[1]["event_type"])
}

func TestAuditQueries_ErrorHistory_Limit(t *testing.T) {
	store := newTestStore()
	audit := eventstore.NewAuditQueries(store)
	ctx := context.Background()

	for i := range 4 {
		_, err := store.Append(ctx, event.Draft{
			Type:          event.TypeSystemError,
			AggregateID:   "svc",
			AggregateType: "System",
			Data:          map[string]any{"n": i},
		})
		require.NoError(t, err)
	}

	records, err := audit.ErrorHistory(ctx, time.Time{}, time.Time{}, 2)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, map[string]any{"n": 3}, records[0]["event_data"])
}
