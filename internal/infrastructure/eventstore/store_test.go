package eventstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyatra/voyatra/internal/application/appcore"
	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/infrastructure/eventstore"
)

func newTestStore(opts ...eventstore.StoreOption) *eventstore.Store {
	return eventstore.NewStore(eventstore.NewMemoryEventLog(), opts...)
}

func bookingDraft(aggregateID string) event.Draft {
	return event.Draft{
		Type:          event.TypeBookingCreated,
		AggregateID:   aggregateID,
		AggregateType: "Booking",
		Data:          map[string]any{"hotel_id": "h-1", "nights": 2},
		UserID:        "user-1",
	}
}

// recordingProjection captures every event it receives, optionally failing.
type recordingProjection struct {
	name   string
	mu     sync.Mutex
	events []event.Event
	fail   error
	panics bool
}

func (p *recordingProjection) Name() string { return p.name }

func (p *recordingProjection) Handle(_ context.Context, evt event.Event) error {
	if p.panics {
		panic("projection blew up")
	}

	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()

	return p.fail
}

func (p *recordingProjection) seen() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]event.Event, len(p.events))
	copy(out, p.events)
	return out
}

func TestStore_Append_AssignsSequentialVersions(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	// Act
	first, err := store.Append(ctx, event.Draft{
		Type:          event.TypeUserCreated,
		AggregateID:   "u1",
		AggregateType: "User",
		Data:          map[string]any{"email": "a@example.com"},
	})
	require.NoError(t, err)

	second, err := store.Append(ctx, event.Draft{
		Type:          event.TypeUserUpdated,
		AggregateID:   "u1",
		AggregateType: "User",
		Data:          map[string]any{"email": "b@example.com"},
	})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Timestamp.IsZero())
}

func TestStore_Append_PopulatesContextIdentifiers(t *testing.T) {
	store := newTestStore()

	ctx := appcore.WithCorrelationID(context.Background(), "corr-9")
	ctx = appcore.WithTraceID(ctx, "trace-9")

	evt, err := store.Append(ctx, bookingDraft("b1"))
	require.NoError(t, err)

	assert.Equal(t, "corr-9", evt.CorrelationID)
	assert.Equal(t, "trace-9", evt.TraceID)
	assert.Equal(t, "user-1", evt.UserID)
}

func TestStore_Append_ActorFallsBackToContextUser(t *testing.T) {
	store := newTestStore()

	draft := bookingDraft("b-actor")
	draft.UserID = ""
	ctx := appcore.WithUserID(context.Background(), "user-42")

	evt, err := store.Append(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, "user-42", evt.UserID)

	trail, err := store.GetUserEvents(context.Background(), "user-42", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, evt.ID, trail[0].ID)
}

func TestStore_Append_DraftUserWinsOverContextUser(t *testing.T) {
	store := newTestStore()

	ctx := appcore.WithUserID(context.Background(), "impersonator")
	evt, err := store.Append(ctx, bookingDraft("b-actor-2"))
	require.NoError(t, err)

	assert.Equal(t, "user-1", evt.UserID)
}

func TestStore_Append_RejectsInvalidDraft(t *testing.T) {
	store := newTestStore()

	tests := []struct {
		name  string
		draft event.Draft
	}{
		{"unknown type", event.Draft{
			Type: "nope", AggregateID: "a", AggregateType: "A",
			Data: map[string]any{"x": 1},
		}},
		{"missing aggregate id", event.Draft{
			Type: event.TypeUserCreated, AggregateType: "A",
			Data: map[string]any{"x": 1},
		}},
		{"empty data", event.Draft{
			Type: event.TypeUserCreated, AggregateID: "a", AggregateType: "A",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Append(context.Background(), tt.draft)
			require.Error(t, err)
			assert.ErrorIs(t, err, appcore.ErrInvalidInput)
		})
	}

	// Nothing persisted
	events, err := store.GetEvents(context.Background(), "A", "a", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStore_Append_CancelledContext(t *testing.T) {
	store := newTestStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Append(ctx, bookingDraft("b1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appcore.ErrStorageFailure)

	events, getErr := store.GetEvents(context.Background(), "Booking", "b1", 0, 0)
	require.NoError(t, getErr)
	assert.Empty(t, events)
}

func TestStore_ConcurrentAppends_SameAggregate(t *testing.T) {
	store := newTestStore(eventstore.WithAppendRetries(50))
	ctx := context.Background()

	const writers = 20

	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := range writers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = store.Append(ctx, event.Draft{
				Type:          event.TypeBookingConfirmed,
				AggregateID:   "b1",
				AggregateType: "Booking",
				Data:          map[string]any{"writer": n},
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// K concurrent appends yield K events with distinct consecutive versions.
	events, err := store.GetEvents(ctx, "Booking", "b1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, writers)

	for i, evt := range events {
		assert.Equal(t, i+1, evt.Version)
	}
}

func TestStore_Append_ConflictAfterRetryBudget(t *testing.T) {
	log := eventstore.NewMemoryEventLog()
	store := eventstore.NewStore(log, eventstore.WithAppendRetries(2))
	ctx := context.Background()

	// Occupy versions 1..10 so a writer that saw max=0 keeps colliding.
	for i := 1; i <= 10; i++ {
		require.NoError(t, log.Insert(ctx, event.Event{
			Type:          event.TypeBookingCreated,
			AggregateID:   "b1",
			AggregateType: "Booking",
			Version:       i,
			Data:          map[string]any{"n": i},
			Timestamp:     time.Now(),
		}))
	}

	// A fresh append succeeds: each attempt recomputes the max version.
	evt, err := store.Append(ctx, bookingDraft("b1"))
	require.NoError(t, err)
	assert.Equal(t, 11, evt.Version)
}

func TestStore_HandlerFanout(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	var order []string
	var mu sync.Mutex
	record := func(name string) eventstore.Handler {
		return func(_ context.Context, _ event.Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	store.RegisterHandler(event.TypeBookingCreated, record("first"))
	store.RegisterHandler(event.TypeBookingCreated, record("second"))
	store.RegisterHandler(event.TypeBookingCancelled, record("other-type"))

	_, err := store.Append(ctx, bookingDraft("b1"))
	require.NoError(t, err)

	// Handlers run in registration order; unrelated types are skipped.
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestStore_FailingHandler_DoesNotAffectAppend(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	var secondRan bool
	store.RegisterHandler(event.TypeBookingCreated, func(_ context.Context, _ event.Event) error {
		return errors.New("notification service down")
	})
	store.RegisterHandler(event.TypeBookingCreated, func(_ context.Context, _ event.Event) error {
		secondRan = true
		return nil
	})

	evt, err := store.Append(ctx, bookingDraft("b1"))

	// The append succeeds and later handlers still run.
	require.NoError(t, err)
	assert.Equal(t, 1, evt.Version)
	assert.True(t, secondRan)

	events, err := store.GetEvents(ctx, "Booking", "b1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_PanickingProjection_IsIsolated(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	bad := &recordingProjection{name: "bad", panics: true}
	good := &recordingProjection{name: "good"}
	store.RegisterProjection(bad)
	store.RegisterProjection(good)

	_, err := store.Append(ctx, bookingDraft("b1"))
	require.NoError(t, err)

	// The panicking projection never blocks the good one.
	assert.Len(t, good.seen(), 1)

	// Subsequent reads are not corrupted.
	events, err := store.GetEvents(ctx, "Booking", "b1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_ProjectionFailureHook(t *testing.T) {
	var hookedProjection string
	var hookedErr error

	store := newTestStore(eventstore.WithProjectionFailureHook(
		func(_ context.Context, name string, _ event.Event, err error) {
			hookedProjection = name
			hookedErr = err
		},
	))

	failing := &recordingProjection{name: "booking_read_model", fail: errors.New("write failed")}
	store.RegisterProjection(failing)

	_, err := store.Append(context.Background(), bookingDraft("b1"))
	require.NoError(t, err)

	assert.Equal(t, "booking_read_model", hookedProjection)
	require.Error(t, hookedErr)
}

func TestStore_ProjectionsReceiveEveryEvent_InAppendOrder(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	projection := &recordingProjection{name: "stats"}
	store.RegisterProjection(projection)

	_, err := store.Append(ctx, bookingDraft("b1"))
	require.NoError(t, err)
	_, err = store.Append(ctx, event.Draft{
		Type:          event.TypeUserCreated,
		AggregateID:   "u1",
		AggregateType: "User",
		Data:          map[string]any{"email": "x@example.com"},
	})
	require.NoError(t, err)

	seen := projection.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, event.TypeBookingCreated, seen[0].Type)
	assert.Equal(t, event.TypeUserCreated, seen[1].Type)
}

func TestStore_GetEvents_VersionBounds(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	for range 5 {
		_, err := store.Append(ctx, bookingDraft("b1"))
		require.NoError(t, err)
	}

	events, err := store.GetEvents(ctx, "Booking", "b1", 2, 4)
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, 2, events[0].Version)
	assert.Equal(t, 3, events[1].Version)
	assert.Equal(t, 4, events[2].Version)
}

func TestStore_GetEventsByType_RespectsLimit(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	for i := range 5 {
		_, err := store.Append(ctx, event.Draft{
			Type:          event.TypeBookingConfirmed,
			AggregateID:   "b" + string(rune('a'+i)),
			AggregateType: "Booking",
			Data:          map[string]any{"n": i},
		})
		require.NoError(t, err)
	}

	events, err := store.GetEventsByType(ctx, event.TypeBookingConfirmed, time.Time{}, time.Time{}, 1)
	require.NoError(t, err)

	// Exactly one result, the most recent by timestamp.
	require.Len(t, events, 1)
	assert.Equal(t, map[string]any{"n": 4}, events[0].Data)
}

func TestStore_GetUserEvents(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	draft := bookingDraft("b1")
	_, err := store.Append(ctx, draft)
	require.NoError(t, err)

	other := bookingDraft("b2")
	other.UserID = "user-2"
	_, err = store.Append(ctx, other)
	require.NoError(t, err)

	events, err := store.GetUserEvents(ctx, "user-1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "b1", events[0].AggregateID)
}

func TestStore_RepeatedReads_AreIdentical(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	for range 3 {
		_, err := store.Append(ctx, bookingDraft("b1"))
		require.NoError(t, err)
	}

	first, err := store.GetEvents(ctx, "Booking", "b1", 0, 0)
	require.NoError(t, err)

	// Mutating a returned event must not leak into the log.
	first[0].Data["hotel_id"] = "tampered"

	second, err := store.GetEvents(ctx, "Booking", "b1", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "h-1", second[0].Data["hotel_id"])
	require.Len(t, second, 3)
}

func TestStore_ReplayDeterminism(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	amounts := []float64{100, 250, 75}
	for _, amount := range amounts {
		_, err := store.Append(ctx, event.Draft{
			Type:          event.TypeCommissionCalculated,
			AggregateID:   "c1",
			AggregateType: "Commission",
			Data:          map[string]any{"amount": amount},
		})
		require.NoError(t, err)
	}

	// Fold the history through the same reducer twice.
	reduce := func(events []event.Event) float64 {
		total := 0.0
		for _, evt := range events {
			total += evt.Data["amount"].(float64)
		}
		return total
	}

	firstPass, err := store.GetEvents(ctx, "Commission", "c1", 0, 0)
	require.NoError(t, err)
	secondPass, err := store.GetEvents(ctx, "Commission", "c1", 0, 0)
	require.NoError(t, err)

	assert.InDelta(t, 425.0, reduce(firstPass), 0)
	assert.InDelta(t, reduce(firstPass), reduce(secondPass), 0)
}
