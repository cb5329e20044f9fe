// Package projector contains read model projections driven by the event
// store's fan-out, plus rebuild tooling that re-derives a read model from
// the event log alone.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/voyatra/voyatra/internal/application/appcore"
	"github.com/voyatra/voyatra/internal/domain/event"
)

// BookingAggregateType is the aggregate type handled by BookingProjector.
const BookingAggregateType = "Booking"

// BookingProjectionName identifies the projection in fan-out failure
// reports and repair tasks.
const BookingProjectionName = "booking_read_model"

// EventSource loads an aggregate's event history for rebuilds.
type EventSource interface {
	GetEvents(ctx context.Context, aggregateType, aggregateID string, fromVersion, toVersion int) ([]event.Event, error)
}

// BookingState is the state of one booking derived purely from its events.
type BookingState struct {
	BookingID string
	UserID    string
	HotelID   string
	CheckIn   string
	CheckOut  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// ApplyBookingEvent folds a single event into the state. It is a pure
// function so a rebuild from the same history always yields the same state.
func ApplyBookingEvent(state BookingState, evt event.Event) BookingState {
	state.BookingID = evt.AggregateID
	state.Version = evt.Version
	state.UpdatedAt = evt.Timestamp

	switch evt.Type {
	case event.TypeBookingCreated:
		state.Status = "created"
		state.CreatedAt = evt.Timestamp
		if evt.UserID != "" {
			state.UserID = evt.UserID
		}
		if v, ok := evt.Data["hotel_id"].(string); ok {
			state.HotelID = v
		}
		if v, ok := evt.Data["check_in"].(string); ok {
			state.CheckIn = v
		}
		if v, ok := evt.Data["check_out"].(string); ok {
			state.CheckOut = v
		}
	case event.TypeBookingConfirmed:
		state.Status = "confirmed"
	case event.TypeBookingCancelled:
		state.Status = "cancelled"
	case event.TypeBookingCompleted:
		state.Status = "completed"
	}

	return state
}

// BookingProjector maintains the booking_read_model collection.
type BookingProjector struct {
	events        EventSource
	readModelColl *mongo.Collection
	logger        *slog.Logger
}

// NewBookingProjector creates a new booking projector.
func NewBookingProjector(
	events EventSource,
	readModelColl *mongo.Collection,
	logger *slog.Logger,
) *BookingProjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingProjector{
		events:        events,
		readModelColl: readModelColl,
		logger:        logger,
	}
}

// Name identifies the projection.
func (p *BookingProjector) Name() string { return BookingProjectionName }

// Handle applies a single stored event to the read model. The whole state
// is re-derived from the log so a previously missed event cannot leave the
// read model permanently stale.
func (p *BookingProjector) Handle(ctx context.Context, evt event.Event) error {
	if evt.AggregateType != BookingAggregateType {
		return nil
	}

	return p.RebuildOne(ctx, evt.AggregateID)
}

// RebuildOne rebuilds the read model for a single booking from its events.
func (p *BookingProjector) RebuildOne(ctx context.Context, bookingID string) error {
	events, err := p.events.GetEvents(ctx, BookingAggregateType, bookingID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to load events for booking %s: %w", bookingID, err)
	}

	if len(events) == 0 {
		return appcore.ErrAggregateNotFound
	}

	var state BookingState
	for _, evt := range events {
		state = ApplyBookingEvent(state, evt)
	}

	if updateErr := p.updateReadModel(ctx, state); updateErr != nil {
		return fmt.Errorf("failed to update read model: %w", updateErr)
	}

	p.logger.DebugContext(ctx, "rebuilt booking read model",
		slog.String("booking_id", bookingID),
		slog.Int("events_applied", len(events)),
		slog.Int("version", state.Version),
	)

	return nil
}

// RebuildAll rebuilds read models for every booking found in the event log.
func (p *BookingProjector) RebuildAll(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting rebuild of all booking read models")

	bookingIDs, err := p.allBookingIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list booking IDs: %w", err)
	}

	successCount := 0
	failCount := 0

	for _, id := range bookingIDs {
		if rebuildErr := p.RebuildOne(ctx, id); rebuildErr != nil {
			p.logger.ErrorContext(ctx, "failed to rebuild booking",
				slog.String("booking_id", id),
				slog.String("error", rebuildErr.Error()),
			)
			failCount++
			continue
		}
		successCount++
	}

	p.logger.InfoContext(ctx, "completed rebuild of all booking read models",
		slog.Int("total", len(bookingIDs)),
		slog.Int("success", successCount),
		slog.Int("failed", failCount),
	)

	if failCount > 0 {
		return fmt.Errorf("rebuild completed with %d failures out of %d total", failCount, len(bookingIDs))
	}

	return nil
}

// VerifyConsistency checks whether the stored read model matches the state
// derived from the event log.
func (p *BookingProjector) VerifyConsistency(ctx context.Context, bookingID string) (bool, error) {
	events, err := p.events.GetEvents(ctx, BookingAggregateType, bookingID, 0, 0)
	if err != nil {
		return false, fmt.Errorf("failed to load events: %w", err)
	}

	filter := bson.M{"booking_id": bookingID}

	if len(events) == 0 {
		count, countErr := p.readModelColl.CountDocuments(ctx, filter)
		if countErr != nil {
			return false, fmt.Errorf("failed to count read model documents: %w", countErr)
		}
		// No events and no document is the consistent case.
		return count == 0, nil
	}

	var expected BookingState
	for _, evt := range events {
		expected = ApplyBookingEvent(expected, evt)
	}

	var actual bson.M
	err = p.readModelColl.FindOne(ctx, filter).Decode(&actual)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			p.logger.WarnContext(ctx, "read model missing for booking with events",
				slog.String("booking_id", bookingID),
				slog.Int("events_count", len(events)),
			)
			return false, nil
		}
		return false, fmt.Errorf("failed to load read model: %w", err)
	}

	consistent := actual["status"] == expected.Status &&
		toInt(actual["version"]) == expected.Version

	if !consistent {
		p.logger.WarnContext(ctx, "read model inconsistency detected",
			slog.String("booking_id", bookingID),
			slog.String("expected_status", expected.Status),
			slog.Any("actual_status", actual["status"]),
		)
	}

	return consistent, nil
}

func (p *BookingProjector) updateReadModel(ctx context.Context, state BookingState) error {
	if state.BookingID == "" {
		return errors.New("invalid booking ID")
	}

	doc := bson.M{
		"booking_id": state.BookingID,
		"user_id":    state.UserID,
		"hotel_id":   state.HotelID,
		"check_in":   state.CheckIn,
		"check_out":  state.CheckOut,
		"status":     state.Status,
		"created_at": state.CreatedAt,
		"updated_at": state.UpdatedAt,
		"version":    state.Version,
	}

	filter := bson.M{"booking_id": state.BookingID}
	update := bson.M{"$set": doc}
	opts := options.UpdateOne().SetUpsert(true)

	_, err := p.readModelColl.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert read model: %w", err)
	}

	return nil
}

// allBookingIDs retrieves all unique booking IDs from the events collection.
func (p *BookingProjector) allBookingIDs(ctx context.Context) ([]string, error) {
	eventsColl := p.readModelColl.Database().Collection("events")

	filter := bson.M{"aggregate_type": BookingAggregateType}
	result := eventsColl.Distinct(ctx, "aggregate_id", filter)

	var ids []string
	if err := result.Decode(&ids); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate IDs: %w", err)
	}

	return ids, nil
}

// toInt normalizes the numeric types the driver may decode a version into.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}
