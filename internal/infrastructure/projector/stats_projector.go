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

	"github.com/voyatra/voyatra/internal/domain/event"
)

// StatsProjectionName identifies the daily stats projection.
const StatsProjectionName = "event_daily_stats"

const dayFormat = "2006-01-02"

// StatsProjector maintains per-day event counts in the event_daily_stats
// collection. Handle's increments are not idempotent - re-delivering an
// event double-counts - so recovery goes through RebuildAll, which
// re-derives every counter from the event log.
type StatsProjector struct {
	statsColl  *mongo.Collection
	eventsColl *mongo.Collection
	logger     *slog.Logger
}

// NewStatsProjector creates a new daily stats projector. The events
// collection backs RebuildAll.
func NewStatsProjector(statsColl, eventsColl *mongo.Collection, logger *slog.Logger) *StatsProjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsProjector{
		statsColl:  statsColl,
		eventsColl: eventsColl,
		logger:     logger,
	}
}

// Name identifies the projection.
func (p *StatsProjector) Name() string { return StatsProjectionName }

// Handle increments the counter for the event's type and day.
func (p *StatsProjector) Handle(ctx context.Context, evt event.Event) error {
	day := evt.Timestamp.UTC().Format(dayFormat)

	filter := bson.M{
		"event_type": evt.Type.String(),
		"day":        day,
	}
	update := bson.M{
		"$inc": bson.M{"count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.UpdateOne().SetUpsert(true)

	if _, err := p.statsColl.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to increment daily stats: %w", err)
	}

	p.logger.DebugContext(ctx, "daily stats updated",
		slog.String("event_type", evt.Type.String()),
		slog.String("day", day),
	)

	return nil
}

// RebuildAll recomputes every daily counter from the event log, replacing
// whatever the incremental path accumulated.
func (p *StatsProjector) RebuildAll(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "event_type", Value: "$event_type"},
				{Key: "day", Value: bson.D{{Key: "$dateToString", Value: bson.D{
					{Key: "format", Value: "%Y-%m-%d"},
					{Key: "date", Value: "$timestamp"},
				}}}},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := p.eventsColl.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("failed to aggregate daily stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Key struct {
			EventType string `bson:"event_type"`
			Day       string `bson:"day"`
		} `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if decodeErr := cursor.All(ctx, &rows); decodeErr != nil {
		return fmt.Errorf("failed to decode daily stats: %w", decodeErr)
	}

	if _, err := p.statsColl.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear daily stats: %w", err)
	}

	now := time.Now().UTC()
	for _, row := range rows {
		filter := bson.M{
			"event_type": row.Key.EventType,
			"day":        row.Key.Day,
		}
		update := bson.M{
			"$set": bson.M{"count": row.Count, "updated_at": now},
		}
		opts := options.UpdateOne().SetUpsert(true)
		if _, err := p.statsColl.UpdateOne(ctx, filter, update, opts); err != nil {
			return fmt.Errorf("failed to write daily stats: %w", err)
		}
	}

	p.logger.InfoContext(ctx, "daily stats rebuilt",
		slog.Int("days", len(rows)),
	)

	return nil
}

// RebuildOne satisfies the repair worker's rebuilder contract. Daily
// counters are not scoped to one aggregate, so any repair recomputes the
// whole projection.
func (p *StatsProjector) RebuildOne(ctx context.Context, _ string) error {
	return p.RebuildAll(ctx)
}

// CountFor returns the current counter for an event type and day.
func (p *StatsProjector) CountFor(ctx context.Context, eventType event.Type, day time.Time) (int64, error) {
	filter := bson.M{
		"event_type": eventType.String(),
		"day":        day.UTC().Format(dayFormat),
	}

	var doc struct {
		Count int64 `bson:"count"`
	}
	err := p.statsColl.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load daily stats: %w", err)
	}

	return doc.Count, nil
}
