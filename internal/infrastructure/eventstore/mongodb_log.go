package eventstore

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

// MongoEventLog implements EventLog using MongoDB. Version uniqueness is
// enforced by the unique index on (aggregate_type, aggregate_id, version);
// a duplicate key error on insert signals a racing writer.
type MongoEventLog struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// MongoOption configures MongoEventLog.
type MongoOption func(*MongoEventLog)

// WithMongoLogger sets the logger for the event log.
func WithMongoLogger(logger *slog.Logger) MongoOption {
	return func(l *MongoEventLog) {
		l.logger = logger
	}
}

// NewMongoEventLog creates a new MongoDB-backed event log.
func NewMongoEventLog(collection *mongo.Collection, opts ...MongoOption) *MongoEventLog {
	l := &MongoEventLog{
		collection: collection,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Insert persists one event. Returns ErrVersionConflict when the unique
// index rejects the version.
func (l *MongoEventLog) Insert(ctx context.Context, evt event.Event) error {
	_, err := l.collection.InsertOne(ctx, toDocument(evt))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			l.logger.WarnContext(ctx, "duplicate version on insert",
				slog.String("aggregate_type", evt.AggregateType),
				slog.String("aggregate_id", evt.AggregateID),
				slog.Int("version", evt.Version),
			)
			return ErrVersionConflict
		}
		l.logger.ErrorContext(ctx, "failed to insert event",
			slog.String("aggregate_type", evt.AggregateType),
			slog.String("aggregate_id", evt.AggregateID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// MaxVersion returns the highest version for an aggregate, 0 if none.
func (l *MongoEventLog) MaxVersion(ctx context.Context, aggregateType, aggregateID string) (int, error) {
	filter := bson.M{"aggregate_type": aggregateType, "aggregate_id": aggregateID}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "version", Value: -1}}).
		SetProjection(bson.M{"version": 1})

	var doc struct {
		Version int `bson:"version"`
	}
	err := l.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read max version: %w", err)
	}

	return doc.Version, nil
}

// Events returns an aggregate's events ascending by version, optionally
// bounded by fromVersion/toVersion.
func (l *MongoEventLog) Events(
	ctx context.Context,
	aggregateType, aggregateID string,
	fromVersion, toVersion int,
) ([]event.Event, error) {
	filter := bson.M{"aggregate_type": aggregateType, "aggregate_id": aggregateID}

	versionFilter := bson.M{}
	if fromVersion > 0 {
		versionFilter["$gte"] = fromVersion
	}
	if toVersion > 0 {
		versionFilter["$lte"] = toVersion
	}
	if len(versionFilter) > 0 {
		filter["version"] = versionFilter
	}

	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})

	return l.find(ctx, filter, opts)
}

// EventsByType returns events of one type descending by timestamp.
func (l *MongoEventLog) EventsByType(
	ctx context.Context,
	eventType event.Type,
	start, end time.Time,
	limit int,
) ([]event.Event, error) {
	filter := bson.M{"event_type": eventType.String()}
	applyTimeRange(filter, start, end)

	return l.find(ctx, filter, timeOrderedOpts(limit))
}

// EventsByUser returns events caused by one actor descending by timestamp.
func (l *MongoEventLog) EventsByUser(
	ctx context.Context,
	userID string,
	start, end time.Time,
	limit int,
) ([]event.Event, error) {
	filter := bson.M{"user_id": userID}
	applyTimeRange(filter, start, end)

	return l.find(ctx, filter, timeOrderedOpts(limit))
}

// find executes a query and decodes the result set.
func (l *MongoEventLog) find(
	ctx context.Context,
	filter bson.M,
	opts *options.FindOptionsBuilder,
) ([]event.Event, error) {
	cursor, err := l.collection.Find(ctx, filter, opts)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to query event log",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*eventDocument
	if err = cursor.All(ctx, &docs); err != nil {
		l.logger.ErrorContext(ctx, "failed to decode events",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	return toEvents(docs), nil
}

// applyTimeRange adds timestamp bounds to a filter. Zero times are unbounded.
func applyTimeRange(filter bson.M, start, end time.Time) {
	timeFilter := bson.M{}
	if !start.IsZero() {
		timeFilter["$gte"] = start
	}
	if !end.IsZero() {
		timeFilter["$lte"] = end
	}
	if len(timeFilter) > 0 {
		filter["timestamp"] = timeFilter
	}
}

// timeOrderedOpts builds find options for newest-first, limit-bounded scans.
func timeOrderedOpts(limit int) *options.FindOptionsBuilder {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	return options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))
}
