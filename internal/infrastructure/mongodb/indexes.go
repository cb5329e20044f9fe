// Package mongodb provides MongoDB infrastructure components including index management.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names as constants for consistency.
const (
	CollectionEvents           = "events"
	CollectionBookingReadModel = "booking_read_model"
	CollectionDailyStats       = "event_daily_stats"
	CollectionRepairQueue      = "repair_queue"
)

// IndexDefinition describes a MongoDB index to be created.
type IndexDefinition struct {
	Collection string
	Name       string
	Keys       bson.D
	Options    *options.IndexOptionsBuilder
}

// CreateAllIndexes creates all necessary indexes for the application.
// This function is idempotent - calling it multiple times is safe.
func CreateAllIndexes(ctx context.Context, db *mongo.Database) error {
	for _, idx := range GetAllIndexDefinitions() {
		coll := db.Collection(idx.Collection)
		model := mongo.IndexModel{
			Keys:    idx.Keys,
			Options: idx.Options,
		}

		_, err := coll.Indexes().CreateOne(ctx, model)
		if err != nil {
			return fmt.Errorf("failed to create index %s on collection %s: %w",
				idx.Name, idx.Collection, err)
		}
	}

	return nil
}

// GetAllIndexDefinitions returns all index definitions for all collections.
func GetAllIndexDefinitions() []IndexDefinition {
	var indexes []IndexDefinition

	indexes = append(indexes, GetEventIndexes()...)
	indexes = append(indexes, GetBookingReadModelIndexes()...)
	indexes = append(indexes, GetDailyStatsIndexes()...)
	indexes = append(indexes, GetRepairQueueIndexes()...)

	return indexes
}

// GetEventIndexes returns index definitions for the events collection.
func GetEventIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Unique index backing version allocation - a racing writer's
			// insert for a taken (stream, version) pair fails here.
			Collection: CollectionEvents,
			Name:       "idx_events_stream_version_unique",
			Keys: bson.D{
				{Key: "aggregate_type", Value: 1},
				{Key: "aggregate_id", Value: 1},
				{Key: "version", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_events_stream_version_unique"),
		},
		{
			// Store-wide event identity; also backs lookups by event ID.
			Collection: CollectionEvents,
			Name:       "idx_events_event_id_unique",
			Keys:       bson.D{{Key: "event_id", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_events_event_id_unique"),
		},
		{
			// Index for filtering events by type within a time range
			Collection: CollectionEvents,
			Name:       "idx_events_type_time",
			Keys:       bson.D{{Key: "event_type", Value: 1}, {Key: "timestamp", Value: -1}},
			Options:    options.Index().SetName("idx_events_type_time"),
		},
		{
			// Index for the user activity audit query
			Collection: CollectionEvents,
			Name:       "idx_events_user_time",
			Keys:       bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options:    options.Index().SetSparse(true).SetName("idx_events_user_time"),
		},
		{
			// Sparse index for correlation lookups across aggregates
			Collection: CollectionEvents,
			Name:       "idx_events_correlation",
			Keys:       bson.D{{Key: "correlation_id", Value: 1}},
			Options:    options.Index().SetSparse(true).SetName("idx_events_correlation"),
		},
		{
			// Sparse index for distributed trace lookups
			Collection: CollectionEvents,
			Name:       "idx_events_trace",
			Keys:       bson.D{{Key: "trace_id", Value: 1}},
			Options:    options.Index().SetSparse(true).SetName("idx_events_trace"),
		},
	}
}

// GetBookingReadModelIndexes returns index definitions for the booking_read_model collection.
func GetBookingReadModelIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Primary key - one document per booking aggregate
			Collection: CollectionBookingReadModel,
			Name:       "idx_bookings_id_unique",
			Keys:       bson.D{{Key: "booking_id", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_bookings_id_unique"),
		},
		{
			// Index for listing a user's bookings, newest first
			Collection: CollectionBookingReadModel,
			Name:       "idx_bookings_user_time",
			Keys:       bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
			Options:    options.Index().SetName("idx_bookings_user_time"),
		},
		{
			// Index for filtering bookings by status
			Collection: CollectionBookingReadModel,
			Name:       "idx_bookings_status",
			Keys:       bson.D{{Key: "status", Value: 1}},
			Options:    options.Index().SetName("idx_bookings_status"),
		},
	}
}

// GetDailyStatsIndexes returns index definitions for the event_daily_stats collection.
func GetDailyStatsIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// One counter document per event type per day
			Collection: CollectionDailyStats,
			Name:       "idx_daily_stats_type_day_unique",
			Keys:       bson.D{{Key: "event_type", Value: 1}, {Key: "day", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_daily_stats_type_day_unique"),
		},
	}
}

// GetRepairQueueIndexes returns index definitions for the repair_queue collection.
func GetRepairQueueIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Index for polling pending repair tasks in FIFO order
			Collection: CollectionRepairQueue,
			Name:       "idx_repair_status_time",
			Keys:       bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options:    options.Index().SetName("idx_repair_status_time"),
		},
		{
			// Index for deduplicating repairs per projection and aggregate
			Collection: CollectionRepairQueue,
			Name:       "idx_repair_projection_aggregate",
			Keys: bson.D{
				{Key: "projection_name", Value: 1},
				{Key: "aggregate_type", Value: 1},
				{Key: "aggregate_id", Value: 1},
			},
			Options: options.Index().SetName("idx_repair_projection_aggregate"),
		},
	}
}
