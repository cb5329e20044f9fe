package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/voyatra/voyatra/internal/application/appcore"
)

// EventLogChecker verifies the events collection is reachable.
type EventLogChecker struct {
	events *mongo.Collection
}

// NewEventLogChecker creates a new event log health checker.
func NewEventLogChecker(events *mongo.Collection) *EventLogChecker {
	return &EventLogChecker{events: events}
}

// Name returns the name of this health checker.
func (c *EventLogChecker) Name() string {
	return "event_log"
}

// Check performs the health check.
func (c *EventLogChecker) Check(ctx context.Context) appcore.HealthStatus {
	count, err := c.events.EstimatedDocumentCount(ctx)
	if err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to access event log: %v", err),
			CheckedAt: time.Now(),
		}
	}

	return appcore.HealthStatus{
		Healthy:   true,
		Message:   fmt.Sprintf("event log accessible: ~%d events", count),
		Details:   map[string]any{"estimated_events": count},
		CheckedAt: time.Now(),
	}
}

// ReadModelSyncChecker samples recent booking read model documents and
// compares their versions against the event log.
type ReadModelSyncChecker struct {
	events        *mongo.Collection
	bookingModel  *mongo.Collection
	sampleSize    int
	aggregateType string
}

// NewReadModelSyncChecker creates a new read model sync health checker.
func NewReadModelSyncChecker(events, bookingModel *mongo.Collection, sampleSize int) *ReadModelSyncChecker {
	if sampleSize <= 0 {
		sampleSize = 10
	}

	return &ReadModelSyncChecker{
		events:        events,
		bookingModel:  bookingModel,
		sampleSize:    sampleSize,
		aggregateType: "Booking",
	}
}

// Name returns the name of this health checker.
func (c *ReadModelSyncChecker) Name() string {
	return "readmodel_sync"
}

// Check compares read model versions with the event log for a sample of
// recently updated bookings.
func (c *ReadModelSyncChecker) Check(ctx context.Context) appcore.HealthStatus {
	sample, err := c.loadSample(ctx)
	if err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to sample read model: %v", err),
			CheckedAt: time.Now(),
		}
	}

	stale := 0
	for _, doc := range sample {
		bookingID, _ := doc["booking_id"].(string)
		if bookingID == "" {
			continue
		}

		maxVersion, versionErr := c.maxEventVersion(ctx, bookingID)
		if versionErr != nil {
			return appcore.HealthStatus{
				Healthy:   false,
				Message:   fmt.Sprintf("failed to read event log: %v", versionErr),
				CheckedAt: time.Now(),
			}
		}

		if toInt(doc["version"]) < maxVersion {
			stale++
		}
	}

	details := map[string]any{
		"sampled": len(sample),
		"stale":   stale,
	}

	return appcore.HealthStatus{
		Healthy:   stale == 0,
		Message:   fmt.Sprintf("read model sync: %d of %d sampled bookings stale", stale, len(sample)),
		Details:   details,
		CheckedAt: time.Now(),
	}
}

func (c *ReadModelSyncChecker) loadSample(ctx context.Context) ([]bson.M, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "updated_at", Value: -1}}}},
		{{Key: "$limit", Value: c.sampleSize}},
	}

	cursor, err := c.bookingModel.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sample []bson.M
	if decodeErr := cursor.All(ctx, &sample); decodeErr != nil {
		return nil, decodeErr
	}

	return sample, nil
}

func (c *ReadModelSyncChecker) maxEventVersion(ctx context.Context, aggregateID string) (int, error) {
	filter := bson.M{
		"aggregate_type": c.aggregateType,
		"aggregate_id":   aggregateID,
	}

	var doc struct {
		Version int `bson:"version"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "version", Value: -1}}).
		SetProjection(bson.M{"version": 1})
	err := c.events.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}

	return doc.Version, nil
}

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
		return 0
	}
}
