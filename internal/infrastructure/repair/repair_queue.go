// Package repair keeps a durable queue of read model rebuilds that failed
// during synchronous fan-out. The repair worker drains it so a read model
// can always be brought back in line with the event log.
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/voyatra/voyatra/internal/domain/uuid"
)

// Task statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const defaultBatchSize = 10

// staleTaskTimeout is how long a task may sit in the processing state
// before Poll reclaims it. Covers workers that died mid-rebuild.
const staleTaskTimeout = 5 * time.Minute

// Task represents one projection rebuild that needs to be re-applied.
type Task struct {
	ID             string     `bson:"_id,omitempty"`
	ProjectionName string     `bson:"projection_name"`
	AggregateID    string     `bson:"aggregate_id"`
	AggregateType  string     `bson:"aggregate_type"`
	Error          string     `bson:"error"`
	CreatedAt      time.Time  `bson:"created_at"`
	RetryCount     int        `bson:"retry_count"`
	LastRetryAt    *time.Time `bson:"last_retry_at,omitempty"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty"`
	Status         string     `bson:"status"`
}

// Queue manages repair tasks for failed read model updates.
type Queue interface {
	// Add adds a new repair task to the queue.
	Add(ctx context.Context, task Task) error

	// Poll retrieves up to batchSize claimable tasks, oldest first, and
	// marks them processing. Pending tasks are claimable, as are
	// processing tasks whose last attempt is older than the stale
	// timeout. Returned tasks carry the post-claim retry count.
	Poll(ctx context.Context, batchSize int) ([]Task, error)

	// MarkCompleted marks a task as completed.
	MarkCompleted(ctx context.Context, taskID string) error

	// MarkRetry returns a task to the pending state so a later poll
	// attempts it again, recording the error from the failed attempt.
	MarkRetry(ctx context.Context, taskID string, err error) error

	// MarkFailed marks a task as failed and records the error.
	MarkFailed(ctx context.Context, taskID string, err error) error

	// GetStats returns queue statistics.
	GetStats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains statistics about the repair queue.
type QueueStats struct {
	PendingCount    int64
	ProcessingCount int64
	CompletedCount  int64
	FailedCount     int64
	TotalCount      int64
}

// MongoQueue implements Queue using MongoDB.
type MongoQueue struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoQueue creates a new MongoDB-based repair queue.
func NewMongoQueue(collection *mongo.Collection, logger *slog.Logger) *MongoQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoQueue{
		collection: collection,
		logger:     logger,
	}
}

// Add adds a new repair task to the queue.
func (q *MongoQueue) Add(ctx context.Context, task Task) error {
	if task.ID == "" {
		task.ID = uuid.NewUUID().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.Status == "" {
		task.Status = StatusPending
	}

	_, err := q.collection.InsertOne(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to insert repair task: %w", err)
	}

	q.logger.InfoContext(ctx, "added repair task to queue",
		slog.String("projection", task.ProjectionName),
		slog.String("aggregate_id", task.AggregateID),
		slog.String("aggregate_type", task.AggregateType),
	)

	return nil
}

// Poll retrieves claimable tasks from the queue: pending ones plus
// processing ones orphaned by a dead worker.
func (q *MongoQueue) Poll(ctx context.Context, batchSize int) ([]Task, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"status": StatusPending},
		bson.M{
			"status":        StatusProcessing,
			"last_retry_at": bson.M{"$lt": time.Now().Add(-staleTaskTimeout)},
		},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(batchSize))

	cursor, err := q.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query repair tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []Task
	if decodeErr := cursor.All(ctx, &tasks); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode repair tasks: %w", decodeErr)
	}

	// Mark tasks as processing. The returned copies mirror the $inc so
	// callers see the retry count of the attempt they are about to make.
	for i := range tasks {
		if tasks[i].ID == "" {
			continue
		}
		update := bson.M{
			"$set": bson.M{
				"status":        StatusProcessing,
				"last_retry_at": time.Now(),
			},
			"$inc": bson.M{
				"retry_count": 1,
			},
		}
		taskFilter := bson.M{"_id": tasks[i].ID}
		if _, updateErr := q.collection.UpdateOne(ctx, taskFilter, update); updateErr != nil {
			q.logger.WarnContext(ctx, "failed to mark task as processing",
				slog.String("task_id", tasks[i].ID),
				slog.String("error", updateErr.Error()),
			)
			continue
		}
		tasks[i].Status = StatusProcessing
		tasks[i].RetryCount++
	}

	return tasks, nil
}

// MarkCompleted marks a task as completed.
func (q *MongoQueue) MarkCompleted(ctx context.Context, taskID string) error {
	now := time.Now()
	filter := bson.M{"_id": taskID}
	update := bson.M{
		"$set": bson.M{
			"status":       StatusCompleted,
			"completed_at": now,
		},
	}

	result, err := q.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark task as completed: %w", err)
	}

	if result.ModifiedCount == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}

	q.logger.InfoContext(ctx, "marked repair task as completed",
		slog.String("task_id", taskID),
	)

	return nil
}

// MarkRetry returns a task to the pending state after a failed attempt.
func (q *MongoQueue) MarkRetry(ctx context.Context, taskID string, taskErr error) error {
	filter := bson.M{"_id": taskID}
	update := bson.M{
		"$set": bson.M{
			"status": StatusPending,
			"error":  taskErr.Error(),
		},
	}

	result, err := q.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark task for retry: %w", err)
	}

	if result.ModifiedCount == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}

	q.logger.InfoContext(ctx, "returned repair task to queue",
		slog.String("task_id", taskID),
		slog.String("error", taskErr.Error()),
	)

	return nil
}

// MarkFailed marks a task as failed and records the error.
func (q *MongoQueue) MarkFailed(ctx context.Context, taskID string, taskErr error) error {
	filter := bson.M{"_id": taskID}
	update := bson.M{
		"$set": bson.M{
			"status": StatusFailed,
			"error":  taskErr.Error(),
		},
	}

	result, err := q.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark task as failed: %w", err)
	}

	if result.ModifiedCount == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}

	q.logger.WarnContext(ctx, "marked repair task as failed",
		slog.String("task_id", taskID),
		slog.String("error", taskErr.Error()),
	)

	return nil
}

// GetStats returns queue statistics.
func (q *MongoQueue) GetStats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := q.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	defer cursor.Close(ctx)

	type statusCount struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}

	var results []statusCount
	if decodeErr := cursor.All(ctx, &results); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode queue stats: %w", decodeErr)
	}

	for _, result := range results {
		switch result.Status {
		case StatusPending:
			stats.PendingCount = result.Count
		case StatusProcessing:
			stats.ProcessingCount = result.Count
		case StatusCompleted:
			stats.CompletedCount = result.Count
		case StatusFailed:
			stats.FailedCount = result.Count
		}
		stats.TotalCount += result.Count
	}

	return stats, nil
}
