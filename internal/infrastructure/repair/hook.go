package repair

import (
	"context"
	"log/slog"

	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/infrastructure/eventstore"
)

// EnqueueHook returns a projection failure hook that records a repair task
// for every projection failure observed during fan-out. Enqueue failures
// are logged and dropped; the event itself is already durable.
func EnqueueHook(queue Queue, logger *slog.Logger) eventstore.ProjectionFailureHook {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, projectionName string, evt event.Event, failure error) {
		task := Task{
			ProjectionName: projectionName,
			AggregateID:    evt.AggregateID,
			AggregateType:  evt.AggregateType,
			Error:          failure.Error(),
		}

		if err := queue.Add(ctx, task); err != nil {
			logger.ErrorContext(ctx, "failed to enqueue repair task",
				slog.String("projection", projectionName),
				slog.String("aggregate_id", evt.AggregateID),
				slog.String("error", err.Error()),
			)
		}
	}
}
