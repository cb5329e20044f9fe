// Package worker contains long-running background processes.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyatra/voyatra/internal/infrastructure/repair"
)

// Default repair worker configuration values.
const (
	defaultRepairPollInterval = 30 * time.Second
	defaultRepairBatchSize    = 10
	defaultRepairMaxRetries   = 3
)

// Rebuilder re-derives one aggregate's read model from the event log.
type Rebuilder interface {
	RebuildOne(ctx context.Context, aggregateID string) error
}

// RepairWorkerConfig contains configuration for the repair worker.
type RepairWorkerConfig struct {
	// PollInterval is the time between polling the repair queue.
	PollInterval time.Duration

	// BatchSize is the maximum number of tasks to process in each poll cycle.
	BatchSize int

	// MaxRetries is the maximum number of retry attempts for failed repairs.
	MaxRetries int

	// Enabled determines if the worker should run.
	Enabled bool
}

// DefaultRepairWorkerConfig returns sensible default configuration.
func DefaultRepairWorkerConfig() RepairWorkerConfig {
	return RepairWorkerConfig{
		PollInterval: defaultRepairPollInterval,
		BatchSize:    defaultRepairBatchSize,
		MaxRetries:   defaultRepairMaxRetries,
		Enabled:      true,
	}
}

// RepairWorker drains the repair queue, rebuilding read models whose
// synchronous update failed during fan-out.
type RepairWorker struct {
	repairQueue repair.Queue
	rebuilders  map[string]Rebuilder
	logger      *slog.Logger
	config      RepairWorkerConfig
}

// NewRepairWorker creates a new repair worker. The rebuilders map is keyed
// by projection name as recorded in repair tasks.
func NewRepairWorker(
	repairQueue repair.Queue,
	rebuilders map[string]Rebuilder,
	logger *slog.Logger,
	config RepairWorkerConfig,
) *RepairWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &RepairWorker{
		repairQueue: repairQueue,
		rebuilders:  rebuilders,
		logger:      logger,
		config:      config,
	}
}

// Start starts the repair worker. Blocks until the context is cancelled.
func (w *RepairWorker) Start(ctx context.Context) error {
	if !w.config.Enabled {
		w.logger.InfoContext(ctx, "repair worker disabled")
		return nil
	}

	w.logger.InfoContext(ctx, "starting repair worker",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("batch_size", w.config.BatchSize),
		slog.Int("max_retries", w.config.MaxRetries),
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "repair worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// processBatch processes a batch of repair tasks.
func (w *RepairWorker) processBatch(ctx context.Context) {
	tasks, err := w.repairQueue.Poll(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to poll repair queue",
			slog.String("error", err.Error()),
		)
		return
	}

	if len(tasks) == 0 {
		return
	}

	w.logger.InfoContext(ctx, "processing repair tasks",
		slog.Int("count", len(tasks)),
	)

	for _, task := range tasks {
		if processErr := w.processTask(ctx, task); processErr != nil {
			w.logger.ErrorContext(ctx, "failed to process repair task",
				slog.String("task_id", task.ID),
				slog.String("projection", task.ProjectionName),
				slog.String("aggregate_id", task.AggregateID),
				slog.String("error", processErr.Error()),
			)

			if task.RetryCount >= w.config.MaxRetries {
				w.logger.WarnContext(ctx, "max retries exceeded, marking task as failed",
					slog.String("task_id", task.ID),
					slog.Int("retry_count", task.RetryCount),
				)
				if markErr := w.repairQueue.MarkFailed(ctx, task.ID, processErr); markErr != nil {
					w.logger.ErrorContext(ctx, "failed to mark task as failed",
						slog.String("task_id", task.ID),
						slog.String("error", markErr.Error()),
					)
				}
			} else {
				w.logger.InfoContext(ctx, "task will be retried",
					slog.String("task_id", task.ID),
					slog.Int("retry_count", task.RetryCount),
					slog.Int("max_retries", w.config.MaxRetries),
				)
				if retryErr := w.repairQueue.MarkRetry(ctx, task.ID, processErr); retryErr != nil {
					w.logger.ErrorContext(ctx, "failed to requeue repair task",
						slog.String("task_id", task.ID),
						slog.String("error", retryErr.Error()),
					)
				}
			}
			continue
		}

		if completeErr := w.repairQueue.MarkCompleted(ctx, task.ID); completeErr != nil {
			w.logger.ErrorContext(ctx, "failed to mark task as completed",
				slog.String("task_id", task.ID),
				slog.String("error", completeErr.Error()),
			)
		}
	}
}

// processTask rebuilds the read model named by a single repair task.
func (w *RepairWorker) processTask(ctx context.Context, task repair.Task) error {
	w.logger.InfoContext(ctx, "processing repair task",
		slog.String("task_id", task.ID),
		slog.String("projection", task.ProjectionName),
		slog.String("aggregate_id", task.AggregateID),
	)

	rebuilder, ok := w.rebuilders[task.ProjectionName]
	if !ok {
		return fmt.Errorf("no rebuilder registered for projection: %s", task.ProjectionName)
	}

	if rebuildErr := rebuilder.RebuildOne(ctx, task.AggregateID); rebuildErr != nil {
		return fmt.Errorf("failed to rebuild read model: %w", rebuildErr)
	}

	w.logger.InfoContext(ctx, "successfully rebuilt read model",
		slog.String("projection", task.ProjectionName),
		slog.String("aggregate_id", task.AggregateID),
	)

	return nil
}

// GetStats returns repair queue statistics.
func (w *RepairWorker) GetStats(ctx context.Context) (*repair.QueueStats, error) {
	return w.repairQueue.GetStats(ctx)
}
