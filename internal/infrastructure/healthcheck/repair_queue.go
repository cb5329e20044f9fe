// Package healthcheck contains component health checkers exposed through
// the HTTP health endpoints.
package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/voyatra/voyatra/internal/application/appcore"
	"github.com/voyatra/voyatra/internal/infrastructure/repair"
)

const defaultRepairThreshold = 10

// Gauge receives the current pending backlog size on every check.
// Satisfied by prometheus.Gauge.
type Gauge interface {
	Set(float64)
}

// RepairQueueChecker reports degraded health when the repair backlog grows
// or repairs fail terminally.
type RepairQueueChecker struct {
	repairQueue  repair.Queue
	threshold    int64
	pendingGauge Gauge
}

// RepairQueueOption configures a RepairQueueChecker.
type RepairQueueOption func(*RepairQueueChecker)

// WithPendingGauge publishes the pending backlog to a metrics gauge on
// every check.
func WithPendingGauge(gauge Gauge) RepairQueueOption {
	return func(c *RepairQueueChecker) {
		c.pendingGauge = gauge
	}
}

// NewRepairQueueChecker creates a new repair queue health checker.
func NewRepairQueueChecker(repairQueue repair.Queue, threshold int64, opts ...RepairQueueOption) *RepairQueueChecker {
	if threshold <= 0 {
		threshold = defaultRepairThreshold
	}

	checker := &RepairQueueChecker{
		repairQueue: repairQueue,
		threshold:   threshold,
	}
	for _, opt := range opts {
		opt(checker)
	}
	return checker
}

// Name returns the name of this health checker.
func (c *RepairQueueChecker) Name() string {
	return "repair_queue"
}

// Check performs the health check.
func (c *RepairQueueChecker) Check(ctx context.Context) appcore.HealthStatus {
	stats, err := c.repairQueue.GetStats(ctx)
	if err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to get repair queue stats: %v", err),
			CheckedAt: time.Now(),
		}
	}

	if c.pendingGauge != nil {
		c.pendingGauge.Set(float64(stats.PendingCount))
	}

	healthy := stats.PendingCount < c.threshold && stats.FailedCount == 0

	details := map[string]any{
		"pending_repairs": stats.PendingCount,
		"failed_repairs":  stats.FailedCount,
		"threshold":       c.threshold,
	}

	message := fmt.Sprintf("repair queue: %d pending, %d failed", stats.PendingCount, stats.FailedCount)

	return appcore.HealthStatus{
		Healthy:   healthy,
		Message:   message,
		Details:   details,
		CheckedAt: time.Now(),
	}
}
