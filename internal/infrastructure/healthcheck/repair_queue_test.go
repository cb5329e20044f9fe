package healthcheck_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyatra/voyatra/internal/infrastructure/healthcheck"
	"github.com/voyatra/voyatra/internal/infrastructure/repair"
)

// stubQueue returns canned stats for checker tests.
type stubQueue struct {
	stats *repair.QueueStats
	err   error
}

func (q stubQueue) Add(context.Context, repair.Task) error             { return nil }
func (q stubQueue) Poll(context.Context, int) ([]repair.Task, error)   { return nil, nil }
func (q stubQueue) MarkCompleted(context.Context, string) error        { return nil }
func (q stubQueue) MarkRetry(context.Context, string, error) error     { return nil }
func (q stubQueue) MarkFailed(context.Context, string, error) error    { return nil }
func (q stubQueue) GetStats(context.Context) (*repair.QueueStats, error) {
	return q.stats, q.err
}

func TestRepairQueueChecker(t *testing.T) {
	tests := []struct {
		name        string
		stats       *repair.QueueStats
		statsErr    error
		wantHealthy bool
	}{
		{
			name:        "empty queue is healthy",
			stats:       &repair.QueueStats{},
			wantHealthy: true,
		},
		{
			name:        "small backlog is healthy",
			stats:       &repair.QueueStats{PendingCount: 3},
			wantHealthy: true,
		},
		{
			name:        "backlog over threshold is unhealthy",
			stats:       &repair.QueueStats{PendingCount: 50},
			wantHealthy: false,
		},
		{
			name:        "terminal failures are unhealthy",
			stats:       &repair.QueueStats{FailedCount: 1},
			wantHealthy: false,
		},
		{
			name:        "stats error is unhealthy",
			statsErr:    errors.New("mongo unavailable"),
			wantHealthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := healthcheck.NewRepairQueueChecker(stubQueue{stats: tt.stats, err: tt.statsErr}, 10)

			status := checker.Check(context.Background())

			assert.Equal(t, tt.wantHealthy, status.Healthy)
			require.NotEmpty(t, status.Message)
			assert.False(t, status.CheckedAt.IsZero())
		})
	}
}

// recordingGauge captures the last value pushed to it.
type recordingGauge struct {
	value float64
	set   bool
}

func (g *recordingGauge) Set(v float64) {
	g.value = v
	g.set = true
}

func TestRepairQueueChecker_PublishesBacklogGauge(t *testing.T) {
	gauge := &recordingGauge{}
	checker := healthcheck.NewRepairQueueChecker(
		stubQueue{stats: &repair.QueueStats{PendingCount: 7}}, 10,
		healthcheck.WithPendingGauge(gauge),
	)

	checker.Check(context.Background())

	require.True(t, gauge.set)
	assert.InDelta(t, 7, gauge.value, 0)
}

func TestRepairQueueChecker_GaugeUntouchedOnStatsError(t *testing.T) {
	gauge := &recordingGauge{}
	checker := healthcheck.NewRepairQueueChecker(
		stubQueue{err: errors.New("mongo unavailable")}, 10,
		healthcheck.WithPendingGauge(gauge),
	)

	status := checker.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.False(t, gauge.set, "stale backlog must not be reported as zero")
}

func TestRepairQueueChecker_Name(t *testing.T) {
	checker := healthcheck.NewRepairQueueChecker(stubQueue{}, 0)
	assert.Equal(t, "repair_queue", checker.Name())
}
