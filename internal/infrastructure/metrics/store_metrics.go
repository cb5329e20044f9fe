// Package metrics provides Prometheus metrics for the event store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics contains Prometheus metrics for monitoring event store behavior.
type StoreMetrics struct {
	AppendsTotal          *prometheus.CounterVec
	AppendDuration        *prometheus.HistogramVec
	VersionConflictsTotal prometheus.Counter
	FanoutFailuresTotal   *prometheus.CounterVec
	QueriesTotal          *prometheus.CounterVec
	RepairPending         prometheus.Gauge
}

// NewStoreMetrics creates and registers event store metrics with the given registerer.
func NewStoreMetrics(registerer prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		AppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voyatra_eventstore_appends_total",
				Help: "Total number of append attempts",
			},
			[]string{"event_type", "status"}, // status: success/conflict/invalid/failed
		),
		AppendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voyatra_eventstore_append_duration_seconds",
				Help:    "Time to durably persist an event, excluding fan-out",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		VersionConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voyatra_eventstore_version_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts during append",
		}),
		FanoutFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voyatra_eventstore_fanout_failures_total",
				Help: "Total number of handler and projection failures during fan-out",
			},
			[]string{"kind", "name"}, // kind: handler/projection
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voyatra_eventstore_queries_total",
				Help: "Total number of read queries against the event log",
			},
			[]string{"query"},
		),
		RepairPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voyatra_eventstore_repair_pending",
			Help: "Current number of pending projection repair tasks",
		}),
	}

	registerer.MustRegister(
		m.AppendsTotal,
		m.AppendDuration,
		m.VersionConflictsTotal,
		m.FanoutFailuresTotal,
		m.QueriesTotal,
		m.RepairPending,
	)

	return m
}
