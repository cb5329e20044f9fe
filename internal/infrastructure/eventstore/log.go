// Package eventstore implements the append-only, per-aggregate-versioned
// event log with replay, audit queries and in-process fan-out.
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/voyatra/voyatra/internal/domain/event"
)

// DefaultQueryLimit caps time-range queries when the caller passes no limit.
const DefaultQueryLimit = 100

// ErrVersionConflict is returned by EventLog.Insert when another writer
// already took the version. The store retries the whole allocation cycle.
var ErrVersionConflict = errors.New("event version already exists")

// EventLog is the durable, queryable persistence of events.
type EventLog interface {
	// Insert persists a fully populated event. The uniqueness of
	// (aggregate_type, aggregate_id, version) is enforced by the log;
	// a racing writer surfaces as ErrVersionConflict.
	Insert(ctx context.Context, evt event.Event) error

	// MaxVersion returns the highest version for an aggregate, 0 if none.
	MaxVersion(ctx context.Context, aggregateType, aggregateID string) (int, error)

	// Events returns an aggregate's events ascending by version.
	// fromVersion/toVersion bound the range when > 0.
	Events(ctx context.Context, aggregateType, aggregateID string, fromVersion, toVersion int) ([]event.Event, error)

	// EventsByType returns events of one type descending by timestamp.
	// Zero start/end leave the range unbounded; limit <= 0 applies
	// DefaultQueryLimit.
	EventsByType(ctx context.Context, eventType event.Type, start, end time.Time, limit int) ([]event.Event, error)

	// EventsByUser returns events caused by one actor, same semantics as
	// EventsByType.
	EventsByUser(ctx context.Context, userID string, start, end time.Time, limit int) ([]event.Event, error)
}
