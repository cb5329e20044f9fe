package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voyatra/voyatra/internal/domain/event"
)

// streamKey identifies one aggregate stream.
type streamKey struct {
	aggregateType string
	aggregateID   string
}

// MemoryEventLog implements EventLog in memory. Used by unit tests and by
// the mock wiring mode. Conflict semantics mirror the MongoDB implementation.
type MemoryEventLog struct {
	mu      sync.RWMutex
	streams map[streamKey][]event.Event
	all     []event.Event
}

// NewMemoryEventLog creates a new in-memory event log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{
		streams: make(map[streamKey][]event.Event),
	}
}

// Insert persists an event, rejecting duplicate versions within a stream.
func (l *MemoryEventLog) Insert(ctx context.Context, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := streamKey{aggregateType: evt.AggregateType, aggregateID: evt.AggregateID}
	for _, existing := range l.streams[key] {
		if existing.Version == evt.Version {
			return ErrVersionConflict
		}
	}

	stored := evt.Clone()
	l.streams[key] = append(l.streams[key], stored)
	l.all = append(l.all, stored)

	return nil
}

// MaxVersion returns the highest version for an aggregate, 0 if none.
func (l *MemoryEventLog) MaxVersion(ctx context.Context, aggregateType, aggregateID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	maxVersion := 0
	for _, evt := range l.streams[streamKey{aggregateType: aggregateType, aggregateID: aggregateID}] {
		if evt.Version > maxVersion {
			maxVersion = evt.Version
		}
	}

	return maxVersion, nil
}

// Events returns an aggregate's events ascending by version.
func (l *MemoryEventLog) Events(
	ctx context.Context,
	aggregateType, aggregateID string,
	fromVersion, toVersion int,
) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []event.Event
	for _, evt := range l.streams[streamKey{aggregateType: aggregateType, aggregateID: aggregateID}] {
		if fromVersion > 0 && evt.Version < fromVersion {
			continue
		}
		if toVersion > 0 && evt.Version > toVersion {
			continue
		}
		result = append(result, evt.Clone())
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })

	return result, nil
}

// EventsByType returns events of one type descending by timestamp.
func (l *MemoryEventLog) EventsByType(
	ctx context.Context,
	eventType event.Type,
	start, end time.Time,
	limit int,
) ([]event.Event, error) {
	return l.scan(ctx, func(evt event.Event) bool { return evt.Type == eventType }, start, end, limit)
}

// EventsByUser returns events caused by one actor descending by timestamp.
func (l *MemoryEventLog) EventsByUser(
	ctx context.Context,
	userID string,
	start, end time.Time,
	limit int,
) ([]event.Event, error) {
	return l.scan(ctx, func(evt event.Event) bool { return evt.UserID == userID }, start, end, limit)
}

// scan filters the global log, newest first, bounded by limit.
func (l *MemoryEventLog) scan(
	ctx context.Context,
	match func(event.Event) bool,
	start, end time.Time,
	limit int,
) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []event.Event
	for _, evt := range l.all {
		if !match(evt) {
			continue
		}
		if !start.IsZero() && evt.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && evt.Timestamp.After(end) {
			continue
		}
		result = append(result, evt.Clone())
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })

	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Clear removes all events (for tests).
func (l *MemoryEventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.streams = make(map[streamKey][]event.Event)
	l.all = nil
}
