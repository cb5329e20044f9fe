package eventstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/voyatra/voyatra/internal/domain/event"
)

// errorEventTypes are the types the error investigation query covers.
var errorEventTypes = []event.Type{
	event.TypeSystemError,
	event.TypePaymentFailed,
}

// AuditQueries is a read-only facade over the store's query methods that
// returns denormalized records for audit and compliance tooling. It holds no
// state of its own.
type AuditQueries struct {
	store *Store
}

// NewAuditQueries creates an audit facade over a store.
func NewAuditQueries(store *Store) *AuditQueries {
	return &AuditQueries{store: store}
}

// UserActivity returns a user's activity trail, newest first.
func (a *AuditQueries) UserActivity(
	ctx context.Context,
	userID string,
	start, end time.Time,
	limit int,
) ([]map[string]any, error) {
	events, err := a.store.GetUserEvents(ctx, userID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load user activity: %w", err)
	}

	return flatten(events), nil
}

// AggregateHistory returns the full ordered history of one aggregate.
func (a *AuditQueries) AggregateHistory(
	ctx context.Context,
	aggregateType, aggregateID string,
) ([]map[string]any, error) {
	events, err := a.store.GetEvents(ctx, aggregateType, aggregateID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregate history: %w", err)
	}

	return flatten(events), nil
}

// ErrorHistory returns recent error events across the platform, newest
// first. Each error type is queried up to limit; the combined result is
// also bounded by limit.
func (a *AuditQueries) ErrorHistory(
	ctx context.Context,
	start, end time.Time,
	limit int,
) ([]map[string]any, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var combined []event.Event
	for _, errType := range errorEventTypes {
		events, err := a.store.GetEventsByType(ctx, errType, start, end, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load error history for %s: %w", errType, err)
		}
		combined = append(combined, events...)
	}

	sortByTimestampDesc(combined)
	if len(combined) > limit {
		combined = combined[:limit]
	}

	return flatten(combined), nil
}

// flatten converts events into flat, externally-consumable maps.
func flatten(events []event.Event) []map[string]any {
	records := make([]map[string]any, 0, len(events))
	for _, evt := range events {
		records = append(records, flattenEvent(evt))
	}
	return records
}

func flattenEvent(evt event.Event) map[string]any {
	record := map[string]any{
		"event_id":       evt.ID.String(),
		"event_type":     evt.Type.String(),
		"aggregate_id":   evt.AggregateID,
		"aggregate_type": evt.AggregateType,
		"event_version":  evt.Version,
		"event_data":     evt.Data,
		"timestamp":      evt.Timestamp,
	}

	if evt.UserID != "" {
		record["user_id"] = evt.UserID
	}
	if evt.CorrelationID != "" {
		record["correlation_id"] = evt.CorrelationID
	}
	if evt.TraceID != "" {
		record["trace_id"] = evt.TraceID
	}
	if len(evt.Metadata) > 0 {
		record["metadata"] = evt.Metadata
	}

	return record
}

func sortByTimestampDesc(events []event.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
