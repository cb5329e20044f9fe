// Package event defines the immutable domain event value and the closed set
// of event types the store accepts.
package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/voyatra/voyatra/internal/domain/uuid"
)

// Draft validation errors.
var (
	ErrUnknownType       = errors.New("unknown event type")
	ErrEmptyAggregateID  = errors.New("aggregate ID must not be empty")
	ErrEmptyAggregate    = errors.New("aggregate type must not be empty")
	ErrEmptyData         = errors.New("event data must not be empty")
)

// Event is one immutable state change for one aggregate.
// Instances are created by the store during Append and never mutated.
type Event struct {
	// ID is unique across the entire store.
	ID uuid.UUID `json:"event_id"`

	// Type tags the kind of state change; always a registered type.
	Type Type `json:"event_type"`

	// AggregateID and AggregateType together identify the entity stream.
	AggregateID   string `json:"aggregate_id"`
	AggregateType string `json:"aggregate_type"`

	// Version is strictly increasing within one aggregate, starting at 1.
	Version int `json:"event_version"`

	// Data is an opaque payload specific to Type; the store never
	// interprets its contents.
	Data map[string]any `json:"event_data"`

	// CorrelationID and TraceID are copied from the ambient request
	// context at append time; used only for querying and audit.
	CorrelationID string `json:"correlation_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`

	// UserID identifies the actor who caused the event, if any.
	UserID string `json:"user_id,omitempty"`

	// Timestamp is the wall-clock time of persistence, assigned by the store.
	Timestamp time.Time `json:"timestamp"`

	// Metadata holds opaque auxiliary values such as client IP or user agent.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Draft is the caller-submitted value from which the store builds an Event.
// ID, Version and Timestamp are assigned by the store.
type Draft struct {
	Type          Type
	AggregateID   string
	AggregateType string
	Data          map[string]any
	UserID        string
	Metadata      map[string]string
}

// Validate checks the required draft fields before any storage access.
func (d Draft) Validate() error {
	var errs []error

	if !IsKnownType(d.Type) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownType, d.Type))
	}
	if d.AggregateID == "" {
		errs = append(errs, ErrEmptyAggregateID)
	}
	if d.AggregateType == "" {
		errs = append(errs, ErrEmptyAggregate)
	}
	if len(d.Data) == 0 {
		errs = append(errs, ErrEmptyData)
	}

	return errors.Join(errs...)
}

// Clone returns a deep copy of the event. Readers receive copies so a stored
// event can never be mutated through a returned value.
func (e Event) Clone() Event {
	clone := e
	clone.Data = cloneData(e.Data)

	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}

	return clone
}

// cloneData copies a payload map, descending into nested maps and slices.
func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneData(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
