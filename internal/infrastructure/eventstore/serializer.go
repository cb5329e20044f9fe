package eventstore

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/domain/uuid"
)

// eventDocument represents a persisted event in MongoDB.
type eventDocument struct {
	ID bson.ObjectID `bson:"_id,omitempty"`

	EventID       string            `bson:"event_id"`
	EventType     string            `bson:"event_type"`
	AggregateID   string            `bson:"aggregate_id"`
	AggregateType string            `bson:"aggregate_type"`
	Version       int               `bson:"version"`
	Data          bson.M            `bson:"data"`
	CorrelationID string            `bson:"correlation_id,omitempty"`
	TraceID       string            `bson:"trace_id,omitempty"`
	UserID        string            `bson:"user_id,omitempty"`
	Timestamp     time.Time         `bson:"timestamp"`
	Metadata      map[string]string `bson:"metadata,omitempty"`
}

// toDocument converts a domain event into its MongoDB representation.
func toDocument(evt event.Event) *eventDocument {
	return &eventDocument{
		EventID:       evt.ID.String(),
		EventType:     evt.Type.String(),
		AggregateID:   evt.AggregateID,
		AggregateType: evt.AggregateType,
		Version:       evt.Version,
		Data:          bson.M(evt.Data),
		CorrelationID: evt.CorrelationID,
		TraceID:       evt.TraceID,
		UserID:        evt.UserID,
		Timestamp:     evt.Timestamp,
		Metadata:      evt.Metadata,
	}
}

// toEvent converts a MongoDB document back into a domain event.
func toEvent(doc *eventDocument) event.Event {
	return event.Event{
		ID:            uuid.UUID(doc.EventID),
		Type:          event.Type(doc.EventType),
		AggregateID:   doc.AggregateID,
		AggregateType: doc.AggregateType,
		Version:       doc.Version,
		Data:          map[string]any(doc.Data),
		CorrelationID: doc.CorrelationID,
		TraceID:       doc.TraceID,
		UserID:        doc.UserID,
		Timestamp:     doc.Timestamp,
		Metadata:      doc.Metadata,
	}
}

// toEvents converts a batch of documents.
func toEvents(docs []*eventDocument) []event.Event {
	events := make([]event.Event, 0, len(docs))
	for _, doc := range docs {
		events = append(events, toEvent(doc))
	}
	return events
}
