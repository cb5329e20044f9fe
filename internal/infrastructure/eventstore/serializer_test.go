package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyatra/voyatra/internal/domain/event"
	"github.com/voyatra/voyatra/internal/domain/uuid"
)

func TestEventDocument_RoundTrip(t *testing.T) {
	evt := event.Event{
		ID:            uuid.NewUUID(),
		Type:          event.TypePaymentCaptured,
		AggregateID:   "p1",
		AggregateType: "Payment",
		Version:       7,
		Data:          map[string]any{"amount": 99.5, "currency": "EUR"},
		CorrelationID: "corr-1",
		TraceID:       "trace-1",
		UserID:        "user-1",
		Timestamp:     time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
		Metadata:      map[string]string{"ip_address": "10.0.0.1"},
	}

	doc := toDocument(evt)
	restored := toEvent(doc)

	assert.Equal(t, evt, restored)
}

func TestEventDocument_OmitsOptionalFields(t *testing.T) {
	evt := event.Event{
		ID:            uuid.NewUUID(),
		Type:          event.TypeSystemError,
		AggregateID:   "svc",
		AggregateType: "System",
		Version:       1,
		Data:          map[string]any{"message": "boom"},
		Timestamp:     time.Now().UTC(),
	}

	doc := toDocument(evt)

	assert.Empty(t, doc.CorrelationID)
	assert.Empty(t, doc.TraceID)
	assert.Empty(t, doc.UserID)
	assert.Nil(t, doc.Metadata)

	restored := toEvent(doc)
	require.Empty(t, restored.CorrelationID)
	assert.Equal(t, evt.Version, restored.Version)
}
