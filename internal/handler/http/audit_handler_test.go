package httphandler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditHandler_UserActivity(t *testing.T) {
	e, _ := newAPIServer(t)
	seedBookingEvents(t, e, "booking-1", "booking.created", "booking.confirmed")

	rec := doJSON(e, http.MethodGet, "/api/v1/audit/users/user-seed/activity", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &records))
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "user-seed", record["user_id"])
		assert.NotEmpty(t, record["event_type"])
		assert.NotEmpty(t, record["event_id"])
	}
}

func TestAuditHandler_AggregateHistory(t *testing.T) {
	e, _ := newAPIServer(t)
	seedBookingEvents(t, e, "booking-2", "booking.created", "booking.confirmed", "booking.cancelled")

	rec := doJSON(e, http.MethodGet, "/api/v1/audit/aggregates/Booking/booking-2/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &records))
	require.Len(t, records, 3)

	// Full ordered history ascending by version.
	for i, record := range records {
		assert.InDelta(t, i+1, record["event_version"], 0)
		assert.Equal(t, "booking-2", record["aggregate_id"])
	}
}

func TestAuditHandler_ErrorHistory(t *testing.T) {
	e, _ := newAPIServer(t)
	seedBookingEvents(t, e, "booking-3", "booking.created")

	// One system error and one failed payment, which both count as errors.
	rec := doJSON(e, http.MethodPost, "/api/v1/events", `{
		"event_type": "system.error",
		"aggregate_id": "projector-1",
		"aggregate_type": "System",
		"event_data": {"message": "projection rebuild failed"}
	}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/events", `{
		"event_type": "payment.failed",
		"aggregate_id": "payment-1",
		"aggregate_type": "Payment",
		"event_data": {"reason": "card declined"}
	}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/audit/errors", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &records))
	require.Len(t, records, 2)

	types := []string{records[0]["event_type"].(string), records[1]["event_type"].(string)}
	assert.ElementsMatch(t, []string{"system.error", "payment.failed"}, types)
}

func TestAuditHandler_ErrorHistory_BadLimit(t *testing.T) {
	e, _ := newAPIServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/audit/errors?limit=-5", "", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_QUERY", decodeEnvelope(t, rec).Error.Code)
}
