package httpserver_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyatra/voyatra/internal/application/appcore"
	"github.com/voyatra/voyatra/internal/infrastructure/eventstore"
	"github.com/voyatra/voyatra/internal/infrastructure/httpserver"
)

func newTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httpserver.Response {
	t.Helper()

	var resp httpserver.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRespondOK(t *testing.T) {
	c, rec := newTestContext()

	require.NoError(t, httpserver.RespondOK(c, map[string]string{"key": "value"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestRespondCreated(t *testing.T) {
	c, rec := newTestContext()

	require.NoError(t, httpserver.RespondCreated(c, map[string]string{"id": "1"}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
}

func TestRespondError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid input",
			err:        fmt.Errorf("%w: missing aggregate id", appcore.ErrInvalidInput),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "aggregate not found",
			err:        appcore.ErrAggregateNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "concurrency conflict",
			err:        appcore.ErrConcurrencyConflict,
			wantStatus: http.StatusConflict,
			wantCode:   "CONCURRENCY_CONFLICT",
		},
		{
			name:       "raw version conflict",
			err:        eventstore.ErrVersionConflict,
			wantStatus: http.StatusConflict,
			wantCode:   "CONCURRENCY_CONFLICT",
		},
		{
			name:       "storage failure",
			err:        fmt.Errorf("%w: connection reset", appcore.ErrStorageFailure),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "STORAGE_UNAVAILABLE",
		},
		{
			name:       "unknown error",
			err:        assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestContext()

			require.NoError(t, httpserver.RespondError(c, tt.err))

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

type teapotError struct{}

func (teapotError) Error() string       { return "teapot" }
func (teapotError) HTTPStatus() int     { return http.StatusTeapot }
func (teapotError) HTTPCode() string    { return "TEAPOT" }
func (teapotError) HTTPMessage() string { return "I'm a teapot" }

func TestRespondError_HTTPErrorInterface(t *testing.T) {
	c, rec := newTestContext()

	require.NoError(t, httpserver.RespondError(c, teapotError{}))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TEAPOT", resp.Error.Code)
	assert.Equal(t, "I'm a teapot", resp.Error.Message)
}
