package httphandler

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Query parameter errors.
var (
	errBadStart = errors.New("start must be an RFC 3339 timestamp")
	errBadEnd   = errors.New("end must be an RFC 3339 timestamp")
	errBadLimit = errors.New("limit must be a non-negative integer")
)

type timeWindow struct {
	start time.Time
	end   time.Time
}

// timeWindowParams parses the optional start, end and limit query
// parameters. Absent bounds stay zero, which the store treats as
// unbounded; zero limit falls back to the store's default.
func timeWindowParams(c echo.Context) (timeWindow, int, error) {
	var window timeWindow

	if raw := c.QueryParam("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return window, 0, errBadStart
		}
		window.start = start
	}

	if raw := c.QueryParam("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return window, 0, errBadEnd
		}
		window.end = end
	}

	limit, err := intQueryParam(c, "limit")
	if err != nil {
		return window, 0, errBadLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	return window, limit, nil
}

// intQueryParam parses an optional non-negative integer query parameter.
func intQueryParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errBadLimit
	}

	return value, nil
}
