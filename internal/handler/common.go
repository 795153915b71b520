// Package handler contains the echo handlers.  Handlers parse and
// validate input, call the booking engine or a repository and translate
// errors into JSON bodies of the form {"error": code, "message": text}.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/middleware"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the authenticated caller set by middleware.JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	switch v := c.Get(middleware.KeyUserID).(type) {
	case uint64:
		if v != 0 {
			return v, nil
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n != 0 {
			return n, nil
		}
	}
	return 0, errNoUser
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "authentication required"})
}

// writeError maps engine errors to HTTP responses.
func writeError(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, booking.ErrInvalidSlot):
		status, code = http.StatusUnprocessableEntity, "invalid_slot"
	case errors.Is(err, booking.ErrSlotFull):
		status, code = http.StatusConflict, "slot_full"
	case errors.Is(err, booking.ErrDuplicateActiveClaim):
		status, code = http.StatusConflict, "duplicate_active_claim"
	case errors.Is(err, booking.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, booking.ErrSlotLocked):
		status, code = http.StatusConflict, "slot_locked"
	case errors.Is(err, booking.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "storage_unavailable"
	}
	if status >= http.StatusInternalServerError {
		log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(status, echo.Map{"error": code, "message": http.StatusText(status)})
	}
	return c.JSON(status, echo.Map{"error": code, "message": err.Error()})
}

// slotView is the wire form of a slot.
type slotView struct {
	ID                uint64        `json:"id"`
	Service           model.Service `json:"service"`
	Date              string        `json:"date"`
	StartTime         string        `json:"start_time"`
	EndTime           string        `json:"end_time"`
	Capacity          int           `json:"capacity"`
	AvgServiceMinutes *int          `json:"avg_service_minutes,omitempty"`
	IsRetired         bool          `json:"is_retired"`
	Remaining         *int          `json:"remaining,omitempty"`
}

func viewSlot(s model.Slot) slotView {
	return slotView{
		ID:                s.ID,
		Service:           s.Service,
		Date:              s.Date.Format(model.DateLayout),
		StartTime:         model.FormatClock(s.StartTime),
		EndTime:           model.FormatClock(s.EndTime),
		Capacity:          s.Capacity,
		AvgServiceMinutes: s.AvgServiceMinutes,
		IsRetired:         s.IsRetired,
	}
}

// parseDay reads an optional YYYY-MM-DD query value.
func parseDay(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	d, err := model.ParseDate(raw)
	return d, err == nil
}

// parseLimit reads ?limit= bounded to [1, ceiling], defaulting to def.
func parseLimit(raw string, def, ceiling int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}
