package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// StaffHandler drives tokens through the counter workflow.
type StaffHandler struct {
	Engine *booking.Engine
}

func NewStaffHandler(e *booking.Engine) *StaffHandler { return &StaffHandler{Engine: e} }

// Transition returns a handler applying op to token :id.
func (h *StaffHandler) Transition(op model.Op) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := pathID(c, "id")
		if !ok {
			return badRequest(c, "invalid token id")
		}
		ctx, cancel := requestCtx(c)
		defer cancel()

		tok, err := h.Engine.Transition(ctx, id, op)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, tok)
	}
}

// SlotTokens lists the live queue of slot :id with token owners.
func (h *StaffHandler) SlotTokens(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	s, entries, err := h.Engine.QueueStatus(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slot": viewSlot(s), "queue": entries})
}
