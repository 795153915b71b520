package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// TokenHandler serves the booking endpoints of signed-in users.
type TokenHandler struct {
	Engine *booking.Engine
}

func NewTokenHandler(e *booking.Engine) *TokenHandler { return &TokenHandler{Engine: e} }

type tokenView struct {
	model.Token
	Position    *int `json:"position,omitempty"`
	WaitMinutes *int `json:"estimated_wait_minutes,omitempty"`
}

// Book issues a token for the caller on slot :id.
func (h *TokenHandler) Book(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	slotID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	tok, err := h.Engine.Allocate(ctx, slotID, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, tok)
}

// Mine lists the caller's tokens, newest first.  Live tokens carry their
// queue position and wait estimate.
func (h *TokenHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	toks, err := h.Engine.TokensByUser(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	queues := map[uint64][]booking.QueueEntry{}
	out := make([]tokenView, 0, len(toks))
	for _, t := range toks {
		v := tokenView{Token: t}
		if !t.Status.IsTerminal() {
			q, seen := queues[t.SlotID]
			if !seen {
				_, q, err = h.Engine.QueueStatus(ctx, t.SlotID)
				if err != nil {
					return writeError(c, err)
				}
				queues[t.SlotID] = q
			}
			for _, e := range q {
				if e.Token.ID == t.ID {
					pos := e.Position
					v.Position, v.WaitMinutes = &pos, e.WaitMinutes
					break
				}
			}
		}
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": out})
}

// Cancel cancels one of the caller's own tokens.
func (h *TokenHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	tok, err := h.Engine.CancelForUser(ctx, id, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tok)
}

// History returns the caller's visit history, newest first.
func (h *TokenHandler) History(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	f := booking.HistoryFilter{UserID: uid, Limit: parseLimit(c.QueryParam("limit"), 50, 500)}
	entries, err := booking.Collect(h.Engine.Ledger.Query(ctx, f))
	if err != nil {
		return writeError(c, err)
	}
	if entries == nil {
		entries = []model.VisitHistoryEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"history": entries})
}
