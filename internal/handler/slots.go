package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// SlotHandler serves slot browsing and slot administration.
type SlotHandler struct {
	Engine *booking.Engine
}

func NewSlotHandler(e *booking.Engine) *SlotHandler { return &SlotHandler{Engine: e} }

// List returns bookable slots with their remaining capacity.
// Query: service (optional), from (YYYY-MM-DD, default today in the slot
// zone).
func (h *SlotHandler) List(c echo.Context) error {
	service := model.NormalizeService(c.QueryParam("service"))
	from, ok := parseDay(c.QueryParam("from"))
	if !ok {
		return badRequest(c, "from must be YYYY-MM-DD")
	}
	if from.IsZero() {
		y, m, d := time.Now().In(h.Engine.Location()).Date()
		from = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	out := []slotView{}
	for s, err := range h.Engine.Registry.ListBookable(ctx, service, from) {
		if err != nil {
			return writeError(c, err)
		}
		left, err := h.Engine.Registry.RemainingCapacity(ctx, s)
		if err != nil {
			return writeError(c, err)
		}
		v := viewSlot(s)
		v.Remaining = &left
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": out})
}

// Get returns one slot, retired ones included.
func (h *SlotHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	s, err := h.Engine.Registry.Get(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	left, err := h.Engine.Registry.RemainingCapacity(ctx, s)
	if err != nil {
		return writeError(c, err)
	}
	v := viewSlot(s)
	v.Remaining = &left
	return c.JSON(http.StatusOK, v)
}

type queueLine struct {
	Number      int          `json:"number"`
	Status      model.Status `json:"status"`
	Position    int          `json:"position"`
	WaitMinutes *int         `json:"estimated_wait_minutes,omitempty"`
}

// Queue returns the live queue of a slot without user identities.
func (h *SlotHandler) Queue(c echo.Context) error {
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
	lines := make([]queueLine, 0, len(entries))
	for _, q := range entries {
		lines = append(lines, queueLine{
			Number: q.Token.Number, Status: q.Token.Status,
			Position: q.Position, WaitMinutes: q.WaitMinutes,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"slot": viewSlot(s), "queue": lines})
}

type slotReq struct {
	Service           *string `json:"service"`
	Date              *string `json:"date"`
	StartTime         *string `json:"start_time"`
	EndTime           *string `json:"end_time"`
	Capacity          *int    `json:"capacity"`
	AvgServiceMinutes *int    `json:"avg_service_minutes"`
}

// Create adds a slot (admin).
func (h *SlotHandler) Create(c echo.Context) error {
	var req slotReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Service == nil || req.Date == nil || req.StartTime == nil || req.EndTime == nil || req.Capacity == nil {
		return badRequest(c, "service, date, start_time, end_time and capacity are required")
	}
	in := booking.SlotInput{
		Service:           model.NormalizeService(*req.Service),
		Capacity:          *req.Capacity,
		AvgServiceMinutes: req.AvgServiceMinutes,
	}
	var err error
	if in.Date, err = model.ParseDate(*req.Date); err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	if in.StartTime, err = model.ParseClock(*req.StartTime); err != nil {
		return badRequest(c, "start_time must be HH:MM")
	}
	if in.EndTime, err = model.ParseClock(*req.EndTime); err != nil {
		return badRequest(c, "end_time must be HH:MM")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	s, err := h.Engine.Registry.Create(ctx, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, viewSlot(s))
}

// Update patches a slot (admin).  The service of a slot cannot change.
func (h *SlotHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	var req slotReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Service != nil {
		return badRequest(c, "service cannot be changed")
	}
	p := booking.SlotPatch{Capacity: req.Capacity, AvgServiceMinutes: req.AvgServiceMinutes}
	if req.Date != nil {
		d, err := model.ParseDate(*req.Date)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		p.Date = &d
	}
	for _, f := range []struct {
		raw  *string
		dst  **time.Duration
		name string
	}{{req.StartTime, &p.StartTime, "start_time"}, {req.EndTime, &p.EndTime, "end_time"}} {
		if f.raw == nil {
			continue
		}
		d, err := model.ParseClock(*f.raw)
		if err != nil {
			return badRequest(c, f.name+" must be HH:MM")
		}
		*f.dst = &d
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	s, err := h.Engine.Registry.Update(ctx, id, p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, viewSlot(s))
}

// Retire soft-deletes a slot (admin).
func (h *SlotHandler) Retire(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	s, err := h.Engine.Registry.Retire(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, viewSlot(s))
}

// Services lists the configured service tags.
func (h *SlotHandler) Services(c echo.Context) error {
	svcs := h.Engine.Registry.Services()
	out := make([]string, 0, len(svcs))
	for _, s := range svcs {
		out = append(out, string(s))
	}
	slices.Sort(out)
	return c.JSON(http.StatusOK, echo.Map{"services": out})
}
