package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// ReportHandler serves the admin history browser and token reports.
type ReportHandler struct {
	Engine *booking.Engine
}

func NewReportHandler(e *booking.Engine) *ReportHandler { return &ReportHandler{Engine: e} }

// History filters the visit history.  Query: user_id, slot_id, outcome,
// from, to (YYYY-MM-DD, to inclusive) and limit.
func (h *ReportHandler) History(c echo.Context) error {
	var f booking.HistoryFilter
	for _, p := range []struct {
		name string
		dst  *uint64
	}{{"user_id", &f.UserID}, {"slot_id", &f.SlotID}} {
		if raw := c.QueryParam(p.name); raw != "" {
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return badRequest(c, p.name+" must be numeric")
			}
			*p.dst = n
		}
	}
	if raw := c.QueryParam("outcome"); raw != "" {
		f.Outcome = model.Outcome(raw)
		if !f.Outcome.Valid() {
			return badRequest(c, "unknown outcome")
		}
	}
	from, to, ok := dayRange(c)
	if !ok {
		return badRequest(c, "from/to must be YYYY-MM-DD")
	}
	f.From = from
	if !to.IsZero() {
		f.To = to.AddDate(0, 0, 1)
	}
	f.Limit = parseLimit(c.QueryParam("limit"), 100, 1000)

	ctx, cancel := requestCtx(c)
	defer cancel()
	entries, err := booking.Collect(h.Engine.Ledger.Query(ctx, f))
	if err != nil {
		return writeError(c, err)
	}
	if entries == nil {
		entries = []model.VisitHistoryEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"history": entries})
}

type serviceReport struct {
	Service  model.Service        `json:"service"`
	Total    int                  `json:"total"`
	ByStatus map[model.Status]int `json:"by_status"`
}

// Reports aggregates tokens by service and status for slots dated in
// [from, to].
func (h *ReportHandler) Reports(c echo.Context) error {
	from, to, ok := dayRange(c)
	if !ok {
		return badRequest(c, "from/to must be YYYY-MM-DD")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	stats, err := h.Engine.Stats(ctx, booking.StatsFilter{From: from, To: to})
	if err != nil {
		return writeError(c, err)
	}
	byService := map[model.Service]*serviceReport{}
	var order []model.Service
	total, served := 0, 0
	for _, st := range stats {
		r, ok := byService[st.Service]
		if !ok {
			r = &serviceReport{Service: st.Service, ByStatus: map[model.Status]int{}}
			byService[st.Service] = r
			order = append(order, st.Service)
		}
		r.ByStatus[st.Status] += st.Count
		r.Total += st.Count
		total += st.Count
		if st.Status == model.StatusServed {
			served += st.Count
		}
	}
	services := make([]serviceReport, 0, len(order))
	for _, s := range order {
		services = append(services, *byService[s])
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total_tokens":  total,
		"served_tokens": served,
		"services":      services,
	})
}

func dayRange(c echo.Context) (from, to time.Time, ok bool) {
	if from, ok = parseDay(c.QueryParam("from")); !ok {
		return
	}
	to, ok = parseDay(c.QueryParam("to"))
	return
}
