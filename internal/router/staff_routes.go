package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/handler"
	"github.com/iliyamo/queue-token-service/internal/middleware"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// RegisterStaff registers the counter endpoints under /v1/staff.  STAFF
// and ADMIN may call them.
func RegisterStaff(e *echo.Echo, s *handler.StaffHandler, jwtSecret string) {
	g := e.Group(
		"/v1/staff",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStaff, model.RoleAdmin),
	)
	for _, op := range []model.Op{model.OpApprove, model.OpServe, model.OpSkip, model.OpExpire, model.OpCancel} {
		g.POST("/tokens/:id/"+string(op), s.Transition(op))
	}
	g.GET("/slots/:id/tokens", s.SlotTokens)
}

// RegisterAdmin registers slot management and reporting under /v1/admin.
func RegisterAdmin(e *echo.Echo, s *handler.SlotHandler, r *handler.ReportHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/slots", s.Create)
	g.PATCH("/slots/:id", s.Update)
	g.POST("/slots/:id/retire", s.Retire)

	g.GET("/history", r.History)
	g.GET("/reports", r.Reports)
}
