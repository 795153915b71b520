package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/handler"
	"github.com/iliyamo/queue-token-service/internal/middleware"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// RegisterUser registers endpoints for any signed-in caller: booking,
// cancelling and reading their own tokens, history and notifications.
func RegisterUser(e *echo.Echo, t *handler.TokenHandler, n *handler.NotificationHandler, mw Middleware, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleStaff, model.RoleAdmin),
	)
	g.POST("/slots/:id/tokens", t.Book, optional(mw.RateLimit)...)
	g.GET("/my-tokens", t.Mine)
	g.DELETE("/tokens/:id", t.Cancel)
	g.GET("/my-history", t.History)

	if n != nil {
		g.GET("/notifications", n.List)
		g.POST("/notifications/:id/read", n.MarkRead)
	}
}
