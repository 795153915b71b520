// Package router registers the HTTP routes of the API on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/handler"
	"github.com/iliyamo/queue-token-service/internal/middleware"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
	Auth          *handler.AuthHandler
	Slots         *handler.SlotHandler
	Tokens        *handler.TokenHandler
	Staff         *handler.StaffHandler
	Reports       *handler.ReportHandler
	Notifications *handler.NotificationHandler
	Health        echo.HandlerFunc
	Metrics       echo.HandlerFunc
}

// Middleware carries the optional middleware built from Redis.  Nil
// entries are skipped.
type Middleware struct {
	Cache     echo.MiddlewareFunc // public slot reads
	RateLimit echo.MiddlewareFunc // token booking
}

// RegisterRoutes registers unauthenticated service routes.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", h.Health)
	if h.Metrics != nil {
		e.GET("/metrics", h.Metrics)
	}
}

// RegisterAuth registers the session endpoints.  register, login and
// refresh live under /v1/auth without a session; logout and /v1/me need a
// valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, middleware.JWTAuth(jwtSecret))

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers the browse endpoints guests may call.
func RegisterPublic(e *echo.Echo, s *handler.SlotHandler, mw Middleware) {
	g := e.Group("/v1", optional(mw.Cache)...)
	g.GET("/services", s.Services)
	g.GET("/slots", s.List)
	g.GET("/slots/:id", s.Get)
	g.GET("/slots/:id/queue", s.Queue)
}

// Register wires every route group.
func Register(e *echo.Echo, h Handlers, mw Middleware, jwtSecret string) {
	RegisterRoutes(e, h)
	RegisterAuth(e, h.Auth, jwtSecret)
	RegisterPublic(e, h.Slots, mw)
	RegisterUser(e, h.Tokens, h.Notifications, mw, jwtSecret)
	RegisterStaff(e, h.Staff, jwtSecret)
	RegisterAdmin(e, h.Slots, h.Reports, jwtSecret)
}

func optional(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := mws[:0]
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
