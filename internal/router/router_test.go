package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/config"
	"github.com/iliyamo/queue-token-service/internal/handler"
	"github.com/iliyamo/queue-token-service/internal/repository/memory"
)

func TestRegister_Routes(t *testing.T) {
	engine := booking.New(memory.New())
	e := echo.New()
	limited := 0
	Register(e, Handlers{
		Auth:    handler.NewAuthHandler(config.Config{JWTSecret: "k"}, nil, nil),
		Slots:   handler.NewSlotHandler(engine),
		Tokens:  handler.NewTokenHandler(engine),
		Staff:   handler.NewStaffHandler(engine),
		Reports: handler.NewReportHandler(engine),
		Health:  handler.Health(nil),
	}, Middleware{
		RateLimit: func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				limited++
				return next(c)
			}
		},
	}, "k")

	want := map[string]bool{
		"GET /healthz":                     false,
		"POST /v1/auth/login":              false,
		"GET /v1/me":                       false,
		"GET /v1/slots":                    false,
		"GET /v1/slots/:id/queue":          false,
		"POST /v1/slots/:id/tokens":        false,
		"DELETE /v1/tokens/:id":            false,
		"GET /v1/my-history":               false,
		"POST /v1/staff/tokens/:id/skip":   false,
		"POST /v1/staff/tokens/:id/expire": false,
		"GET /v1/staff/slots/:id/tokens":   false,
		"POST /v1/admin/slots/:id/retire":  false,
		"GET /v1/admin/reports":            false,
		"GET /v1/notifications":            false,
	}
	for _, r := range e.Routes() {
		k := r.Method + " " + r.Path
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if k == "GET /v1/notifications" {
			if seen {
				t.Error("notification routes registered without a handler")
			}
			continue
		}
		if !seen {
			t.Errorf("route %s not registered", k)
		}
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/slots/1/tokens", nil))
	if rec.Code != http.StatusUnauthorized || limited != 0 {
		t.Fatalf("anonymous booking = %d, limiter calls %d", rec.Code, limited)
	}
}
