package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/config"
	"github.com/iliyamo/queue-token-service/internal/utils"
)

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/staff", JWTAuth("k"), RequireRole("STAFF", "ADMIN"))
	g.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"uid": c.Get(KeyUserID)})
	})

	req := httptest.NewRequest(http.MethodGet, "/staff", nil)
	if rec := serve(e, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}

	user, _ := utils.NewAccessToken("k", 5, "USER", time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+user.Token)
	if rec := serve(e, req); rec.Code != http.StatusForbidden {
		t.Fatalf("user role: %d", rec.Code)
	}

	staff, _ := utils.NewAccessToken("k", 6, "STAFF", time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+staff.Token)
	rec := serve(e, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "{\"uid\":6}\n" {
		t.Fatalf("staff: %d %s", rec.Code, rec.Body)
	}
}

func TestTokenBucket_LocalFallback(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, nil))

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := serve(e, req)
		codes[i] = rec.Code
		if i == 2 && rec.Header().Get("Retry-After") == "" {
			t.Error("missing Retry-After")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	if rec := serve(e, req); rec.Code != http.StatusNoContent {
		t.Fatalf("other ip: %d", rec.Code)
	}
}

func TestTokenBucket_Disabled(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil))
	for i := 0; i < 5; i++ {
		if rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
}

func TestCacheEntryCodec(t *testing.T) {
	h := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodeEntry(http.StatusOK, h, []byte(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	status, hdr, body, ok := decodeEntry(bs)
	if !ok || status != http.StatusOK || hdr.Get("Content-Type") != "application/json" || string(body) != `{"a":1}` {
		t.Fatalf("decode = %d %v %q %v", status, hdr, body, ok)
	}
	if _, _, _, ok := decodeEntry([]byte{0, 1}); ok {
		t.Fatal("short entry decoded")
	}
}
