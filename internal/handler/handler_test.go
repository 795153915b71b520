package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/config"
	"github.com/iliyamo/queue-token-service/internal/middleware"
	"github.com/iliyamo/queue-token-service/internal/model"
	"github.com/iliyamo/queue-token-service/internal/repository"
	"github.com/iliyamo/queue-token-service/internal/repository/memory"
	"github.com/iliyamo/queue-token-service/internal/utils"
)

const testSecret = "test-secret"

var testNow = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

type fixture struct {
	e      *echo.Echo
	engine *booking.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := booking.New(memory.New(), booking.WithClock(func() time.Time { return testNow }))
	e := echo.New()

	slots := NewSlotHandler(engine)
	toks := NewTokenHandler(engine)
	staff := NewStaffHandler(engine)
	reports := NewReportHandler(engine)

	e.GET("/v1/slots", slots.List)
	e.GET("/v1/slots/:id", slots.Get)
	e.GET("/v1/slots/:id/queue", slots.Queue)

	auth := middleware.JWTAuth(testSecret)
	u := e.Group("/v1", auth)
	u.POST("/slots/:id/tokens", toks.Book)
	u.GET("/my-tokens", toks.Mine)
	u.DELETE("/tokens/:id", toks.Cancel)
	u.GET("/my-history", toks.History)

	s := e.Group("/v1/staff", auth, middleware.RequireRole(model.RoleStaff, model.RoleAdmin))
	s.POST("/tokens/:id/serve", staff.Transition(model.OpServe))
	s.POST("/tokens/:id/approve", staff.Transition(model.OpApprove))
	s.GET("/slots/:id/tokens", staff.SlotTokens)

	a := e.Group("/v1/admin", auth, middleware.RequireRole(model.RoleAdmin))
	a.POST("/slots", slots.Create)
	a.PATCH("/slots/:id", slots.Update)
	a.GET("/history", reports.History)
	a.GET("/reports", reports.Reports)

	return &fixture{e: e, engine: engine}
}

func (f *fixture) do(t *testing.T, method, path string, uid uint64, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if uid != 0 {
		at, err := utils.NewAccessToken(testSecret, uid, role, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+at.Token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

const slotBody = `{"service":"library","date":"2026-10-20","start_time":"09:00","end_time":"10:00","capacity":2,"avg_service_minutes":10}`

func (f *fixture) createSlot(t *testing.T) slotView {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/admin/slots", 1, model.RoleAdmin, slotBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create slot: %d %s", rec.Code, rec.Body)
	}
	return decode[slotView](t, rec)
}

func TestCreateSlot_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/v1/admin/slots", 2, model.RoleUser, slotBody); rec.Code != http.StatusForbidden {
		t.Fatalf("user create: %d", rec.Code)
	}
	s := f.createSlot(t)
	if s.Service != model.ServiceLibrary || s.StartTime != "09:00" || s.Capacity != 2 {
		t.Fatalf("slot = %+v", s)
	}
}

func TestCreateSlot_Validation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing fields", `{"service":"library"}`},
		{"bad date", `{"service":"library","date":"20-10-2026","start_time":"09:00","end_time":"10:00","capacity":1}`},
		{"end before start", `{"service":"library","date":"2026-10-20","start_time":"10:00","end_time":"09:00","capacity":1}`},
		{"zero capacity", `{"service":"library","date":"2026-10-20","start_time":"09:00","end_time":"10:00","capacity":0}`},
		{"unknown service", `{"service":"gym","date":"2026-10-20","start_time":"09:00","end_time":"10:00","capacity":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/admin/slots", 1, model.RoleAdmin, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
			}
		})
	}
}

func TestBookAndQueue(t *testing.T) {
	f := newFixture(t)
	s := f.createSlot(t)
	path := "/v1/slots/1/tokens"

	rec := f.do(t, http.MethodPost, path, 10, model.RoleUser, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", rec.Code, rec.Body)
	}
	if tok := decode[model.Token](t, rec); tok.Number != 1 || tok.Status != model.StatusPending {
		t.Fatalf("token = %+v", tok)
	}

	if rec := f.do(t, http.MethodPost, path, 10, model.RoleUser, ""); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", rec.Code)
	} else if body := decode[map[string]string](t, rec); body["error"] != "duplicate_active_claim" {
		t.Fatalf("duplicate body = %v", body)
	}

	if rec := f.do(t, http.MethodPost, path, 11, model.RoleUser, ""); rec.Code != http.StatusCreated {
		t.Fatalf("second user: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, path, 12, model.RoleUser, ""); rec.Code != http.StatusConflict {
		t.Fatalf("full: %d", rec.Code)
	} else if body := decode[map[string]string](t, rec); body["error"] != "slot_full" {
		t.Fatalf("full body = %v", body)
	}

	rec = f.do(t, http.MethodGet, "/v1/slots/1/queue", 0, "", "")
	q := decode[struct {
		Slot  slotView    `json:"slot"`
		Queue []queueLine `json:"queue"`
	}](t, rec)
	if q.Slot.ID != s.ID || len(q.Queue) != 2 {
		t.Fatalf("queue = %+v", q)
	}
	if q.Queue[1].Position != 1 || q.Queue[1].WaitMinutes == nil || *q.Queue[1].WaitMinutes != 10 {
		t.Fatalf("second line = %+v", q.Queue[1])
	}
	if strings.Contains(rec.Body.String(), "user_id") {
		t.Fatal("public queue exposes user ids")
	}

	rec = f.do(t, http.MethodGet, "/v1/slots/1", 0, "", "")
	if v := decode[slotView](t, rec); v.Remaining == nil || *v.Remaining != 0 {
		t.Fatalf("remaining = %v", v.Remaining)
	}
}

func TestBook_Errors(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/v1/slots/1/tokens", 0, "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/v1/slots/abc/tokens", 5, model.RoleUser, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/v1/slots/99/tokens", 5, model.RoleUser, ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing slot: %d", rec.Code)
	}
}

func TestCancelOwnAndStaffTransitions(t *testing.T) {
	f := newFixture(t)
	f.createSlot(t)
	f.do(t, http.MethodPost, "/v1/slots/1/tokens", 10, model.RoleUser, "")
	f.do(t, http.MethodPost, "/v1/slots/1/tokens", 11, model.RoleUser, "")

	if rec := f.do(t, http.MethodDelete, "/v1/tokens/1", 11, model.RoleUser, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cancel other's token: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/v1/tokens/1", 10, model.RoleUser, ""); rec.Code != http.StatusOK {
		t.Fatalf("cancel own: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodDelete, "/v1/tokens/1", 10, model.RoleUser, ""); rec.Code != http.StatusConflict {
		t.Fatalf("cancel twice: %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/v1/staff/tokens/2/serve", 11, model.RoleUser, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("user serve: %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/v1/staff/tokens/2/serve", 3, model.RoleStaff, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("serve: %d %s", rec.Code, rec.Body)
	}
	if tok := decode[model.Token](t, rec); tok.Status != model.StatusServed {
		t.Fatalf("status = %s", tok.Status)
	}
	if rec := f.do(t, http.MethodPost, "/v1/staff/tokens/2/approve", 3, model.RoleStaff, ""); rec.Code != http.StatusConflict {
		t.Fatalf("approve served: %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/v1/my-history", 10, model.RoleUser, "")
	h := decode[struct {
		History []model.VisitHistoryEntry `json:"history"`
	}](t, rec)
	if len(h.History) != 1 || h.History[0].Outcome != model.OutcomeCancelled {
		t.Fatalf("my history = %+v", h.History)
	}

	rec = f.do(t, http.MethodGet, "/v1/admin/history?outcome=served", 1, model.RoleAdmin, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("lower-case outcome: %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/v1/admin/history?outcome=SERVED&user_id=11", 1, model.RoleAdmin, "")
	h = decode[struct {
		History []model.VisitHistoryEntry `json:"history"`
	}](t, rec)
	if len(h.History) != 1 || h.History[0].UserID != 11 {
		t.Fatalf("admin history = %+v", h.History)
	}
}

func TestMyTokensCarryPosition(t *testing.T) {
	f := newFixture(t)
	f.createSlot(t)
	f.do(t, http.MethodPost, "/v1/slots/1/tokens", 10, model.RoleUser, "")
	f.do(t, http.MethodPost, "/v1/slots/1/tokens", 11, model.RoleUser, "")

	rec := f.do(t, http.MethodGet, "/v1/my-tokens", 11, model.RoleUser, "")
	got := decode[struct {
		Tokens []tokenView `json:"tokens"`
	}](t, rec)
	if len(got.Tokens) != 1 {
		t.Fatalf("tokens = %+v", got.Tokens)
	}
	if p := got.Tokens[0].Position; p == nil || *p != 1 {
		t.Fatalf("position = %v", p)
	}
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	f.createSlot(t)
	f.do(t, http.MethodPost, "/v1/slots/1/tokens", 10, model.RoleUser, "")
	f.do(t, http.MethodPost, "/v1/slots/1/tokens", 11, model.RoleUser, "")
	f.do(t, http.MethodPost, "/v1/staff/tokens/1/serve", 3, model.RoleStaff, "")

	rec := f.do(t, http.MethodGet, "/v1/admin/reports?from=2026-10-01&to=2026-10-31", 1, model.RoleAdmin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reports: %d %s", rec.Code, rec.Body)
	}
	r := decode[struct {
		Total    int             `json:"total_tokens"`
		Served   int             `json:"served_tokens"`
		Services []serviceReport `json:"services"`
	}](t, rec)
	if r.Total != 2 || r.Served != 1 || len(r.Services) != 1 {
		t.Fatalf("report = %+v", r)
	}
	if r.Services[0].ByStatus[model.StatusPending] != 1 {
		t.Fatalf("by status = %v", r.Services[0].ByStatus)
	}

	if rec := f.do(t, http.MethodGet, "/v1/admin/reports?from=yesterday", 1, model.RoleAdmin, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad from: %d", rec.Code)
	}
}

func TestListSlots(t *testing.T) {
	f := newFixture(t)
	f.createSlot(t)
	rec := f.do(t, http.MethodGet, "/v1/slots?service=library&from=2026-10-01", 0, "", "")
	got := decode[struct {
		Slots []slotView `json:"slots"`
	}](t, rec)
	if len(got.Slots) != 1 || got.Slots[0].Remaining == nil || *got.Slots[0].Remaining != 2 {
		t.Fatalf("slots = %+v", got.Slots)
	}
	rec = f.do(t, http.MethodGet, "/v1/slots?service=canteen&from=2026-10-01", 0, "", "")
	if got := decode[struct {
		Slots []slotView `json:"slots"`
	}](t, rec); len(got.Slots) != 0 {
		t.Fatalf("canteen slots = %+v", got.Slots)
	}
}

func TestWriteError_StorageUnavailable(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := writeError(c, context.DeadlineExceeded); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

type fakeUsers struct {
	mu      sync.Mutex
	users   map[string]model.User
	refresh map[string]uint64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]model.User{}, refresh: map[string]uint64{}}
}

func (f *fakeUsers) Create(_ context.Context, email, password, role string, cost int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; ok {
		return 0, repository.ErrEmailExists
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	u := model.User{ID: uint64(len(f.users) + 1), Email: email, PasswordHash: hash, Role: role, IsActive: true}
	f.users[email] = u
	return u.ID, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) Store(_ context.Context, userID uint64, hash string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[hash] = userID
	return nil
}

func (f *fakeUsers) Validate(_ context.Context, hash string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.refresh[hash]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return uid, nil
}

func (f *fakeUsers) Revoke(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, hash)
	return nil
}

func (f *fakeUsers) RevokeAllForUser(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, uid := range f.refresh {
		if uid == userID {
			delete(f.refresh, h)
		}
	}
	return nil
}

func TestAuthFlow(t *testing.T) {
	store := newFakeUsers()
	cfg := config.Config{
		JWTSecret:      testSecret,
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4,
		AdminEmails:    map[string]bool{"boss@example.com": true},
	}
	h := NewAuthHandler(cfg, store, store)
	e := echo.New()
	e.POST("/register", h.Register)
	e.POST("/login", h.Login)
	e.POST("/refresh", h.Refresh)
	e.GET("/me", h.Me, middleware.JWTAuth(testSecret))
	e.POST("/logout", h.Logout, middleware.JWTAuth(testSecret))

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/register", `{"email":" Boss@Example.com ","password":"secret-pass"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body)
	}
	reg := decode[authResp](t, rec)
	if reg.User.Role != model.RoleAdmin || reg.User.Email != "boss@example.com" {
		t.Fatalf("registered user = %+v", reg.User)
	}

	if rec := post("/register", `{"email":"boss@example.com","password":"secret-pass"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", rec.Code)
	}
	if rec := post("/register", `{"email":"a@example.com","password":"short"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: %d", rec.Code)
	}
	rec = post("/register", `{"email":"a@example.com","password":"long-enough"}`)
	if u := decode[authResp](t, rec).User; u.Role != model.RoleUser {
		t.Fatalf("plain user role = %s", u.Role)
	}

	if rec := post("/login", `{"email":"boss@example.com","password":"wrong-pass"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", rec.Code)
	}
	if rec := post("/login", `{"email":"nobody@example.com","password":"whatever1"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: %d", rec.Code)
	}
	rec = post("/login", `{"email":"boss@example.com","password":"secret-pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	login := decode[authResp](t, rec)

	rec = post("/refresh", `{"refresh_token":"`+login.Refresh.Token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body)
	}
	if rec := post("/refresh", `{"refresh_token":"`+login.Refresh.Token+`"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+login.Access.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if me := decode[userPart](t, rec); me.ID != reg.User.ID {
		t.Fatalf("me = %+v", me)
	}

	rotated := decode[authResp](t, post("/login", `{"email":"boss@example.com","password":"secret-pass"}`))
	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+rotated.Access.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := post("/refresh", `{"refresh_token":"`+rotated.Refresh.Token+`"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: %d", rec.Code)
	}
}
