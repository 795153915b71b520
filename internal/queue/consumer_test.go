package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

type memNotes struct {
	mu   sync.Mutex
	seen map[string]bool
	rows []model.Notification
}

func (m *memNotes) Insert(_ context.Context, eventID string, n *model.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	n.ID = uint64(len(m.rows) + 1)
	m.rows = append(m.rows, *n)
	return true, nil
}

func sampleEvent(typ booking.EventType) booking.Event {
	avg := 5
	return booking.Event{
		Type: typ,
		Token: model.Token{
			ID: 11, SlotID: 3, UserID: 42, Service: model.ServiceLibrary,
			Number: 2, Status: model.StatusPending,
		},
		Slot: model.Slot{
			ID: 3, Service: model.ServiceLibrary,
			Date:      time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
			StartTime: 9 * time.Hour, EndTime: 10 * time.Hour,
			Capacity: 5, AvgServiceMinutes: &avg,
		},
		OccurredAt: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewTokenEvent(t *testing.T) {
	ev := NewTokenEvent(sampleEvent(booking.EventIssued))
	if ev.EventID == "" || ev.Type != "token.issued" || ev.TokenID != 11 || ev.Number != 2 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Slot != "LIBRARY 2026-10-20 09:00-10:00" {
		t.Fatalf("slot = %q", ev.Slot)
	}
	if other := NewTokenEvent(sampleEvent(booking.EventIssued)); other.EventID == ev.EventID {
		t.Fatal("event ids repeat")
	}
}

func TestConsumerHandle_WritesNotificationAndLogOnce(t *testing.T) {
	dir := t.TempDir()
	notes := &memNotes{}
	c := &Consumer{LogDir: dir, Notes: notes}

	body, _ := json.Marshal(NewTokenEvent(sampleEvent(booking.EventApproved)))
	for i := 0; i < 2; i++ {
		if err := c.Handle(context.Background(), body); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	if len(notes.rows) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes.rows))
	}
	n := notes.rows[0]
	if n.Kind != model.NotifyTokenReady || n.UserID != 42 || n.TokenID == nil || *n.TokenID != 11 {
		t.Fatalf("notification = %+v", n)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "token.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "token.approved") || !strings.Contains(lines[0], "token_id=11") {
		t.Fatalf("log = %q", raw)
	}
}

func TestConsumerHandle_RejectsBadPayload(t *testing.T) {
	c := &Consumer{LogDir: t.TempDir()}
	if err := c.Handle(context.Background(), []byte("{")); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if err := c.Handle(context.Background(), []byte(`{"type":"token.issued"}`)); err == nil {
		t.Fatal("expected missing id error")
	}
}

func TestNotificationFor(t *testing.T) {
	cases := map[booking.EventType]string{
		booking.EventIssued:    model.NotifyBookingConfirmed,
		booking.EventApproved:  model.NotifyTokenReady,
		booking.EventServed:    model.NotifySystem,
		booking.EventSkipped:   model.NotifySystem,
		booking.EventCancelled: model.NotifySystem,
		booking.EventExpired:   model.NotifySystem,
	}
	for typ, kind := range cases {
		n, ok := notificationFor(NewTokenEvent(sampleEvent(typ)))
		if !ok || n.Kind != kind || n.Title == "" || n.Message == "" {
			t.Errorf("%s: %+v %v", typ, n, ok)
		}
	}
	if _, ok := notificationFor(TokenEvent{Type: "token.unknown"}); ok {
		t.Error("unknown type produced a notification")
	}
}
