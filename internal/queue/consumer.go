package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// NotificationWriter stores notifications, once per event ID.
type NotificationWriter interface {
	Insert(ctx context.Context, eventID string, n *model.Notification) (bool, error)
}

// Consumer reads token events, writes a notification for the token owner
// and appends one line per event to <LogDir>/token.log.
type Consumer struct {
	URL    string
	Queue  string
	LogDir string
	Notes  NotificationWriter

	logMu sync.Mutex
}

// Run connects and consumes until ctx is done, reconnecting with
// exponential backoff when the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Printf("token-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("token-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("token-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(ctx, d.Body); err != nil {
			log.Printf("token-consumer: handle message failed: %v", err)
			// rejected without requeue so a poison message cannot spin
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle processes one message body.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev TokenEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.EventID == "" || ev.UserID == 0 {
		return fmt.Errorf("event missing id or user: %s", body)
	}

	if n, ok := notificationFor(ev); ok && c.Notes != nil {
		inserted, err := c.Notes.Insert(ctx, ev.EventID, &n)
		if err != nil {
			return fmt.Errorf("store notification: %w", err)
		}
		if !inserted {
			// redelivery; the log line was already written
			return nil
		}
	}
	return c.appendLog(ev)
}

func (c *Consumer) appendLog(ev TokenEvent) error {
	c.logMu.Lock()
	defer c.logMu.Unlock()

	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "token.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | event_id=%s | token_id=%d | number=%d | user_id=%d | slot_id=%d | slot=%q | status=%s\n",
		ev.OccurredAt.Format(time.RFC3339), ev.Type, ev.EventID, ev.TokenID, ev.Number, ev.UserID, ev.SlotID, ev.Slot, ev.Status)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// notificationFor builds the user-facing message for an event.
func notificationFor(ev TokenEvent) (model.Notification, bool) {
	tokenID := ev.TokenID
	n := model.Notification{
		UserID:    ev.UserID,
		TokenID:   &tokenID,
		CreatedAt: ev.OccurredAt,
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	switch booking.EventType(ev.Type) {
	case booking.EventIssued:
		n.Kind = model.NotifyBookingConfirmed
		n.Title = fmt.Sprintf("Token #%d booked", ev.Number)
		n.Message = fmt.Sprintf("Your token #%d for %s is waiting for approval.", ev.Number, ev.Slot)
	case booking.EventApproved:
		n.Kind = model.NotifyTokenReady
		n.Title = fmt.Sprintf("Token #%d approved", ev.Number)
		n.Message = fmt.Sprintf("Your token #%d for %s is approved. Please be at the counter on time.", ev.Number, ev.Slot)
	case booking.EventServed:
		n.Kind = model.NotifySystem
		n.Title = fmt.Sprintf("Token #%d served", ev.Number)
		n.Message = fmt.Sprintf("Thanks for visiting %s.", ev.Slot)
	case booking.EventSkipped:
		n.Kind = model.NotifySystem
		n.Title = fmt.Sprintf("Token #%d skipped", ev.Number)
		n.Message = fmt.Sprintf("You missed your turn for %s. Staff can still call you back.", ev.Slot)
	case booking.EventCancelled:
		n.Kind = model.NotifySystem
		n.Title = fmt.Sprintf("Token #%d cancelled", ev.Number)
		n.Message = fmt.Sprintf("Your booking for %s was cancelled.", ev.Slot)
	case booking.EventExpired:
		n.Kind = model.NotifySystem
		n.Title = fmt.Sprintf("Token #%d expired", ev.Number)
		n.Message = fmt.Sprintf("%s is over and your token has expired.", ev.Slot)
	default:
		return model.Notification{}, false
	}
	return n, true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
