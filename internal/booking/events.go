package booking

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// EventType names a token event.
type EventType string

const (
	EventIssued    EventType = "token.issued"
	EventApproved  EventType = "token.approved"
	EventServed    EventType = "token.served"
	EventSkipped   EventType = "token.skipped"
	EventCancelled EventType = "token.cancelled"
	EventExpired   EventType = "token.expired"
)

// Event describes a committed token change.
type Event struct {
	Type       EventType
	Token      model.Token
	Slot       model.Slot
	OccurredAt time.Time
}

// EventPublisher delivers events to subscribers such as the notifier.
// Publishing happens after commit and its failure never undoes the change.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

const publishTimeout = 3 * time.Second

func (e *Engine) publish(ctx context.Context, typ EventType, tok model.Token, slot model.Slot) {
	if e.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	ev := Event{Type: typ, Token: tok, Slot: slot, OccurredAt: e.clock()}
	if err := e.events.Publish(ctx, ev); err != nil {
		log.Printf("booking: publish %s for token %d failed: %v", typ, tok.ID, err)
	}
}
