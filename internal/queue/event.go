// Package queue defines the token event payload carried over RabbitMQ and
// the consumer that turns those events into user notifications.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/queue-token-service/internal/booking"
)

// TokenEvent is the wire form of a committed token change.  EventID is
// unique per publish and lets consumers drop redeliveries.
type TokenEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	TokenID    uint64    `json:"token_id"`
	SlotID     uint64    `json:"slot_id"`
	UserID     uint64    `json:"user_id"`
	Service    string    `json:"service"`
	Number     int       `json:"number"`
	Status     string    `json:"status"`
	Slot       string    `json:"slot"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTokenEvent converts an engine event and stamps a fresh event ID.
func NewTokenEvent(ev booking.Event) TokenEvent {
	return TokenEvent{
		EventID:    uuid.NewString(),
		Type:       string(ev.Type),
		TokenID:    ev.Token.ID,
		SlotID:     ev.Token.SlotID,
		UserID:     ev.Token.UserID,
		Service:    string(ev.Token.Service),
		Number:     ev.Token.Number,
		Status:     string(ev.Token.Status),
		Slot:       ev.Slot.Description(),
		OccurredAt: ev.OccurredAt.UTC(),
	}
}
