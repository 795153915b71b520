package model

import "time"

// Notification kinds written by the token event consumer.
const (
	NotifyTokenReady       = "TOKEN_READY"
	NotifyBookingConfirmed = "BOOKING_CONFIRMED"
	NotifySystem           = "SYSTEM"
)

// Notification is a user-facing message derived from a token event.
// Users poll them; the service makes no delivery guarantee.
type Notification struct {
	ID        uint64    `json:"id"`                 // notifications.id
	UserID    uint64    `json:"user_id"`            // notifications.user_id
	Kind      string    `json:"kind"`               // notifications.kind
	Title     string    `json:"title"`              // notifications.title
	Message   string    `json:"message"`            // notifications.message
	TokenID   *uint64   `json:"token_id,omitempty"` // notifications.token_id (nullable)
	IsRead    bool      `json:"is_read"`            // notifications.is_read
	CreatedAt time.Time `json:"created_at"`         // notifications.created_at
}
