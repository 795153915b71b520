package model

import "time"

// Status is the lifecycle state of a token.  The set is closed; only the
// booking engine moves a token between states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusSkipped   Status = "SKIPPED"
	StatusServed    Status = "SERVED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// NonTerminalStatuses hold a token number and count against capacity.
var NonTerminalStatuses = []Status{StatusPending, StatusApproved, StatusSkipped}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusServed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusSkipped, StatusServed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Op names a lifecycle operation applied to a token.
type Op string

const (
	OpApprove Op = "approve"
	OpServe   Op = "serve"
	OpSkip    Op = "skip"
	OpCancel  Op = "cancel"
	OpExpire  Op = "expire"
)

// Token is one user's numbered claim on a slot.  It is created by the
// allocator in PENDING and mutated only through lifecycle transitions.
// This struct corresponds to a row in the `tokens` table.
//
// Fields:
//  ID       – primary key identifier.
//  SlotID   – slot the token was issued against.
//  UserID   – owning user.
//  Service  – service of the slot, denormalized for the
//             one-active-claim-per-service rule.
//  Number   – token number, unique among the slot's non-terminal tokens.
//  Status   – lifecycle state.
//  IssuedAt – creation timestamp.
type Token struct {
	ID          uint64     `json:"id"`                     // tokens.id
	SlotID      uint64     `json:"slot_id"`                // tokens.slot_id
	UserID      uint64     `json:"user_id"`                // tokens.user_id
	Service     Service    `json:"service"`                // tokens.service
	Number      int        `json:"number"`                 // tokens.number
	Status      Status     `json:"status"`                 // tokens.status
	IssuedAt    time.Time  `json:"issued_at"`              // tokens.issued_at
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`  // tokens.approved_at (nullable)
	ServedAt    *time.Time `json:"served_at,omitempty"`    // tokens.served_at (nullable)
	CancelledAt *time.Time `json:"cancelled_at,omitempty"` // tokens.cancelled_at (nullable)
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`   // tokens.expired_at (nullable)
	UpdatedAt   time.Time  `json:"updated_at"`             // tokens.updated_at
}
