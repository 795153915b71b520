package model

import "time"

// Outcome is the result recorded on a visit history entry.
type Outcome string

const (
	OutcomeServed    Outcome = "SERVED"
	OutcomeSkipped   Outcome = "SKIPPED"
	OutcomeCancelled Outcome = "CANCELLED"
	OutcomeExpired   Outcome = "EXPIRED"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeServed, OutcomeSkipped, OutcomeCancelled, OutcomeExpired:
		return true
	}
	return false
}

// VisitHistoryEntry is a write-once audit record of a token outcome.
// SlotID is nullable for rows whose slot reference was cleared;
// SlotDescription and TokenNumber are snapshots taken at write time.
type VisitHistoryEntry struct {
	ID              uint64    `json:"id"`               // visit_history.id
	UserID          uint64    `json:"user_id"`          // visit_history.user_id
	SlotID          *uint64   `json:"slot_id"`          // visit_history.slot_id (nullable)
	SlotDescription string    `json:"slot_description"` // visit_history.slot_description
	Service         Service   `json:"service"`          // visit_history.service
	TokenID         uint64    `json:"token_id"`         // visit_history.token_id
	TokenNumber     int       `json:"token_number"`     // visit_history.token_number
	Outcome         Outcome   `json:"outcome"`          // visit_history.outcome
	RecordedAt      time.Time `json:"recorded_at"`      // visit_history.recorded_at
}
