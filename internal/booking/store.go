package booking

import (
	"context"
	"iter"
	"time"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// Store is the persistence boundary of the engine.  Reads outside Atomic
// see committed state only.  Lookups of missing rows return ErrNotFound.
type Store interface {
	// Atomic runs fn as one unit of work.  Every write made through tx is
	// discarded when fn returns an error, and that error is returned
	// unchanged.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetSlot(ctx context.Context, id uint64) (model.Slot, error)
	CreateSlot(ctx context.Context, s *model.Slot) error
	// BookableSlots yields non-retired slots dated on or after the filter's
	// From day, ordered by (date, start_time).  Each range re-queries.
	BookableSlots(ctx context.Context, f SlotFilter) iter.Seq2[model.Slot, error]
	// CountHeld counts the slot's non-terminal tokens.
	CountHeld(ctx context.Context, slotID uint64) (int, error)

	GetToken(ctx context.Context, id uint64) (model.Token, error)
	// ActiveTokens lists the slot's non-terminal tokens ordered by number.
	ActiveTokens(ctx context.Context, slotID uint64) ([]model.Token, error)
	// TokensByUser lists a user's tokens, newest first.
	TokensByUser(ctx context.Context, userID uint64) ([]model.Token, error)
	// OverdueTokens lists up to limit non-terminal tokens whose slot
	// window has ended by the wall-clock time now: the slot is dated
	// before now's day, or on it with an end time at or before now's
	// time of day.  now is expressed in the slot zone.
	OverdueTokens(ctx context.Context, now time.Time, limit int) ([]model.Token, error)

	// History yields visit history entries newest first.
	History(ctx context.Context, f HistoryFilter) iter.Seq2[model.VisitHistoryEntry, error]
	// TokenStats aggregates token counts by service and status for slots
	// dated within the filter range.
	TokenStats(ctx context.Context, f StatsFilter) ([]TokenStat, error)
}

// Tx is the write surface available inside Store.Atomic.
type Tx interface {
	// LockSlot reads the slot and holds an exclusive lock on it until the
	// unit ends.
	LockSlot(ctx context.Context, id uint64) (model.Slot, error)
	GetSlot(ctx context.Context, id uint64) (model.Slot, error)
	UpdateSlot(ctx context.Context, s model.Slot) error
	// CountTokens counts all tokens ever issued against the slot.
	CountTokens(ctx context.Context, slotID uint64) (int, error)

	HasActiveClaim(ctx context.Context, userID uint64, service model.Service) (bool, error)
	// HeldNumbers returns the numbers of the slot's non-terminal tokens.
	HeldNumbers(ctx context.Context, slotID uint64) ([]int, error)
	// InsertToken stores t and sets its ID.  It returns ErrNumberTaken or
	// ErrActiveClaimTaken when a uniqueness invariant would break.
	InsertToken(ctx context.Context, t *model.Token) error
	// LockToken reads the token and holds an exclusive lock on it until
	// the unit ends.
	LockToken(ctx context.Context, id uint64) (model.Token, error)
	UpdateToken(ctx context.Context, t model.Token) error

	AppendHistory(ctx context.Context, e *model.VisitHistoryEntry) error
}

// SlotFilter selects bookable slots.
type SlotFilter struct {
	Service model.Service // empty means any service
	From    time.Time     // first calendar day, compared by date only
}

// HistoryFilter selects visit history entries.  Zero fields match all.
type HistoryFilter struct {
	UserID  uint64
	SlotID  uint64
	Outcome model.Outcome
	From    time.Time // inclusive
	To      time.Time // exclusive
	Limit   int
}

// StatsFilter bounds a TokenStats query by slot date, both ends inclusive.
type StatsFilter struct {
	From time.Time
	To   time.Time
}

// TokenStat is one aggregate row of TokenStats.
type TokenStat struct {
	Service model.Service `json:"service"`
	Status  model.Status  `json:"status"`
	Count   int           `json:"count"`
}

// Collect drains a lazy sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
