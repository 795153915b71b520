// Package memory provides an in-memory implementation of booking.Store
// for tests and single-process development runs.  A single mutex guards
// the whole state; Atomic holds it for the duration of the unit and rolls
// writes back from an undo log when the unit fails.  Units against
// different slots therefore run one at a time: this backend gives no
// per-slot parallelism and is not meant for production traffic.
package memory

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// Compile-time contract assertion.
var _ booking.Store = (*Store)(nil)

// Store keeps slots, tokens and history in maps.
type Store struct {
	mu      sync.Mutex
	slots   map[uint64]model.Slot
	tokens  map[uint64]model.Token
	history []model.VisitHistoryEntry

	nextSlot    uint64
	nextToken   uint64
	nextHistory uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		slots:  make(map[uint64]model.Slot),
		tokens: make(map[uint64]model.Token),
	}
}

// Atomic implements booking.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// GetSlot implements booking.Store.
func (s *Store) GetSlot(_ context.Context, id uint64) (model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSlot(id)
}

func (s *Store) getSlot(id uint64) (model.Slot, error) {
	sl, ok := s.slots[id]
	if !ok {
		return model.Slot{}, booking.ErrNotFound
	}
	return sl, nil
}

// CreateSlot implements booking.Store.
func (s *Store) CreateSlot(_ context.Context, sl *model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSlot++
	sl.ID = s.nextSlot
	s.slots[sl.ID] = *sl
	return nil
}

// BookableSlots implements booking.Store.  The snapshot is taken when the
// sequence is ranged, not when it is created.
func (s *Store) BookableSlots(_ context.Context, f booking.SlotFilter) iter.Seq2[model.Slot, error] {
	return func(yield func(model.Slot, error) bool) {
		s.mu.Lock()
		out := make([]model.Slot, 0, len(s.slots))
		for _, sl := range s.slots {
			if sl.IsRetired {
				continue
			}
			if f.Service != "" && sl.Service != f.Service {
				continue
			}
			if !f.From.IsZero() && dayBefore(sl.Date, f.From) {
				continue
			}
			out = append(out, sl)
		}
		s.mu.Unlock()

		slices.SortFunc(out, func(a, b model.Slot) int {
			if c := a.Date.Compare(b.Date); c != 0 {
				return c
			}
			if c := cmp.Compare(a.StartTime, b.StartTime); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		for _, sl := range out {
			if !yield(sl, nil) {
				return
			}
		}
	}
}

// CountHeld implements booking.Store.
func (s *Store) CountHeld(_ context.Context, slotID uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heldNumbers(slotID)), nil
}

// GetToken implements booking.Store.
func (s *Store) GetToken(_ context.Context, id uint64) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return model.Token{}, booking.ErrNotFound
	}
	return t, nil
}

// ActiveTokens implements booking.Store.
func (s *Store) ActiveTokens(_ context.Context, slotID uint64) ([]model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Token
	for _, t := range s.tokens {
		if t.SlotID == slotID && !t.Status.IsTerminal() {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b model.Token) int { return cmp.Compare(a.Number, b.Number) })
	return out, nil
}

// TokensByUser implements booking.Store.
func (s *Store) TokensByUser(_ context.Context, userID uint64) ([]model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Token
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b model.Token) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

// OverdueTokens implements booking.Store.
func (s *Store) OverdueTokens(_ context.Context, now time.Time, limit int) ([]model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clock := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second
	var out []model.Token
	for _, t := range s.tokens {
		if t.Status.IsTerminal() {
			continue
		}
		sl, ok := s.slots[t.SlotID]
		if ok && !dayBefore(sl.Date, now) && (dayBefore(now, sl.Date) || sl.EndTime > clock) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b model.Token) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// History implements booking.Store.
func (s *Store) History(_ context.Context, f booking.HistoryFilter) iter.Seq2[model.VisitHistoryEntry, error] {
	return func(yield func(model.VisitHistoryEntry, error) bool) {
		s.mu.Lock()
		var out []model.VisitHistoryEntry
		for _, e := range s.history {
			if matchHistory(e, f) {
				out = append(out, e)
			}
		}
		s.mu.Unlock()

		slices.SortFunc(out, func(a, b model.VisitHistoryEntry) int {
			if c := b.RecordedAt.Compare(a.RecordedAt); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		})
		if f.Limit > 0 && len(out) > f.Limit {
			out = out[:f.Limit]
		}
		for _, e := range out {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func matchHistory(e model.VisitHistoryEntry, f booking.HistoryFilter) bool {
	if f.UserID != 0 && e.UserID != f.UserID {
		return false
	}
	if f.SlotID != 0 && (e.SlotID == nil || *e.SlotID != f.SlotID) {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if !f.From.IsZero() && e.RecordedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.RecordedAt.Before(f.To) {
		return false
	}
	return true
}

// TokenStats implements booking.Store.
func (s *Store) TokenStats(_ context.Context, f booking.StatsFilter) ([]booking.TokenStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		service model.Service
		status  model.Status
	}
	counts := make(map[key]int)
	for _, t := range s.tokens {
		sl, ok := s.slots[t.SlotID]
		if !ok {
			continue
		}
		if !f.From.IsZero() && dayBefore(sl.Date, f.From) {
			continue
		}
		if !f.To.IsZero() && dayBefore(f.To, sl.Date) {
			continue
		}
		counts[key{t.Service, t.Status}]++
	}
	out := make([]booking.TokenStat, 0, len(counts))
	for k, n := range counts {
		out = append(out, booking.TokenStat{Service: k.service, Status: k.status, Count: n})
	}
	slices.SortFunc(out, func(a, b booking.TokenStat) int {
		if c := cmp.Compare(a.Service, b.Service); c != 0 {
			return c
		}
		return cmp.Compare(a.Status, b.Status)
	})
	return out, nil
}

func (s *Store) heldNumbers(slotID uint64) []int {
	var out []int
	for _, t := range s.tokens {
		if t.SlotID == slotID && !t.Status.IsTerminal() {
			out = append(out, t.Number)
		}
	}
	return out
}

// dayBefore reports whether a falls on an earlier calendar day than b.
func dayBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC).Before(time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC))
}
