package memory

import (
	"context"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// memTx runs with Store.mu held.  Every write records an undo step.
type memTx struct {
	s    *Store
	undo []func()
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memTx) LockSlot(_ context.Context, id uint64) (model.Slot, error) {
	return tx.s.getSlot(id)
}

func (tx *memTx) GetSlot(_ context.Context, id uint64) (model.Slot, error) {
	return tx.s.getSlot(id)
}

func (tx *memTx) UpdateSlot(_ context.Context, sl model.Slot) error {
	prev, ok := tx.s.slots[sl.ID]
	if !ok {
		return booking.ErrNotFound
	}
	tx.s.slots[sl.ID] = sl
	tx.undo = append(tx.undo, func() { tx.s.slots[sl.ID] = prev })
	return nil
}

func (tx *memTx) CountTokens(_ context.Context, slotID uint64) (int, error) {
	n := 0
	for _, t := range tx.s.tokens {
		if t.SlotID == slotID {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) HasActiveClaim(_ context.Context, userID uint64, service model.Service) (bool, error) {
	for _, t := range tx.s.tokens {
		if t.UserID == userID && t.Service == service && !t.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) HeldNumbers(_ context.Context, slotID uint64) ([]int, error) {
	return tx.s.heldNumbers(slotID), nil
}

func (tx *memTx) InsertToken(_ context.Context, t *model.Token) error {
	for _, o := range tx.s.tokens {
		if o.Status.IsTerminal() {
			continue
		}
		if o.SlotID == t.SlotID && o.Number == t.Number {
			return booking.ErrNumberTaken
		}
		if o.UserID == t.UserID && o.Service == t.Service {
			return booking.ErrActiveClaimTaken
		}
	}
	tx.s.nextToken++
	t.ID = tx.s.nextToken
	tx.s.tokens[t.ID] = *t
	id := t.ID
	tx.undo = append(tx.undo, func() {
		delete(tx.s.tokens, id)
		tx.s.nextToken--
	})
	return nil
}

func (tx *memTx) LockToken(_ context.Context, id uint64) (model.Token, error) {
	t, ok := tx.s.tokens[id]
	if !ok {
		return model.Token{}, booking.ErrNotFound
	}
	return t, nil
}

func (tx *memTx) UpdateToken(_ context.Context, t model.Token) error {
	prev, ok := tx.s.tokens[t.ID]
	if !ok {
		return booking.ErrNotFound
	}
	tx.s.tokens[t.ID] = t
	tx.undo = append(tx.undo, func() { tx.s.tokens[t.ID] = prev })
	return nil
}

func (tx *memTx) AppendHistory(_ context.Context, e *model.VisitHistoryEntry) error {
	tx.s.nextHistory++
	e.ID = tx.s.nextHistory
	tx.s.history = append(tx.s.history, *e)
	tx.undo = append(tx.undo, func() {
		tx.s.history = tx.s.history[:len(tx.s.history)-1]
		tx.s.nextHistory--
	})
	return nil
}

// HistoryLen returns the number of stored history entries.
func (s *Store) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
