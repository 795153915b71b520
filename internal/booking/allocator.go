package booking

import (
	"context"
	"errors"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// Allocate issues the lowest free token number of the slot to the user.
//
// The checks run in this order inside one atomic unit, under the slot's
// lock: the slot exists, is not retired and is not over (ErrInvalidSlot);
// the user holds no other non-terminal token for the service
// (ErrDuplicateActiveClaim); fewer than Capacity non-terminal tokens exist
// (ErrSlotFull).  A uniqueness conflict on (slot, number) reported by the
// store is retried once and then rejected as ErrSlotFull.
func (e *Engine) Allocate(ctx context.Context, slotID, userID uint64) (model.Token, error) {
	if slotID == 0 || userID == 0 {
		return model.Token{}, invalidf("slot and user are required")
	}

	var (
		tok  model.Token
		slot model.Slot
	)
	err := e.withSlotLock(ctx, slotID, func() error {
		var err error
		for attempt := 0; ; attempt++ {
			tok, slot, err = e.allocateOnce(ctx, slotID, userID)
			if !errors.Is(err, ErrNumberTaken) {
				return err
			}
			if attempt >= allocRetries {
				return ErrSlotFull
			}
		}
	})
	err = storageErr(err)
	e.metrics.allocation(err)
	if err != nil {
		return model.Token{}, err
	}
	e.publish(ctx, EventIssued, tok, slot)
	return tok, nil
}

func (e *Engine) allocateOnce(ctx context.Context, slotID, userID uint64) (model.Token, model.Slot, error) {
	var (
		tok  model.Token
		slot model.Slot
	)
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		slot, err = tx.LockSlot(ctx, slotID)
		if isNotFound(err) {
			return ErrInvalidSlot
		}
		if err != nil {
			return err
		}
		now := e.clock()
		if slot.IsRetired || slot.HasEnded(now, e.loc) {
			return ErrInvalidSlot
		}

		claimed, err := tx.HasActiveClaim(ctx, userID, slot.Service)
		if err != nil {
			return err
		}
		if claimed {
			return ErrDuplicateActiveClaim
		}

		held, err := tx.HeldNumbers(ctx, slotID)
		if err != nil {
			return err
		}
		if len(held) >= slot.Capacity {
			return ErrSlotFull
		}
		number := lowestFree(held, slot.Capacity)
		if number == 0 {
			return ErrSlotFull
		}

		tok = model.Token{
			SlotID:    slot.ID,
			UserID:    userID,
			Service:   slot.Service,
			Number:    number,
			Status:    model.StatusPending,
			IssuedAt:  now,
			UpdatedAt: now,
		}
		if err := tx.InsertToken(ctx, &tok); err != nil {
			if errors.Is(err, ErrActiveClaimTaken) {
				return ErrDuplicateActiveClaim
			}
			return err
		}
		return nil
	})
	return tok, slot, err
}

// lowestFree returns the smallest number in [1, capacity] not in held, or
// 0 when every number is taken.
func lowestFree(held []int, capacity int) int {
	used := make([]bool, capacity+1)
	for _, n := range held {
		if n >= 1 && n <= capacity {
			used[n] = true
		}
	}
	for n := 1; n <= capacity; n++ {
		if !used[n] {
			return n
		}
	}
	return 0
}
