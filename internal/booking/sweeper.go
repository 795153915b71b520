package booking

import (
	"context"
	"errors"
	"log"
	"time"
)

// sweepBatch bounds how many tokens one ExpireOverdue pass inspects.
const sweepBatch = 500

// ExpireOverdue expires every non-terminal token whose slot window is over
// and returns how many it expired.  Tokens that changed concurrently are
// skipped.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	now := e.clock()
	tokens, err := e.store.OverdueTokens(ctx, now.In(e.loc), sweepBatch)
	if err != nil {
		return 0, storageErr(err)
	}

	slots := make(map[uint64]bool)
	expired := 0
	for _, t := range tokens {
		ended, seen := slots[t.SlotID]
		if !seen {
			s, err := e.store.GetSlot(ctx, t.SlotID)
			if err != nil && !isNotFound(err) {
				return expired, storageErr(err)
			}
			ended = err != nil || s.HasEnded(now, e.loc)
			slots[t.SlotID] = ended
		}
		if !ended {
			continue
		}
		if _, err := e.Expire(ctx, t.ID); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// RunSweeper calls ExpireOverdue every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := e.ExpireOverdue(ctx)
			if err != nil {
				log.Printf("booking: sweep failed after %d expirations: %v", n, err)
				continue
			}
			if n > 0 {
				log.Printf("booking: expired %d overdue tokens", n)
			}
		}
	}
}
