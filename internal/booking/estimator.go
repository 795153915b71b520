package booking

import (
	"context"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// EstimateWait returns position * slot.AvgServiceMinutes.  position is the
// zero-based rank of a token among the slot's non-terminal tokens ordered
// by number.  ok is false when the slot carries no average.
func EstimateWait(slot model.Slot, position int) (minutes int, ok bool) {
	if slot.AvgServiceMinutes == nil || position < 0 {
		return 0, false
	}
	return position * *slot.AvgServiceMinutes, true
}

// QueueEntry is one line of a slot's live queue.
type QueueEntry struct {
	Token       model.Token `json:"token"`
	Position    int         `json:"position"`
	WaitMinutes *int        `json:"estimated_wait_minutes,omitempty"`
}

// QueueStatus lists the slot's non-terminal tokens in number order with
// their position and wait estimate.
func (e *Engine) QueueStatus(ctx context.Context, slotID uint64) (model.Slot, []QueueEntry, error) {
	slot, err := e.store.GetSlot(ctx, slotID)
	if err != nil {
		return model.Slot{}, nil, storageErr(err)
	}
	tokens, err := e.store.ActiveTokens(ctx, slotID)
	if err != nil {
		return model.Slot{}, nil, storageErr(err)
	}
	out := make([]QueueEntry, 0, len(tokens))
	for i, t := range tokens {
		q := QueueEntry{Token: t, Position: i}
		if m, ok := EstimateWait(slot, i); ok {
			q.WaitMinutes = &m
		}
		out = append(out, q)
	}
	return slot, out, nil
}

// TokensByUser lists a user's tokens, newest first.
func (e *Engine) TokensByUser(ctx context.Context, userID uint64) ([]model.Token, error) {
	ts, err := e.store.TokensByUser(ctx, userID)
	return ts, storageErr(err)
}

// Token returns a single token.
func (e *Engine) Token(ctx context.Context, id uint64) (model.Token, error) {
	t, err := e.store.GetToken(ctx, id)
	return t, storageErr(err)
}

// Stats aggregates token counts by service and status.
func (e *Engine) Stats(ctx context.Context, f StatsFilter) ([]TokenStat, error) {
	st, err := e.store.TokenStats(ctx, f)
	return st, storageErr(err)
}
