package booking

import (
	"context"
	"slices"
	"time"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// rule is one row of the transition table.
type rule struct {
	from    []model.Status
	to      model.Status
	outcome model.Outcome // empty when the move is not recorded in history
	event   EventType
}

// transitions is the only place token status changes are defined.
var transitions = map[model.Op]rule{
	model.OpApprove: {
		from:  []model.Status{model.StatusPending, model.StatusSkipped},
		to:    model.StatusApproved,
		event: EventApproved,
	},
	model.OpServe: {
		from:    []model.Status{model.StatusPending, model.StatusApproved, model.StatusSkipped},
		to:      model.StatusServed,
		outcome: model.OutcomeServed,
		event:   EventServed,
	},
	model.OpSkip: {
		from:    []model.Status{model.StatusPending, model.StatusApproved},
		to:      model.StatusSkipped,
		outcome: model.OutcomeSkipped,
		event:   EventSkipped,
	},
	model.OpCancel: {
		from:    []model.Status{model.StatusPending, model.StatusApproved},
		to:      model.StatusCancelled,
		outcome: model.OutcomeCancelled,
		event:   EventCancelled,
	},
	model.OpExpire: {
		from:    []model.Status{model.StatusPending, model.StatusApproved, model.StatusSkipped},
		to:      model.StatusExpired,
		outcome: model.OutcomeExpired,
		event:   EventExpired,
	},
}

// CanTransition reports whether op is allowed from status.
func CanTransition(status model.Status, op model.Op) bool {
	r, ok := transitions[op]
	return ok && slices.Contains(r.from, status)
}

// Transition applies op to the token.  The status check, the write and the
// history append happen in one atomic unit with the token row locked.
func (e *Engine) Transition(ctx context.Context, tokenID uint64, op model.Op) (model.Token, error) {
	return e.transition(ctx, tokenID, op, 0)
}

// Approve moves a PENDING or SKIPPED token to APPROVED.
func (e *Engine) Approve(ctx context.Context, tokenID uint64) (model.Token, error) {
	return e.Transition(ctx, tokenID, model.OpApprove)
}

// Serve marks the token SERVED.
func (e *Engine) Serve(ctx context.Context, tokenID uint64) (model.Token, error) {
	return e.Transition(ctx, tokenID, model.OpServe)
}

// Skip marks the token SKIPPED.  The number stays held.
func (e *Engine) Skip(ctx context.Context, tokenID uint64) (model.Token, error) {
	return e.Transition(ctx, tokenID, model.OpSkip)
}

// Cancel marks the token CANCELLED and frees its number.
func (e *Engine) Cancel(ctx context.Context, tokenID uint64) (model.Token, error) {
	return e.Transition(ctx, tokenID, model.OpCancel)
}

// Expire marks the token EXPIRED and frees its number.
func (e *Engine) Expire(ctx context.Context, tokenID uint64) (model.Token, error) {
	return e.Transition(ctx, tokenID, model.OpExpire)
}

// CancelForUser cancels a token on behalf of its owner.  Tokens of other
// users are reported as ErrNotFound.
func (e *Engine) CancelForUser(ctx context.Context, tokenID, userID uint64) (model.Token, error) {
	if userID == 0 {
		return model.Token{}, invalidf("user is required")
	}
	return e.transition(ctx, tokenID, model.OpCancel, userID)
}

func (e *Engine) transition(ctx context.Context, tokenID uint64, op model.Op, owner uint64) (model.Token, error) {
	r, ok := transitions[op]
	if !ok {
		return model.Token{}, invalidf("unknown operation %q", op)
	}

	var (
		tok  model.Token
		slot model.Slot
	)
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		tok, err = tx.LockToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if owner != 0 && tok.UserID != owner {
			return ErrNotFound
		}
		if !slices.Contains(r.from, tok.Status) {
			return ErrInvalidTransition
		}

		now := e.clock()
		tok.Status = r.to
		stamp(&tok, r.to, now)
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return err
		}

		slot, err = tx.GetSlot(ctx, tok.SlotID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if r.outcome == "" {
			return nil
		}
		return e.Ledger.appendTx(ctx, tx, historyEntry(tok, slot, r.outcome, now))
	})
	err = storageErr(err)
	e.metrics.transition(op, err)
	if err != nil {
		return model.Token{}, err
	}
	e.publish(ctx, r.event, tok, slot)
	return tok, nil
}

func stamp(t *model.Token, to model.Status, now time.Time) {
	t.UpdatedAt = now
	switch to {
	case model.StatusApproved:
		t.ApprovedAt = &now
	case model.StatusServed:
		t.ServedAt = &now
	case model.StatusCancelled:
		t.CancelledAt = &now
	case model.StatusExpired:
		t.ExpiredAt = &now
	}
}

func historyEntry(t model.Token, s model.Slot, outcome model.Outcome, now time.Time) *model.VisitHistoryEntry {
	e := &model.VisitHistoryEntry{
		UserID:      t.UserID,
		Service:     t.Service,
		TokenID:     t.ID,
		TokenNumber: t.Number,
		Outcome:     outcome,
		RecordedAt:  now,
	}
	if s.ID != 0 {
		id := s.ID
		e.SlotID = &id
		e.SlotDescription = s.Description()
	}
	return e
}
