package booking

import (
	"context"
	"iter"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// Ledger is the append-only visit history.  Entries are never updated or
// deleted; reporting reads them through Query.
type Ledger struct {
	engine *Engine
}

// Append stores one entry in its own unit of work.  Lifecycle transitions
// do not use it: they append inside their own unit so the status write and
// the entry commit together.
func (l *Ledger) Append(ctx context.Context, entry model.VisitHistoryEntry) (model.VisitHistoryEntry, error) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = l.engine.clock()
	}
	err := l.engine.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return l.appendTx(ctx, tx, &entry)
	})
	return entry, storageErr(err)
}

func (l *Ledger) appendTx(ctx context.Context, tx Tx, entry *model.VisitHistoryEntry) error {
	if !entry.Outcome.Valid() {
		return invalidf("unknown outcome %q", entry.Outcome)
	}
	if entry.UserID == 0 {
		return invalidf("history entry needs a user")
	}
	return tx.AppendHistory(ctx, entry)
}

// Query lazily yields entries matching f, newest first.  Each range runs a
// fresh query.
func (l *Ledger) Query(ctx context.Context, f HistoryFilter) iter.Seq2[model.VisitHistoryEntry, error] {
	return func(yield func(model.VisitHistoryEntry, error) bool) {
		for e, err := range l.engine.store.History(ctx, f) {
			if err != nil {
				yield(model.VisitHistoryEntry{}, storageErr(err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}
