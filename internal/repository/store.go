package repository

import (
	"context"
	"database/sql"
	"iter"
	"log"
	"time"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

var _ booking.Store = (*Store)(nil)

// Store implements booking.Store on MySQL.  Units of work run as READ
// COMMITTED transactions; the slot and token rows are locked with
// SELECT ... FOR UPDATE where the engine asks for it.
type Store struct {
	db      *sql.DB
	slots   *SlotRepo
	tokens  *TokenRepo
	history *HistoryRepo
}

// NewStore wires the repositories over db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:      db,
		slots:   NewSlotRepo(db),
		tokens:  NewTokenRepo(db),
		history: NewHistoryRepo(db),
	}
}

// Atomic implements booking.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Printf("repository: rollback failed: %v", rbErr)
			}
		}
	}()

	if err := fn(ctx, &sqlTx{tx: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id uint64) (model.Slot, error) {
	return s.slots.GetByID(ctx, id)
}

func (s *Store) CreateSlot(ctx context.Context, sl *model.Slot) error {
	return s.slots.Create(ctx, sl)
}

func (s *Store) BookableSlots(ctx context.Context, f booking.SlotFilter) iter.Seq2[model.Slot, error] {
	return func(yield func(model.Slot, error) bool) {
		rows, err := s.slots.QueryBookable(ctx, f)
		if err != nil {
			yield(model.Slot{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			sl, err := scanSlot(rows)
			if !yield(sl, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Slot{}, err)
		}
	}
}

func (s *Store) CountHeld(ctx context.Context, slotID uint64) (int, error) {
	return s.tokens.CountHeld(ctx, slotID)
}

func (s *Store) GetToken(ctx context.Context, id uint64) (model.Token, error) {
	return s.tokens.GetByID(ctx, id)
}

func (s *Store) ActiveTokens(ctx context.Context, slotID uint64) ([]model.Token, error) {
	return s.tokens.ListActiveBySlot(ctx, slotID)
}

func (s *Store) TokensByUser(ctx context.Context, userID uint64) ([]model.Token, error) {
	return s.tokens.ListByUser(ctx, userID)
}

func (s *Store) OverdueTokens(ctx context.Context, now time.Time, limit int) ([]model.Token, error) {
	return s.tokens.ListOverdue(ctx, now, limit)
}

func (s *Store) History(ctx context.Context, f booking.HistoryFilter) iter.Seq2[model.VisitHistoryEntry, error] {
	return func(yield func(model.VisitHistoryEntry, error) bool) {
		rows, err := s.history.Query(ctx, f)
		if err != nil {
			yield(model.VisitHistoryEntry{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanHistory(rows)
			if !yield(e, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.VisitHistoryEntry{}, err)
		}
	}
}

func (s *Store) TokenStats(ctx context.Context, f booking.StatsFilter) ([]booking.TokenStat, error) {
	rows, err := s.tokens.Stats(ctx, f.From, f.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []booking.TokenStat
	for rows.Next() {
		var st booking.TokenStat
		if err := rows.Scan(&st.Service, &st.Status, &st.Count); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// sqlTx adapts a *sql.Tx to booking.Tx.
type sqlTx struct {
	tx *sql.Tx
	s  *Store
}

func (t *sqlTx) LockSlot(ctx context.Context, id uint64) (model.Slot, error) {
	return t.s.slots.GetForUpdateTx(ctx, t.tx, id)
}

func (t *sqlTx) GetSlot(ctx context.Context, id uint64) (model.Slot, error) {
	return t.s.slots.GetTx(ctx, t.tx, id)
}

func (t *sqlTx) UpdateSlot(ctx context.Context, sl model.Slot) error {
	return t.s.slots.UpdateTx(ctx, t.tx, sl)
}

func (t *sqlTx) CountTokens(ctx context.Context, slotID uint64) (int, error) {
	return t.s.tokens.CountBySlotTx(ctx, t.tx, slotID)
}

func (t *sqlTx) HasActiveClaim(ctx context.Context, userID uint64, service model.Service) (bool, error) {
	return t.s.tokens.HasActiveClaimTx(ctx, t.tx, userID, service)
}

func (t *sqlTx) HeldNumbers(ctx context.Context, slotID uint64) ([]int, error) {
	return t.s.tokens.HeldNumbersTx(ctx, t.tx, slotID)
}

func (t *sqlTx) InsertToken(ctx context.Context, tok *model.Token) error {
	return t.s.tokens.InsertTx(ctx, t.tx, tok)
}

func (t *sqlTx) LockToken(ctx context.Context, id uint64) (model.Token, error) {
	return t.s.tokens.GetForUpdateTx(ctx, t.tx, id)
}

func (t *sqlTx) UpdateToken(ctx context.Context, tok model.Token) error {
	return t.s.tokens.UpdateTx(ctx, t.tx, tok)
}

func (t *sqlTx) AppendHistory(ctx context.Context, e *model.VisitHistoryEntry) error {
	return t.s.history.AppendTx(ctx, t.tx, e)
}
