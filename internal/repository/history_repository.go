package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// HistoryRepo writes and reads the `visit_history` table.  The table is
// append only: there is no update or delete method.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo returns a HistoryRepo bound to db.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// AppendTx inserts e and fills in its ID.
func (r *HistoryRepo) AppendTx(ctx context.Context, tx *sql.Tx, e *model.VisitHistoryEntry) error {
	const q = `INSERT INTO visit_history (user_id, slot_id, slot_description, service, token_id, token_number, outcome, recorded_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var slotID sql.NullInt64
	if e.SlotID != nil {
		slotID = sql.NullInt64{Int64: int64(*e.SlotID), Valid: true}
	}
	res, err := tx.ExecContext(ctx, q, e.UserID, slotID, e.SlotDescription, e.Service,
		e.TokenID, e.TokenNumber, e.Outcome, e.RecordedAt)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// Query runs the filtered history query, newest first.  The caller owns
// the returned rows.
func (r *HistoryRepo) Query(ctx context.Context, f booking.HistoryFilter) (*sql.Rows, error) {
	where := []string{"1=1"}
	var args []any
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.SlotID != 0 {
		where = append(where, "slot_id = ?")
		args = append(args, f.SlotID)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if !f.From.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "recorded_at < ?")
		args = append(args, f.To)
	}
	q := `SELECT id, user_id, slot_id, slot_description, service, token_id, token_number, outcome, recorded_at
          FROM visit_history WHERE ` + strings.Join(where, " AND ") + `
          ORDER BY recorded_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return r.db.QueryContext(ctx, q, args...)
}

func scanHistory(row scanner) (model.VisitHistoryEntry, error) {
	var (
		e      model.VisitHistoryEntry
		slotID sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.UserID, &slotID, &e.SlotDescription, &e.Service,
		&e.TokenID, &e.TokenNumber, &e.Outcome, &e.RecordedAt)
	if err != nil {
		return e, err
	}
	if slotID.Valid {
		id := uint64(slotID.Int64)
		e.SlotID = &id
	}
	return e, nil
}
