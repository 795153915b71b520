package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// TokenRepo persists queue tokens.  The uniqueness of active numbers and
// active claims is enforced by the generated columns of the `tokens`
// table; see database.Schema.
type TokenRepo struct {
	db *sql.DB
}

// NewTokenRepo returns a TokenRepo bound to db.
func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

const tokenCols = `id, slot_id, user_id, service, number, status, issued_at, approved_at, served_at, cancelled_at, expired_at, updated_at`

// activeStatuses is the SQL list of non-terminal statuses.
var activeStatuses = func() string {
	parts := make([]string, len(model.NonTerminalStatuses))
	for i, s := range model.NonTerminalStatuses {
		parts[i] = "'" + string(s) + "'"
	}
	return "(" + strings.Join(parts, ",") + ")"
}()

// InsertTx inserts t and fills in its ID.  Unique key violations come
// back as booking.ErrNumberTaken or booking.ErrActiveClaimTaken.
func (r *TokenRepo) InsertTx(ctx context.Context, tx *sql.Tx, t *model.Token) error {
	const q = `INSERT INTO tokens (slot_id, user_id, service, number, status, issued_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, t.SlotID, t.UserID, t.Service, t.Number, t.Status, t.IssuedAt, t.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByID returns the token or booking.ErrNotFound.
func (r *TokenRepo) GetByID(ctx context.Context, id uint64) (model.Token, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `SELECT `+tokenCols+` FROM tokens WHERE id = ?`, id))
	return t, classify(err)
}

// GetForUpdateTx reads the token and holds its row lock until tx ends.
func (r *TokenRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Token, error) {
	t, err := scanToken(tx.QueryRowContext(ctx, `SELECT `+tokenCols+` FROM tokens WHERE id = ? FOR UPDATE`, id))
	return t, classify(err)
}

// UpdateTx writes the status and timestamps of t.
func (r *TokenRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t model.Token) error {
	const q = `UPDATE tokens SET status = ?, approved_at = ?, served_at = ?, cancelled_at = ?, expired_at = ?, updated_at = ?
               WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, t.Status, nullTime(t.ApprovedAt), nullTime(t.ServedAt),
		nullTime(t.CancelledAt), nullTime(t.ExpiredAt), t.UpdatedAt, t.ID)
	return classify(err)
}

// CountBySlotTx counts every token ever issued for the slot.
func (r *TokenRepo) CountBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE slot_id = ?`, slotID).Scan(&n)
	return n, err
}

// CountHeld counts the slot's non-terminal tokens.
func (r *TokenRepo) CountHeld(ctx context.Context, slotID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tokens WHERE slot_id = ? AND status IN `+activeStatuses, slotID).Scan(&n)
	return n, err
}

// HasActiveClaimTx reports whether the user holds a non-terminal token for
// the service.
func (r *TokenRepo) HasActiveClaimTx(ctx context.Context, tx *sql.Tx, userID uint64, service model.Service) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM tokens WHERE user_id = ? AND service = ? AND status IN `+activeStatuses+` LIMIT 1`,
		userID, service).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// HeldNumbersTx returns the numbers of the slot's non-terminal tokens.
func (r *TokenRepo) HeldNumbersTx(ctx context.Context, tx *sql.Tx, slotID uint64) ([]int, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT number FROM tokens WHERE slot_id = ? AND status IN `+activeStatuses+` ORDER BY number`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListActiveBySlot lists the slot's non-terminal tokens ordered by number.
func (r *TokenRepo) ListActiveBySlot(ctx context.Context, slotID uint64) ([]model.Token, error) {
	return r.list(ctx, `SELECT `+tokenCols+` FROM tokens WHERE slot_id = ? AND status IN `+activeStatuses+` ORDER BY number`, slotID)
}

// ListByUser lists the user's tokens, newest first.
func (r *TokenRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Token, error) {
	return r.list(ctx, `SELECT `+tokenCols+` FROM tokens WHERE user_id = ? ORDER BY id DESC`, userID)
}

// ListOverdue lists non-terminal tokens of slots whose window ended by the
// wall-clock time now (slot zone).
func (r *TokenRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Token, error) {
	q := `SELECT t.` + strings.ReplaceAll(tokenCols, ", ", ", t.") + `
          FROM tokens t JOIN slots s ON s.id = t.slot_id
          WHERE t.status IN ` + activeStatuses + `
            AND (s.slot_date < ? OR (s.slot_date = ? AND s.end_time <= ?))
          ORDER BY t.id LIMIT ?`
	day := now.Format(model.DateLayout)
	return r.list(ctx, q, day, day, sqlClock(clockOf(now)), limit)
}

// clockOf returns t's offset from its own midnight.
func clockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// Stats counts tokens by service and status for slots dated in [from, to].
// Zero bounds are open.
func (r *TokenRepo) Stats(ctx context.Context, from, to time.Time) (*sql.Rows, error) {
	where := []string{"1=1"}
	var args []any
	if !from.IsZero() {
		where = append(where, "s.slot_date >= ?")
		args = append(args, from.Format(model.DateLayout))
	}
	if !to.IsZero() {
		where = append(where, "s.slot_date <= ?")
		args = append(args, to.Format(model.DateLayout))
	}
	q := `SELECT t.service, t.status, COUNT(*)
          FROM tokens t JOIN slots s ON s.id = t.slot_id
          WHERE ` + strings.Join(where, " AND ") + `
          GROUP BY t.service, t.status
          ORDER BY t.service, t.status`
	return r.db.QueryContext(ctx, q, args...)
}

func (r *TokenRepo) list(ctx context.Context, q string, args ...any) ([]model.Token, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanToken(row scanner) (model.Token, error) {
	var (
		t                                 model.Token
		approved, served, cancel, expired sql.NullTime
	)
	err := row.Scan(&t.ID, &t.SlotID, &t.UserID, &t.Service, &t.Number, &t.Status, &t.IssuedAt,
		&approved, &served, &cancel, &expired, &t.UpdatedAt)
	if err != nil {
		return model.Token{}, err
	}
	t.ApprovedAt = timePtr(approved)
	t.ServedAt = timePtr(served)
	t.CancelledAt = timePtr(cancel)
	t.ExpiredAt = timePtr(expired)
	return t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
