package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// SlotRepo persists rows of the `slots` table.  Dates are DATE columns
// and the window bounds are TIME columns; both are interpreted by the
// engine, never by SQL.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a SlotRepo bound to db.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

const slotCols = `id, service, slot_date, start_time, end_time, capacity, avg_service_minutes, is_retired, created_at, updated_at`

// Create inserts s and fills in its ID.
func (r *SlotRepo) Create(ctx context.Context, s *model.Slot) error {
	const q = `INSERT INTO slots (service, slot_date, start_time, end_time, capacity, avg_service_minutes, is_retired, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		s.Service, s.Date.Format(model.DateLayout), sqlClock(s.StartTime), sqlClock(s.EndTime),
		s.Capacity, nullInt(s.AvgServiceMinutes), s.IsRetired, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID returns the slot or booking.ErrNotFound.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (model.Slot, error) {
	return getSlot(ctx, r.db, id, false)
}

// GetTx reads the slot inside tx without locking it.
func (r *SlotRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Slot, error) {
	return getSlot(ctx, tx, id, false)
}

// GetForUpdateTx reads the slot and holds its row lock until tx ends.
func (r *SlotRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Slot, error) {
	return getSlot(ctx, tx, id, true)
}

func getSlot(ctx context.Context, q querier, id uint64, forUpdate bool) (model.Slot, error) {
	query := `SELECT ` + slotCols + ` FROM slots WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSlot(q.QueryRowContext(ctx, query, id))
	return s, classify(err)
}

// UpdateTx writes every mutable column of s.
func (r *SlotRepo) UpdateTx(ctx context.Context, tx *sql.Tx, s model.Slot) error {
	const q = `UPDATE slots SET slot_date = ?, start_time = ?, end_time = ?, capacity = ?,
               avg_service_minutes = ?, is_retired = ?, updated_at = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, q,
		s.Date.Format(model.DateLayout), sqlClock(s.StartTime), sqlClock(s.EndTime), s.Capacity,
		nullInt(s.AvgServiceMinutes), s.IsRetired, s.UpdatedAt, s.ID)
	if err != nil {
		return classify(err)
	}
	// MySQL reports 0 affected rows when nothing changed, so only a
	// missing row is an error here.
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM slots WHERE id = ?`, s.ID).Scan(&one); err != nil {
			return classify(err)
		}
	}
	return nil
}

// QueryBookable runs the bookable-slot listing query.  The caller owns
// the returned rows.
func (r *SlotRepo) QueryBookable(ctx context.Context, f booking.SlotFilter) (*sql.Rows, error) {
	q := `SELECT ` + slotCols + ` FROM slots WHERE is_retired = 0`
	var args []any
	if f.Service != "" {
		q += ` AND service = ?`
		args = append(args, f.Service)
	}
	if !f.From.IsZero() {
		q += ` AND slot_date >= ?`
		args = append(args, f.From.Format(model.DateLayout))
	}
	q += ` ORDER BY slot_date ASC, start_time ASC, id ASC`
	return r.db.QueryContext(ctx, q, args...)
}

func scanSlot(row scanner) (model.Slot, error) {
	var (
		s          model.Slot
		start, end string
		avg        sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Service, &s.Date, &start, &end, &s.Capacity, &avg,
		&s.IsRetired, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Slot{}, err
	}
	var err error
	if s.StartTime, err = model.ParseClock(start); err != nil {
		return model.Slot{}, fmt.Errorf("slot %d start_time %q: %w", s.ID, start, err)
	}
	if s.EndTime, err = model.ParseClock(end); err != nil {
		return model.Slot{}, fmt.Errorf("slot %d end_time %q: %w", s.ID, end, err)
	}
	if avg.Valid {
		v := int(avg.Int64)
		s.AvgServiceMinutes = &v
	}
	return s, nil
}

// sqlClock renders an offset from midnight as a MySQL TIME literal.
func sqlClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute), int(d%time.Minute/time.Second))
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
