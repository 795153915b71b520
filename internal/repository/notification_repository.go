package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// NotificationRepo persists rows written by the token event consumer.
type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Insert stores n once per event ID.  Redelivered events are ignored and
// reported as inserted=false.
func (r *NotificationRepo) Insert(ctx context.Context, eventID string, n *model.Notification) (bool, error) {
	const q = `INSERT IGNORE INTO notifications (event_id, user_id, kind, title, message, token_id, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	var tokenID sql.NullInt64
	if n.TokenID != nil {
		tokenID = sql.NullInt64{Int64: int64(*n.TokenID), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, q, eventID, n.UserID, n.Kind, n.Title, n.Message, tokenID, n.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil || affected == 0 {
		return false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return true, err
	}
	n.ID = uint64(id)
	return true, nil
}

// ListByUser returns the user's notifications newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, unreadOnly bool, limit int) ([]model.Notification, error) {
	q := `SELECT id, user_id, kind, title, message, token_id, is_read, created_at
          FROM notifications WHERE user_id = ?`
	if unreadOnly {
		q += ` AND is_read = 0`
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Notification{}
	for rows.Next() {
		var (
			n       model.Notification
			tokenID sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &tokenID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		if tokenID.Valid {
			id := uint64(tokenID.Int64)
			n.TokenID = &id
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one of the user's notifications as read.  A notification
// owned by someone else is reported as booking.ErrNotFound.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE id = ? AND user_id = ?`, id, userID).Scan(&one)
	return classify(err)
}
