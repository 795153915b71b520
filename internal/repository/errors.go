// Package repository holds the MySQL data access code.  Plain methods run
// on the pool; methods with a Tx suffix run inside a caller supplied
// transaction and never commit it.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/queue-token-service/internal/booking"
)

// ErrEmailExists is returned by UserRepo.Create for a taken email.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicate is returned for unique key violations that have no more
// specific meaning.
var ErrDuplicate = errors.New("duplicate entry")

// Unique keys whose violation carries domain meaning.
const (
	keyActiveNumber = "uq_tokens_active_number"
	keyActiveClaim  = "uq_tokens_active_claim"
	keyUserEmail    = "uq_users_email"
)

const errDupEntry = 1062

// classify maps driver errors onto repository and booking sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrNotFound
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != errDupEntry {
		return err
	}
	switch {
	case strings.Contains(me.Message, keyActiveNumber):
		return booking.ErrNumberTaken
	case strings.Contains(me.Message, keyActiveClaim):
		return booking.ErrActiveClaimTaken
	case strings.Contains(me.Message, keyUserEmail):
		return ErrEmailExists
	}
	return ErrDuplicate
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
