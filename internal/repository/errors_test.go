package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/model"
)

func dup(key string) error {
	return &mysql.MySQLError{Number: errDupEntry, Message: fmt.Sprintf("Duplicate entry '1-1' for key 'tokens.%s'", key)}
}

func TestClassify(t *testing.T) {
	other := errors.New("boom")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, booking.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), booking.ErrNotFound},
		{"active number", dup(keyActiveNumber), booking.ErrNumberTaken},
		{"active claim", dup(keyActiveClaim), booking.ErrActiveClaimTaken},
		{"email", dup(keyUserEmail), ErrEmailExists},
		{"other key", dup("PRIMARY"), ErrDuplicate},
		{"other mysql error", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, nil},
		{"other error", other, other},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.in)
			switch {
			case tc.name == "other mysql error":
				var me *mysql.MySQLError
				if !errors.As(got, &me) || me.Number != 1213 {
					t.Fatalf("got %v, want the driver error", got)
				}
			case tc.want == nil:
				if got != nil {
					t.Fatalf("got %v, want nil", got)
				}
			case !errors.Is(got, tc.want):
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSQLClock(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{9*time.Hour + 30*time.Minute, "09:30:00"},
		{24 * time.Hour, "24:00:00"},
	}
	for _, tc := range cases {
		if got := sqlClock(tc.d); got != tc.want {
			t.Errorf("sqlClock(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestClockOf(t *testing.T) {
	tehran := time.FixedZone("IRST", 3*3600+1800)
	now := time.Date(2026, 10, 20, 8, 30, 0, 0, time.UTC).In(tehran)
	if got := sqlClock(clockOf(now)); got != "12:00:00" {
		t.Fatalf("clockOf = %s, want wall time in the slot zone", got)
	}
}

// fakeRow scans a fixed list of values into the destinations.
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r))
	}
	for i, v := range r {
		switch d := dest[i].(type) {
		case *uint64:
			*d = v.(uint64)
		case *model.Service:
			*d = model.Service(v.(string))
		case *time.Time:
			*d = v.(time.Time)
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *bool:
			*d = v.(bool)
		case *sql.NullInt64:
			if v == nil {
				*d = sql.NullInt64{}
			} else {
				*d = sql.NullInt64{Int64: v.(int64), Valid: true}
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanSlot(t *testing.T) {
	day := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	s, err := scanSlot(fakeRow{uint64(7), "CANTEEN", day, "12:00:00", "24:00:00", 3, int64(4), false, day, day})
	if err != nil {
		t.Fatal(err)
	}
	if s.StartTime != 12*time.Hour || s.EndTime != 24*time.Hour {
		t.Fatalf("times = %v %v", s.StartTime, s.EndTime)
	}
	if s.AvgServiceMinutes == nil || *s.AvgServiceMinutes != 4 {
		t.Fatalf("avg = %v", s.AvgServiceMinutes)
	}

	s, err = scanSlot(fakeRow{uint64(8), "LIBRARY", day, "09:00:00", "10:00:00", 1, nil, true, day, day})
	if err != nil {
		t.Fatal(err)
	}
	if s.AvgServiceMinutes != nil || !s.IsRetired {
		t.Fatalf("slot = %+v", s)
	}

	if _, err := scanSlot(fakeRow{uint64(9), "LIBRARY", day, "nine", "10:00:00", 1, nil, false, day, day}); err == nil {
		t.Fatal("bad start_time accepted")
	}
}
