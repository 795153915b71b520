package model

import (
	"fmt"
	"strings"
	"time"
)

// Service tags the walk-up service a slot belongs to.  The set is open:
// deployments list the services they run in the SERVICES env var.
type Service string

const (
	ServiceLibrary Service = "LIBRARY"
	ServiceCanteen Service = "CANTEEN"
)

// NormalizeService upper-cases and trims a raw service tag.
func NormalizeService(raw string) Service {
	return Service(strings.ToUpper(strings.TrimSpace(raw)))
}

// DateLayout and ClockLayout are the wire formats for slot dates and times.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Slot is one bookable window for one service.  Tokens are issued
// against it up to Capacity.  This struct corresponds to a row in the
// `slots` table.
//
// Fields:
//  ID                – primary key identifier.
//  Service           – service tag (LIBRARY, CANTEEN, ...).
//  Date              – calendar day of the slot, midnight UTC.
//  StartTime/EndTime – offsets from midnight; StartTime < EndTime.
//  Capacity          – maximum number of non-terminal tokens (>= 1).
//  AvgServiceMinutes – optional average service duration used for
//                      wait estimates.
//  IsRetired         – soft-retire flag; retired slots are not bookable.
type Slot struct {
	ID                uint64        `json:"id"`                            // slots.id
	Service           Service       `json:"service"`                       // slots.service
	Date              time.Time     `json:"date"`                          // slots.slot_date
	StartTime         time.Duration `json:"-"`                             // slots.start_time
	EndTime           time.Duration `json:"-"`                             // slots.end_time
	Capacity          int           `json:"capacity"`                      // slots.capacity
	AvgServiceMinutes *int          `json:"avg_service_minutes,omitempty"` // slots.avg_service_minutes (nullable)
	IsRetired         bool          `json:"is_retired"`                    // slots.is_retired
	CreatedAt         time.Time     `json:"created_at"`                    // slots.created_at
	UpdatedAt         time.Time     `json:"updated_at"`                    // slots.updated_at
}

// StartsAt returns the absolute start instant of the slot with its
// wall-clock times read in loc.
func (s Slot) StartsAt(loc *time.Location) time.Time { return midnight(s.Date, loc).Add(s.StartTime) }

// EndsAt returns the absolute end instant of the slot with its wall-clock
// times read in loc.
func (s Slot) EndsAt(loc *time.Location) time.Time { return midnight(s.Date, loc).Add(s.EndTime) }

// HasEnded reports whether the slot window is over at now.
func (s Slot) HasEnded(now time.Time, loc *time.Location) bool { return !now.Before(s.EndsAt(loc)) }

func midnight(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

// Description is the human readable label stored on history rows so they
// stay meaningful after the slot is retired.
func (s Slot) Description() string {
	return fmt.Sprintf("%s %s %s-%s", s.Service, s.Date.Format(DateLayout),
		FormatClock(s.StartTime), FormatClock(s.EndTime))
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(raw), time.UTC)
}

// ParseClock parses HH:MM or HH:MM:SS into an offset from midnight.  24:00
// is accepted as the end of the day.
func ParseClock(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" || raw == "24:00:00" {
		return 24 * time.Hour, nil
	}
	layout := ClockLayout
	if strings.Count(raw, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// FormatClock renders an offset from midnight as HH:MM.
func FormatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}
