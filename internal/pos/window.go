// Package pos fetches shift totals and receipts from the point-of-sale system.
package pos

import (
	"context"
	"fmt"
	"time"

	"shiftrecon/backend/internal/domain"
)

// Source is anything that can report one business shift. An error wrapping
// ErrTruncated comes with the partial data fetched so far.
type Source interface {
	ShiftReport(ctx context.Context, window ShiftWindow, storeID string) (domain.POSShiftReport, error)
	Receipts(ctx context.Context, window ShiftWindow, storeID string) ([]domain.Receipt, error)
}

// ShiftWindow is the half-open interval [From, To) of one business shift.
type ShiftWindow struct {
	ShiftDate string
	From      time.Time
	To        time.Time
}

func (w ShiftWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.From) && ts.Before(w.To)
}

// WindowFor returns the shift starting at startHour on date. An endHour at or
// before startHour closes the shift on the following day.
func WindowFor(date string, loc *time.Location, startHour int, endHour int) (ShiftWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(domain.DateLayout, date, loc)
	if err != nil {
		return ShiftWindow{}, fmt.Errorf("parse shift date %q: %w", date, err)
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, loc)
	to := time.Date(day.Year(), day.Month(), day.Day(), endHour, 0, 0, 0, loc)
	if endHour <= startHour {
		to = to.AddDate(0, 0, 1)
	}
	return ShiftWindow{ShiftDate: date, From: from, To: to}, nil
}

// ShiftDateFor maps a timestamp to the shift date whose start precedes it.
// 02:00 on the 6th belongs to the shift of the 5th.
func ShiftDateFor(ts time.Time, loc *time.Location, startHour int) string {
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	if local.Hour() < startHour {
		local = local.AddDate(0, 0, -1)
	}
	return local.Format(domain.DateLayout)
}
