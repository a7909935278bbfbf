package calendar

import (
	"fmt"
	"time"
)

// Date is a calendar day without time of day or zone.
// It is comparable and safe to use as a map key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ToLocalDate returns the calendar day of t in loc. A nil loc uses t's own location.
func ToLocalDate(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return ToLocalDate(t, time.UTC), nil
}

// utc anchors the date at UTC midnight so day arithmetic never sees DST shifts.
func (d Date) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns d shifted by n days (n may be negative).
func (d Date) AddDays(n int) Date {
	return ToLocalDate(d.utc().AddDate(0, 0, n), time.UTC)
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return d.utc().Weekday()
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	return d.utc().Before(o.utc())
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	return d.utc().After(o.utc())
}

// Start returns midnight of d in loc.
func (d Date) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DaysBetween returns b - a in whole days.
func DaysBetween(a, b Date) int {
	return int(b.utc().Sub(a.utc()).Hours() / 24)
}

// StartOfWeek returns the Sunday on or before d.
func StartOfWeek(d Date) Date {
	return d.AddDays(-int(d.Weekday()))
}

// StartOfMonth returns the first day of d's month.
func StartOfMonth(d Date) Date {
	return Date{Year: d.Year, Month: d.Month, Day: 1}
}

// InRange reports whether from <= d <= to.
func InRange(d, from, to Date) bool {
	return !d.Before(from) && !d.After(to)
}
