package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day, insensitive to time-of-day and zone
// =============================================================================

// DateLayout is the wire and path format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day. The underlying time is always midnight UTC, so two
// Dates built from different times on the same calendar day compare equal.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as observed in t's own location.
// 2024-03-10T23:30-05:00 is March 10th, not March 11th.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// Arithmetic. AddDate on a UTC midnight never crosses a DST boundary.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int            { return d.t.Year() }
func (d Date) Month() time.Month    { return d.t.Month() }
func (d Date) Day() int             { return d.t.Day() }
func (d Date) IsZero() bool         { return d.t.IsZero() }
func (d Date) Time() time.Time      { return d.t }
func (d Date) YearMonth() YearMonth { return YearMonth{Year: d.Year(), Month: d.Month()} }

func (d Date) String() string { return d.t.Format(DateLayout) }

// DaysBetween returns the number of calendar days from a to b (negative if b is before a).
// Both are UTC midnights, so the Unix difference is an exact multiple of a day.
func DaysBetween(a, b Date) int { return int((b.t.Unix() - a.t.Unix()) / secondsPerDay) }

const secondsPerDay = 24 * 60 * 60

func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock returns the current instant. Services take a Clock so tests can pin
// markedAt / calculatedAt values.
type Clock func() time.Time

// SystemClock is the wall clock truncated to whole seconds (the stores persist RFC3339).
func SystemClock() time.Time { return time.Now().UTC().Truncate(time.Second) }

func (c Clock) Now() time.Time {
	if c == nil {
		return SystemClock()
	}
	return c()
}
