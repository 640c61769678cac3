package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// SPAN - Inclusive calendar-date range
// =============================================================================

// Span is an inclusive range of calendar days [Start, End].
// Both bounds are Dates, so iteration is day-granular and never off by one
// because of a time-of-day component.
type Span struct {
	Start Date
	End   Date
}

// NewSpan validates start <= end.
func NewSpan(start, end Date) (Span, error) {
	if start.IsZero() || end.IsZero() {
		return Span{}, fmt.Errorf("%w: missing bound", ErrInvalidSpan)
	}
	if start.After(end) {
		return Span{}, fmt.Errorf("%w: %s is after %s", ErrInvalidSpan, start, end)
	}
	return Span{Start: start, End: end}, nil
}

// Len returns the number of days in the span, both ends included.
func (s Span) Len() int {
	if s.Start.After(s.End) {
		return 0
	}
	return DaysBetween(s.Start, s.End) + 1
}

// Days returns every day of the span in calendar order.
func (s Span) Days() []Date {
	days := make([]Date, 0, s.Len())
	for d := s.Start; d.BeforeOrEqual(s.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Intersect clips s to o. ok is false when they share no day.
func (s Span) Intersect(o Span) (Span, bool) {
	start, end := s.Start, s.End
	if o.Start.After(start) {
		start = o.Start
	}
	if o.End.Before(end) {
		end = o.End
	}
	if start.After(end) {
		return Span{}, false
	}
	return Span{Start: start, End: end}, true
}

func (s Span) String() string {
	return "[" + s.Start.String() + ", " + s.End.String() + "]"
}

// =============================================================================
// YEAR MONTH - Payroll period key
// =============================================================================

// YearMonthLayout is the wire and path format for payroll periods.
const YearMonthLayout = "2006-01"

type YearMonth struct {
	Year  int
	Month time.Month
}

func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(YearMonthLayout, s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q (use YYYY-MM): %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func MustParseYearMonth(s string) YearMonth {
	ym, err := ParseYearMonth(s)
	if err != nil {
		panic(err)
	}
	return ym
}

func (ym YearMonth) First() Date { return NewDate(ym.Year, ym.Month, 1) }

// Last handles month lengths and leap years via the day-zero rule.
func (ym YearMonth) Last() Date { return NewDate(ym.Year, ym.Month+1, 0) }

// Span covers the whole calendar month.
func (ym YearMonth) Span() Span { return Span{Start: ym.First(), End: ym.Last()} }

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month)) }

func (ym YearMonth) MarshalText() ([]byte, error) { return []byte(ym.String()), nil }

func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := ParseYearMonth(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
