package ledger

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE - Calendar day without time of day
// =============================================================================

// Date is a calendar day. The zero value means "unset".
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AddDays(n int) Date            { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) IsZero() bool                  { return d.t.IsZero() }
func (d Date) Time() time.Time               { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// =============================================================================
// WINDOW - Inclusive date range, either bound may be open
// =============================================================================

type Window struct {
	Start Date
	End   Date
}

// Contains reports whether d falls inside the window. Zero bounds are open.
func (w Window) Contains(d Date) bool {
	if !w.Start.IsZero() && d.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && d.After(w.End) {
		return false
	}
	return true
}

func (w Window) Validate() error {
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return &ValidationError{Field: "end", Reason: "window end is before start"}
	}
	return nil
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "today" for reconciliation credits and future-date checks.
type Clock interface {
	Today() Date
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

func (c SystemClock) Today() Date { return DateOf(c.Now()) }

// FixedClock always answers the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
func (c FixedClock) Today() Date    { return DateOf(c.At) }

// =============================================================================
// HOLIDAYS
// =============================================================================

// Holiday is a day off for everyone. A recurring holiday falls on the same
// month and day every year; Date then carries the first year it applies.
type Holiday struct {
	Date      Date
	Name      string
	Recurring bool
}

// HolidaysBetween returns the occurrences of holidays inside [from, to],
// expanding recurring ones into each year of the range.
func HolidaysBetween(holidays []Holiday, from, to Date) []Holiday {
	var out []Holiday
	for _, h := range holidays {
		if !h.Recurring {
			if !h.Date.Before(from) && !h.Date.After(to) {
				out = append(out, h)
			}
			continue
		}
		for year := from.t.Year(); year <= to.t.Year(); year++ {
			if year < h.Date.t.Year() {
				continue
			}
			d := NewDate(year, h.Date.t.Month(), h.Date.t.Day())
			if !d.Before(from) && !d.After(to) {
				out = append(out, Holiday{Date: d, Name: h.Name, Recurring: true})
			}
		}
	}
	return out
}

// workingDaysAfterHolidays removes holidays falling in [start, start+days-1]
// from days, floored at zero.
func workingDaysAfterHolidays(start Date, days int, holidays []Holiday) int {
	if days <= 0 {
		return 0
	}
	end := start.AddDays(days - 1)
	seen := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if h.Date.Before(start) || h.Date.After(end) || seen[h.Date.String()] {
			continue
		}
		seen[h.Date.String()] = true
		days--
	}
	if days < 0 {
		return 0
	}
	return days
}
