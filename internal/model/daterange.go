package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// ErrInvertedRange is returned when the end of a range precedes its start.
var ErrInvertedRange = errors.New("end date is before start date")

// MaxRangeDays caps the inclusive length of a range.
const MaxRangeDays = 366

// ErrRangeTooLong is returned when a range spans more than MaxRangeDays.
var ErrRangeTooLong = fmt.Errorf("date range exceeds %d days", MaxRangeDays)

// DateRange is a closed interval of whole days in UTC.  Start is always
// midnight of the first day and End the last second of the last day.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// StartOfDay truncates t to 00:00:00 UTC of its calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59 UTC of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Second)
}

// NewDateRange normalizes start and end to full days.  When oneDay is set
// the end is ignored and the range covers the start day only.  Ranges
// longer than MaxRangeDays are rejected.
func NewDateRange(start, end time.Time, oneDay bool) (DateRange, error) {
	if start.IsZero() {
		return DateRange{}, ErrInvertedRange
	}
	if oneDay || end.IsZero() {
		end = start
	}
	s, e := StartOfDay(start), EndOfDay(end)
	if e.Before(s) {
		return DateRange{}, ErrInvertedRange
	}
	r := DateRange{Start: s, End: e}
	if r.DayCount() > MaxRangeDays {
		return DateRange{}, ErrRangeTooLong
	}
	return r, nil
}

// MonthRange returns the range covering every day of the given month.
func MonthRange(year int, month time.Month) DateRange {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return DateRange{Start: first, End: EndOfDay(last)}
}

// Overlaps reports whether r and o share at least one instant.
func (r DateRange) Overlaps(o DateRange) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// DayCount is the inclusive number of calendar days in r.
func (r DateRange) DayCount() int {
	return int(StartOfDay(r.End).Sub(StartOfDay(r.Start))/(24*time.Hour)) + 1
}

// Days expands r into one midnight timestamp per day.
func (r DateRange) Days() []time.Time {
	last := StartOfDay(r.End)
	days := make([]time.Time, 0, r.DayCount())
	for d := StartOfDay(r.Start); !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Clip clamps r to window.  ok is false when they do not overlap.
func (r DateRange) Clip(window DateRange) (DateRange, bool) {
	if !r.Overlaps(window) {
		return DateRange{}, false
	}
	out := r
	if out.Start.Before(window.Start) {
		out.Start = window.Start
	}
	if out.End.After(window.End) {
		out.End = window.End
	}
	return out, true
}

// ParseDay accepts either YYYY-MM-DD or an RFC3339 timestamp.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatDays renders days in DateLayout.
func FormatDays(days []time.Time) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Format(DateLayout))
	}
	return out
}
