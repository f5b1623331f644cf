// Package calendar converts between wall-clock times and minute offsets from
// midnight, and tests half-open interval overlap.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// MinutesPerDay is one past the last valid offset.
const MinutesPerDay = 24 * 60

const (
	clockLayout = "15:04"
	dateLayout  = "2006-01-02"
)

var ErrInvalidClock = errors.New("invalid time of day")

// ToOffset returns the minutes since midnight of t's wall clock. Seconds are
// truncated.
func ToOffset(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// FromOffset returns the instant offset minutes after midnight of date, in
// date's location.
func FromOffset(date time.Time, offset int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, offset/60, offset%60, 0, 0, date.Location())
}

// ParseClock parses a 24-hour "HH:MM" string into a minute offset.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil || len(s) != len(clockLayout) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return ToOffset(t), nil
}

// FormatClock renders an offset as "HH:MM".
func FormatClock(offset int) string {
	return fmt.Sprintf("%02d:%02d", offset/60, offset%60)
}

// ParseDate parses "YYYY-MM-DD" as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, loc)
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// Weekday returns the ISO day of week with Monday = 0 and Sunday = 6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// SameDay reports whether a and b fall on the same calendar date. Both are
// compared in their own locations.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	return FromOffset(t, 0)
}

// Overlaps reports whether [startA, startA+durA) and [startB, startB+durB)
// intersect. Touching endpoints do not overlap.
func Overlaps(startA, durA, startB, durB int) bool {
	return startA < startB+durB && startB < startA+durA
}
