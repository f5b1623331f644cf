package availability

import (
	"time"

	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
)

// Slot is a candidate start time, in minutes from midnight.
type Slot struct {
	Start     int
	Available bool
}

// Interval is a busy stretch of the day, [Start, Start+Duration).
type Interval struct {
	Start    int
	Duration int
}

// BusyIntervals returns the intervals held by non-cancelled appointments.
func BusyIntervals(appts []model.Appointment) []Interval {
	busy := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Active() {
			continue
		}
		busy = append(busy, Interval{Start: a.StartMinute, Duration: a.DurationMinutes})
	}
	return busy
}

// Resolve builds the raw slot grid for date: one candidate every SlotMinutes
// from the window start for as long as a booking of duration still ends
// within the window. A day without a window yields no slots.
func Resolve(week model.WeeklyAvailability, date time.Time, duration int) []Slot {
	hours, ok := week.ForWeekday(calendar.Weekday(date))
	if !ok {
		return nil
	}
	if duration <= 0 || hours.SlotMinutes <= 0 || hours.EndMinute <= hours.StartMinute {
		return nil
	}

	var slots []Slot
	for start := hours.StartMinute; start+duration <= hours.EndMinute; start += hours.SlotMinutes {
		slots = append(slots, Slot{Start: start, Available: true})
	}
	return slots
}

// Filter marks every slot that overlaps a busy interval as unavailable. When
// date is today (in date's location) slots that do not start strictly after
// now are dropped.
func Filter(slots []Slot, duration int, busy []Interval, date, now time.Time) []Slot {
	now = now.In(date.Location())
	today := calendar.SameDay(date, now)
	nowMinute := calendar.ToOffset(now)

	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if today && s.Start <= nowMinute {
			continue
		}
		out = append(out, Slot{Start: s.Start, Available: s.Available && !overlapsAny(s.Start, duration, busy)})
	}
	return out
}

// Compute is Resolve followed by Filter.
func Compute(week model.WeeklyAvailability, date time.Time, duration int, busy []Interval, now time.Time) []Slot {
	return Filter(Resolve(week, date, duration), duration, busy, date, now)
}

// Fits reports whether a booking of duration at start lies inside the day's
// working window and clears every busy interval. Start is not required to sit
// on the slot grid.
func Fits(week model.WeeklyAvailability, date time.Time, start, duration int, busy []Interval) bool {
	hours, ok := week.ForWeekday(calendar.Weekday(date))
	if !ok || duration <= 0 {
		return false
	}
	if start < hours.StartMinute || start+duration > hours.EndMinute {
		return false
	}
	return !overlapsAny(start, duration, busy)
}

func overlapsAny(start, duration int, busy []Interval) bool {
	for _, b := range busy {
		if calendar.Overlaps(start, duration, b.Start, b.Duration) {
			return true
		}
	}
	return false
}
