package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Provider struct {
	ID           string
	Slug         string
	Name         string
	BusinessName string
	ServiceType  string
	Email        string
	Phone        string
	Location     string
	Bio          string
	CreatedAt    time.Time
}

type Service struct {
	ID              string
	ProviderID      string
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
	Description     string
	IsActive        bool
	Position        int
}

// WeeklyHours is one working-hours window. Weekday follows ISO order with
// Monday = 0. Start and end are minute offsets from midnight; SlotMinutes is
// the step between candidate start times.
type WeeklyHours struct {
	Weekday     int
	StartMinute int
	EndMinute   int
	SlotMinutes int
}

// WeeklyAvailability is a provider's schedule template ordered by weekday.
type WeeklyAvailability []WeeklyHours

// ForWeekday returns the first window declared for weekday.
func (w WeeklyAvailability) ForWeekday(weekday int) (WeeklyHours, bool) {
	for _, h := range w {
		if h.Weekday == weekday {
			return h, true
		}
	}
	return WeeklyHours{}, false
}

// DefaultWeeklyAvailability is assigned to new providers: Monday to Friday,
// 09:00 to 17:00 on a 30 minute grid.
func DefaultWeeklyAvailability() WeeklyAvailability {
	week := make(WeeklyAvailability, 0, 5)
	for day := 0; day < 5; day++ {
		week = append(week, WeeklyHours{Weekday: day, StartMinute: 9 * 60, EndMinute: 17 * 60, SlotMinutes: 30})
	}
	return week
}
