package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Appointment is a committed booking. Service name, duration and price are a
// snapshot taken at booking time.
type Appointment struct {
	ID              string
	ProviderID      string
	CustomerID      string
	ServiceID       string
	ServiceName     string
	DurationMinutes int
	Price           decimal.Decimal
	Date            time.Time
	StartMinute     int
	CustomerNotes   string
	Status          string
	CreatedAt       time.Time
	CancelledAt     *time.Time
	CancelReason    string
}

func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// Customer is identified per installation by lower-cased email.
type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	CreatedAt time.Time
}

// CustomerAppointment is an appointment joined with its customer, as listed on
// the provider dashboard.
type CustomerAppointment struct {
	Appointment
	Customer Customer
}
