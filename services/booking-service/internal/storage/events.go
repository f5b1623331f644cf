package storage

import (
	"time"

	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
)

type bookedAppointmentEvent struct {
	AppointmentID   string `json:"appointment_id"`
	ProviderID      string `json:"provider_id"`
	ServiceID       string `json:"service_id,omitempty"`
	ServiceName     string `json:"service_name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	CustomerID      string `json:"customer_id"`
	CustomerEmail   string `json:"customer_email"`
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func newAppointmentEvent(appt model.Appointment, cust model.Customer) bookedAppointmentEvent {
	return bookedAppointmentEvent{
		AppointmentID:   appt.ID,
		ProviderID:      appt.ProviderID,
		ServiceID:       appt.ServiceID,
		ServiceName:     appt.ServiceName,
		DurationMinutes: appt.DurationMinutes,
		Price:           appt.Price.StringFixed(2),
		Date:            calendar.FormatDate(appt.Date),
		StartTime:       calendar.FormatClock(appt.StartMinute),
		CustomerID:      cust.ID,
		CustomerEmail:   cust.Email,
		CustomerName:    cust.FirstName + " " + cust.LastName,
		CustomerPhone:   cust.Phone,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type cancelledAppointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	ProviderID    string `json:"provider_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	Reason        string `json:"reason,omitempty"`
	CancelledAt   string `json:"cancelled_at"`
}
