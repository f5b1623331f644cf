package handlers

import (
	"time"

	"github.com/HadjievK/BoKe/services/booking-service/internal/booking"
	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
	"github.com/HadjievK/BoKe/services/booking-service/internal/storage"
)

type slotItem struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type availabilityResponse struct {
	Date            string     `json:"date"`
	DurationMinutes int        `json:"duration_minutes"`
	Slots           []slotItem `json:"slots"`
}

func toAvailabilityResponse(day booking.Day) availabilityResponse {
	slots := make([]slotItem, 0, len(day.Slots))
	for _, s := range day.Slots {
		slots = append(slots, slotItem{Time: calendar.FormatClock(s.Start), Available: s.Available})
	}
	return availabilityResponse{
		Date:            calendar.FormatDate(day.Date),
		DurationMinutes: day.DurationMinutes,
		Slots:           slots,
	}
}

type customerItem struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

func toCustomerItem(c model.Customer) customerItem {
	return customerItem{
		ID:        c.ID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		CreatedAt: formatTimestamp(c.CreatedAt),
	}
}

type appointmentItem struct {
	ID              string        `json:"id"`
	ProviderID      string        `json:"provider_id"`
	CustomerID      string        `json:"customer_id"`
	ServiceID       string        `json:"service_id,omitempty"`
	ServiceName     string        `json:"service_name"`
	AppointmentDate string        `json:"appointment_date"`
	AppointmentTime string        `json:"appointment_time"`
	Duration        int           `json:"duration"`
	Price           string        `json:"price"`
	CustomerNotes   string        `json:"customer_notes,omitempty"`
	Status          string        `json:"status"`
	CreatedAt       string        `json:"created_at"`
	CancelledAt     string        `json:"cancelled_at,omitempty"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	Customer        *customerItem `json:"customer,omitempty"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:              a.ID,
		ProviderID:      a.ProviderID,
		CustomerID:      a.CustomerID,
		ServiceID:       a.ServiceID,
		ServiceName:     a.ServiceName,
		AppointmentDate: calendar.FormatDate(a.Date),
		AppointmentTime: calendar.FormatClock(a.StartMinute),
		Duration:        a.DurationMinutes,
		Price:           a.Price.StringFixed(2),
		CustomerNotes:   a.CustomerNotes,
		Status:          a.Status,
		CreatedAt:       formatTimestamp(a.CreatedAt),
		CancelReason:    a.CancelReason,
	}
	if a.CancelledAt != nil {
		item.CancelledAt = formatTimestamp(*a.CancelledAt)
	}
	return item
}

type serviceItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Duration    int    `json:"duration"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	Position    int    `json:"position"`
}

func toServiceItem(s model.Service) serviceItem {
	return serviceItem{
		ID:          s.ID,
		Name:        s.Name,
		Duration:    s.DurationMinutes,
		Price:       s.Price.StringFixed(2),
		Description: s.Description,
		IsActive:    s.IsActive,
		Position:    s.Position,
	}
}

type bookingConfirmation struct {
	Appointment appointmentItem `json:"appointment"`
	Customer    customerItem    `json:"customer"`
	Service     serviceItem     `json:"service"`
	Message     string          `json:"message"`
}

func toBookingConfirmation(c booking.Confirmation) bookingConfirmation {
	return bookingConfirmation{
		Appointment: toAppointmentItem(c.Appointment),
		Customer:    toCustomerItem(c.Customer),
		Service: serviceItem{
			ID:       c.Service.ID,
			Name:     c.Service.Name,
			Duration: c.Service.DurationMinutes,
			Price:    c.Service.Price.StringFixed(2),
			IsActive: true,
		},
		Message: "Booking confirmed successfully!",
	}
}

type providerItem struct {
	ID           string        `json:"id"`
	Slug         string        `json:"slug"`
	Name         string        `json:"name"`
	BusinessName string        `json:"business_name"`
	ServiceType  string        `json:"service_type"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone"`
	Location     string        `json:"location,omitempty"`
	Bio          string        `json:"bio,omitempty"`
	CreatedAt    string        `json:"created_at"`
	Services     []serviceItem `json:"services,omitempty"`
}

func toProviderItem(p model.Provider, services []model.Service) providerItem {
	item := providerItem{
		ID:           p.ID,
		Slug:         p.Slug,
		Name:         p.Name,
		BusinessName: p.BusinessName,
		ServiceType:  p.ServiceType,
		Email:        p.Email,
		Phone:        p.Phone,
		Location:     p.Location,
		Bio:          p.Bio,
		CreatedAt:    formatTimestamp(p.CreatedAt),
	}
	for _, s := range services {
		item.Services = append(item.Services, toServiceItem(s))
	}
	return item
}

type weeklyHoursItem struct {
	Day          int    `json:"day" validate:"min=0,max=6"`
	Start        string `json:"start" validate:"required,clock"`
	End          string `json:"end" validate:"required,clock"`
	SlotDuration int    `json:"slot_duration" validate:"min=5,max=240"`
}

func toWeeklyHoursItems(week model.WeeklyAvailability) []weeklyHoursItem {
	out := make([]weeklyHoursItem, 0, len(week))
	for _, h := range week {
		out = append(out, weeklyHoursItem{
			Day:          h.Weekday,
			Start:        calendar.FormatClock(h.StartMinute),
			End:          calendar.FormatClock(h.EndMinute),
			SlotDuration: h.SlotMinutes,
		})
	}
	return out
}

type statsResponse struct {
	TodayAppointments int `json:"today_appointments"`
	WeekAppointments  int `json:"week_appointments"`
	TotalCustomers    int `json:"total_customers"`
}

func toStatsResponse(s storage.Stats) statsResponse {
	return statsResponse{TodayAppointments: s.Today, WeekAppointments: s.ThisWeek, TotalCustomers: s.Customers}
}

type customerSummaryItem struct {
	customerItem
	Appointments int    `json:"appointments"`
	LastVisit    string `json:"last_visit"`
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
