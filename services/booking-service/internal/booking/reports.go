package booking

import (
	"context"
	"time"

	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
	"github.com/HadjievK/BoKe/services/booking-service/internal/storage"
)

// Reports backs the provider dashboard.
type Reports interface {
	ListBetween(ctx context.Context, providerID string, from, to time.Time) ([]model.CustomerAppointment, error)
	Stats(ctx context.Context, providerID string, today time.Time) (storage.Stats, error)
	ListCustomers(ctx context.Context, providerID string) ([]storage.CustomerSummary, error)
}

// Dashboard serves the provider's read-only views. Dates are interpreted in
// the booking service location.
type Dashboard struct {
	reports Reports
	svc     *Service
}

func NewDashboard(reports Reports, svc *Service) *Dashboard {
	return &Dashboard{reports: reports, svc: svc}
}

// Appointments lists appointments dated from..to inclusive. Zero bounds
// default to today.
func (d *Dashboard) Appointments(ctx context.Context, providerID string, from, to time.Time) ([]model.CustomerAppointment, error) {
	today := d.svc.Today()
	if from.IsZero() {
		from = today
	}
	if to.IsZero() {
		to = from
	}
	if to.Before(from) {
		return nil, invalid("end_date must not be before start_date")
	}
	items, err := d.reports.ListBetween(ctx, providerID, from, to)
	if err != nil {
		return nil, storeFailure("Failed to list appointments", err)
	}
	return items, nil
}

func (d *Dashboard) Stats(ctx context.Context, providerID string) (storage.Stats, error) {
	stats, err := d.reports.Stats(ctx, providerID, d.svc.Today())
	if err != nil {
		return storage.Stats{}, storeFailure("Failed to load stats", err)
	}
	return stats, nil
}

func (d *Dashboard) Customers(ctx context.Context, providerID string) ([]storage.CustomerSummary, error) {
	customers, err := d.reports.ListCustomers(ctx, providerID)
	if err != nil {
		return nil, storeFailure("Failed to list customers", err)
	}
	return customers, nil
}
