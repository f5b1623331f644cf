package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
	"github.com/HadjievK/BoKe/services/booking-service/internal/storage"
)

type fakeCatalog struct {
	week     model.WeeklyAvailability
	services map[string]model.Service
	err      error
}

func (c *fakeCatalog) WeeklyAvailability(context.Context, string) (model.WeeklyAvailability, error) {
	return c.week, c.err
}

func (c *fakeCatalog) Service(_ context.Context, providerID, serviceID string) (model.Service, error) {
	svc, ok := c.services[serviceID]
	if !ok || svc.ProviderID != providerID {
		return model.Service{}, storage.ErrNotFound
	}
	return svc, nil
}

// fakeStore enforces the same overlap rule as the database constraint.
type fakeStore struct {
	mu          sync.Mutex
	appts       []model.Appointment
	customers   map[string]model.Customer
	idempotency map[string]string
	seq         int
	insertErr   error
	listErr     error
	// listBarrier, when set, holds every ListAppointments call until all
	// expected callers have read, so concurrent bookings pass the pre-check
	// together.
	listBarrier *sync.WaitGroup
}

func newFakeStore() *fakeStore {
	return &fakeStore{customers: map[string]model.Customer{}, idempotency: map[string]string{}}
}

func (s *fakeStore) ListAppointments(_ context.Context, providerID string, date time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.ProviderID == providerID && calendar.SameDay(a.Date, date) && a.Active() {
			out = append(out, a)
		}
	}
	err := s.listErr
	s.mu.Unlock()

	if s.listBarrier != nil {
		s.listBarrier.Done()
		s.listBarrier.Wait()
	}
	return out, err
}

func (s *fakeStore) InsertAppointment(_ context.Context, in storage.NewAppointment) (model.Appointment, model.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return model.Appointment{}, model.Customer{}, false, s.insertErr
	}
	if id, ok := s.idempotency[in.ProviderID+"/"+in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		for _, a := range s.appts {
			if a.ID == id {
				return a, s.customers[a.CustomerID], true, nil
			}
		}
	}
	for _, a := range s.appts {
		if a.ProviderID == in.ProviderID && calendar.SameDay(a.Date, in.Date) && a.Active() &&
			calendar.Overlaps(a.StartMinute, a.DurationMinutes, in.StartMinute, in.DurationMinutes) {
			return model.Appointment{}, model.Customer{}, false, fmt.Errorf("%w: overlaps %s", storage.ErrConflict, a.ID)
		}
	}

	cust, ok := s.customers[in.Customer.Email]
	if !ok {
		cust = in.Customer
		cust.ID = "cust-" + in.Customer.Email
	}
	cust.FirstName, cust.LastName, cust.Phone = in.Customer.FirstName, in.Customer.LastName, in.Customer.Phone
	s.customers[cust.Email] = cust
	s.customers[cust.ID] = cust

	s.seq++
	appt := model.Appointment{
		ID:              "appt-" + strconv.Itoa(s.seq),
		ProviderID:      in.ProviderID,
		CustomerID:      cust.ID,
		ServiceID:       in.ServiceID,
		ServiceName:     in.ServiceName,
		DurationMinutes: in.DurationMinutes,
		Price:           in.Price,
		Date:            in.Date,
		StartMinute:     in.StartMinute,
		CustomerNotes:   in.CustomerNotes,
		Status:          model.StatusConfirmed,
	}
	s.appts = append(s.appts, appt)
	if in.IdempotencyKey != "" {
		s.idempotency[in.ProviderID+"/"+in.IdempotencyKey] = appt.ID
	}
	return appt, cust, false, nil
}

func (s *fakeStore) FindByIdempotencyKey(_ context.Context, providerID, key string) (model.Appointment, model.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idempotency[providerID+"/"+key]
	if !ok {
		return model.Appointment{}, model.Customer{}, false, nil
	}
	for _, a := range s.appts {
		if a.ID == id {
			return a, s.customers[a.CustomerID], true, nil
		}
	}
	return model.Appointment{}, model.Customer{}, false, errors.New("dangling idempotency key")
}

func (s *fakeStore) CancelAppointment(_ context.Context, providerID, appointmentID, reason string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.appts {
		if a.ID == appointmentID && a.ProviderID == providerID {
			if a.Status != model.StatusCancelled {
				a.Status = model.StatusCancelled
				a.CancelReason = reason
				s.appts[i] = a
			}
			return a, nil
		}
	}
	return model.Appointment{}, storage.ErrNotFound
}

func (s *fakeStore) active() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out
}

// racingStore simulates a retry racing its own first attempt. afterMiss runs
// once, right after a key lookup misses. stale hides committed bookings from
// both reads, as if the first attempt were still in flight.
type racingStore struct {
	*fakeStore
	afterMiss func()
	stale     bool
}

func (r *racingStore) FindByIdempotencyKey(ctx context.Context, providerID, key string) (model.Appointment, model.Customer, bool, error) {
	if r.stale {
		return model.Appointment{}, model.Customer{}, false, nil
	}
	appt, cust, ok, err := r.fakeStore.FindByIdempotencyKey(ctx, providerID, key)
	if err == nil && !ok && r.afterMiss != nil {
		hook := r.afterMiss
		r.afterMiss = nil
		hook()
	}
	return appt, cust, ok, err
}

func (r *racingStore) ListAppointments(ctx context.Context, providerID string, date time.Time) ([]model.Appointment, error) {
	if r.stale {
		return nil, nil
	}
	return r.fakeStore.ListAppointments(ctx, providerID, date)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
