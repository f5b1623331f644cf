// Package booking answers availability queries and commits bookings against
// a provider's weekly hours and existing appointments.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/HadjievK/BoKe/libs/otel"
	"github.com/HadjievK/BoKe/services/booking-service/internal/availability"
	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
	"github.com/HadjievK/BoKe/services/booking-service/internal/storage"
)

// DefaultDurationMinutes applies when availability is requested without a
// service. Bookings always name one.
const DefaultDurationMinutes = 30

type Catalog interface {
	WeeklyAvailability(ctx context.Context, providerID string) (model.WeeklyAvailability, error)
	// Service returns an active service or storage.ErrNotFound.
	Service(ctx context.Context, providerID, serviceID string) (model.Service, error)
}

type Store interface {
	// ListAppointments excludes cancelled appointments.
	ListAppointments(ctx context.Context, providerID string, date time.Time) ([]model.Appointment, error)
	// InsertAppointment returns storage.ErrConflict when the slot was taken
	// concurrently. replayed is set when the idempotency key already belonged
	// to a committed booking, which is returned instead.
	InsertAppointment(ctx context.Context, in storage.NewAppointment) (appt model.Appointment, cust model.Customer, replayed bool, err error)
	FindByIdempotencyKey(ctx context.Context, providerID, key string) (model.Appointment, model.Customer, bool, error)
	CancelAppointment(ctx context.Context, providerID, appointmentID, reason string) (model.Appointment, error)
}

type Options struct {
	// Location is the single zone all dates and times are interpreted in.
	Location        *time.Location
	Now             func() time.Time
	DefaultDuration int
}

type Service struct {
	catalog  Catalog
	store    Store
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
	duration int
	tracer   trace.Tracer
}

func NewService(catalog Catalog, store Store, logger *slog.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDurationMinutes
	}
	return &Service{
		catalog:  catalog,
		store:    store,
		logger:   logger,
		loc:      opts.Location,
		now:      opts.Now,
		duration: opts.DefaultDuration,
		tracer:   otelx.Tracer("booking"),
	}
}

// Now returns the current time in the service location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Today is midnight of the current date in the service location.
func (s *Service) Today() time.Time {
	return calendar.StartOfDay(s.Now())
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Day is the slot grid of one date for one duration.
type Day struct {
	Date            time.Time
	DurationMinutes int
	Slots           []availability.Slot
}

// Availability computes the slots of date for the given service, or for the
// default duration when serviceID is empty.
func (s *Service) Availability(ctx context.Context, providerID string, date time.Time, serviceID string) (Day, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Availability", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("date", calendar.FormatDate(date)),
	))
	defer span.End()

	date = s.normalizeDate(date)
	duration := s.duration
	if serviceID = strings.TrimSpace(serviceID); serviceID != "" {
		svc, err := s.lookupService(ctx, providerID, serviceID)
		if err != nil {
			recordError(span, err)
			return Day{}, err
		}
		duration = svc.DurationMinutes
	}

	week, busy, err := s.loadDay(ctx, providerID, date)
	if err != nil {
		recordError(span, err)
		return Day{}, err
	}
	slots := availability.Compute(week, date, duration, busy, s.Now())
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return Day{Date: date, DurationMinutes: duration, Slots: slots}, nil
}

// BookRequest is a validated booking request. Date is a calendar date;
// StartMinute is minutes from midnight.
type BookRequest struct {
	ServiceID      string
	Date           time.Time
	StartMinute    int
	Customer       model.Customer
	Notes          string
	IdempotencyKey string
}

// ServiceSnapshot is the service as it was when the appointment was booked.
type ServiceSnapshot struct {
	ID              string
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
}

type Confirmation struct {
	Appointment model.Appointment
	Customer    model.Customer
	Service     ServiceSnapshot
	// Replayed is set when the idempotency key matched an earlier booking.
	Replayed bool
}

// Book validates the requested slot against the provider's hours and current
// appointments, then commits it. The store's overlap constraint has the final
// word: a slot lost to a concurrent booking yields ErrSlotAlreadyTaken.
func (s *Service) Book(ctx context.Context, providerID string, req BookRequest) (Confirmation, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("date", calendar.FormatDate(req.Date)),
		attribute.String("start", calendar.FormatClock(req.StartMinute)),
	))
	defer span.End()

	conf, err := s.book(ctx, providerID, req)
	if err != nil {
		recordError(span, err)
		var be *Error
		if errors.As(err, &be) && be.Kind == KindStoreFailure {
			s.logger.ErrorContext(ctx, "booking failed", "provider_id", providerID, "err", err)
		} else {
			s.logger.InfoContext(ctx, "booking rejected", "provider_id", providerID, "kind", kindOf(err))
		}
		return Confirmation{}, err
	}
	span.SetAttributes(attribute.String("appointment.id", conf.Appointment.ID))
	if !conf.Replayed {
		s.logger.InfoContext(ctx, "appointment booked",
			"provider_id", providerID,
			"appointment_id", conf.Appointment.ID,
			"date", calendar.FormatDate(conf.Appointment.Date),
			"start", calendar.FormatClock(conf.Appointment.StartMinute),
		)
	}
	return conf, nil
}

func (s *Service) book(ctx context.Context, providerID string, req BookRequest) (Confirmation, error) {
	if err := validateBookRequest(req); err != nil {
		return Confirmation{}, err
	}
	date := s.normalizeDate(req.Date)

	if conf, ok, err := s.replay(ctx, providerID, req.IdempotencyKey); err != nil || ok {
		return conf, err
	}

	if req.ServiceID == "" {
		return Confirmation{}, notFound("Service not found or inactive")
	}
	svc, err := s.lookupService(ctx, providerID, req.ServiceID)
	if err != nil {
		return Confirmation{}, err
	}
	snap := ServiceSnapshot{ID: svc.ID, Name: svc.Name, DurationMinutes: svc.DurationMinutes, Price: svc.Price}

	if !calendar.FromOffset(date, req.StartMinute).After(s.Now()) {
		return Confirmation{}, ErrInThePast
	}

	week, busy, err := s.loadDay(ctx, providerID, date)
	if err != nil {
		return Confirmation{}, err
	}
	if !availability.Fits(week, date, req.StartMinute, snap.DurationMinutes, busy) {
		// A retry can lose its slot to its own first attempt committing
		// after the lookup above.
		return s.replayOr(ctx, providerID, req.IdempotencyKey, ErrSlotUnavailable)
	}

	appt, cust, replayed, err := s.store.InsertAppointment(ctx, storage.NewAppointment{
		ProviderID:      providerID,
		Customer:        req.Customer,
		ServiceID:       snap.ID,
		ServiceName:     snap.Name,
		DurationMinutes: snap.DurationMinutes,
		Price:           snap.Price,
		Date:            date,
		StartMinute:     req.StartMinute,
		CustomerNotes:   req.Notes,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return s.replayOr(ctx, providerID, req.IdempotencyKey, ErrSlotAlreadyTaken)
		}
		return Confirmation{}, storeFailure("Failed to create appointment", err)
	}
	if replayed {
		return Confirmation{Appointment: appt, Customer: cust, Service: snapshotOf(appt), Replayed: true}, nil
	}
	return Confirmation{Appointment: appt, Customer: cust, Service: snap}, nil
}

// replay returns the booking already committed under key, if any.
func (s *Service) replay(ctx context.Context, providerID, key string) (Confirmation, bool, error) {
	if key == "" {
		return Confirmation{}, false, nil
	}
	appt, cust, ok, err := s.store.FindByIdempotencyKey(ctx, providerID, key)
	if err != nil {
		return Confirmation{}, false, storeFailure("Failed to create appointment", err)
	}
	if !ok {
		return Confirmation{}, false, nil
	}
	return Confirmation{Appointment: appt, Customer: cust, Service: snapshotOf(appt), Replayed: true}, true, nil
}

// replayOr looks the key up once more before giving up with rejection.
func (s *Service) replayOr(ctx context.Context, providerID, key string, rejection error) (Confirmation, error) {
	conf, ok, err := s.replay(ctx, providerID, key)
	if err != nil {
		return Confirmation{}, err
	}
	if ok {
		return conf, nil
	}
	return Confirmation{}, rejection
}

// Cancel frees the appointment's interval. Cancelling twice is not an error.
func (s *Service) Cancel(ctx context.Context, providerID, appointmentID, reason string) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("appointment.id", appointmentID),
	))
	defer span.End()

	appt, err := s.store.CancelAppointment(ctx, providerID, appointmentID, strings.TrimSpace(reason))
	if err != nil {
		if storage.IsNotFound(err) {
			err = notFound("Appointment not found")
		} else {
			err = storeFailure("Failed to cancel appointment", err)
			s.logger.ErrorContext(ctx, "cancel failed", "provider_id", providerID, "appointment_id", appointmentID, "err", err)
		}
		recordError(span, err)
		return model.Appointment{}, err
	}
	s.logger.InfoContext(ctx, "appointment cancelled", "provider_id", providerID, "appointment_id", appt.ID)
	return appt, nil
}

func (s *Service) lookupService(ctx context.Context, providerID, serviceID string) (model.Service, error) {
	svc, err := s.catalog.Service(ctx, providerID, serviceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Service{}, notFound("Service not found or inactive")
		}
		return model.Service{}, storeFailure("Failed to load service", err)
	}
	if !svc.IsActive {
		return model.Service{}, notFound("Service not found or inactive")
	}
	return svc, nil
}

// loadDay reads the weekly hours and the day's appointments once.
func (s *Service) loadDay(ctx context.Context, providerID string, date time.Time) (model.WeeklyAvailability, []availability.Interval, error) {
	week, err := s.catalog.WeeklyAvailability(ctx, providerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil, notFound("Provider not found")
		}
		return nil, nil, storeFailure("Failed to load availability", err)
	}
	appts, err := s.store.ListAppointments(ctx, providerID, date)
	if err != nil {
		return nil, nil, storeFailure("Failed to load appointments", err)
	}
	return week, availability.BusyIntervals(appts), nil
}

// normalizeDate keeps the calendar date of d and moves it to midnight in the
// service location.
func (s *Service) normalizeDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, s.loc)
}

func validateBookRequest(req BookRequest) error {
	switch {
	case req.Date.IsZero():
		return invalid("date is required")
	case req.StartMinute < 0 || req.StartMinute >= calendar.MinutesPerDay:
		return invalid("time must be between 00:00 and 23:59")
	case strings.TrimSpace(req.Customer.Email) == "":
		return invalid("customer email is required")
	case strings.TrimSpace(req.Customer.FirstName) == "" || strings.TrimSpace(req.Customer.LastName) == "":
		return invalid("customer name is required")
	}
	return nil
}

func snapshotOf(appt model.Appointment) ServiceSnapshot {
	return ServiceSnapshot{
		ID:              appt.ServiceID,
		Name:            appt.ServiceName,
		DurationMinutes: appt.DurationMinutes,
		Price:           appt.Price,
	}
}

func kindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindStoreFailure
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kindOf(err)))
}
