package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/HadjievK/BoKe/libs/db"
	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
	"github.com/HadjievK/BoKe/services/booking-service/internal/outbox"
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

// NewAppointment is everything needed to commit a booking. Customer is
// matched on lower-cased email and its contact fields are overwritten.
type NewAppointment struct {
	ProviderID      string
	Customer        model.Customer
	ServiceID       string
	ServiceName     string
	DurationMinutes int
	Price           decimal.Decimal
	Date            time.Time
	StartMinute     int
	CustomerNotes   string
	IdempotencyKey  string
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `
	a.id::text, a.provider_id::text, a.customer_id::text, COALESCE(a.service_id::text, ''),
	a.service_name, a.duration_minutes, a.price::text, a.appointment_date, a.start_minute,
	a.customer_notes, a.status, a.created_at, a.cancelled_at, COALESCE(a.cancellation_reason, '')`

const customerColumns = `c.id::text, c.email, c.first_name, c.last_name, c.phone, c.created_at`

// ListAppointments returns the non-cancelled appointments of providerID on
// date, ordered by start.
func (r *BookingRepository) ListAppointments(ctx context.Context, providerID string, date time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.provider_id = $1
			AND a.appointment_date = $2::date
			AND a.status <> 'cancelled'
		ORDER BY a.start_minute ASC
	`, providerID, calendar.FormatDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// InsertAppointment upserts the customer, inserts the appointment, writes the
// booked event to the outbox and records the idempotency key, all in one
// transaction. A constraint rejection is returned as ErrConflict.
//
// When the idempotency key was already used for a committed booking, that
// booking is returned with replayed set and nothing is written.
func (r *BookingRepository) InsertAppointment(ctx context.Context, in NewAppointment) (model.Appointment, model.Customer, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, model.Customer{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if in.IdempotencyKey != "" {
		existingID, err := r.lockIdempotencyKey(ctx, tx, in.ProviderID, in.IdempotencyKey)
		if err != nil {
			return model.Appointment{}, model.Customer{}, false, fmt.Errorf("lock idempotency key: %w", err)
		}
		if existingID != "" {
			appt, cust, err := getAppointmentWithCustomer(ctx, tx, in.ProviderID, existingID)
			if err != nil {
				return model.Appointment{}, model.Customer{}, false, err
			}
			return appt, cust, true, tx.Commit(ctx)
		}
	}

	cust, err := upsertCustomer(ctx, tx, in.Customer)
	if err != nil {
		return model.Appointment{}, model.Customer{}, false, fmt.Errorf("upsert customer: %w", err)
	}

	var serviceID *string
	if in.ServiceID != "" {
		serviceID = &in.ServiceID
	}
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments AS a
			(provider_id, customer_id, service_id, service_name, duration_minutes, price,
			 appointment_date, start_minute, customer_notes, status)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::date, $8, $9, 'confirmed')
		RETURNING `+appointmentColumns,
		in.ProviderID, cust.ID, serviceID, in.ServiceName, in.DurationMinutes, in.Price.String(),
		calendar.FormatDate(in.Date), in.StartMinute, in.CustomerNotes))
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, model.Customer{}, false, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return model.Appointment{}, model.Customer{}, false, fmt.Errorf("insert appointment: %w", err)
	}

	evt, err := outbox.NewEvent(outbox.AggregateAppointment, appt.ID, outbox.EventAppointmentBooked, newAppointmentEvent(appt, cust))
	if err != nil {
		return model.Appointment{}, model.Customer{}, false, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, model.Customer{}, false, fmt.Errorf("write outbox event: %w", err)
	}

	if in.IdempotencyKey != "" {
		if err := finalizeIdempotency(ctx, tx, in.ProviderID, in.IdempotencyKey, appt.ID); err != nil {
			return model.Appointment{}, model.Customer{}, false, fmt.Errorf("finalize idempotency key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return model.Appointment{}, model.Customer{}, false, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return model.Appointment{}, model.Customer{}, false, err
	}
	return appt, cust, false, nil
}

// FindByIdempotencyKey returns the booking committed under key, if any.
func (r *BookingRepository) FindByIdempotencyKey(ctx context.Context, providerID, key string) (model.Appointment, model.Customer, bool, error) {
	var appointmentID string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE provider_id = $1 AND idempotency_key = $2
	`, providerID, key).Scan(&appointmentID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && appointmentID == "") {
		return model.Appointment{}, model.Customer{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, model.Customer{}, false, err
	}
	appt, cust, err := getAppointmentWithCustomer(ctx, r.pool, providerID, appointmentID)
	if err != nil {
		return model.Appointment{}, model.Customer{}, false, err
	}
	return appt, cust, true, nil
}

// CancelAppointment marks the appointment cancelled and writes the cancelled
// event. Cancelling an already cancelled appointment returns it unchanged.
func (r *BookingRepository) CancelAppointment(ctx context.Context, providerID, appointmentID, reason string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1 AND a.provider_id = $2
		FOR UPDATE
	`, appointmentID, providerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, tx.Commit(ctx)
	}

	var cancelledAt time.Time
	if err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND provider_id = $2
		RETURNING cancelled_at
	`, appointmentID, providerID, reason).Scan(&cancelledAt); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt
	appt.CancelReason = reason

	evt, err := outbox.NewEvent(outbox.AggregateAppointment, appt.ID, outbox.EventAppointmentCancelled, cancelledAppointmentEvent{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		Date:          calendar.FormatDate(appt.Date),
		StartTime:     calendar.FormatClock(appt.StartMinute),
		Reason:        reason,
		CancelledAt:   cancelledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, fmt.Errorf("write outbox event: %w", err)
	}
	return appt, tx.Commit(ctx)
}

// ListBetween returns every appointment of providerID with a date in
// [from, to], joined with its customer.
func (r *BookingRepository) ListBetween(ctx context.Context, providerID string, from, to time.Time) ([]model.CustomerAppointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`, `+customerColumns+`
		FROM appointments a
		JOIN customers c ON c.id = a.customer_id
		WHERE a.provider_id = $1
			AND a.appointment_date BETWEEN $2::date AND $3::date
		ORDER BY a.appointment_date ASC, a.start_minute ASC
	`, providerID, calendar.FormatDate(from), calendar.FormatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CustomerAppointment
	for rows.Next() {
		var item model.CustomerAppointment
		if err := scanAppointmentWithCustomer(rows, &item.Appointment, &item.Customer); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type Stats struct {
	Today     int
	ThisWeek  int
	Customers int
}

// Stats counts non-cancelled appointments on today and in today's ISO week,
// and the distinct customers who ever booked with providerID.
func (r *BookingRepository) Stats(ctx context.Context, providerID string, today time.Time) (Stats, error) {
	weekStart := today.AddDate(0, 0, -calendar.Weekday(today))
	weekEnd := weekStart.AddDate(0, 0, 6)

	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE appointment_date = $2::date AND status <> 'cancelled'),
			COUNT(*) FILTER (WHERE appointment_date BETWEEN $3::date AND $4::date AND status <> 'cancelled'),
			COUNT(DISTINCT customer_id)
		FROM appointments
		WHERE provider_id = $1
	`, providerID, calendar.FormatDate(today), calendar.FormatDate(weekStart), calendar.FormatDate(weekEnd)).
		Scan(&s.Today, &s.ThisWeek, &s.Customers)
	return s, err
}

type CustomerSummary struct {
	Customer     model.Customer
	Appointments int
	LastVisit    time.Time
}

// ListCustomers returns the customers who booked with providerID, most recent
// visit first.
func (r *BookingRepository) ListCustomers(ctx context.Context, providerID string) ([]CustomerSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+customerColumns+`, COUNT(a.id), MAX(a.appointment_date)
		FROM customers c
		JOIN appointments a ON a.customer_id = c.id
		WHERE a.provider_id = $1
		GROUP BY c.id
		ORDER BY MAX(a.appointment_date) DESC, c.last_name ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomerSummary
	for rows.Next() {
		var s CustomerSummary
		c := &s.Customer
		if err := rows.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &c.CreatedAt, &s.Appointments, &s.LastVisit); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func upsertCustomer(ctx context.Context, tx pgx.Tx, c model.Customer) (model.Customer, error) {
	var out model.Customer
	err := tx.QueryRow(ctx, `
		INSERT INTO customers AS c (email, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			updated_at = now()
		RETURNING `+customerColumns,
		strings.ToLower(strings.TrimSpace(c.Email)), c.FirstName, c.LastName, c.Phone,
	).Scan(&out.ID, &out.Email, &out.FirstName, &out.LastName, &out.Phone, &out.CreatedAt)
	return out, err
}

func getAppointmentWithCustomer(ctx context.Context, q querier, providerID, appointmentID string) (model.Appointment, model.Customer, error) {
	var appt model.Appointment
	var cust model.Customer
	err := scanAppointmentWithCustomer(q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`, `+customerColumns+`
		FROM appointments a
		JOIN customers c ON c.id = a.customer_id
		WHERE a.id = $1 AND a.provider_id = $2
	`, appointmentID, providerID), &appt, &cust)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, model.Customer{}, ErrNotFound
	}
	return appt, cust, err
}

// lockIdempotencyKey claims key for the current transaction and returns the
// appointment already recorded under it, if any. A concurrent request with
// the same key blocks here until the first one commits or rolls back.
func (r *BookingRepository) lockIdempotencyKey(ctx context.Context, tx pgx.Tx, providerID, key string) (string, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (provider_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (provider_id, idempotency_key) DO NOTHING
	`, providerID, key); err != nil {
		return "", err
	}

	var appointmentID string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE provider_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, providerID, key).Scan(&appointmentID)
	return appointmentID, err
}

func finalizeIdempotency(ctx context.Context, tx pgx.Tx, providerID, key, appointmentID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			updated_at = now()
		WHERE provider_id = $1 AND idempotency_key = $2
	`, providerID, key, appointmentID)
	return err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var price string
	if err := row.Scan(appointmentDest(&appt, &price)...); err != nil {
		return model.Appointment{}, err
	}
	return appt, parsePrice(&appt.Price, price)
}

func scanAppointmentWithCustomer(row pgx.Row, appt *model.Appointment, cust *model.Customer) error {
	var price string
	dest := append(appointmentDest(appt, &price), &cust.ID, &cust.Email, &cust.FirstName, &cust.LastName, &cust.Phone, &cust.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	return parsePrice(&appt.Price, price)
}

func appointmentDest(appt *model.Appointment, price *string) []any {
	return []any{
		&appt.ID,
		&appt.ProviderID,
		&appt.CustomerID,
		&appt.ServiceID,
		&appt.ServiceName,
		&appt.DurationMinutes,
		price,
		&appt.Date,
		&appt.StartMinute,
		&appt.CustomerNotes,
		&appt.Status,
		&appt.CreatedAt,
		&appt.CancelledAt,
		&appt.CancelReason,
	}
}

func parsePrice(dst *decimal.Decimal, raw string) error {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", raw, err)
	}
	*dst = d
	return nil
}
