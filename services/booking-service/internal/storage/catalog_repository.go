package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/HadjievK/BoKe/libs/db"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
)

// CatalogRepository owns provider profiles, their services and weekly hours.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

const providerColumns = `id::text, slug, name, business_name, service_type, email, phone, location, bio, created_at`

// CreateProvider stores p and gives it the default weekly hours. A taken slug
// is reported as ErrConflict.
func (r *CatalogRepository) CreateProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Provider{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out, err := scanProvider(tx.QueryRow(ctx, `
		INSERT INTO providers (slug, name, business_name, service_type, email, phone, location, bio)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+providerColumns,
		strings.ToLower(p.Slug), p.Name, p.BusinessName, p.ServiceType, p.Email, p.Phone, p.Location, p.Bio))
	if err != nil {
		if IsConflict(err) {
			return model.Provider{}, fmt.Errorf("%w: slug %q", ErrConflict, p.Slug)
		}
		return model.Provider{}, err
	}
	if err := insertWeeklyHours(ctx, tx, out.ID, model.DefaultWeeklyAvailability()); err != nil {
		return model.Provider{}, err
	}
	return out, tx.Commit(ctx)
}

func (r *CatalogRepository) ProviderBySlug(ctx context.Context, slug string) (model.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE slug = $1
	`, strings.ToLower(strings.TrimSpace(slug))))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Provider{}, ErrNotFound
	}
	return p, err
}

func (r *CatalogRepository) Provider(ctx context.Context, providerID string) (model.Provider, error) {
	if _, err := uuid.Parse(providerID); err != nil {
		return model.Provider{}, ErrNotFound
	}
	p, err := scanProvider(r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE id = $1
	`, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Provider{}, ErrNotFound
	}
	return p, err
}

// ProviderPatch lists the profile fields to change. Nil fields are kept.
type ProviderPatch struct {
	Name         *string
	BusinessName *string
	ServiceType  *string
	Phone        *string
	Location     *string
	Bio          *string
}

func (r *CatalogRepository) UpdateProvider(ctx context.Context, providerID string, patch ProviderPatch) (model.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, `
		UPDATE providers
		SET name = COALESCE($2, name),
			business_name = COALESCE($3, business_name),
			service_type = COALESCE($4, service_type),
			phone = COALESCE($5, phone),
			location = COALESCE($6, location),
			bio = COALESCE($7, bio),
			updated_at = now()
		WHERE id = $1
		RETURNING `+providerColumns,
		providerID, patch.Name, patch.BusinessName, patch.ServiceType, patch.Phone, patch.Location, patch.Bio))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Provider{}, ErrNotFound
	}
	return p, err
}

// WeeklyAvailability returns the provider's hours ordered by weekday. A
// provider without rows is closed every day.
func (r *CatalogRepository) WeeklyAvailability(ctx context.Context, providerID string) (model.WeeklyAvailability, error) {
	if _, err := uuid.Parse(providerID); err != nil {
		return nil, ErrNotFound
	}
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, slot_minutes
		FROM provider_weekly_hours
		WHERE provider_id = $1
		ORDER BY weekday ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var week model.WeeklyAvailability
	for rows.Next() {
		var h model.WeeklyHours
		if err := rows.Scan(&h.Weekday, &h.StartMinute, &h.EndMinute, &h.SlotMinutes); err != nil {
			return nil, err
		}
		week = append(week, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return week, nil
}

// ReplaceWeeklyAvailability swaps the provider's hours for week.
func (r *CatalogRepository) ReplaceWeeklyAvailability(ctx context.Context, providerID string, week model.WeeklyAvailability) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM provider_weekly_hours WHERE provider_id = $1`, providerID); err != nil {
		return err
	}
	if err := insertWeeklyHours(ctx, tx, providerID, week); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Service returns an active service of the provider. Unknown, malformed and
// inactive ids all yield ErrNotFound.
func (r *CatalogRepository) Service(ctx context.Context, providerID, serviceID string) (model.Service, error) {
	if _, err := uuid.Parse(serviceID); err != nil {
		return model.Service{}, ErrNotFound
	}
	s, err := scanService(r.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM provider_services
		WHERE provider_id = $1 AND id = $2 AND is_active
	`, providerID, serviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, ErrNotFound
	}
	return s, err
}

const serviceColumns = `id::text, provider_id::text, name, duration_minutes, price::text, description, is_active, position`

func (r *CatalogRepository) ListServices(ctx context.Context, providerID string, activeOnly bool) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM provider_services
		WHERE provider_id = $1 AND (is_active OR NOT $2)
		ORDER BY position ASC, created_at ASC
	`, providerID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// CreateService assigns a new id and appends the service after the
// provider's existing ones.
func (r *CatalogRepository) CreateService(ctx context.Context, s model.Service) (model.Service, error) {
	s.ID = uuid.NewString()
	return scanService(r.pool.QueryRow(ctx, `
		INSERT INTO provider_services (id, provider_id, name, duration_minutes, price, description, is_active, position)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM provider_services WHERE provider_id = $2))
		RETURNING `+serviceColumns,
		s.ID, s.ProviderID, s.Name, s.DurationMinutes, s.Price.String(), s.Description, s.IsActive))
}

// ServicePatch lists the service fields to change. Nil fields are kept.
type ServicePatch struct {
	Name            *string
	DurationMinutes *int
	Price           *decimal.Decimal
	Description     *string
	IsActive        *bool
}

// UpdateService edits a service of the provider, active or not. Appointments
// keep the name, duration and price they were booked with.
func (r *CatalogRepository) UpdateService(ctx context.Context, providerID, serviceID string, patch ServicePatch) (model.Service, error) {
	if _, err := uuid.Parse(serviceID); err != nil {
		return model.Service{}, ErrNotFound
	}
	var price *string
	if patch.Price != nil {
		v := patch.Price.String()
		price = &v
	}
	s, err := scanService(r.pool.QueryRow(ctx, `
		UPDATE provider_services
		SET name = COALESCE($3, name),
			duration_minutes = COALESCE($4, duration_minutes),
			price = COALESCE($5::numeric, price),
			description = COALESCE($6, description),
			is_active = COALESCE($7, is_active)
		WHERE provider_id = $1 AND id = $2
		RETURNING `+serviceColumns,
		providerID, serviceID, patch.Name, patch.DurationMinutes, price, patch.Description, patch.IsActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, ErrNotFound
	}
	return s, err
}

func insertWeeklyHours(ctx context.Context, tx pgx.Tx, providerID string, week model.WeeklyAvailability) error {
	batch := &pgx.Batch{}
	for _, h := range week {
		batch.Queue(`
			INSERT INTO provider_weekly_hours (provider_id, weekday, start_minute, end_minute, slot_minutes)
			VALUES ($1, $2, $3, $4, $5)
		`, providerID, h.Weekday, h.StartMinute, h.EndMinute, h.SlotMinutes)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func scanProvider(row pgx.Row) (model.Provider, error) {
	var p model.Provider
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.BusinessName, &p.ServiceType, &p.Email, &p.Phone, &p.Location, &p.Bio, &p.CreatedAt)
	return p, err
}

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	var price string
	if err := row.Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMinutes, &price, &s.Description, &s.IsActive, &s.Position); err != nil {
		return model.Service{}, err
	}
	return s, parsePrice(&s.Price, price)
}
