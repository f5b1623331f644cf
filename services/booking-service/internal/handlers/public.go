package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/HadjievK/BoKe/libs/httpx"
	"github.com/HadjievK/BoKe/services/booking-service/internal/booking"
	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
	"github.com/HadjievK/BoKe/services/booking-service/internal/storage"
)

// Slots serves GET /api/v1/public/slots?provider=<slug>&date=YYYY-MM-DD&service_id=.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	date, err := calendar.ParseDate(strings.TrimSpace(q.Get("date")), h.bookings.Location())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be a date in YYYY-MM-DD format")
		return
	}
	provider, ok := h.providerBySlug(w, r, q.Get("provider"))
	if !ok {
		return
	}

	day, err := h.bookings.Availability(r.Context(), provider.ID, date, q.Get("service_id"))
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAvailabilityResponse(day))
}

type bookCustomer struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
}

type bookRequest struct {
	Provider        string       `json:"provider" validate:"required"`
	ServiceID       string       `json:"service_id" validate:"required,uuid"`
	AppointmentDate string       `json:"appointment_date" validate:"required,isodate"`
	AppointmentTime string       `json:"appointment_time" validate:"required,clock"`
	Customer        bookCustomer `json:"customer"`
	CustomerNotes   string       `json:"customer_notes" validate:"max=1000"`
}

// Book serves POST /api/v1/public/book. An Idempotency-Key header makes
// retries safe: the original booking is returned with 200.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	provider, ok := h.providerBySlug(w, r, req.Provider)
	if !ok {
		return
	}

	// Both parse: the validator already checked the formats.
	date, _ := calendar.ParseDate(req.AppointmentDate, h.bookings.Location())
	start, _ := calendar.ParseClock(req.AppointmentTime)

	conf, err := h.bookings.Book(r.Context(), provider.ID, booking.BookRequest{
		ServiceID:   strings.TrimSpace(req.ServiceID),
		Date:        date,
		StartMinute: start,
		Customer: model.Customer{
			Email:     strings.TrimSpace(req.Customer.Email),
			FirstName: strings.TrimSpace(req.Customer.FirstName),
			LastName:  strings.TrimSpace(req.Customer.LastName),
			Phone:     strings.TrimSpace(req.Customer.Phone),
		},
		Notes:          strings.TrimSpace(req.CustomerNotes),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}

	status := http.StatusCreated
	if conf.Replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, toBookingConfirmation(conf))
}

// PublicProvider serves GET /api/v1/public/provider?slug= with the active
// services.
func (h *Handler) PublicProvider(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	provider, ok := h.providerBySlug(w, r, r.URL.Query().Get("slug"))
	if !ok {
		return
	}
	services, err := h.catalog.ListServices(r.Context(), provider.ID, true)
	if err != nil {
		h.internalError(w, r, "failed to list services", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProviderItem(provider, services))
}

type registerProviderRequest struct {
	Slug         string `json:"slug" validate:"omitempty,slug,max=64"`
	Name         string `json:"name" validate:"required,max=100"`
	BusinessName string `json:"business_name" validate:"required,max=100"`
	ServiceType  string `json:"service_type" validate:"max=50"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"max=32"`
	Location     string `json:"location" validate:"max=200"`
	Bio          string `json:"bio" validate:"max=1000"`
}

// RegisterProvider serves POST /api/v1/providers. The provider starts open
// Monday to Friday, 09:00 to 17:00.
func (h *Handler) RegisterProvider(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	var req registerProviderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	slug := req.Slug
	if slug == "" {
		slug = slugify(req.BusinessName)
	}
	if slug == "" {
		httpx.WriteError(w, http.StatusBadRequest, "slug is required")
		return
	}

	p, err := h.catalog.CreateProvider(r.Context(), model.Provider{
		Slug:         slug,
		Name:         strings.TrimSpace(req.Name),
		BusinessName: strings.TrimSpace(req.BusinessName),
		ServiceType:  strings.TrimSpace(req.ServiceType),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		Location:     strings.TrimSpace(req.Location),
		Bio:          strings.TrimSpace(req.Bio),
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			httpx.WriteError(w, http.StatusConflict, "slug is already taken")
			return
		}
		h.internalError(w, r, "failed to create provider", err)
		return
	}
	h.logger.InfoContext(r.Context(), "provider registered", "provider_id", p.ID, "slug", p.Slug)
	httpx.WriteJSON(w, http.StatusCreated, toProviderItem(p, nil))
}

func (h *Handler) providerBySlug(w http.ResponseWriter, r *http.Request, slug string) (model.Provider, bool) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		httpx.WriteError(w, http.StatusBadRequest, "provider is required")
		return model.Provider{}, false
	}
	p, err := h.catalog.ProviderBySlug(r.Context(), slug)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "Provider not found")
			return model.Provider{}, false
		}
		h.internalError(w, r, "failed to load provider", err)
		return model.Provider{}, false
	}
	return p, true
}
