package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/HadjievK/BoKe/libs/httpx"
	"github.com/HadjievK/BoKe/services/booking-service/internal/booking"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
	"github.com/HadjievK/BoKe/services/booking-service/internal/storage"
)

// ProviderIDHeader carries the authenticated provider id, set by the gateway
// in front of the dashboard routes.
const ProviderIDHeader = "X-Provider-Id"

// Catalog is the provider configuration store.
type Catalog interface {
	ProviderBySlug(ctx context.Context, slug string) (model.Provider, error)
	Provider(ctx context.Context, providerID string) (model.Provider, error)
	CreateProvider(ctx context.Context, p model.Provider) (model.Provider, error)
	WeeklyAvailability(ctx context.Context, providerID string) (model.WeeklyAvailability, error)
	ReplaceWeeklyAvailability(ctx context.Context, providerID string, week model.WeeklyAvailability) error
	UpdateProvider(ctx context.Context, providerID string, patch storage.ProviderPatch) (model.Provider, error)
	ListServices(ctx context.Context, providerID string, activeOnly bool) ([]model.Service, error)
	CreateService(ctx context.Context, s model.Service) (model.Service, error)
	UpdateService(ctx context.Context, providerID, serviceID string, patch storage.ServicePatch) (model.Service, error)
}

type Handler struct {
	bookings  *booking.Service
	dashboard *booking.Dashboard
	catalog   Catalog
	logger    *slog.Logger
}

func New(bookings *booking.Service, dashboard *booking.Dashboard, catalog Catalog, logger *slog.Logger) *Handler {
	return &Handler{bookings: bookings, dashboard: dashboard, catalog: catalog, logger: logger}
}

// Public reports whether path is served without provider authentication.
func Public(path string) bool {
	return strings.HasPrefix(path, "/api/v1/public/") || path == "/api/v1/providers"
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/book", h.Book)
	mux.HandleFunc("/api/v1/public/provider", h.PublicProvider)
	mux.HandleFunc("/api/v1/providers", h.RegisterProvider)

	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/dashboard/stats", h.Stats)
	mux.HandleFunc("/api/v1/customers", h.Customers)
	mux.HandleFunc("/api/v1/provider/availability", h.Availability)
	mux.HandleFunc("/api/v1/provider/services", h.Services)
	mux.HandleFunc("/api/v1/provider/profile", h.Profile)
}

func methodAllowed(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// currentProvider resolves the caller's provider from the header, or writes
// a 401 when the header is missing, malformed or names no provider.
func (h *Handler) currentProvider(w http.ResponseWriter, r *http.Request) (model.Provider, bool) {
	id := strings.TrimSpace(r.Header.Get(ProviderIDHeader))
	if id == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "missing "+ProviderIDHeader)
		return model.Provider{}, false
	}
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid "+ProviderIDHeader)
		return model.Provider{}, false
	}
	p, err := h.catalog.Provider(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusUnauthorized, "unknown provider")
			return model.Provider{}, false
		}
		h.internalError(w, r, "failed to load provider", err)
		return model.Provider{}, false
	}
	return p, true
}

// decodeJSON decodes and validates the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := validateStruct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

type bookingErrorBody struct {
	Detail    string       `json:"detail"`
	Kind      booking.Kind `json:"kind"`
	RequestID string       `json:"request_id,omitempty"`
}

// writeBookingError maps a classified booking error to its HTTP status. The
// cause of a store failure is logged, never returned.
func (h *Handler) writeBookingError(w http.ResponseWriter, r *http.Request, err error) {
	var be *booking.Error
	if !errors.As(err, &be) {
		h.logger.ErrorContext(r.Context(), "unclassified error", "path", r.URL.Path, "err", err)
		be = booking.ErrStoreFailure
	}

	status := http.StatusInternalServerError
	switch be.Kind {
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindValidation, booking.KindInThePast, booking.KindSlotUnavailable:
		status = http.StatusBadRequest
	case booking.KindSlotAlreadyTaken:
		status = http.StatusConflict
	}
	httpx.WriteJSON(w, status, bookingErrorBody{
		Detail:    be.Reason,
		Kind:      be.Kind,
		RequestID: httpx.RequestIDFromContext(r.Context()),
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "path", r.URL.Path, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, msg)
}
