package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HadjievK/BoKe/libs/httpx"
	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
	"github.com/HadjievK/BoKe/services/booking-service/internal/storage"
)

// Appointments serves GET /api/v1/appointments?start_date=&end_date=. Both
// bounds are inclusive and default to today.
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	provider, ok := h.currentProvider(w, r)
	if !ok {
		return
	}
	providerID := provider.ID

	q := r.URL.Query()
	from, ok := h.optionalDate(w, q.Get("start_date"), "start_date")
	if !ok {
		return
	}
	to, ok := h.optionalDate(w, q.Get("end_date"), "end_date")
	if !ok {
		return
	}

	items, err := h.dashboard.Appointments(r.Context(), providerID, from, to)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	out := make([]appointmentItem, 0, len(items))
	for _, it := range items {
		item := toAppointmentItem(it.Appointment)
		cust := toCustomerItem(it.Customer)
		item.Customer = &cust
		out = append(out, item)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required,uuid"`
	Reason        string `json:"reason" validate:"max=500"`
}

// Cancel serves POST /api/v1/appointments/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	provider, ok := h.currentProvider(w, r)
	if !ok {
		return
	}
	providerID := provider.ID
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.bookings.Cancel(r.Context(), providerID, req.AppointmentID, req.Reason)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// Stats serves GET /api/v1/dashboard/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	provider, ok := h.currentProvider(w, r)
	if !ok {
		return
	}
	providerID := provider.ID
	stats, err := h.dashboard.Stats(r.Context(), providerID)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toStatsResponse(stats))
}

// Customers serves GET /api/v1/customers.
func (h *Handler) Customers(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	provider, ok := h.currentProvider(w, r)
	if !ok {
		return
	}
	providerID := provider.ID
	customers, err := h.dashboard.Customers(r.Context(), providerID)
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}
	out := make([]customerSummaryItem, 0, len(customers))
	for _, c := range customers {
		out = append(out, customerSummaryItem{
			customerItem: toCustomerItem(c.Customer),
			Appointments: c.Appointments,
			LastVisit:    calendar.FormatDate(c.LastVisit),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type availabilityRequest struct {
	Availability []weeklyHoursItem `json:"availability" validate:"max=7,dive"`
}

// Availability serves GET and PUT /api/v1/provider/availability. PUT
// replaces the whole week; days left out are closed.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	provider, ok := h.currentProvider(w, r)
	if !ok {
		return
	}
	providerID := provider.ID

	if r.Method == http.MethodGet {
		week, err := h.catalog.WeeklyAvailability(r.Context(), providerID)
		if err != nil {
			h.internalError(w, r, "failed to load availability", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, availabilityRequest{Availability: toWeeklyHoursItems(week)})
		return
	}

	var req availabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	week, msg := weekFromItems(req.Availability)
	if msg != "" {
		httpx.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if err := h.catalog.ReplaceWeeklyAvailability(r.Context(), providerID, week); err != nil {
		h.internalError(w, r, "failed to update availability", err)
		return
	}
	h.logger.InfoContext(r.Context(), "availability updated", "provider_id", providerID, "days", len(week))
	w.WriteHeader(http.StatusNoContent)
}

// weekFromItems converts validated items, rejecting inverted windows and
// repeated days.
func weekFromItems(items []weeklyHoursItem) (model.WeeklyAvailability, string) {
	seen := map[int]bool{}
	week := make(model.WeeklyAvailability, 0, len(items))
	for _, it := range items {
		if seen[it.Day] {
			return nil, "availability lists a day more than once"
		}
		seen[it.Day] = true

		start, _ := calendar.ParseClock(it.Start)
		end, _ := calendar.ParseClock(it.End)
		if end <= start {
			return nil, "availability end must be after start"
		}
		week = append(week, model.WeeklyHours{Weekday: it.Day, StartMinute: start, EndMinute: end, SlotMinutes: it.SlotDuration})
	}
	return week, ""
}

type createServiceRequest struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Duration    int             `json:"duration" validate:"min=5,max=480"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description" validate:"max=500"`
	IsActive    *bool           `json:"is_active"`
}

// Services serves GET, POST and PATCH /api/v1/provider/services.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPatch) {
		return
	}
	provider, ok := h.currentProvider(w, r)
	if !ok {
		return
	}
	providerID := provider.ID

	if r.Method == http.MethodGet {
		services, err := h.catalog.ListServices(r.Context(), providerID, false)
		if err != nil {
			h.internalError(w, r, "failed to list services", err)
			return
		}
		out := make([]serviceItem, 0, len(services))
		for _, s := range services {
			out = append(out, toServiceItem(s))
		}
		httpx.WriteJSON(w, http.StatusOK, out)
		return
	}
	if r.Method == http.MethodPatch {
		h.updateService(w, r, providerID)
		return
	}

	var req createServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Price.IsNegative() {
		httpx.WriteError(w, http.StatusBadRequest, "price must not be negative")
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	svc, err := h.catalog.CreateService(r.Context(), model.Service{
		ProviderID:      providerID,
		Name:            strings.TrimSpace(req.Name),
		DurationMinutes: req.Duration,
		Price:           req.Price.Round(2),
		Description:     strings.TrimSpace(req.Description),
		IsActive:        isActive,
	})
	if err != nil {
		h.internalError(w, r, "failed to create service", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toServiceItem(svc))
}

type updateServiceRequest struct {
	ID          string           `json:"id" validate:"required,uuid"`
	Name        *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Duration    *int             `json:"duration" validate:"omitempty,min=5,max=480"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	IsActive    *bool            `json:"is_active"`
}

// updateService edits one service. Deactivating it hides it from booking
// without touching existing appointments.
func (h *Handler) updateService(w http.ResponseWriter, r *http.Request, providerID string) {
	var req updateServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch := storage.ServicePatch{
		Name:            trimmed(req.Name),
		DurationMinutes: req.Duration,
		Description:     trimmed(req.Description),
		IsActive:        req.IsActive,
	}
	if patch.Name != nil && *patch.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			httpx.WriteError(w, http.StatusBadRequest, "price must not be negative")
			return
		}
		price := req.Price.Round(2)
		patch.Price = &price
	}

	svc, err := h.catalog.UpdateService(r.Context(), providerID, req.ID, patch)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "Service not found")
			return
		}
		h.internalError(w, r, "failed to update service", err)
		return
	}
	h.logger.InfoContext(r.Context(), "service updated", "provider_id", providerID, "service_id", svc.ID, "active", svc.IsActive)
	httpx.WriteJSON(w, http.StatusOK, toServiceItem(svc))
}

type updateProfileRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=100"`
	BusinessName *string `json:"business_name" validate:"omitempty,min=1,max=100"`
	ServiceType  *string `json:"service_type" validate:"omitempty,max=50"`
	Phone        *string `json:"phone" validate:"omitempty,max=32"`
	Location     *string `json:"location" validate:"omitempty,max=200"`
	Bio          *string `json:"bio" validate:"omitempty,max=1000"`
}

// Profile serves GET and PATCH /api/v1/provider/profile. The slug and email
// are fixed at registration.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet, http.MethodPatch) {
		return
	}
	provider, ok := h.currentProvider(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPatch {
		var req updateProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patch := storage.ProviderPatch{
			Name:         trimmed(req.Name),
			BusinessName: trimmed(req.BusinessName),
			ServiceType:  trimmed(req.ServiceType),
			Phone:        trimmed(req.Phone),
			Location:     trimmed(req.Location),
			Bio:          trimmed(req.Bio),
		}
		if (patch.Name != nil && *patch.Name == "") || (patch.BusinessName != nil && *patch.BusinessName == "") {
			httpx.WriteError(w, http.StatusBadRequest, "name and business_name must not be blank")
			return
		}
		var err error
		if provider, err = h.catalog.UpdateProvider(r.Context(), provider.ID, patch); err != nil {
			h.internalError(w, r, "failed to update profile", err)
			return
		}
		h.logger.InfoContext(r.Context(), "profile updated", "provider_id", provider.ID)
	}

	services, err := h.catalog.ListServices(r.Context(), provider.ID, false)
	if err != nil {
		h.internalError(w, r, "failed to list services", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProviderItem(provider, services))
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func (h *Handler) optionalDate(w http.ResponseWriter, raw, field string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	d, err := calendar.ParseDate(raw, h.bookings.Location())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, field+" must be a date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return d, true
}
