package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HadjievK/BoKe/services/booking-service/internal/calendar"
	"github.com/HadjievK/BoKe/services/booking-service/internal/model"
)

const providerID = "prov-1"

// 2025-06-02 is a Monday.
var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, now time.Time) (*Service, *fakeCatalog, *fakeStore) {
	t.Helper()
	catalog := &fakeCatalog{
		week: model.WeeklyAvailability{{Weekday: 0, StartMinute: 9 * 60, EndMinute: 17 * 60, SlotMinutes: 30}},
		services: map[string]model.Service{
			"svc-haircut": {ID: "svc-haircut", ProviderID: providerID, Name: "Haircut", DurationMinutes: 30, Price: decimal.RequireFromString("25.00"), IsActive: true},
			"svc-color":   {ID: "svc-color", ProviderID: providerID, Name: "Color", DurationMinutes: 60, Price: decimal.RequireFromString("60.00"), IsActive: true},
			"svc-retired": {ID: "svc-retired", ProviderID: providerID, Name: "Retired", DurationMinutes: 30},
		},
	}
	store := newFakeStore()
	svc := NewService(catalog, store, discardLogger(), Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	return svc, catalog, store
}

func bookAt(t *testing.T, hhmm, serviceID, email string) BookRequest {
	t.Helper()
	start, err := calendar.ParseClock(hhmm)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", hhmm, err)
	}
	return BookRequest{
		ServiceID:   serviceID,
		Date:        monday,
		StartMinute: start,
		Customer:    model.Customer{Email: email, FirstName: "Ana", LastName: "Petrova"},
	}
}

// earlyMonday is before opening on the booking day.
var earlyMonday = monday.Add(7 * time.Hour)

func TestBook_ConfirmsWithServiceSnapshot(t *testing.T) {
	svc, _, store := newTestService(t, earlyMonday)

	conf, err := svc.Book(context.Background(), providerID, bookAt(t, "10:00", "svc-color", "ana@example.com"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if conf.Service.Name != "Color" || conf.Service.DurationMinutes != 60 || !conf.Service.Price.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected snapshot %+v", conf.Service)
	}
	if conf.Appointment.DurationMinutes != 60 || conf.Appointment.ServiceName != "Color" {
		t.Fatalf("appointment must carry the snapshot, got %+v", conf.Appointment)
	}
	if conf.Customer.ID == "" || conf.Customer.Email != "ana@example.com" {
		t.Fatalf("unexpected customer %+v", conf.Customer)
	}
	if len(store.active()) != 1 {
		t.Fatalf("expected one stored appointment, got %d", len(store.active()))
	}
}

func TestBook_RequiresService(t *testing.T) {
	svc, _, store := newTestService(t, earlyMonday)

	_, err := svc.Book(context.Background(), providerID, bookAt(t, "16:30", "", "ana@example.com"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found without a service, got %v", err)
	}
	var be *Error
	if !errors.As(err, &be) || be.Reason != "Service not found or inactive" {
		t.Fatalf("unexpected reason %v", err)
	}
	if len(store.active()) != 0 {
		t.Fatal("rejected booking must not be stored")
	}
}

func TestBook_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		now    time.Time
		req    func(t *testing.T) BookRequest
		want   error
		reason string
	}{
		{
			name:   "unknown service",
			now:    earlyMonday,
			req:    func(t *testing.T) BookRequest { return bookAt(t, "10:00", "svc-missing", "a@example.com") },
			want:   ErrNotFound,
			reason: "Service not found or inactive",
		},
		{
			name:   "inactive service",
			now:    earlyMonday,
			req:    func(t *testing.T) BookRequest { return bookAt(t, "10:00", "svc-retired", "a@example.com") },
			want:   ErrNotFound,
			reason: "Service not found or inactive",
		},
		{
			name:   "slot already started",
			now:    monday.Add(14*time.Hour + 10*time.Minute),
			req:    func(t *testing.T) BookRequest { return bookAt(t, "14:00", "svc-haircut", "a@example.com") },
			want:   ErrInThePast,
			reason: "Cannot book appointments in the past",
		},
		{
			name:   "slot starting right now",
			now:    monday.Add(14 * time.Hour),
			req:    func(t *testing.T) BookRequest { return bookAt(t, "14:00", "svc-haircut", "a@example.com") },
			want:   ErrInThePast,
			reason: "Cannot book appointments in the past",
		},
		{
			name:   "before opening",
			now:    monday.Add(6 * time.Hour),
			req:    func(t *testing.T) BookRequest { return bookAt(t, "08:30", "svc-haircut", "a@example.com") },
			want:   ErrSlotUnavailable,
			reason: "This time slot is not available",
		},
		{
			name:   "runs past closing",
			now:    earlyMonday,
			req:    func(t *testing.T) BookRequest { return bookAt(t, "16:30", "svc-color", "a@example.com") },
			want:   ErrSlotUnavailable,
			reason: "This time slot is not available",
		},
		{
			name: "closed day",
			now:  earlyMonday,
			req: func(t *testing.T) BookRequest {
				r := bookAt(t, "10:00", "svc-haircut", "a@example.com")
				r.Date = monday.AddDate(0, 0, 1)
				return r
			},
			want:   ErrSlotUnavailable,
			reason: "This time slot is not available",
		},
		{
			name: "missing customer email",
			now:  earlyMonday,
			req: func(t *testing.T) BookRequest {
				return bookAt(t, "10:00", "svc-haircut", "")
			},
			want:   ErrValidation,
			reason: "customer email is required",
		},
	}
	for _, tc := range cases {
		svc, _, store := newTestService(t, tc.now)
		_, err := svc.Book(context.Background(), providerID, tc.req(t))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		var be *Error
		if !errors.As(err, &be) || be.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %v", tc.name, tc.reason, err)
		}
		if len(store.active()) != 0 {
			t.Fatalf("%s: rejected booking must not be stored", tc.name)
		}
	}
}

func TestBook_OverlapAndBackToBack(t *testing.T) {
	svc, _, _ := newTestService(t, earlyMonday)
	ctx := context.Background()

	if _, err := svc.Book(ctx, providerID, bookAt(t, "10:00", "svc-haircut", "a@example.com")); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := svc.Book(ctx, providerID, bookAt(t, "09:30", "svc-color", "b@example.com")); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected 09:30 for 60 minutes to overlap 10:00, got %v", err)
	}
	if _, err := svc.Book(ctx, providerID, bookAt(t, "09:30", "svc-haircut", "b@example.com")); err != nil {
		t.Fatalf("expected 09:30 for 30 minutes to end exactly at 10:00, got %v", err)
	}
	if _, err := svc.Book(ctx, providerID, bookAt(t, "10:30", "svc-haircut", "c@example.com")); err != nil {
		t.Fatalf("expected 10:30 to start exactly when 10:00 ends, got %v", err)
	}
}

func TestBook_ConcurrentSameSlotExactlyOneWins(t *testing.T) {
	svc, _, store := newTestService(t, earlyMonday)
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	store.listBarrier = barrier

	reqs := []BookRequest{
		bookAt(t, "11:00", "svc-haircut", "a@example.com"),
		bookAt(t, "11:00", "svc-haircut", "b@example.com"),
	}
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), providerID, reqs[i])
		}(i)
	}
	wg.Wait()

	var won, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotAlreadyTaken):
			taken++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if won != 1 || taken != 1 {
		t.Fatalf("expected one winner and one SlotAlreadyTaken, got %d and %d", won, taken)
	}
	if len(store.active()) != 1 {
		t.Fatalf("expected a single stored appointment, got %d", len(store.active()))
	}
}

func TestBook_ConcurrentOverlappingStartsExactlyOneWins(t *testing.T) {
	svc, _, store := newTestService(t, earlyMonday)
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	store.listBarrier = barrier

	reqs := []BookRequest{
		bookAt(t, "11:00", "svc-color", "a@example.com"),
		bookAt(t, "11:30", "svc-haircut", "b@example.com"),
	}
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), providerID, reqs[i])
		}(i)
	}
	wg.Wait()

	if (errs[0] == nil) == (errs[1] == nil) {
		t.Fatalf("expected exactly one success, got %v and %v", errs[0], errs[1])
	}
	appts := store.active()
	for i := range appts {
		for j := i + 1; j < len(appts); j++ {
			if calendar.Overlaps(appts[i].StartMinute, appts[i].DurationMinutes, appts[j].StartMinute, appts[j].DurationMinutes) {
				t.Fatalf("stored appointments overlap: %+v %+v", appts[i], appts[j])
			}
		}
	}
}

func TestBook_StoreFailureIsGeneric(t *testing.T) {
	svc, _, store := newTestService(t, earlyMonday)
	store.insertErr = errors.New("canceling statement due to statement timeout")

	_, err := svc.Book(context.Background(), providerID, bookAt(t, "10:00", "svc-haircut", "a@example.com"))
	if !errors.Is(err, ErrStoreFailure) {
		t.Fatalf("expected store failure, got %v", err)
	}
	var be *Error
	if !errors.As(err, &be) || be.Reason != "Failed to create appointment" {
		t.Fatalf("expected generic reason, got %v", err)
	}
	if !errors.Is(err, store.insertErr) {
		t.Fatal("expected cause to stay reachable for logging")
	}
}

func TestBook_IdempotencyKeyReplaysOriginal(t *testing.T) {
	svc, _, store := newTestService(t, earlyMonday)
	ctx := context.Background()

	req := bookAt(t, "10:00", "svc-haircut", "a@example.com")
	req.IdempotencyKey = "key-1"
	first, err := svc.Book(ctx, providerID, req)
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	second, err := svc.Book(ctx, providerID, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.Appointment.ID != first.Appointment.ID || second.Service.Name != "Haircut" {
		t.Fatalf("expected replay of %s, got %+v", first.Appointment.ID, second)
	}
	if len(store.active()) != 1 {
		t.Fatalf("expected one stored appointment, got %d", len(store.active()))
	}
}

func TestBook_IdempotencyKeyCommittedDuringRetry(t *testing.T) {
	_, catalog, inner := newTestService(t, earlyMonday)
	store := &racingStore{fakeStore: inner}
	svc := NewService(catalog, store, discardLogger(), Options{Location: time.UTC, Now: func() time.Time { return earlyMonday }})
	ctx := context.Background()

	req := bookAt(t, "10:00", "svc-haircut", "a@example.com")
	req.IdempotencyKey = "key-1"
	var first Confirmation
	store.afterMiss = func() {
		var err error
		if first, err = svc.Book(ctx, providerID, req); err != nil {
			t.Errorf("first attempt: %v", err)
		}
	}

	retry, err := svc.Book(ctx, providerID, req)
	if err != nil {
		t.Fatalf("expected the retry to replay, got %v", err)
	}
	if !retry.Replayed || retry.Appointment.ID != first.Appointment.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Appointment.ID, retry)
	}
	if len(inner.active()) != 1 {
		t.Fatalf("expected one stored appointment, got %d", len(inner.active()))
	}
}

func TestBook_InsertReplayIsReported(t *testing.T) {
	svc, catalog, inner := newTestService(t, earlyMonday)
	ctx := context.Background()

	req := bookAt(t, "10:00", "svc-haircut", "a@example.com")
	req.IdempotencyKey = "key-1"
	first, err := svc.Book(ctx, providerID, req)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}

	stale := NewService(catalog, &racingStore{fakeStore: inner, stale: true}, discardLogger(), Options{
		Location: time.UTC,
		Now:      func() time.Time { return earlyMonday },
	})
	retry, err := stale.Book(ctx, providerID, req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !retry.Replayed || retry.Appointment.ID != first.Appointment.ID || retry.Service.Name != "Haircut" {
		t.Fatalf("expected replay of %s, got %+v", first.Appointment.ID, retry)
	}
}

func TestBook_OtherKeyStillRejected(t *testing.T) {
	svc, _, _ := newTestService(t, earlyMonday)
	ctx := context.Background()

	req := bookAt(t, "10:00", "svc-haircut", "a@example.com")
	req.IdempotencyKey = "key-1"
	if _, err := svc.Book(ctx, providerID, req); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	req.IdempotencyKey = "key-2"
	if _, err := svc.Book(ctx, providerID, req); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected a different key to be rejected, got %v", err)
	}
}

func TestAvailability(t *testing.T) {
	svc, _, _ := newTestService(t, earlyMonday)
	ctx := context.Background()

	if _, err := svc.Book(ctx, providerID, bookAt(t, "10:00", "svc-haircut", "a@example.com")); err != nil {
		t.Fatalf("Book: %v", err)
	}

	day, err := svc.Availability(ctx, providerID, monday, "")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if day.DurationMinutes != 30 || len(day.Slots) != 17 {
		t.Fatalf("expected 17 default slots, got %d (duration %d)", len(day.Slots), day.DurationMinutes)
	}

	day, err = svc.Availability(ctx, providerID, monday, "svc-color")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	unavailable := map[string]bool{}
	for _, s := range day.Slots {
		if !s.Available {
			unavailable[calendar.FormatClock(s.Start)] = true
		}
	}
	if len(unavailable) != 2 || !unavailable["09:30"] || !unavailable["10:00"] {
		t.Fatalf("expected 09:30 and 10:00 unavailable for 60 minutes, got %v", unavailable)
	}

	if _, err := svc.Availability(ctx, providerID, monday, "svc-retired"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for inactive service, got %v", err)
	}
}

func TestAvailability_SameInputsSameResult(t *testing.T) {
	svc, _, _ := newTestService(t, monday.Add(12*time.Hour+5*time.Minute))
	ctx := context.Background()
	first, err := svc.Availability(ctx, providerID, monday, "svc-haircut")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	second, _ := svc.Availability(ctx, providerID, monday, "svc-haircut")
	if len(first.Slots) != len(second.Slots) {
		t.Fatalf("expected identical results")
	}
	for i := range first.Slots {
		if first.Slots[i] != second.Slots[i] {
			t.Fatalf("slot %d differs: %+v vs %+v", i, first.Slots[i], second.Slots[i])
		}
	}
	if calendar.FormatClock(first.Slots[0].Start) != "12:30" {
		t.Fatalf("expected past slots dropped, first is %s", calendar.FormatClock(first.Slots[0].Start))
	}
}

func TestCancel_FreesSlot(t *testing.T) {
	svc, _, _ := newTestService(t, earlyMonday)
	ctx := context.Background()

	conf, err := svc.Book(ctx, providerID, bookAt(t, "11:00", "svc-haircut", "a@example.com"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.Book(ctx, providerID, bookAt(t, "11:00", "svc-haircut", "b@example.com")); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected slot to be taken, got %v", err)
	}

	cancelled, err := svc.Cancel(ctx, providerID, conf.Appointment.ID, " client called ")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelReason != "client called" {
		t.Fatalf("unexpected cancelled appointment %+v", cancelled)
	}
	if _, err := svc.Cancel(ctx, providerID, conf.Appointment.ID, ""); err != nil {
		t.Fatalf("second cancel must succeed, got %v", err)
	}
	if _, err := svc.Book(ctx, providerID, bookAt(t, "11:00", "svc-haircut", "b@example.com")); err != nil {
		t.Fatalf("expected cancelled slot to be bookable again, got %v", err)
	}
	if _, err := svc.Cancel(ctx, providerID, "appt-404", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := notFound("Provider not found")
	if !errors.Is(err, ErrNotFound) || errors.Is(err, ErrSlotUnavailable) {
		t.Fatal("errors.Is must compare kinds")
	}
	if kindOf(errors.New("plain")) != KindStoreFailure {
		t.Fatal("unclassified errors are store failures")
	}
}
