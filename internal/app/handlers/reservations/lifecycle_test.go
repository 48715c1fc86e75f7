package reservations_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/reservations"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/availability"
	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
	chargepay "bookingengine/internal/infra/payments"
	"bookingengine/internal/infra/storage/memory"
)

const (
	listingID = listings.ListingID("listing-1")
	hostID    = "host-1"
	guestID   = "guest-1"
)

type harness struct {
	store  *memory.Store
	create *reservations.CreateHandler
	accept *reservations.AcceptHandler
	reject *reservations.RejectHandler
	update *reservations.UpdateHandler
	cancel *reservations.CancelHandler
	delete *reservations.DeleteHandler
	get    *reservations.GetHandler
	hist   *reservations.HistoryHandler
}

func newHarness(t *testing.T, charger chargepay.Recorder) *harness {
	t.Helper()
	store := memory.NewStore()
	return newHarnessOn(t, store, store, charger, nil)
}

func newHarnessOn(t *testing.T, store *memory.Store, factory uow.Factory, charger chargepay.Recorder, logger *slog.Logger) *harness {
	t.Helper()
	catalog := memory.NewCatalog(listings.Listing{
		ID:        listingID,
		Host:      hostID,
		Title:     "Harbour loft",
		Capacity:  capacity.Limits{Adults: 2, Children: 2},
		MaxGuests: 3,
	})
	deps := reservations.Deps{
		UoW:     factory,
		Catalog: catalog,
		Now:     func() time.Time { return time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC) },
		Logger:  logger,
		Mirror:  true,
	}
	return &harness{
		store:  store,
		create: &reservations.CreateHandler{Deps: deps, Charger: charger, Currency: "EUR"},
		accept: &reservations.AcceptHandler{Deps: deps},
		reject: &reservations.RejectHandler{Deps: deps},
		update: &reservations.UpdateHandler{Deps: deps},
		cancel: &reservations.CancelHandler{Deps: deps},
		delete: &reservations.DeleteHandler{Deps: deps},
		get:    &reservations.GetHandler{Deps: deps},
		hist:   &reservations.HistoryHandler{Deps: deps},
	}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := daterange.ParseDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func (h *harness) book(t *testing.T, requester, in, out string, instant bool) (*dto.Reservation, error) {
	t.Helper()
	return h.create.Handle(context.Background(), reservations.CreateCommand{
		ListingID:   string(listingID),
		RequesterID: requester,
		CheckIn:     day(t, in),
		CheckOut:    day(t, out),
		Guests:      capacity.Guests{Adults: 2},
		Instant:     instant,
		AmountCents: 45000,
	})
}

func (h *harness) mirrors(t *testing.T) []*inventory.Entry {
	t.Helper()
	var out []*inventory.Entry
	err := uow.Run(context.Background(), h.store, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		out, err = unit.Ledger().Mirrors(ctx, listingID)
		return err
	})
	if err != nil {
		t.Fatalf("mirrors: %v", err)
	}
	return out
}

func TestAcceptedStayBlocksNestedRequest(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	ctx := context.Background()

	first, err := h.book(t, guestID, "2025-03-10", "2025-03-15", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Status != string(reservation.StatusPending) || first.Nights != 5 {
		t.Fatalf("unexpected reservation: %+v", first)
	}
	accepted, err := h.accept.Handle(ctx, reservations.AcceptCommand{ReservationID: first.ID, HostID: hostID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != string(reservation.StatusAccepted) {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}
	if m := h.mirrors(t); len(m) != 1 || m[0].ReservationID != first.ID || m[0].Status != inventory.StatusFullyBooked {
		t.Fatalf("expected one fully_booked mirror, got %+v", m)
	}

	_, err = h.book(t, "guest-2", "2025-03-12", "2025-03-14", false)
	if !errors.Is(err, availability.ErrDatesUnavailable) {
		t.Fatalf("expected DATES_UNAVAILABLE, got %v", err)
	}
	if failure.KindOf(err) != failure.KindConflict {
		t.Fatalf("expected conflict kind, got %s", failure.KindOf(err))
	}
}

func TestAcceptTwiceIsAlreadyProcessed(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	ctx := context.Background()
	r, err := h.book(t, guestID, "2025-03-10", "2025-03-15", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := h.accept.Handle(ctx, reservations.AcceptCommand{ReservationID: r.ID, HostID: hostID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := h.accept.Handle(ctx, reservations.AcceptCommand{ReservationID: r.ID, HostID: hostID}); !errors.Is(err, reservation.ErrAlreadyProcessed) {
		t.Fatalf("expected ALREADY_PROCESSED, got %v", err)
	}
	after, err := h.get.Handle(ctx, reservations.GetQuery{ReservationID: r.ID, ViewerID: guestID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !after.UpdatedAt.Equal(first.UpdatedAt) || after.Status != first.Status {
		t.Fatalf("second accept changed state: %+v", after)
	}
	if _, err := h.reject.Handle(ctx, reservations.RejectCommand{ReservationID: r.ID, HostID: hostID, Reason: "late"}); !errors.Is(err, reservation.ErrAlreadyProcessed) {
		t.Fatalf("expected reject after accept to fail, got %v", err)
	}
}

func TestBackToBackStaysAreAllowed(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	if _, err := h.book(t, guestID, "2025-03-10", "2025-03-15", true); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := h.book(t, "guest-2", "2025-03-15", "2025-03-18", true); err != nil {
		t.Fatalf("back-to-back stay rejected: %v", err)
	}
	if _, err := h.book(t, "guest-3", "2025-03-05", "2025-03-10", true); err != nil {
		t.Fatalf("stay ending on check-in rejected: %v", err)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	ctx := context.Background()

	for _, tc := range []struct{ in, out string }{
		{"2025-03-10", "2025-03-10"},
		{"2025-03-10", "2025-03-09"},
	} {
		_, err := h.book(t, guestID, tc.in, tc.out, false)
		if !errors.Is(err, reservation.ErrInvalidDates) {
			t.Fatalf("%s..%s: expected INVALID_DATES, got %v", tc.in, tc.out, err)
		}
	}

	_, err := h.create.Handle(ctx, reservations.CreateCommand{
		ListingID:   string(listingID),
		RequesterID: guestID,
		CheckIn:     day(t, "2025-03-10"),
		CheckOut:    day(t, "2025-03-12"),
		Guests:      capacity.Guests{Adults: 3},
	})
	var capErr *capacity.Error
	if !errors.As(err, &capErr) || capErr.Reason() != "ADULTS_EXCEEDED" {
		t.Fatalf("expected ADULTS_EXCEEDED, got %v", err)
	}
	if !errors.Is(err, capacity.ErrCapacityExceeded) {
		t.Fatalf("expected CAPACITY_EXCEEDED, got %v", err)
	}

	_, err = h.create.Handle(ctx, reservations.CreateCommand{
		ListingID:   "unknown",
		RequesterID: guestID,
		CheckIn:     day(t, "2025-03-10"),
		CheckOut:    day(t, "2025-03-12"),
		Guests:      capacity.Guests{Adults: 1},
	})
	if !errors.Is(err, listings.ErrListingNotFound) {
		t.Fatalf("expected LISTING_NOT_FOUND, got %v", err)
	}
}

func TestConcurrentInstantCreatesHaveOneWinner(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.create.Handle(context.Background(), reservations.CreateCommand{
				ListingID:   string(listingID),
				RequesterID: guestID,
				CheckIn:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
				CheckOut:    time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC),
				Guests:      capacity.Guests{Adults: 1},
				Instant:     true,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case failure.KindOf(err) == failure.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 || conflicts != workers-1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", succeeded, conflicts)
	}
}

func TestConcurrentAcceptsOfOverlappingRequests(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	a, err := h.book(t, guestID, "2025-06-01", "2025-06-05", false)
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := h.book(t, "guest-2", "2025-06-03", "2025-06-08", false)
	if err != nil {
		t.Fatalf("pending requests must not block each other: %v", err)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.accept.Handle(context.Background(), reservations.AcceptCommand{ReservationID: id, HostID: hostID})
		}(i, id)
	}
	wg.Wait()

	if (errs[0] == nil) == (errs[1] == nil) {
		t.Fatalf("expected exactly one accept to win: %v / %v", errs[0], errs[1])
	}
	for _, err := range errs {
		if err != nil && !errors.Is(err, availability.ErrDatesUnavailable) {
			t.Fatalf("expected DATES_UNAVAILABLE for the loser, got %v", err)
		}
	}
}

func TestDeclinedChargeRollsBackEverything(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{MaxAmount: 10000})
	_, err := h.book(t, guestID, "2025-03-10", "2025-03-15", true)
	if !errors.Is(err, payments.ErrChargeDeclined) {
		t.Fatalf("expected PAYMENT_DECLINED, got %v", err)
	}

	err = uow.Run(context.Background(), h.store, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		list, err := unit.Reservations().List(ctx, reservation.Filter{ListingID: listingID})
		if err != nil {
			return err
		}
		if len(list) != 0 {
			t.Errorf("expected no reservations, got %d", len(list))
		}
		entries, err := unit.Ledger().List(ctx, listingID, nil)
		if err != nil {
			return err
		}
		if len(entries) != 0 {
			t.Errorf("expected no ledger entries, got %d", len(entries))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if got := len(h.store.PendingOutbox()); got != 0 {
		t.Fatalf("expected no events, got %d", got)
	}
}

func TestOnlyTheRequesterMayUpdate(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	ctx := context.Background()
	r, err := h.book(t, guestID, "2025-03-10", "2025-03-15", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	msg := "late arrival"
	_, err = h.update.Handle(ctx, reservations.UpdateCommand{ReservationID: r.ID, RequesterID: "intruder", Patch: reservation.Patch{Message: &msg}})
	if !errors.Is(err, reservation.ErrForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	updated, err := h.update.Handle(ctx, reservations.UpdateCommand{ReservationID: r.ID, RequesterID: guestID, Patch: reservation.Patch{Message: &msg}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Message != msg {
		t.Fatalf("message not applied: %+v", updated)
	}
	if _, err := h.update.Handle(ctx, reservations.UpdateCommand{ReservationID: r.ID, RequesterID: guestID}); !errors.Is(err, reservations.ErrEmptyPatch) {
		t.Fatalf("expected EMPTY_PATCH, got %v", err)
	}
}

func TestUpdateDatesMovesMirrorAndChecksOthers(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	ctx := context.Background()
	mine, err := h.book(t, guestID, "2025-03-10", "2025-03-15", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.book(t, "guest-2", "2025-03-20", "2025-03-25", true); err != nil {
		t.Fatalf("create other: %v", err)
	}

	in, out := day(t, "2025-03-12"), day(t, "2025-03-17")
	moved, err := h.update.Handle(ctx, reservations.UpdateCommand{ReservationID: mine.ID, RequesterID: guestID, Patch: reservation.Patch{CheckIn: &in, CheckOut: &out}})
	if err != nil {
		t.Fatalf("overlap with own window must be allowed: %v", err)
	}
	if moved.CheckIn != "2025-03-12" || moved.CheckOut != "2025-03-17" {
		t.Fatalf("dates not applied: %+v", moved)
	}
	for _, m := range h.mirrors(t) {
		if m.ReservationID == mine.ID && !m.Range.CheckIn.Equal(in) {
			t.Fatalf("mirror not moved: %+v", m)
		}
	}

	clashOut := day(t, "2025-03-21")
	_, err = h.update.Handle(ctx, reservations.UpdateCommand{ReservationID: mine.ID, RequesterID: guestID, Patch: reservation.Patch{CheckOut: &clashOut}})
	if !errors.Is(err, availability.ErrDatesUnavailable) {
		t.Fatalf("expected DATES_UNAVAILABLE, got %v", err)
	}
}

func TestCancelFreesDates(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	ctx := context.Background()
	r, err := h.book(t, guestID, "2025-03-10", "2025-03-15", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.cancel.Handle(ctx, reservations.CancelCommand{ReservationID: r.ID, RequesterID: hostID}); !errors.Is(err, reservation.ErrForbidden) {
		t.Fatalf("host may not cancel on the guest's behalf: %v", err)
	}
	cancelled, err := h.cancel.Handle(ctx, reservations.CancelCommand{ReservationID: r.ID, RequesterID: guestID, Reason: "plans changed"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != string(reservation.StatusCancelled) || cancelled.CancellationReason != "plans changed" {
		t.Fatalf("unexpected cancel result: %+v", cancelled)
	}
	if m := h.mirrors(t); len(m) != 0 {
		t.Fatalf("mirror not released: %+v", m)
	}
	if _, err := h.book(t, "guest-2", "2025-03-11", "2025-03-13", true); err != nil {
		t.Fatalf("dates should be free after cancel: %v", err)
	}
}

func TestDeleteReleasesLedgerEntry(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	ctx := context.Background()
	r, err := h.book(t, guestID, "2025-03-10", "2025-03-15", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.delete.Handle(ctx, reservations.DeleteCommand{ReservationID: r.ID, Actor: "stranger"}); !errors.Is(err, reservation.ErrForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	res, err := h.delete.Handle(ctx, reservations.DeleteCommand{ReservationID: r.ID, Actor: hostID})
	if err != nil || !res.Deleted {
		t.Fatalf("delete: %+v %v", res, err)
	}
	if m := h.mirrors(t); len(m) != 0 {
		t.Fatalf("mirror left behind: %+v", m)
	}
	if _, err := h.get.Handle(ctx, reservations.GetQuery{ReservationID: r.ID, Admin: true}); !errors.Is(err, reservation.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	var names []string
	for _, rec := range h.store.PendingOutbox() {
		names = append(names, rec.Name)
	}
	if len(names) == 0 || names[len(names)-1] != reservation.EventDeleted {
		t.Fatalf("expected deleted event last, got %v", names)
	}
}

// brokenLedger fails every mirror release and leaves the rest of the unit alone.
type brokenLedger struct{ inventory.Repository }

func (brokenLedger) DeleteByReservation(context.Context, string) (int, error) {
	return 0, errors.New("ledger offline")
}

type brokenLedgerUnit struct{ uow.UnitOfWork }

func (u brokenLedgerUnit) Ledger() inventory.Repository {
	return brokenLedger{u.UnitOfWork.Ledger()}
}

type brokenLedgerFactory struct{ next uow.Factory }

func (f brokenLedgerFactory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	unit, err := f.next.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	return brokenLedgerUnit{unit}, nil
}

func newBrokenLedgerHarness(t *testing.T) (*harness, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := memory.NewStore()
	return newHarnessOn(t, store, brokenLedgerFactory{next: store}, chargepay.Recorder{}, logger), &logs
}

func (h *harness) outboxNames() []string {
	var names []string
	for _, rec := range h.store.PendingOutbox() {
		names = append(names, rec.Name)
	}
	return names
}

func TestDeleteSucceedsWhenLedgerReleaseFails(t *testing.T) {
	h, logs := newBrokenLedgerHarness(t)
	ctx := context.Background()
	r, err := h.book(t, guestID, "2025-03-10", "2025-03-15", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := h.delete.Handle(ctx, reservations.DeleteCommand{ReservationID: r.ID, Actor: guestID})
	if err != nil || !res.Deleted {
		t.Fatalf("delete must proceed: %+v %v", res, err)
	}
	if _, err := h.get.Handle(ctx, reservations.GetQuery{ReservationID: r.ID, Admin: true}); !errors.Is(err, reservation.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if names := h.outboxNames(); !slices.Contains(names, reservation.EventLedgerReleaseFailed) || !slices.Contains(names, reservation.EventDeleted) {
		t.Fatalf("outbox = %v", names)
	}
	if m := h.mirrors(t); len(m) != 1 {
		t.Fatalf("the stale mirror stays for reconciliation, got %+v", m)
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "ledger mirror release failed") {
		t.Fatalf("missing warn log: %s", logs.String())
	}
}

func TestCancelSucceedsWhenLedgerReleaseFails(t *testing.T) {
	h, logs := newBrokenLedgerHarness(t)
	ctx := context.Background()
	r, err := h.book(t, guestID, "2025-04-10", "2025-04-12", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := h.cancel.Handle(ctx, reservations.CancelCommand{ReservationID: r.ID, RequesterID: guestID})
	if err != nil {
		t.Fatalf("cancel must proceed: %v", err)
	}
	if cancelled.Status != string(reservation.StatusCancelled) {
		t.Fatalf("status = %s", cancelled.Status)
	}
	got, err := h.get.Handle(ctx, reservations.GetQuery{ReservationID: r.ID, ViewerID: guestID})
	if err != nil || got.Status != string(reservation.StatusCancelled) {
		t.Fatalf("stored reservation = %+v %v", got, err)
	}
	if names := h.outboxNames(); !slices.Contains(names, reservation.EventLedgerReleaseFailed) || !slices.Contains(names, reservation.EventCancelled) {
		t.Fatalf("outbox = %v", names)
	}
	if !strings.Contains(logs.String(), "ledger mirror release failed") {
		t.Fatalf("missing warn log: %s", logs.String())
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	_, err := h.accept.Handle(context.Background(), reservations.AcceptCommand{ReservationID: "not-a-uuid", HostID: hostID})
	if !errors.Is(err, reservation.ErrNotFound) {
		t.Fatalf("expected RESERVATION_NOT_FOUND, got %v", err)
	}
}

func TestHistorySplitsOnToday(t *testing.T) {
	h := newHarness(t, chargepay.Recorder{})
	ctx := context.Background()
	// Clock is 2025-01-15.
	for _, stay := range [][2]string{
		{"2025-01-02", "2025-01-05"},
		{"2025-01-10", "2025-01-15"},
		{"2025-01-14", "2025-01-18"},
		{"2025-02-01", "2025-02-03"},
	} {
		if _, err := h.book(t, guestID, stay[0], stay[1], false); err != nil {
			t.Fatalf("create %v: %v", stay, err)
		}
	}
	hist, err := h.hist.Handle(ctx, reservations.HistoryQuery{RequesterID: guestID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist.Past) != 1 || hist.Past[0].CheckIn != "2025-01-02" {
		t.Fatalf("unexpected past: %+v", hist.Past)
	}
	if len(hist.Upcoming) != 3 || hist.Upcoming[0].CheckIn != "2025-01-10" || hist.Upcoming[2].CheckIn != "2025-02-01" {
		t.Fatalf("unexpected upcoming: %+v", hist.Upcoming)
	}
}
