package reservation

import (
	"errors"
	"testing"
	"time"

	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
)

var now = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

func mustRange(t *testing.T, in, out string) daterange.DateRange {
	t.Helper()
	dr, err := daterange.Parse(in, out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return dr
}

func newPending(t *testing.T) *Reservation {
	t.Helper()
	r, err := New(CreateParams{
		ListingID:   "listing-1",
		HostID:      "host-1",
		RequesterID: "guest-1",
		Range:       mustRange(t, "2025-03-10", "2025-03-15"),
		Guests:      capacity.Guests{Adults: 2},
		CreatedAt:   now,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return r
}

func TestNewRejectsInvalidDates(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := New(CreateParams{
		RequesterID: "guest-1",
		Range:       daterange.DateRange{CheckIn: day, CheckOut: day},
		Guests:      capacity.Guests{Adults: 1},
	})
	if !errors.Is(err, ErrInvalidDates) {
		t.Fatalf("expected INVALID_DATES, got %v", err)
	}
	if failure.KindOf(err) != failure.KindValidation {
		t.Fatalf("INVALID_DATES must be a validation failure")
	}
}

func TestNewRecordsEvents(t *testing.T) {
	r := newPending(t)
	if r.Status != StatusPending || r.ID == "" {
		t.Fatalf("unexpected reservation %+v", r)
	}
	evs := r.PendingEvents()
	if len(evs) != 1 || evs[0].EventName() != EventRequested {
		t.Fatalf("expected requested event, got %v", evs)
	}

	instant, err := New(CreateParams{RequesterID: "g", Range: r.Range, Guests: r.Guests, Instant: true, CreatedAt: now})
	if err != nil {
		t.Fatalf("instant: %v", err)
	}
	if instant.Status != StatusAccepted || len(instant.PendingEvents()) != 2 {
		t.Fatalf("instant reservation must start accepted with two events")
	}
}

func TestAcceptTwiceIsAlreadyProcessed(t *testing.T) {
	r := newPending(t)
	if err := r.Accept(now); err != nil {
		t.Fatalf("accept: %v", err)
	}
	before := *r
	if err := r.Accept(now.Add(time.Hour)); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ALREADY_PROCESSED, got %v", err)
	}
	if r.Status != StatusAccepted || !r.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("second accept must not change state")
	}
	if err := r.Reject("late", now); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("reject after accept must be ALREADY_PROCESSED, got %v", err)
	}
}

func TestRejectStoresReason(t *testing.T) {
	r := newPending(t)
	if err := r.Reject("  renovations  ", now); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if r.Status != StatusRejected || r.RejectionReason != "renovations" {
		t.Fatalf("unexpected state %s / %q", r.Status, r.RejectionReason)
	}
}

func TestCancelTransitions(t *testing.T) {
	r := newPending(t)
	_ = r.Accept(now)
	if err := r.Cancel("plans changed", now); err != nil {
		t.Fatalf("cancel accepted: %v", err)
	}
	if r.Status != StatusCancelled {
		t.Fatalf("expected cancelled")
	}
	if err := r.Cancel("", now); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("cancel of cancelled must fail, got %v", err)
	}
}

func TestApplyPatch(t *testing.T) {
	r := newPending(t)
	newOut := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	msg := "late arrival"
	ch, err := r.Apply(Patch{CheckOut: &newOut, Message: &msg}, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !ch.Dates || ch.Party {
		t.Fatalf("unexpected changes %+v", ch)
	}
	if r.Range.String() != "2025-03-10..2025-03-17" || r.Message != msg {
		t.Fatalf("patch not applied: %s %q", r.Range, r.Message)
	}

	bad := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	if _, err := r.Apply(Patch{CheckOut: &bad}, now); !errors.Is(err, ErrInvalidDates) {
		t.Fatalf("expected INVALID_DATES, got %v", err)
	}
	if r.Range.String() != "2025-03-10..2025-03-17" {
		t.Fatalf("failed patch must not mutate")
	}
}

func TestApplyRejectedForTerminal(t *testing.T) {
	r := newPending(t)
	_ = r.Reject("", now)
	msg := "x"
	if _, err := r.Apply(Patch{Message: &msg}, now); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ALREADY_PROCESSED, got %v", err)
	}
}

func TestParseID(t *testing.T) {
	if _, err := ParseID("not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("malformed id must be not found, got %v", err)
	}
	id := NewID()
	if got, err := ParseID(string(id)); err != nil || got != id {
		t.Fatalf("round trip failed: %v %v", got, err)
	}
}

func TestFilterMatches(t *testing.T) {
	r := newPending(t)
	window := mustRange(t, "2025-03-15", "2025-03-20")
	if (Filter{Range: &window}).Matches(r) {
		t.Fatalf("range filter must be half-open")
	}
	window = mustRange(t, "2025-03-14", "2025-03-20")
	f := Filter{Statuses: []Status{StatusPending}, HostID: "host-1", Range: &window}
	if !f.Matches(r) {
		t.Fatalf("filter should match")
	}
	if (Filter{Statuses: []Status{StatusAccepted}}).Matches(r) {
		t.Fatalf("status filter should not match")
	}
}
