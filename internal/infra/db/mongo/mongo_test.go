package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.mongodb.org/mongo-driver/x/mongo/driver"

	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
)

func mustRange(t *testing.T, in, out string) daterange.DateRange {
	t.Helper()
	dr, err := daterange.Parse(in, out)
	if err != nil {
		t.Fatalf("range %s..%s: %v", in, out, err)
	}
	return dr
}

func TestReservationDocumentRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	r := &reservation.Reservation{
		ID:          reservation.NewID(),
		ListingID:   "listing-1",
		HostID:      "host-1",
		RequesterID: "guest-1",
		Range:       mustRange(t, "2025-03-01", "2025-03-05"),
		Guests:      capacity.Guests{Adults: 2, Pets: 1},
		Status:      reservation.StatusAccepted,
		PaymentID:   "pay-1",
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     3,
	}
	got := newReservationDocument(r).toAggregate()
	if got.ID != r.ID || got.Status != r.Status || got.Guests != r.Guests || got.Version != 3 {
		t.Fatalf("round trip = %+v", got)
	}
	if !got.Range.Equal(r.Range) || !got.UpdatedAt.Equal(now) {
		t.Fatalf("times drifted: %v %v", got.Range, got.UpdatedAt)
	}
}

func TestReservationFilterUsesHalfOpenOverlap(t *testing.T) {
	dr := mustRange(t, "2025-03-01", "2025-03-05")
	f := reservationFilter(reservation.Filter{
		ListingID: "listing-1",
		Statuses:  []reservation.Status{reservation.StatusAccepted},
		Range:     &dr,
	})
	if f["listing_id"] != "listing-1" {
		t.Fatalf("listing filter = %v", f["listing_id"])
	}
	in, ok := f["range.check_in"].(bson.M)
	if !ok || in["$lt"] != dr.CheckOut.UnixMilli() {
		t.Fatalf("check_in bound = %v", f["range.check_in"])
	}
	out, ok := f["range.check_out"].(bson.M)
	if !ok || out["$gt"] != dr.CheckIn.UnixMilli() {
		t.Fatalf("check_out bound = %v", f["range.check_out"])
	}
	statuses := f["status"].(bson.M)["$in"].([]string)
	if len(statuses) != 1 || statuses[0] != "accepted" {
		t.Fatalf("statuses = %v", statuses)
	}
	if _, ok := reservationFilter(reservation.Filter{})["status"]; ok {
		t.Fatal("empty filter should not constrain status")
	}
}

func TestMapWriteErrFlagsConflicts(t *testing.T) {
	conflict := mongo.CommandError{Code: codeWriteConflict, Message: "WriteConflict"}
	if err := mapWriteErr(conflict); !errors.Is(err, reservation.ErrConcurrentUpdate) || failure.KindOf(err) != failure.KindConflict {
		t.Fatalf("write conflict mapped to %v", err)
	}
	transient := mongo.CommandError{Code: 251, Labels: []string{driver.TransientTransactionError}}
	if err := mapWriteErr(transient); failure.KindOf(err) != failure.KindConflict {
		t.Fatalf("transient mapped to %v", err)
	}
	other := errors.New("boom")
	if err := mapWriteErr(other); err != other {
		t.Fatalf("unrelated error rewritten: %v", err)
	}
	if mapWriteErr(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestRepositoriesAgainstMockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing reservation is not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.reservations", mtest.FirstBatch))
		repo := &reservationRepo{col: mt.Coll}
		_, err := repo.ByID(context.Background(), reservation.NewID())
		if !errors.Is(err, reservation.ErrNotFound) {
			mt.Fatalf("ByID = %v", err)
		}
	})

	mt.Run("stale version is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		repo := &reservationRepo{col: mt.Coll}
		r := &reservation.Reservation{ID: reservation.NewID(), ListingID: "listing-1", Status: reservation.StatusPending, Version: 2}
		if err := repo.Save(context.Background(), r); !errors.Is(err, reservation.ErrConcurrentUpdate) {
			mt.Fatalf("Save = %v", err)
		}
		if r.Version != 2 {
			mt.Fatalf("version bumped on failure: %d", r.Version)
		}
	})

	mt.Run("duplicate insert is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		repo := &reservationRepo{col: mt.Coll}
		r := &reservation.Reservation{ID: reservation.NewID(), ListingID: "listing-1", Status: reservation.StatusPending}
		if err := repo.Save(context.Background(), r); !errors.Is(err, reservation.ErrConcurrentUpdate) {
			mt.Fatalf("Save = %v", err)
		}
	})

	mt.Run("ledger entries decode in order", func(mt *mtest.T) {
		dr := mustRange(mt.T, "2025-02-10", "2025-02-12")
		doc := newLedgerDocument(&inventory.Entry{
			ID:        "3f1c1a52-4bb8-4c44-9d59-1d1a0f3b0d11",
			ListingID: listings.ListingID("listing-1"),
			Range:     dr,
			Status:    inventory.StatusBlocked,
		})
		raw, err := bson.Marshal(doc)
		if err != nil {
			mt.Fatal(err)
		}
		var d bson.D
		if err := bson.Unmarshal(raw, &d); err != nil {
			mt.Fatal(err)
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.ledger_entries", mtest.FirstBatch, d))
		repo := &ledgerRepo{col: mt.Coll}
		got, err := repo.Overlapping(context.Background(), "listing-1", mustRange(mt.T, "2025-02-11", "2025-02-13"), inventory.BlockingStatuses...)
		if err != nil {
			mt.Fatal(err)
		}
		if len(got) != 1 || got[0].Status != inventory.StatusBlocked || !got[0].Range.Equal(dr) {
			mt.Fatalf("entries = %+v", got)
		}
	})

	mt.Run("failed mirror release surfaces as a retryable conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    codeWriteConflict,
			Name:    "WriteConflict",
			Message: "write conflict",
			Labels:  []string{driver.TransientTransactionError},
		}))
		repo := &ledgerRepo{col: mt.Coll}
		n, err := repo.DeleteByReservation(context.Background(), "res-1")
		if !errors.Is(err, reservation.ErrConcurrentUpdate) || n != 0 {
			mt.Fatalf("DeleteByReservation = %d, %v", n, err)
		}
	})

	mt.Run("inbox reports duplicates", func(mt *mtest.T) {
		inbox := &Inbox{col: mt.Coll, consumer: "repair"}
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		if seen, err := inbox.Seen(context.Background(), "evt-1"); err != nil || seen {
			mt.Fatalf("first delivery seen=%v err=%v", seen, err)
		}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		if seen, err := inbox.Seen(context.Background(), "evt-1"); err != nil || !seen {
			mt.Fatalf("redelivery seen=%v err=%v", seen, err)
		}
	})
}
