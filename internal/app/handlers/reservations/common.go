package reservations

import (
	"context"
	"log/slog"
	"time"

	"bookingengine/internal/app/outbox"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/reservation"
)

const (
	createKey  = "reservations.create"
	acceptKey  = "reservations.accept"
	rejectKey  = "reservations.reject"
	updateKey  = "reservations.update"
	cancelKey  = "reservations.cancel"
	deleteKey  = "reservations.delete"
	getKey     = "reservations.get"
	listKey    = "reservations.list"
	historyKey = "reservations.history"
)

// Deps are shared by every lifecycle handler.
type Deps struct {
	UoW     uow.Factory
	Catalog listings.Catalog
	Encoder outbox.EventEncoder
	Now     func() time.Time
	Logger  *slog.Logger
	// Mirror writes a fully_booked ledger entry for every accepted reservation.
	Mirror bool
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) encoder() outbox.EventEncoder {
	if d.Encoder != nil {
		return d.Encoder
	}
	return outbox.JSONEventEncoder{}
}

// persist saves the reservation and queues its pending events in the same unit.
func (d Deps) persist(ctx context.Context, unit uow.UnitOfWork, r *reservation.Reservation) error {
	if err := unit.Reservations().Save(ctx, r); err != nil {
		return err
	}
	return d.flushEvents(ctx, unit, r)
}

func (d Deps) flushEvents(ctx context.Context, unit uow.UnitOfWork, r *reservation.Reservation) error {
	return outbox.RecordDomainEvents(ctx, unit.Outbox(), d.encoder(), r.PullEvents())
}

// writeMirror replaces the reservation's ledger mirror with one covering its current range.
func (d Deps) writeMirror(ctx context.Context, unit uow.UnitOfWork, r *reservation.Reservation) error {
	if !d.Mirror {
		return nil
	}
	if _, err := unit.Ledger().DeleteByReservation(ctx, string(r.ID)); err != nil {
		return err
	}
	entry, err := inventory.NewMirror(r.ListingID, r.Range, string(r.ID), d.now())
	if err != nil {
		return err
	}
	return unit.Ledger().Save(ctx, entry)
}

// releaseMirror removes the ledger mirror without failing the caller; a
// failure is logged and recorded for reconciliation.
func (d Deps) releaseMirror(ctx context.Context, unit uow.UnitOfWork, r *reservation.Reservation) {
	removed, err := unit.Ledger().DeleteByReservation(ctx, string(r.ID))
	if err != nil {
		d.logger().WarnContext(ctx, "ledger mirror release failed", "reservation_id", r.ID, "listing_id", r.ListingID, "error", err)
		r.MarkLedgerReleaseFailed(err, d.now())
		return
	}
	if removed > 0 {
		d.logger().DebugContext(ctx, "ledger mirror released", "reservation_id", r.ID, "entries", removed)
	}
}

func (d Deps) listing(ctx context.Context, id listings.ListingID) (*listings.Listing, error) {
	if d.Catalog == nil {
		return nil, listings.ErrListingNotFound
	}
	return d.Catalog.ByID(ctx, id)
}
