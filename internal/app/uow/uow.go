package uow

import (
	"context"

	"bookingengine/internal/app/outbox"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
)

// UnitOfWork groups the repositories that must commit or roll back together.
type UnitOfWork interface {
	Reservations() reservation.Repository
	Ledger() inventory.Repository
	Payments() payments.Repository
	Outbox() outbox.Outbox

	// LockListing serializes writers on one listing's timeline for the rest of the transaction.
	LockListing(ctx context.Context, id listings.ListingID) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Factory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}
