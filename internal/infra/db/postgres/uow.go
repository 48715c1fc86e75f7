package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookingengine/internal/app/outbox"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/availability"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
)

var (
	ErrUnitOfWorkNotConfigured = errors.New("postgres: unit of work factory missing pool")
	ErrTxDone                  = errors.New("postgres: transaction already finished")
)

// Factory begins SERIALIZABLE transactions on the pool.
type Factory struct {
	Pool *pgxpool.Pool
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Pool == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}
	tx, err := f.Pool.BeginTx(ctx, txOpts)
	if err != nil {
		return nil, err
	}
	return newUnit(tx), nil
}

func newUnit(tx pgx.Tx) *Unit {
	return &Unit{
		tx:           tx,
		reservations: &reservationRepo{tx: tx},
		ledger:       &ledgerRepo{tx: tx},
		payments:     &paymentRepo{tx: tx},
		outbox:       &unitOutbox{tx: tx},
	}
}

type Unit struct {
	tx   pgx.Tx
	done bool

	reservations *reservationRepo
	ledger       *ledgerRepo
	payments     *paymentRepo
	outbox       *unitOutbox
}

func (u *Unit) Reservations() reservation.Repository { return u.reservations }
func (u *Unit) Ledger() inventory.Repository         { return u.ledger }
func (u *Unit) Payments() payments.Repository        { return u.payments }
func (u *Unit) Outbox() outbox.Outbox                { return u.outbox }

// LockListing takes the row lock on the listing's timeline, creating the row
// on first use. Writers on the same listing queue behind it; under
// SERIALIZABLE the later one fails with 40001 once the first commits.
func (u *Unit) LockListing(ctx context.Context, id listings.ListingID) error {
	if u.done {
		return ErrTxDone
	}
	if _, err := u.tx.Exec(ctx,
		`INSERT INTO listing_timelines (listing_id) VALUES ($1) ON CONFLICT (listing_id) DO NOTHING`,
		string(id),
	); err != nil {
		return mapPgErr(err)
	}
	var seq int64
	err := u.tx.QueryRow(ctx,
		`SELECT seq FROM listing_timelines WHERE listing_id = $1 FOR UPDATE`,
		string(id),
	).Scan(&seq)
	if err != nil {
		return mapPgErr(err)
	}
	_, err = u.tx.Exec(ctx, `UPDATE listing_timelines SET seq = $2 WHERE listing_id = $1`, string(id), seq+1)
	return mapPgErr(err)
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return ErrTxDone
	}
	u.done = true
	return mapPgErr(u.tx.Commit(ctx))
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// mapPgErr turns serialization failures and constraint races into business conflicts.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return reservation.ErrConcurrentUpdate.Wrap(err)
	case codeExclusionViolation:
		return availability.ErrDatesUnavailable.With("constraint", pgErr.ConstraintName).Wrap(err)
	}
	return err
}

var _ uow.Factory = Factory{}
