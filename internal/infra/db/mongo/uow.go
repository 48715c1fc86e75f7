package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver"

	"bookingengine/internal/app/outbox"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
)

const codeWriteConflict = 112

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database
}

var (
	ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")
	ErrTxDone                  = errors.New("mongo: transaction already finished")
)

// Begin starts a session with a snapshot transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		db:           f.DB,
		session:      session,
		readOnly:     opts.ReadOnly,
		reservations: &reservationRepo{col: f.DB.Collection(colReservations)},
		ledger:       &ledgerRepo{col: f.DB.Collection(colLedger)},
		payments:     &paymentRepo{col: f.DB.Collection(colPayments)},
		outbox:       &unitOutbox{col: f.DB.Collection(colOutbox)},
	}, nil
}

type Unit struct {
	db       *mongo.Database
	session  mongo.Session
	readOnly bool
	done     bool

	reservations *reservationRepo
	ledger       *ledgerRepo
	payments     *paymentRepo
	outbox       *unitOutbox
}

func (u *Unit) Reservations() reservation.Repository { return u.reservations }
func (u *Unit) Ledger() inventory.Repository         { return u.ledger }
func (u *Unit) Payments() payments.Repository        { return u.payments }
func (u *Unit) Outbox() outbox.Outbox                { return u.outbox }

// LockListing bumps the listing's timeline document. Two transactions that
// both touch it cannot both commit; the later writer fails with a write
// conflict that surfaces as a retryable conflict.
func (u *Unit) LockListing(ctx context.Context, id listings.ListingID) error {
	if u.done {
		return ErrTxDone
	}
	_, err := u.db.Collection(colTimelines).UpdateOne(ctx,
		bson.M{"_id": string(id)},
		bson.M{"$inc": bson.M{"seq": 1}, "$set": bson.M{"touched_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return mapWriteErr(err)
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return ErrTxDone
	}
	u.done = true
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return u.session.AbortTransaction(ctx)
	}
	return mapWriteErr(u.session.CommitTransaction(ctx))
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures the Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

// mapWriteErr turns transaction write conflicts into the retryable business conflict.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(codeWriteConflict) || se.HasErrorLabel(driver.TransientTransactionError)) {
		return reservation.ErrConcurrentUpdate.Wrap(err)
	}
	return err
}

var _ uow.Factory = Factory{}
