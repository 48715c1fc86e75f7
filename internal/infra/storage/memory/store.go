package memory

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"bookingengine/internal/app/outbox"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
)

// ErrTxDone is returned when a finished unit is used again.
var ErrTxDone = errors.New("memory: transaction already finished")

// maxReaders bounds concurrent read-only units; a writer takes the whole weight.
const maxReaders = 1 << 20

type state struct {
	reservations map[reservation.ID]*reservation.Reservation
	entries      map[inventory.EntryID]*inventory.Entry
	payments     map[string]*payments.Record
}

func newState() *state {
	return &state{
		reservations: make(map[reservation.ID]*reservation.Reservation),
		entries:      make(map[inventory.EntryID]*inventory.Entry),
		payments:     make(map[string]*payments.Record),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.reservations {
		cp.reservations[k] = v.Clone()
	}
	for k, v := range s.entries {
		cp.entries[k] = v.Clone()
	}
	for k, v := range s.payments {
		rec := *v
		cp.payments[k] = &rec
	}
	return cp
}

// Store keeps every aggregate in process memory. Write transactions are
// serial: Begin takes the store-wide write lock, works on a copy, and Commit
// swaps the copy in. Read-only units share the lock.
type Store struct {
	sem   *semaphore.Weighted
	state *state

	outboxMu sync.Mutex
	outbox   []*outboxRow
}

func NewStore() *Store {
	return &Store{sem: semaphore.NewWeighted(maxReaders), state: newState()}
}

func (s *Store) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	weight := int64(maxReaders)
	if opts.ReadOnly {
		weight = 1
	}
	if err := s.sem.Acquire(ctx, weight); err != nil {
		return nil, err
	}
	u := &Unit{store: s, weight: weight, readOnly: opts.ReadOnly}
	if opts.ReadOnly {
		u.st = s.state
	} else {
		u.st = s.state.clone()
	}
	return u, nil
}

// Unit is one transaction over the store.
type Unit struct {
	store    *Store
	st       *state
	weight   int64
	readOnly bool
	staged   []outbox.EventRecord
	done     bool
}

func (u *Unit) Reservations() reservation.Repository {
	return &reservationRepo{st: u.st}
}

func (u *Unit) Ledger() inventory.Repository {
	return &ledgerRepo{st: u.st}
}

func (u *Unit) Payments() payments.Repository {
	return &paymentRepo{st: u.st}
}

func (u *Unit) Outbox() outbox.Outbox {
	return unitOutbox{u: u}
}

// LockListing is a no-op: a write unit already excludes every other writer.
func (u *Unit) LockListing(context.Context, listings.ListingID) error {
	if u.done {
		return ErrTxDone
	}
	return nil
}

func (u *Unit) Commit(context.Context) error {
	if u.done {
		return ErrTxDone
	}
	u.done = true
	if !u.readOnly {
		u.store.state = u.st
		u.store.enqueue(u.staged)
	}
	u.store.sem.Release(u.weight)
	return nil
}

func (u *Unit) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.sem.Release(u.weight)
	return nil
}

type unitOutbox struct {
	u *Unit
}

func (o unitOutbox) Add(_ context.Context, rec outbox.EventRecord) error {
	if o.u.done {
		return ErrTxDone
	}
	o.u.staged = append(o.u.staged, rec)
	return nil
}

var (
	_ uow.Factory    = (*Store)(nil)
	_ uow.UnitOfWork = (*Unit)(nil)
)
