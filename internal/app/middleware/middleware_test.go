package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/outbox"
	"bookingengine/internal/app/policies"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/failure"
)

type createCmd struct {
	key    string
	actor  string
	Nights int
}

func (createCmd) Key() string              { return "test.create" }
func (c createCmd) IdempotencyKey() string { return c.key }
func (createCmd) ResultPrototype() any     { return &createResult{} }
func (c createCmd) ActorID() string        { return c.actor }

type createResult struct {
	ID string `json:"id"`
}

type mapStore struct {
	mu    sync.Mutex
	items map[string]IdempotencyRecord
}

func (s *mapStore) Get(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	return rec, ok, nil
}

func (s *mapStore) Save(_ context.Context, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.Key] = rec
	return nil
}

type countingBus struct {
	calls int
	err   error
}

func (b *countingBus) Dispatch(context.Context, commands.Command) (any, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &createResult{ID: "res-1"}, nil
}

func TestIdempotencyReplaysSuccess(t *testing.T) {
	store := &mapStore{items: map[string]IdempotencyRecord{}}
	inner := &countingBus{}
	bus := ChainCommands(inner, Idempotency(store, nil))

	for i := 0; i < 3; i++ {
		res, err := commands.Dispatch[createCmd, *createResult](context.Background(), bus, createCmd{key: "k1"})
		if err != nil || res.ID != "res-1" {
			t.Fatalf("call %d: %v %v", i, res, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("handler ran %d times, want 1", inner.calls)
	}
}

func TestIdempotencyReplaysTypedValidationFailure(t *testing.T) {
	store := &mapStore{items: map[string]IdempotencyRecord{}}
	inner := &countingBus{err: reservation.ErrInvalidDates}
	bus := ChainCommands(inner, Idempotency(store, nil))

	_, _ = bus.Dispatch(context.Background(), createCmd{key: "k2"})
	_, err := bus.Dispatch(context.Background(), createCmd{key: "k2"})
	if !errors.Is(err, reservation.ErrInvalidDates) {
		t.Fatalf("replayed error must keep identity, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("validation failures are replayed, handler ran %d times", inner.calls)
	}
}

func TestIdempotencyDoesNotStoreConflicts(t *testing.T) {
	store := &mapStore{items: map[string]IdempotencyRecord{}}
	inner := &countingBus{err: failure.Conflict("DATES_UNAVAILABLE", "taken")}
	bus := ChainCommands(inner, Idempotency(store, nil))

	_, _ = bus.Dispatch(context.Background(), createCmd{key: "k3"})
	_, _ = bus.Dispatch(context.Background(), createCmd{key: "k3"})
	if inner.calls != 2 {
		t.Fatalf("conflicts must be retried, handler ran %d times", inner.calls)
	}
}

type actorBus struct{ calls int }

func (b *actorBus) Dispatch(_ context.Context, cmd commands.Command) (any, error) {
	b.calls++
	return &createResult{ID: "res-" + cmd.(createCmd).actor}, nil
}

func TestIdempotencyKeysAreScopedToActor(t *testing.T) {
	store := &mapStore{items: map[string]IdempotencyRecord{}}
	inner := &actorBus{}
	bus := ChainCommands(inner, Idempotency(store, nil))
	ctx := context.Background()

	alice, err := commands.Dispatch[createCmd, *createResult](ctx, bus, createCmd{key: "k1", actor: "alice", Nights: 2})
	if err != nil || alice.ID != "res-alice" {
		t.Fatalf("alice: %v %v", alice, err)
	}
	bob, err := commands.Dispatch[createCmd, *createResult](ctx, bus, createCmd{key: "k1", actor: "bob", Nights: 4})
	if err != nil || bob.ID != "res-bob" {
		t.Fatalf("bob received %v %v", bob, err)
	}
	if inner.calls != 2 {
		t.Fatalf("handler ran %d times, want 2", inner.calls)
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentPayload(t *testing.T) {
	store := &mapStore{items: map[string]IdempotencyRecord{}}
	inner := &actorBus{}
	bus := ChainCommands(inner, Idempotency(store, nil))
	ctx := context.Background()

	if _, err := bus.Dispatch(ctx, createCmd{key: "k1", actor: "alice", Nights: 2}); err != nil {
		t.Fatal(err)
	}
	_, err := bus.Dispatch(ctx, createCmd{key: "k1", actor: "alice", Nights: 5})
	if !errors.Is(err, ErrIdempotencyKeyReused) {
		t.Fatalf("reuse = %v", err)
	}
	if failure.KindOf(err) != failure.KindValidation {
		t.Fatalf("kind = %q", failure.KindOf(err))
	}
	if inner.calls != 1 {
		t.Fatalf("handler ran %d times, want 1", inner.calls)
	}
}

type fakeUnit struct {
	committed, rolledBack bool
}

func (u *fakeUnit) Reservations() reservation.Repository { return nil }
func (u *fakeUnit) Ledger() inventory.Repository         { return nil }
func (u *fakeUnit) Payments() payments.Repository        { return nil }
func (u *fakeUnit) Outbox() outbox.Outbox                { return nil }
func (u *fakeUnit) LockListing(context.Context, listings.ListingID) error {
	return nil
}
func (u *fakeUnit) Commit(context.Context) error   { u.committed = true; return nil }
func (u *fakeUnit) Rollback(context.Context) error { u.rolledBack = true; return nil }

type fakeFactory struct{ units []*fakeUnit }

func (f *fakeFactory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	u := &fakeUnit{}
	f.units = append(f.units, u)
	return u, nil
}

func TestTransactionCommitsOrRollsBack(t *testing.T) {
	factory := &fakeFactory{}
	var sawUnit bool
	ok := commandFunc(func(ctx context.Context, _ commands.Command) (any, error) {
		_, sawUnit = uow.FromContext(ctx)
		return "ok", nil
	})
	if _, err := ChainCommands(ok, Transaction(factory, nil)).Dispatch(context.Background(), createCmd{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !sawUnit || !factory.units[0].committed || factory.units[0].rolledBack {
		t.Fatalf("successful command must commit inside a unit of work")
	}

	boom := errors.New("boom")
	fail := commandFunc(func(context.Context, commands.Command) (any, error) { return nil, boom })
	if _, err := ChainCommands(fail, Transaction(factory, nil)).Dispatch(context.Background(), createCmd{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if factory.units[1].committed || !factory.units[1].rolledBack {
		t.Fatalf("failed command must roll back")
	}
}

func TestTimeoutSurfacesRetryableError(t *testing.T) {
	slow := commandFunc(func(ctx context.Context, _ commands.Command) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := ChainCommands(slow, Timeout(10*time.Millisecond)).Dispatch(context.Background(), createCmd{})
	if !errors.Is(err, ErrTimeout) || failure.KindOf(err) != failure.KindUnavailable {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestAuthorizationMatchesActor(t *testing.T) {
	inner := &countingBus{}
	bus := ChainCommands(inner, Authorization(nil))

	if _, err := bus.Dispatch(context.Background(), createCmd{actor: "u1"}); !errors.Is(err, ErrActorMismatch) {
		t.Fatalf("anonymous caller must be rejected, got %v", err)
	}
	ctx := policies.WithPrincipal(context.Background(), policies.Principal{UserID: "u2"})
	if _, err := bus.Dispatch(ctx, createCmd{actor: "u1"}); !errors.Is(err, ErrActorMismatch) {
		t.Fatalf("other user must be rejected, got %v", err)
	}
	ctx = policies.WithPrincipal(context.Background(), policies.Principal{UserID: "u1"})
	if _, err := bus.Dispatch(ctx, createCmd{actor: "u1"}); err != nil {
		t.Fatalf("actor must pass: %v", err)
	}
	admin := policies.WithPrincipal(context.Background(), policies.Principal{UserID: "ops", Roles: []string{policies.RoleAdmin}})
	if _, err := bus.Dispatch(admin, createCmd{actor: "u1"}); err != nil {
		t.Fatalf("admin must pass: %v", err)
	}
}

type flushCounter struct{ n int }

func (f *flushCounter) Flush(context.Context) error { f.n++; return errors.New("relay down") }

func TestOutboxFlushOnlyAfterSuccess(t *testing.T) {
	f := &flushCounter{}
	if _, err := ChainCommands(&countingBus{}, OutboxFlush(f, nil)).Dispatch(context.Background(), createCmd{}); err != nil {
		t.Fatalf("flush failure must not fail the command: %v", err)
	}
	_, _ = ChainCommands(&countingBus{err: errors.New("x")}, OutboxFlush(f, nil)).Dispatch(context.Background(), createCmd{})
	if f.n != 1 {
		t.Fatalf("flush ran %d times, want 1", f.n)
	}
}

func TestChainCommandsOrderAndNilSkip(t *testing.T) {
	var trace []string
	tag := func(name string) CommandMiddleware {
		return func(next commands.Bus) commands.Bus {
			return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
				trace = append(trace, name)
				return next.Dispatch(ctx, cmd)
			})
		}
	}
	bus := ChainCommands(&countingBus{}, tag("outer"), nil, tag("inner"))
	if _, err := bus.Dispatch(context.Background(), createCmd{}); err != nil {
		t.Fatal(err)
	}
	if len(trace) != 2 || trace[0] != "outer" || trace[1] != "inner" {
		t.Fatalf("trace = %v", trace)
	}
}
