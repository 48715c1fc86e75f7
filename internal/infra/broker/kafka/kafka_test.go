package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/handlers/inventory"
)

type fakeBus struct {
	fail error
	got  []commands.Command
}

func (b *fakeBus) Dispatch(_ context.Context, cmd commands.Command) (any, error) {
	b.got = append(b.got, cmd)
	return nil, b.fail
}

type mapInbox struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (i *mapInbox) Seen(_ context.Context, id string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seen == nil {
		i.seen = map[string]bool{}
	}
	was := i.seen[id]
	i.seen[id] = true
	return was, nil
}

func (i *mapInbox) Forget(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, id)
	return nil
}

func message(body string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "reservation.events.v1", Value: []byte(body)}
}

const releaseFailedEvent = `{"id":"evt-1","type":"reservation.ledger_release_failed.v1","data":{"listing_id":"listing-1","error":"timeout"}}`

func TestRepairHandlerDispatchesReconcileOnce(t *testing.T) {
	bus := &fakeBus{}
	h := &RepairHandler{Bus: bus, Inbox: &mapInbox{}}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.Handle(ctx, message(releaseFailedEvent)); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(bus.got) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(bus.got))
	}
	cmd, ok := bus.got[0].(inventory.ReconcileCommand)
	if !ok || cmd.ListingID != "listing-1" {
		t.Fatalf("unexpected command: %#v", bus.got[0])
	}
}

func TestRepairHandlerIgnoresOtherEvents(t *testing.T) {
	bus := &fakeBus{}
	h := &RepairHandler{Bus: bus}
	for _, body := range []string{
		`{"id":"evt-2","type":"reservation.accepted.v1","data":{}}`,
		`not json`,
	} {
		if err := h.Handle(context.Background(), message(body)); err != nil {
			t.Fatalf("handle %q: %v", body, err)
		}
	}
	if len(bus.got) != 0 {
		t.Fatalf("unexpected dispatches: %v", bus.got)
	}
}

func TestRepairHandlerRetriesAfterFailure(t *testing.T) {
	bus := &fakeBus{fail: errors.New("store unavailable")}
	h := &RepairHandler{Bus: bus, Inbox: &mapInbox{}}
	ctx := context.Background()
	if err := h.Handle(ctx, message(releaseFailedEvent)); err == nil {
		t.Fatalf("expected dispatch error")
	}
	bus.fail = nil
	if err := h.Handle(ctx, message(releaseFailedEvent)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(bus.got) != 2 {
		t.Fatalf("expected redelivery to dispatch again, got %d", len(bus.got))
	}
}

func TestProducerPublishesWithHeaders(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"ok":true}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	p := NewProducerFrom(mock)
	defer p.Close()

	err := p.Publish(context.Background(), "reservation.events.v1", "res-1", []byte(`{"ok":true}`), map[string]string{"ce-type": "reservation.accepted"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, "t", "k", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled context to short-circuit, got %v", err)
	}
}
