package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	appoutbox "bookingengine/internal/app/outbox"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/infra/storage/memory"
)

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	mu   sync.Mutex
	fail error
	sent []published
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.sent = append(p.sent, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func seed(t *testing.T, store *memory.Store, records ...appoutbox.EventRecord) {
	t.Helper()
	ctx := context.Background()
	unit, err := store.Begin(ctx, uow.TxOptions{})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, rec := range records {
		if err := unit.Outbox().Add(ctx, rec); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := unit.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestDrainPublishesCloudEvents(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, appoutbox.EventRecord{
		ID:         "evt-1",
		Name:       "reservation.accepted",
		Payload:    []byte(`{"listing_id":"listing-1"}`),
		Aggregate:  "res-1",
		OccurredAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	})
	producer := &fakeProducer{}
	w := &Worker{Relay: store, Producer: producer, TopicPrefix: "dev."}

	n, err := w.Drain(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("drain: %d %v", n, err)
	}
	if len(producer.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(producer.sent))
	}
	msg := producer.sent[0]
	if msg.topic != "dev.reservation.events.v1" || msg.key != "res-1" {
		t.Fatalf("unexpected routing: %s %s", msg.topic, msg.key)
	}
	if msg.headers["content-type"] != "application/cloudevents+json" || msg.headers["traceparent"] != "00-abc-def-01" {
		t.Fatalf("unexpected headers: %v", msg.headers)
	}
	var evt map[string]any
	if err := json.Unmarshal(msg.payload, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt["type"] != "reservation.accepted.v1" || evt["id"] != "evt-1" || evt["subject"] != "res-1" {
		t.Fatalf("unexpected envelope: %v", evt)
	}
	if len(store.PendingOutbox()) != 0 {
		t.Fatalf("record not marked sent")
	}
}

func TestPublishFailureSchedulesRetry(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, appoutbox.EventRecord{ID: "evt-1", Name: "reservation.requested", Payload: []byte(`{}`)})
	producer := &fakeProducer{fail: errors.New("broker down")}
	w := &Worker{Relay: store, Producer: producer, Backoff: []time.Duration{time.Hour}}

	if _, err := w.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(store.PendingOutbox()) != 1 {
		t.Fatalf("failed record must stay pending")
	}
	producer.fail = nil
	n, _ := w.Drain(context.Background())
	if n != 0 {
		t.Fatalf("record retried before its backoff elapsed")
	}
}

func TestFlushWakesRun(t *testing.T) {
	store := memory.NewStore()
	producer := &fakeProducer{}
	w := &Worker{Relay: store, Producer: producer, Interval: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	seed(t, store, appoutbox.EventRecord{ID: "evt-1", Name: "reservation.requested", Payload: []byte(`{}`)})
	_ = w.Flush(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		producer.mu.Lock()
		n := len(producer.sent)
		producer.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
	if len(producer.sent) != 1 {
		t.Fatalf("flush did not wake the worker")
	}
}

func TestRunRequiresDependencies(t *testing.T) {
	if err := (&Worker{}).Run(context.Background()); !errors.Is(err, ErrWorkerNotConfigured) {
		t.Fatalf("expected ErrWorkerNotConfigured, got %v", err)
	}
}

func TestTopicFor(t *testing.T) {
	if got := TopicFor("", "reservation.ledger_release_failed"); got != "reservation.events.v1" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := TopicFor("prod.", "inventory"); got != "prod.inventory.events.v1" {
		t.Fatalf("unexpected topic %q", got)
	}
}
