package verification

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mapStore struct {
	sessions map[string]Session
}

func (m *mapStore) Put(_ context.Context, s Session) error {
	m.sessions[s.State] = s
	return nil
}

func (m *mapStore) Get(_ context.Context, state string) (Session, bool, error) {
	s, ok := m.sessions[state]
	return s, ok, nil
}

func (m *mapStore) Update(_ context.Context, state string, fn func(*Session)) (Session, bool, error) {
	s, ok := m.sessions[state]
	if !ok {
		return Session{}, false, nil
	}
	s = s.clone()
	fn(&s)
	m.sessions[state] = s
	return s, true, nil
}

func newService() *Service {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Service{
		Store: &mapStore{sessions: map[string]Session{}},
		Now:   func() time.Time { return clock },
	}
}

func TestStartGetComplete(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	sess, err := svc.Start(ctx, "user-1", " txn-9 ", map[string]any{"step": "redirect"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.State == "" || sess.TransactionID != "txn-9" {
		t.Fatalf("session = %+v", sess)
	}

	if _, err := svc.Get(ctx, "user-2", sess.State); !errors.Is(err, ErrNotSessionOwner) {
		t.Fatalf("foreign get = %v", err)
	}
	got, err := svc.Get(ctx, "user-1", sess.State)
	if err != nil || got.Data["step"] != "redirect" {
		t.Fatalf("get = %+v, %v", got, err)
	}

	done, err := svc.Complete(ctx, sess.State, map[string]any{"status": "verified"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Data["status"] != "verified" || done.Data["step"] != "redirect" {
		t.Fatalf("merged data = %v", done.Data)
	}
}

func TestStartRequiresTransaction(t *testing.T) {
	if _, err := newService().Start(context.Background(), "user-1", "  ", nil); !errors.Is(err, ErrTransactionID) {
		t.Fatalf("err = %v", err)
	}
}

func TestUnknownStateIsNotFound(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, err := svc.Get(ctx, "user-1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("get = %v", err)
	}
	if _, err := svc.Complete(ctx, "missing", nil); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("complete = %v", err)
	}
	var empty Service
	if _, err := empty.Start(ctx, "user-1", "txn", nil); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("no store = %v", err)
	}
}
