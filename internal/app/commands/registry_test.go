package commands

import (
	"context"
	"errors"
	"testing"
)

type ping struct{ n int }

func (ping) Key() string { return "ping" }

type other struct{}

func (other) Key() string { return "other" }

func TestRegistryRoutesTypedHandlers(t *testing.T) {
	reg := NewRegistry()
	Register[ping, int](reg, "ping", HandlerFunc[ping, int](func(_ context.Context, c ping) (int, error) {
		return c.n * 2, nil
	}))
	got, err := Dispatch[ping, int](context.Background(), reg, ping{n: 21})
	if err != nil || got != 42 {
		t.Fatalf("dispatch = %d, %v", got, err)
	}
	if _, err := reg.Dispatch(context.Background(), other{}); !errors.Is(err, ErrHandlerNotFound) {
		t.Fatalf("expected ErrHandlerNotFound, got %v", err)
	}
	if _, err := Dispatch[ping, string](context.Background(), reg, ping{}); !errors.Is(err, ErrResultType) {
		t.Fatalf("expected ErrResultType, got %v", err)
	}
	if keys := reg.Keys(); len(keys) != 1 || keys[0] != "ping" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	h := HandlerFunc[ping, int](func(context.Context, ping) (int, error) { return 0, nil })
	Register[ping, int](reg, "ping", h)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate key")
		}
	}()
	Register[ping, int](reg, "ping", h)
}
