package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHooksRunInReverseOrder(t *testing.T) {
	h := NewHandler(time.Second)

	var order []int
	h.OnShutdown(func(context.Context) error { order = append(order, 1); return nil })
	h.OnShutdown(func(context.Context) error { order = append(order, 2); return nil })
	h.OnShutdown(func(context.Context) error { order = append(order, 3); return nil })

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait() }()
	h.Trigger()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}

	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("hook order = %v, want [3 2 1]", order)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done channel not closed after shutdown")
	}
}

func TestFirstErrorWins(t *testing.T) {
	h := NewHandler(time.Second)
	e1 := errors.New("first")
	e2 := errors.New("second")
	// Reverse order: the hook registered last runs first.
	h.OnShutdown(func(context.Context) error { return e2 })
	h.OnShutdown(func(context.Context) error { return e1 })

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait() }()
	h.Trigger()

	if err := <-errCh; err != e1 {
		t.Errorf("Wait = %v, want %v", err, e1)
	}
}
