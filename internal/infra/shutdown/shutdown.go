// Package shutdown provides graceful shutdown handling for the
// server binary: hooks run in reverse registration order under a
// bounded context once SIGINT or SIGTERM arrives.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler coordinates a graceful stop.
type Handler struct {
	timeout time.Duration
	hooks   []func(context.Context) error
	mu      sync.Mutex
	done    chan struct{}

	// trigger allows tests to fire a shutdown without a real signal.
	trigger chan struct{}
}

// NewHandler creates a handler that allows hooks the given total
// time to finish.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		done:    make(chan struct{}),
		trigger: make(chan struct{}, 1),
	}
}

// OnShutdown registers a hook. Hooks run in reverse registration
// order, mirroring startup order.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Trigger fires the shutdown sequence without an OS signal.
func (h *Handler) Trigger() {
	select {
	case h.trigger <- struct{}{}:
	default:
	}
}

// Wait blocks until SIGINT, SIGTERM or Trigger, then runs the hooks.
// The first hook error is returned after all hooks have run.
func (h *Handler) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-h.trigger:
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]func(context.Context) error, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var firstErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	close(h.done)
	return firstErr
}

// Done closes when the shutdown sequence has completed.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
