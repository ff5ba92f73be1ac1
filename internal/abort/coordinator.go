// Package abort tracks the cancellation signal of the generation step that is
// currently suspended, so a caller on another goroutine can cancel it.
package abort

import (
	"context"
	"sync"
)

// Handle identifies one signal issued by Begin.
type Handle struct {
	cancel context.CancelFunc
}

// Coordinator holds at most one active signal.
type Coordinator struct {
	mu      sync.Mutex
	current *Handle
}

// New returns an idle Coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Begin derives a cancellable context from parent and makes it the active
// signal, replacing any previous one. The previous signal is not cancelled.
func (c *Coordinator) Begin(parent context.Context) (context.Context, *Handle) {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{cancel: cancel}

	c.mu.Lock()
	c.current = h
	c.mu.Unlock()
	return ctx, h
}

// Abort cancels the active signal and clears it. It reports false when there
// was nothing to cancel.
func (c *Coordinator) Abort() bool {
	c.mu.Lock()
	h := c.current
	c.current = nil
	c.mu.Unlock()

	if h == nil {
		return false
	}
	h.cancel()
	return true
}

// End releases h and clears the active signal only if it is still h.
func (c *Coordinator) End(h *Handle) {
	if h == nil {
		return
	}
	c.mu.Lock()
	if c.current == h {
		c.current = nil
	}
	c.mu.Unlock()
	h.cancel()
}

// Active reports whether a signal is currently held.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}
