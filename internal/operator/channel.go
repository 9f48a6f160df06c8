package operator

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Channel hands decisions from another goroutine (the HTTP API or the TUI) to
// the engine.
type Channel struct {
	ch      chan Decision
	waiting atomic.Bool
}

// NewChannel creates an empty decision channel.
func NewChannel() *Channel {
	return &Channel{ch: make(chan Decision)}
}

// Decide blocks until a decision is submitted or ctx is done.
func (c *Channel) Decide(ctx context.Context) (Decision, error) {
	c.waiting.Store(true)
	defer c.waiting.Store(false)

	select {
	case <-ctx.Done():
		return Invalid, ctx.Err()
	case d := <-c.ch:
		return d, nil
	}
}

// Waiting reports whether the engine is currently blocked in Decide.
func (c *Channel) Waiting() bool {
	return c.waiting.Load()
}

// Submit delivers d to a pending Decide. It blocks until the engine takes it or
// ctx is done.
func (c *Channel) Submit(ctx context.Context, d Decision) error {
	if !d.Valid() {
		return fmt.Errorf("submit %s: not a recovery decision", d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.ch <- d:
		return nil
	}
}
