package crawl

import (
	"context"
	"sync"
	"sync/atomic"
)

// Control carries the abort flag and pause latch shared between a job and
// its pipeline workers. Workers check it between candidates.
type Control struct {
	aborted atomic.Bool

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewControl creates a control in the running state.
func NewControl() *Control {
	return &Control{resume: make(chan struct{})}
}

// Abort requests a cooperative stop. Irreversible for the run.
func (c *Control) Abort() {
	c.aborted.Store(true)
	// Unblock anyone parked on the pause latch.
	c.Resume()
}

// Aborted reports whether a stop was requested.
func (c *Control) Aborted() bool {
	return c.aborted.Load()
}

// Pause latches the pipeline. Workers block at the next candidate
// boundary until Resume.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		c.paused = true
		c.resume = make(chan struct{})
	}
}

// Resume releases a paused pipeline. No-op when not paused.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		close(c.resume)
	}
}

// Paused reports the latch state.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// WaitIfPaused blocks while the latch is set. Returns the context error
// if the context ends first.
func (c *Control) WaitIfPaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		paused := c.paused
		ch := c.resume
		c.mu.Unlock()

		if !paused {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
