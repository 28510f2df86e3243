// Package timer is the per-observer question countdown. It is a local UI
// gate only; the server's answer window is the authority.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown tracks the seconds left on the question an observer is viewing.
type Countdown struct {
	clock clockwork.Clock

	mu      sync.Mutex
	active  bool
	index   int
	limit   int
	started time.Time
	// notified is the last value handed to a Run callback for this index.
	notified int
}

// NewCountdown creates an idle countdown.
func NewCountdown(clock clockwork.Clock) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{clock: clock, index: -1, notified: -1}
}

// Reset starts counting limitSec seconds for questionIndex. Seeing the same
// question again does not restart the count; it reports false.
func (c *Countdown) Reset(questionIndex, limitSec int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active && c.index == questionIndex {
		return false
	}
	if limitSec < 0 {
		limitSec = 0
	}
	c.active = true
	c.index = questionIndex
	c.limit = limitSec
	c.started = c.clock.Now()
	c.notified = -1
	return true
}

// Stop makes the countdown idle. An idle countdown is not expired.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.index = -1
}

// Index returns the question being counted, or -1 when idle.
func (c *Countdown) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Remaining returns whole seconds left, never below zero.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Countdown) remainingLocked() int {
	if !c.active {
		return 0
	}
	elapsed := int(c.clock.Since(c.started) / time.Second)
	if left := c.limit - elapsed; left > 0 {
		return left
	}
	return 0
}

// Expired reports whether the active question has run out of time.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && c.remainingLocked() == 0
}

// Run calls onTick once a second with the active question and the seconds
// left, stopping for that question after reporting zero. It returns when
// ctx is done.
func (c *Countdown) Run(ctx context.Context, onTick func(questionIndex, remaining int)) error {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			c.mu.Lock()
			if !c.active || c.notified == 0 {
				c.mu.Unlock()
				continue
			}
			index, left := c.index, c.remainingLocked()
			c.notified = left
			c.mu.Unlock()

			onTick(index, left)
		}
	}
}
