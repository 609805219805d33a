package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/park285/cheese-uci/internal/chess/uci"
)

// GameClock is a two-sided chess clock. Time is charged from timestamps, so
// no goroutine ticks in the background.
type GameClock struct {
	mu        sync.Mutex
	now       func() time.Time
	initial   time.Duration
	increment time.Duration
	remaining [2]time.Duration
	running   bool
	side      uci.Side
	since     time.Time
	started   bool
}

type Option func(*GameClock)

// WithNow replaces the time source.
func WithNow(now func() time.Time) Option {
	return func(c *GameClock) { c.now = now }
}

func New(initial, increment time.Duration, opts ...Option) *GameClock {
	c := &GameClock{now: time.Now, initial: initial, increment: increment}
	for _, opt := range opts {
		opt(c)
	}
	c.remaining = [2]time.Duration{initial, initial}
	return c
}

// Reset restores both sides to the initial time and stops the clock.
func (c *GameClock) Reset(initial, increment time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initial = initial
	c.increment = increment
	c.remaining = [2]time.Duration{initial, initial}
	c.running = false
	c.started = false
}

func (c *GameClock) StartClock(side uci.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.started = true
	c.side = side
	c.since = c.now()
}

// SwitchClock charges the running side, credits its increment and starts side.
func (c *GameClock) SwitchClock(side uci.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.running {
		c.chargeLocked(now)
		if c.side != side {
			c.remaining[c.side] += c.increment
		}
	}
	c.running = true
	c.started = true
	c.side = side
	c.since = now
}

// Pause stops the running side without crediting an increment.
func (c *GameClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.chargeLocked(c.now())
	c.running = false
}

func (c *GameClock) RemainingTime(side uci.Side) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	rem := c.remaining[side]
	if c.running && c.side == side {
		rem -= c.now().Sub(c.since)
	}
	if rem < 0 {
		return 0
	}
	return rem
}

// Flagged reports whether side has run out of time.
func (c *GameClock) Flagged(side uci.Side) bool {
	return c.started && c.RemainingTime(side) == 0
}

// Running reports the side whose clock is running.
func (c *GameClock) Running() (uci.Side, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.side, c.running
}

func (c *GameClock) String() string {
	return fmt.Sprintf("%s %s - %s %s",
		uci.First, format(c.RemainingTime(uci.First)),
		uci.Second, format(c.RemainingTime(uci.Second)))
}

func (c *GameClock) chargeLocked(now time.Time) {
	c.remaining[c.side] -= now.Sub(c.since)
	if c.remaining[c.side] < 0 {
		c.remaining[c.side] = 0
	}
	c.since = now
}

func format(d time.Duration) string {
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
