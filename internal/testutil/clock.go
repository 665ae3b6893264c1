package testutil

import "sync"

// DeterministicClock is a thread-safe fake wall clock for tests.
//
// Each call to Now returns the current reading and then advances it by the
// configured step, so a sequence of pushes gets predictable timestamps.
// Set can move the clock backwards to simulate skew between hosts.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	now   int64
	step  int64
}

// NewDeterministicClock creates a clock whose first Now() returns start.
// A step of 0 freezes the clock.
func NewDeterministicClock(start, step int64) *DeterministicClock {
	return &DeterministicClock{start: start, now: start, step: step}
}

// Now returns the current reading and advances the clock by one step.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now
	c.now += c.step
	return ts
}

// Current returns the next reading without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ts. ts may be in the past.
func (c *DeterministicClock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

// Advance moves the clock forward by d.
func (c *DeterministicClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Reset returns the clock to its start reading.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
