package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall-clock origin used by deterministic tests.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// FrameClock is a deterministic wall clock for tests and replay.
//
// Each call to Now returns Epoch plus one Step per previous call, so a
// scenario stamps identical CapturedAt values on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FrameClock struct {
	mu    sync.Mutex
	ticks int64
	step  time.Duration
}

// NewFrameClock creates a clock advancing by step per Now call.
// A zero step defaults to one 60 Hz frame.
func NewFrameClock(step time.Duration) *FrameClock {
	if step <= 0 {
		step = time.Second / 60
	}
	return &FrameClock{step: step}
}

// Now returns the current instant and advances the clock by one step.
func (c *FrameClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Ticks returns how many times Now has been called.
func (c *FrameClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to Epoch.
//
// Used for test reuse. After Reset(), the next call to Now() returns Epoch.
func (c *FrameClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}

// FixedSessionGenerator returns the same session id every time.
//
// This enables deterministic test execution and golden snapshot comparison.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator; an empty id becomes
// "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session id.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
