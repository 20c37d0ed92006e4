package engine

import "sync/atomic"

// CycleClock is the monotonic cycle counter.
//
// Every frame is stamped with a strictly increasing cycle index from this
// clock. Ordering never depends on wall-clock time, so a replay produces
// the same cycle indices as the live run.
//
// Thread-safety: safe for concurrent use (atomic operations), although
// only the engine loop calls Next.
type CycleClock struct {
	cycle atomic.Int64
}

// NewCycleClock creates a clock whose first Next returns 1.
func NewCycleClock() *CycleClock {
	return &CycleClock{}
}

// NewCycleClockAt creates a clock positioned at start, so the next cycle
// is start+1. Used to resume numbering after a replay.
func NewCycleClockAt(start int64) *CycleClock {
	c := &CycleClock{}
	c.cycle.Store(start)
	return c
}

// Next advances the clock and returns the new cycle index.
func (c *CycleClock) Next() int64 {
	return c.cycle.Add(1)
}

// Current returns the last issued cycle index without advancing.
func (c *CycleClock) Current() int64 {
	return c.cycle.Load()
}
