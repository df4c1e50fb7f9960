package testutil

import (
	"sync"
	"time"
)

// Epoch is the first reading of a StepClock created with a zero start.
var Epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// StepClock is a deterministic time source for tests and golden traces.
//
// Each call to Now advances by a fixed step, so audit timestamps depend only
// on the order of calls, never on the wall clock. It satisfies engine.Clock.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewStepClock creates a clock whose first reading is start. A zero start
// uses Epoch; a non-positive step uses one second.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if start.IsZero() {
		start = Epoch
	}
	if step <= 0 {
		step = time.Second
	}
	return &StepClock{start: start.UTC(), step: step}
}

// Now returns the next reading.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Calls returns how many readings were taken.
func (c *StepClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset rewinds the clock so the next reading is start again.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
