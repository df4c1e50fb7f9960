package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies audit timestamps.
type Clock interface {
	Now() time.Time
}

// MonotonicClock returns wall-clock time that is strictly increasing across
// calls, even if the system clock steps backwards.
//
// Record.AppendAudit already clamps out-of-order timestamps; MonotonicClock
// keeps entries distinct as well, so trails sort the same by time and Seq.
//
// Thread-safety: MonotonicClock is safe for concurrent use (atomic operations).
type MonotonicClock struct {
	last atomic.Int64
	wall func() time.Time
}

// NewClock creates a clock backed by time.Now.
func NewClock() *MonotonicClock {
	return &MonotonicClock{wall: time.Now}
}

// NewClockFrom creates a clock backed by an arbitrary wall source.
// Used by tests to simulate a clock that jumps backwards.
func NewClockFrom(wall func() time.Time) *MonotonicClock {
	return &MonotonicClock{wall: wall}
}

// Now returns max(wall time, previous result + 1ns) in UTC.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *MonotonicClock) Now() time.Time {
	t := c.wall().UnixNano()
	for {
		prev := c.last.Load()
		next := t
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return time.Unix(0, next).UTC()
		}
	}
}
