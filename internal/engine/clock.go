package engine

import "sync/atomic"

// Clock is the monotonic logical clock that stamps traced events.
//
// Every input, output and patch switch gets a strictly increasing seq.
// Ordering never depends on wall time, so replaying the same inputs
// produces the same trace.
//
// Clock is safe for concurrent use, though only the Run loop calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that continues after start, e.g. to append
// to an existing run.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
