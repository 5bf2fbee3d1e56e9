package stub

import "sync/atomic"

// ManualClock implements domain.Clock with explicitly advanced time, for
// tests and journal replay.
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

// Now returns the current manual time as unix seconds.
func (c *ManualClock) Now() int64 {
	return c.now.Load()
}

// Set moves the clock to t.
func (c *ManualClock) Set(t int64) {
	c.now.Store(t)
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d int64) {
	c.now.Add(d)
}
