package core

import "time"

// Clock is the time seam used by recency logic and tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock returns a settable, deterministic time. Intended for tests.
type FixedClock struct {
	Time time.Time
}

func (c *FixedClock) Now() time.Time { return c.Time }

// Advance moves the fixed clock forward.
func (c *FixedClock) Advance(d time.Duration) { c.Time = c.Time.Add(d) }
