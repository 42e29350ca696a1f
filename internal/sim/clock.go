package sim

import "time"

// Clock is the simulation's virtual nanosecond clock. Unlike a ticker
// it is advanced explicitly by the run loop, so simulations are
// deterministic and reproducible.
type Clock struct {
	now      int64
	interval int64
	count    int64
}

// NewClock creates a clock that advances by interval per tick.
func NewClock(interval time.Duration) *Clock {
	return &Clock{interval: interval.Nanoseconds()}
}

// Now returns the current virtual time in nanoseconds.
func (c *Clock) Now() int64 { return c.now }

// Advance moves the clock one tick forward and returns the new time.
func (c *Clock) Advance() int64 {
	c.count++
	c.now += c.interval
	return c.now
}

// Count returns the number of ticks elapsed.
func (c *Clock) Count() int64 { return c.count }

// Interval returns the tick length in nanoseconds.
func (c *Clock) Interval() int64 { return c.interval }
