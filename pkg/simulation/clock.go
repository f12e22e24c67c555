package simulation

import "time"

// Clock measures the real time elapsed between consecutive ticks.
type Clock struct {
	last time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{last: now} }

// Lap returns the time since the previous lap (or since start) and restarts
// the measure at now.
func (c *Clock) Lap(now time.Time) time.Duration {
	d := now.Sub(c.last)
	c.last = now
	return d
}

// Reset restarts the measure at now without reporting a lap.
func (c *Clock) Reset(now time.Time) { c.last = now }
