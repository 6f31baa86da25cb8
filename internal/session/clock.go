/*
Package session
File: clock.go
Description:
    Time sources for the session driver. RealClock reads the system clock;
    ManualClock is advanced by hand in tests. Sampler turns successive
    readings into non-negative elapsed seconds, re-anchoring when the clock
    goes backwards.
*/

package session

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns the current time using the system clock.
func (RealClock) Now() time.Time {
	return time.Now()
}

// ManualClock only moves when told to. Safe for concurrent use.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewManualClock starts at start. A non-zero step is added after every Now call.
func NewManualClock(start time.Time, step time.Duration) *ManualClock {
	return &ManualClock{now: start, step: step}
}

// Now returns the current manual time, then applies the auto step.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock by d. Negative values simulate a clock regression.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sampler turns successive wall-clock samples into elapsed seconds.
// The first sample has no predecessor and yields 0.
type Sampler struct {
	last   time.Time
	primed bool
}

// Delta records now and returns the seconds since the previous sample.
// The result is negative if the clock went backwards; the sampler still
// re-anchors on now so the following delta is measured from it.
func (s *Sampler) Delta(now time.Time) float64 {
	if !s.primed {
		s.last = now
		s.primed = true
		return 0
	}
	d := now.Sub(s.last).Seconds()
	s.last = now
	return d
}
