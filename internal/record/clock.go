package record

import (
	"sync"
	"time"
)

// Clock supplies extraction timestamps.
type Clock interface {
	Now() time.Time
}

// Precision is the timestamp resolution of the raw table.
const Precision = time.Microsecond

// MonotonicClock yields UTC instants at storage precision that strictly
// increase across calls within the process.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewMonotonicClock returns a clock backed by time.Now.
func NewMonotonicClock() *MonotonicClock { return &MonotonicClock{now: time.Now} }

// Now returns the next timestamp.
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	src := c.now
	if src == nil {
		src = time.Now
	}
	t := src().UTC().Truncate(Precision)
	if !t.After(c.last) {
		t = c.last.Add(Precision)
	}
	c.last = t
	return t
}

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant in UTC at storage precision.
func (c FixedClock) Now() time.Time { return time.Time(c).UTC().Truncate(Precision) }
