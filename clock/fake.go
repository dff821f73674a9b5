package clock

import (
	"sync"
	"time"
)

// Fake returns a deterministic Clock pinned at start. Time moves only
// through Advance and Set, and Sleep advances the fake time instead of
// blocking.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d > 0 {
		c.Advance(d)
	}
}

// Advance moves the fake time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the fake time to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
