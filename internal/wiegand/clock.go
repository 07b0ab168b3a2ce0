package wiegand

import (
	"sync"
	"time"
)

// Clock is a free-running microsecond counter that wraps at 2^32.
type Clock interface {
	Micros() uint32
}

// SystemClock counts microseconds from its creation using Go's monotonic clock.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock starts a SystemClock at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Micros returns elapsed microseconds truncated to 32 bits.
func (c *SystemClock) Micros() uint32 {
	return uint32(time.Since(c.epoch) / time.Microsecond)
}

// FakeClock is a settable Clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now uint32
}

// NewFakeClock returns a FakeClock reading start.
func NewFakeClock(start uint32) *FakeClock {
	return &FakeClock{now: start}
}

// Micros returns the current fake time.
func (c *FakeClock) Micros() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to us, which may be earlier than the current value.
func (c *FakeClock) Set(us uint32) {
	c.mu.Lock()
	c.now = us
	c.mu.Unlock()
}

// Advance moves the clock forward by us, wrapping at 2^32.
func (c *FakeClock) Advance(us uint32) {
	c.mu.Lock()
	c.now += us
	c.mu.Unlock()
}
