// Package sim provides hosted, software-only implementations of the
// internal/hal interfaces so the core (internal/mac, internal/pairing,
// internal/fusion, internal/persist) can run and be tested as an ordinary
// Go program instead of against real silicon.
package sim

import "time"

// Clock is a hal.Clock backed by the host's monotonic clock. Sleep uses
// time.Sleep directly since there is no real wait-for-interrupt primitive
// to emulate in a hosted build.
type Clock struct {
	start time.Time
}

// NewClock returns a Clock whose epoch is the moment it was created,
// mirroring a device boot.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

func (c *Clock) NowMicros() int64 {
	return time.Since(c.start).Microseconds()
}

func (c *Clock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

func (c *Clock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
