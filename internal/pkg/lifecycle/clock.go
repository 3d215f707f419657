package lifecycle

import "time"

// Clock is the injected source of "now". Tests substitute a fixed clock to
// walk subscriptions through their billing windows deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the instant it was set to.
type FixedClock struct {
	Instant time.Time
}

func (c *FixedClock) Now() time.Time {
	return c.Instant
}

// Advance moves the fixed clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.Instant = c.Instant.Add(d)
}
