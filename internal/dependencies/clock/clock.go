package clock

import "time"

// Clock provides the current time. Services take a Clock rather than calling
// time.Now so tests can pin timestamps and ordering.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}
