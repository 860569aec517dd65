package actor

import "time"

// Clock is the time source of runtimes. Reducers never read it; timestamps
// reach them inside inputs.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once d has elapsed. The returned func cancels it and
	// reports whether it was still pending.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// RealClock is the wall clock.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
