package engine

import "time"

// Clock supplies the proposed commit instant and the ceiling for effective
// dates. The store may raise the commit instant to keep per-entity
// transaction time strictly increasing.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}
