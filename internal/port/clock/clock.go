// Package clock defines the time source consulted once per board operation.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, truncated to microseconds so instants survive a
// round trip through PostgreSQL unchanged.
type System struct{}

// Now returns time.Now truncated to microseconds in UTC.
func (System) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// Func adapts a function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }
