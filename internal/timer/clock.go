// Package timer provides the clock and alarm primitives the idle hub is
// scheduled on, with real implementations and manual fakes for tests.
package timer

import "time"

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock implementation using the standard library.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
