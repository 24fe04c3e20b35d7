package liveliness

import "time"

// Clock provides time functions for deterministic scheduling.
type Clock struct {
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// SystemClock returns the process monotonic clock.
func SystemClock() Clock {
	return Clock{Now: time.Now, After: time.After}
}
