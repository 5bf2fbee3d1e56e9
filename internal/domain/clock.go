package domain

import "time"

// Clock supplies the current time as Unix seconds. Services take a Clock so
// tests and journal replay can drive time manually.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current Unix timestamp in seconds.
func (SystemClock) Now() int64 {
	return time.Now().Unix()
}
