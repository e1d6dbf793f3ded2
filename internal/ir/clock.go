package ir

import "time"

// Clock supplies wall time for recency stamps and age cut-offs.
//
// Production code uses SystemClock; tests substitute testutil.FakeClock
// so that aging can be exercised without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
