// Package clock provides an injectable time source. Production code
// takes a Clock instead of calling the time package directly, so tests
// can pin "today" and make rate-limiting sleeps free.
package clock

import "time"

// Clock abstracts the two time operations the booking core performs:
// reading the current instant and pausing between writes.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
