package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is the package-level time source for the run's reference "now".
// Production code uses the real clock; tests inject a fake for deterministic output.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current reference time in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}
