package domain

import "github.com/jonboulle/clockwork"

// clk is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic
// timing and result timestamps.
var clk = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clk = clockwork.NewRealClock()
		return
	}
	clk = c
}

// Clock returns the active time source.
func Clock() clockwork.Clock { return clk }
