// Package clock abstracts wall-clock access so session and profile-engine
// tests can inject deterministic time instead of racing real timers.
package clock

import "time"

// Clock is the only source of "now" and timers the core is allowed to use.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker so fakes can substitute a manually-driven channel.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
