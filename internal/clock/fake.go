package clock

import "time"

// Fake is a manually-advanced Clock for deterministic tests.
type Fake struct {
	now     time.Time
	tickers []*fakeTicker
}

// NewFake returns a Fake clock pinned at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.now.Add(d)
	return ch
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time, 1), interval: d}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the clock forward by d and fires every ticker that has not
// been stopped, once, whatever its interval; a ticker's interval is recorded
// but not consulted.
func (f *Fake) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		select {
		case t.ch <- f.now:
		default:
		}
	}
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
