package poller

import "time"

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Scheduler creates tickers.
type Scheduler interface {
	Every(d time.Duration) Ticker
}

// RealScheduler is backed by time.Ticker.
type RealScheduler struct{}

// Every implements Scheduler.
func (RealScheduler) Every(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time {
	return r.t.C
}

func (r *realTicker) Stop() {
	r.t.Stop()
}
