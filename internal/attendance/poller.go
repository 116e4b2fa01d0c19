package attendance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"checkin/internal/metrics"
)

// Loader is the read side of the Manager used by the poller.
type Loader interface {
	Load(ctx context.Context) ([]Entry, Source)
}

// Poller refreshes a display by calling Load immediately and then on a fixed interval.
// A tick that comes due while the previous load is still running is skipped.
type Poller struct {
	loader   Loader
	interval time.Duration
	onTick   func([]Entry, Source)

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewPoller creates a poller. onTick receives each completed load and may be nil.
func NewPoller(loader Loader, interval time.Duration, onTick func([]Entry, Source)) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{loader: loader, interval: interval, onTick: onTick}
}

// Run polls until ctx is cancelled, then waits for the running load to return. Results
// that arrive after cancellation are dropped.
func (p *Poller) Run(ctx context.Context) {
	defer p.wg.Wait()

	p.tick(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick starts a load unless one is already running and reports whether it did.
func (p *Poller) tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		metrics.PollSkips.Inc()
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		entries, source := p.loader.Load(ctx)
		if ctx.Err() != nil || p.onTick == nil {
			return
		}
		p.onTick(entries, source)
	}()
	return true
}
