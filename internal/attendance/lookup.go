package attendance

import (
	"context"
	"strings"
	"sync"
	"time"

	"checkin/internal/metrics"
)

// PhoneFinder finds the newest entry registered with a phone number.
type PhoneFinder interface {
	LookupByPhone(ctx context.Context, phone string) (*Entry, error)
}

// LookupResult is the answer to one debounced lookup. Stale results were superseded by
// newer input (or by Close) and carry no entry.
type LookupResult struct {
	Phone string
	Entry *Entry
	Err   error
	Stale bool
}

// PhoneLookup debounces duplicate-phone lookups for one input. Every Request bumps a
// generation counter; only the request matching the latest generation when its query
// completes gets a real result.
type PhoneLookup struct {
	finder PhoneFinder
	delay  time.Duration
	minLen int

	mu      sync.Mutex
	gen     uint64
	closed  bool
	pending *lookupWaiter
}

type lookupWaiter struct {
	phone string
	ch    chan LookupResult
	once  sync.Once
	timer *time.Timer
}

func (w *lookupWaiter) deliver(r LookupResult) bool {
	sent := false
	w.once.Do(func() {
		w.ch <- r
		close(w.ch)
		sent = true
	})
	return sent
}

// NewPhoneLookup creates a debouncer. Phones shorter than minLen resolve immediately
// without querying.
func NewPhoneLookup(finder PhoneFinder, delay time.Duration, minLen int) *PhoneLookup {
	if delay <= 0 {
		delay = 400 * time.Millisecond
	}
	return &PhoneLookup{finder: finder, delay: delay, minLen: minLen}
}

// Request schedules a lookup for phone and supersedes any earlier request. The returned
// channel yields exactly one result.
func (l *PhoneLookup) Request(ctx context.Context, phone string) <-chan LookupResult {
	phone = strings.TrimSpace(phone)
	w := &lookupWaiter{phone: phone, ch: make(chan LookupResult, 1)}

	l.mu.Lock()
	l.gen++
	gen := l.gen
	prev := l.pending
	if prev != nil && prev.timer != nil {
		prev.timer.Stop()
	}
	switch {
	case l.closed:
		l.pending = nil
		l.mu.Unlock()
		w.deliver(LookupResult{Phone: phone, Stale: true})
	case phone == "" || len(phone) < l.minLen:
		l.pending = nil
		l.mu.Unlock()
		w.deliver(LookupResult{Phone: phone})
	default:
		l.pending = w
		w.timer = time.AfterFunc(l.delay, func() { l.fire(ctx, gen, w) })
		l.mu.Unlock()
	}

	if prev != nil && prev.deliver(LookupResult{Phone: prev.phone, Stale: true}) {
		metrics.StaleLookups.Inc()
	}
	return w.ch
}

// Close discards every outstanding request. Later requests resolve as stale.
func (l *PhoneLookup) Close() {
	l.mu.Lock()
	l.closed = true
	l.gen++
	prev := l.pending
	l.pending = nil
	if prev != nil && prev.timer != nil {
		prev.timer.Stop()
	}
	l.mu.Unlock()
	if prev != nil {
		prev.deliver(LookupResult{Phone: prev.phone, Stale: true})
	}
}

func (l *PhoneLookup) current(gen uint64) bool {
	return gen == l.gen && !l.closed
}

func (l *PhoneLookup) fire(ctx context.Context, gen uint64, w *lookupWaiter) {
	l.mu.Lock()
	live := l.current(gen)
	l.mu.Unlock()
	if !live {
		w.deliver(LookupResult{Phone: w.phone, Stale: true})
		return
	}

	entry, err := l.finder.LookupByPhone(ctx, w.phone)

	l.mu.Lock()
	live = l.current(gen)
	if live && l.pending == w {
		l.pending = nil
	}
	l.mu.Unlock()
	if !live {
		if w.deliver(LookupResult{Phone: w.phone, Stale: true}) {
			metrics.StaleLookups.Inc()
		}
		return
	}
	w.deliver(LookupResult{Phone: w.phone, Entry: entry, Err: err})
}
