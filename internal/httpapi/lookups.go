package httpapi

import (
	"sync"
	"time"

	"checkin/internal/attendance"
)

// kioskLookups keeps one debounced phone lookup per kiosk, so keystroke lookups from the
// same kiosk supersede each other.
type kioskLookups struct {
	finder attendance.PhoneFinder
	delay  time.Duration
	minLen int
	idle   time.Duration

	mu    sync.Mutex
	byKey map[string]*kioskLookup
}

type kioskLookup struct {
	lookup   *attendance.PhoneLookup
	lastUsed time.Time
}

func newKioskLookups(finder attendance.PhoneFinder, delay time.Duration, minLen int) *kioskLookups {
	return &kioskLookups{
		finder: finder,
		delay:  delay,
		minLen: minLen,
		idle:   15 * time.Minute,
		byKey:  make(map[string]*kioskLookup),
	}
}

func (k *kioskLookups) get(kiosk string, now time.Time) *attendance.PhoneLookup {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, kl := range k.byKey {
		if key != kiosk && now.Sub(kl.lastUsed) > k.idle {
			kl.lookup.Close()
			delete(k.byKey, key)
		}
	}
	kl, ok := k.byKey[kiosk]
	if !ok {
		kl = &kioskLookup{lookup: attendance.NewPhoneLookup(k.finder, k.delay, k.minLen)}
		k.byKey[kiosk] = kl
	}
	kl.lastUsed = now
	return kl.lookup
}

func (k *kioskLookups) closeAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, kl := range k.byKey {
		kl.lookup.Close()
		delete(k.byKey, key)
	}
}
