package attendance

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"sync"
	"time"

	"checkin/internal/feed"
	"checkin/internal/metrics"
)

// Outcome classifies the result of a Manager operation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDuplicate
	OutcomeFailure
	OutcomeInvalid
	OutcomeForbidden
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailure:
		return "failure"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Result is the explicit outcome of a mutation. Err carries the cause for every outcome
// other than success.
type Result struct {
	Outcome Outcome
	Err     error
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Source tells where a Load got its list from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceEmpty  Source = "empty"
)

// Options configures a Manager.
type Options struct {
	AdminSecret    string
	GenderRequired bool
	MinPhoneLength int
}

// Manager owns the in-memory attendance list and keeps it consistent with the remote
// store and the local cache. Mutations reach the remote store first and only touch
// local state once the store confirmed them.
type Manager struct {
	store RemoteStore
	cache LocalCache
	pub   feed.Publisher
	opts  Options

	op      sync.Mutex // serializes operations
	mu      sync.RWMutex
	entries []Entry // newest first
}

// NewManager creates a manager with an empty list. pub may be nil.
func NewManager(store RemoteStore, cache LocalCache, pub feed.Publisher, opts Options) *Manager {
	if pub == nil {
		pub = feed.Discard{}
	}
	if opts.MinPhoneLength < 0 {
		opts.MinPhoneLength = 0
	}
	return &Manager{store: store, cache: cache, pub: pub, opts: opts, entries: []Entry{}}
}

// Entries returns a copy of the current list, newest first.
func (m *Manager) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry{}, m.entries...)
}

// Len returns the number of entries in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Options returns the manager configuration.
func (m *Manager) Options() Options { return m.opts }

// Load replaces the list with the remote contents. When the store is unreachable the
// cached list is used, and an absent or unreadable cache yields an empty list. Load
// never fails.
func (m *Manager) Load(ctx context.Context) ([]Entry, Source) {
	m.op.Lock()
	defer m.op.Unlock()

	rows, err := m.store.ListAll(ctx)
	if err == nil {
		list := m.replace(rows)
		m.writeCache(ctx, list)
		metrics.Loads.WithLabelValues(string(SourceRemote)).Inc()
		return list, SourceRemote
	}

	log.Printf("load from store failed, falling back to cache: %v", err)
	source := SourceCache
	cached, ok := m.cache.Read(ctx)
	if !ok {
		cached = []Entry{}
		source = SourceEmpty
	}
	list := m.replace(cached)
	metrics.Loads.WithLabelValues(string(source)).Inc()
	return list, source
}

// Submit validates s and inserts it into the remote store. On success the stored entry
// is placed at the front of the list and the cache is rewritten.
func (m *Manager) Submit(ctx context.Context, s Submission) (Entry, Result) {
	s = s.Normalize()
	if err := s.Validate(m.opts.MinPhoneLength, m.opts.GenderRequired); err != nil {
		metrics.Submissions.WithLabelValues(OutcomeInvalid.String()).Inc()
		return Entry{}, Result{Outcome: OutcomeInvalid, Err: err}
	}

	m.op.Lock()
	defer m.op.Unlock()

	e, err := m.store.Insert(ctx, s)
	if err != nil {
		outcome := OutcomeFailure
		if errors.Is(err, ErrDuplicate) {
			outcome = OutcomeDuplicate
		} else {
			log.Printf("insert for phone %s failed: %v", s.Phone, err)
		}
		metrics.Submissions.WithLabelValues(outcome.String()).Inc()
		return Entry{}, Result{Outcome: outcome, Err: err}
	}

	m.mu.Lock()
	// A store-assigned id is never reused, but the list must stay unique regardless.
	m.entries = append([]Entry{e}, without(m.entries, []string{e.ID})...)
	list := append([]Entry{}, m.entries...)
	m.mu.Unlock()
	metrics.Entries.Set(float64(len(list)))

	m.writeCache(ctx, list)
	m.publish(ctx, feed.Change{Type: feed.Insert, IDs: []string{e.ID}})
	metrics.Submissions.WithLabelValues(OutcomeSuccess.String()).Inc()
	return e, Result{Outcome: OutcomeSuccess}
}

// DeleteMany removes the given ids from the remote store and, once confirmed, from the
// list and cache. The remote delete is treated as atomic.
func (m *Manager) DeleteMany(ctx context.Context, ids []string) Result {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return Result{Outcome: OutcomeSuccess}
	}

	m.op.Lock()
	defer m.op.Unlock()

	if err := m.store.DeleteByIDs(ctx, ids); err != nil {
		log.Printf("delete of %d entries failed: %v", len(ids), err)
		return Result{Outcome: OutcomeFailure, Err: err}
	}

	m.mu.Lock()
	before := len(m.entries)
	m.entries = without(m.entries, ids)
	list := append([]Entry{}, m.entries...)
	m.mu.Unlock()
	metrics.Deletions.Add(float64(before - len(list)))
	metrics.Entries.Set(float64(len(list)))

	m.writeCache(ctx, list)
	m.publish(ctx, feed.Change{Type: feed.Delete, IDs: ids})
	return Result{Outcome: OutcomeSuccess}
}

// ClearAll deletes every entry when providedKey matches the admin secret.
func (m *Manager) ClearAll(ctx context.Context, providedKey string) Result {
	if !m.AdminKeyMatches(providedKey) {
		metrics.AdminRejections.Inc()
		return Result{Outcome: OutcomeForbidden, Err: ErrForbidden}
	}

	m.op.Lock()
	defer m.op.Unlock()

	if err := m.store.DeleteAll(ctx); err != nil {
		log.Printf("clear all failed: %v", err)
		return Result{Outcome: OutcomeFailure, Err: err}
	}

	m.mu.Lock()
	removed := len(m.entries)
	m.entries = []Entry{}
	m.mu.Unlock()
	metrics.Deletions.Add(float64(removed))
	metrics.Entries.Set(0)

	m.writeCache(ctx, []Entry{})
	m.publish(ctx, feed.Change{Type: feed.Clear})
	return Result{Outcome: OutcomeSuccess}
}

// AdminKeyMatches compares key with the configured secret. An unset secret matches
// nothing.
func (m *Manager) AdminKeyMatches(key string) bool {
	if m.opts.AdminSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.opts.AdminSecret)) == 1
}

// LookupByPhone passes through to the remote store.
func (m *Manager) LookupByPhone(ctx context.Context, phone string) (*Entry, error) {
	return m.store.LookupByPhone(ctx, phone)
}

func (m *Manager) replace(rows []Entry) []Entry {
	list := append([]Entry{}, rows...)
	m.mu.Lock()
	m.entries = list
	m.mu.Unlock()
	metrics.Entries.Set(float64(len(list)))
	return append([]Entry{}, list...)
}

func (m *Manager) writeCache(ctx context.Context, list []Entry) {
	if err := m.cache.Write(ctx, list); err != nil {
		log.Printf("cache write failed: %v", err)
	}
}

func (m *Manager) publish(ctx context.Context, c feed.Change) {
	c.At = time.Now().UTC()
	if err := m.pub.Publish(ctx, c); err != nil {
		log.Printf("publish %s change failed: %v", c.Type, err)
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
