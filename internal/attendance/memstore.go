package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local RemoteStore for dev runs (STORE_BACKEND=memory) and tests.
// It enforces the same unique phone constraint as the Postgres table.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry // newest first
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry{}, m.entries...), nil
}

func (m *MemoryStore) Insert(ctx context.Context, s Submission) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Phone == s.Phone {
			return Entry{}, ErrDuplicate
		}
	}
	ts := m.now()
	if len(m.entries) > 0 && ts.Before(m.entries[0].Timestamp) {
		ts = m.entries[0].Timestamp
	}
	e := Entry{
		ID:         uuid.NewString(),
		FirstName:  s.FirstName,
		LastName:   s.LastName,
		OtherNames: s.OtherNames,
		Phone:      s.Phone,
		Gender:     s.Gender,
		Timestamp:  ts,
	}
	m.entries = append([]Entry{e}, m.entries...)
	return e, nil
}

func (m *MemoryStore) LookupByPhone(ctx context.Context, phone string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Phone == phone {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) DeleteByIDs(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = without(m.entries, ids)
	return nil
}

func (m *MemoryStore) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

// without returns entries whose id is not in ids, keeping their order.
func without(entries []Entry, ids []string) []Entry {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := drop[e.ID]; !ok {
			out = append(out, e)
		}
	}
	return out
}
