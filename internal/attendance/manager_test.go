package attendance

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"checkin/internal/feed"
)

// fakeStore is a MemoryStore with injectable failures.
type fakeStore struct {
	*MemoryStore
	listErr   error
	insertErr error
	deleteErr error
	inserts   int
	deletes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: NewMemoryStore()}
}

func (f *fakeStore) ListAll(ctx context.Context) ([]Entry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryStore.ListAll(ctx)
}

func (f *fakeStore) Insert(ctx context.Context, s Submission) (Entry, error) {
	f.inserts++
	if f.insertErr != nil {
		return Entry{}, f.insertErr
	}
	return f.MemoryStore.Insert(ctx, s)
}

func (f *fakeStore) DeleteByIDs(ctx context.Context, ids []string) error {
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryStore.DeleteByIDs(ctx, ids)
}

func (f *fakeStore) DeleteAll(ctx context.Context) error {
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryStore.DeleteAll(ctx)
}

const testSecret = "KOBINA2025ADMIN"

func newTestManager(t *testing.T) (*Manager, *fakeStore, *MemoryCache) {
	t.Helper()
	store := newFakeStore()
	cache := NewMemoryCache()
	m := NewManager(store, cache, nil, Options{AdminSecret: testSecret, MinPhoneLength: 7})
	return m, store, cache
}

func sub(first, last, phone string) Submission {
	return Submission{FirstName: first, LastName: last, Phone: phone}
}

// seed submits n distinct entries and returns the resulting list.
func seed(t *testing.T, m *Manager, n int) []Entry {
	t.Helper()
	for i := 0; i < n; i++ {
		_, res := m.Submit(context.Background(), sub(fmt.Sprintf("First%d", i), "Last", fmt.Sprintf("055500%04d", i)))
		if !res.OK() {
			t.Fatalf("seed submit %d: %v", i, res.Err)
		}
	}
	return m.Entries()
}

func cached(t *testing.T, c *MemoryCache) []Entry {
	t.Helper()
	entries, ok := c.Read(context.Background())
	if !ok {
		t.Fatalf("cache is empty")
	}
	return entries
}

func TestSubmitPrependsEntry(t *testing.T) {
	m, _, cache := newTestManager(t)
	seed(t, m, 3)

	entry, res := m.Submit(context.Background(), Submission{
		FirstName: "  Alice ", LastName: "Smith", Phone: " 555-0001 ", Gender: GenderFemale,
	})
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Outcome, res.Err)
	}
	if entry.ID == "" || entry.Timestamp.IsZero() {
		t.Fatalf("store did not assign id/timestamp: %+v", entry)
	}
	if entry.FirstName != "Alice" || entry.Phone != "555-0001" {
		t.Errorf("fields not trimmed: %+v", entry)
	}

	list := m.Entries()
	if len(list) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(list))
	}
	if list[0].ID != entry.ID {
		t.Errorf("new entry not at index 0")
	}
	if got := cached(t, cache); len(got) != 4 || got[0].ID != entry.ID {
		t.Errorf("cache not rewritten with full list: %d entries", len(got))
	}
}

func TestSubmitDuplicatePhone(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, res := m.Submit(context.Background(), sub("Bob", "Lee", "5550002000")); !res.OK() {
		t.Fatalf("first submit: %v", res.Err)
	}
	before := m.Len()

	_, res := m.Submit(context.Background(), sub("Robert", "Lee", "5550002000"))
	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", res.Outcome)
	}
	if !errors.Is(res.Err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", res.Err)
	}
	if m.Len() != before {
		t.Errorf("list length changed from %d to %d", before, m.Len())
	}
}

func TestSubmitInvalidSkipsStore(t *testing.T) {
	cases := []struct {
		name string
		in   Submission
		opts Options
	}{
		{"missing first", sub("", "Lee", "5550002000"), Options{}},
		{"blank last", sub("Bob", "   ", "5550002000"), Options{}},
		{"missing phone", sub("Bob", "Lee", ""), Options{}},
		{"short phone", sub("Bob", "Lee", "12345"), Options{MinPhoneLength: 10}},
		{"bad gender", Submission{FirstName: "Bob", LastName: "Lee", Phone: "5550002000", Gender: "Other"}, Options{}},
		{"gender required", sub("Bob", "Lee", "5550002000"), Options{GenderRequired: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			m := NewManager(store, NewMemoryCache(), nil, tc.opts)
			_, res := m.Submit(context.Background(), tc.in)
			if res.Outcome != OutcomeInvalid {
				t.Fatalf("expected invalid, got %s", res.Outcome)
			}
			var verr *ValidationError
			if !errors.As(res.Err, &verr) || !errors.Is(res.Err, ErrInvalid) {
				t.Errorf("expected *ValidationError wrapping ErrInvalid, got %v", res.Err)
			}
			if store.inserts != 0 {
				t.Errorf("store called %d times for invalid input", store.inserts)
			}
			if m.Len() != 0 {
				t.Errorf("state mutated")
			}
		})
	}
}

func TestSubmitGenderOptional(t *testing.T) {
	m, _, _ := newTestManager(t)
	entry, res := m.Submit(context.Background(), sub("Jo", "Ann", "1234567"))
	if !res.OK() {
		t.Fatalf("submit without gender: %v", res.Err)
	}
	if entry.Gender != "" {
		t.Errorf("expected no gender, got %q", entry.Gender)
	}
}

func TestSubmitStoreFailure(t *testing.T) {
	m, store, cache := newTestManager(t)
	seed(t, m, 2)
	store.insertErr = errors.New("connection refused")

	_, res := m.Submit(context.Background(), sub("Carl", "Nkansah", "5550003000"))
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if m.Len() != 2 || len(cached(t, cache)) != 2 {
		t.Errorf("failed submit touched local state")
	}
}

func TestDeleteManyKeepsOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 25; round++ {
		m, _, cache := newTestManager(t)
		// At least one entry so the seeding submits leave a cache slot behind even when
		// nothing is dropped.
		list := seed(t, m, 1+rng.Intn(11))

		var drop []string
		dropped := map[string]bool{}
		for _, e := range list {
			if rng.Intn(2) == 0 {
				drop = append(drop, e.ID)
				dropped[e.ID] = true
			}
		}

		if res := m.DeleteMany(context.Background(), drop); !res.OK() {
			t.Fatalf("round %d: delete failed: %v", round, res.Err)
		}

		var want []Entry
		for _, e := range list {
			if !dropped[e.ID] {
				want = append(want, e)
			}
		}
		got := m.Entries()
		if len(got) != len(list)-len(drop) {
			t.Fatalf("round %d: expected %d entries, got %d", round, len(list)-len(drop), len(got))
		}
		for i := range want {
			if got[i].ID != want[i].ID {
				t.Fatalf("round %d: order broken at %d", round, i)
			}
		}
		if len(cached(t, cache)) != len(got) {
			t.Errorf("round %d: cache not rewritten", round)
		}
	}
}

func TestDeleteManyFailureLeavesState(t *testing.T) {
	m, store, cache := newTestManager(t)
	list := seed(t, m, 4)
	store.deleteErr = errors.New("timeout")

	res := m.DeleteMany(context.Background(), []string{list[0].ID, list[2].ID})
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if m.Len() != 4 || len(cached(t, cache)) != 4 {
		t.Errorf("failed delete touched local state")
	}
}

func TestDeleteManyEmptyIsNoop(t *testing.T) {
	m, store, _ := newTestManager(t)
	seed(t, m, 2)
	if res := m.DeleteMany(context.Background(), nil); !res.OK() {
		t.Fatalf("empty delete: %v", res.Err)
	}
	if store.deletes != 0 {
		t.Errorf("store called for empty delete")
	}
}

func TestClearAllWrongKey(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		for _, key := range []string{"", "wrong", testSecret + " ", "kobina2025admin"} {
			m, store, _ := newTestManager(t)
			seed(t, m, n)
			res := m.ClearAll(context.Background(), key)
			if res.Outcome != OutcomeForbidden || !errors.Is(res.Err, ErrForbidden) {
				t.Fatalf("key %q: expected forbidden, got %s", key, res.Outcome)
			}
			if m.Len() != n {
				t.Errorf("key %q: list length changed to %d", key, m.Len())
			}
			if store.deletes != 0 {
				t.Errorf("key %q: store mutated", key)
			}
		}
	}
}

func TestClearAllIdempotent(t *testing.T) {
	m, store, cache := newTestManager(t)
	seed(t, m, 3)

	for i := 0; i < 2; i++ {
		if res := m.ClearAll(context.Background(), testSecret); !res.OK() {
			t.Fatalf("clear %d: %v", i, res.Err)
		}
		if m.Len() != 0 {
			t.Errorf("clear %d: list not empty", i)
		}
		if got := cached(t, cache); len(got) != 0 {
			t.Errorf("clear %d: cache holds %d entries", i, len(got))
		}
	}
	if remote, _ := store.MemoryStore.ListAll(context.Background()); len(remote) != 0 {
		t.Errorf("remote store still holds %d entries", len(remote))
	}
}

func TestClearAllStoreFailure(t *testing.T) {
	m, store, _ := newTestManager(t)
	seed(t, m, 2)
	store.deleteErr = errors.New("server error")
	if res := m.ClearAll(context.Background(), testSecret); res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if m.Len() != 2 {
		t.Errorf("failed clear touched local state")
	}
}

func TestClearAllWithoutSecret(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, NewMemoryCache(), nil, Options{})
	seed(t, m, 1)

	// An unset secret matches nothing, not even the empty key.
	if m.AdminKeyMatches("") {
		t.Fatal("empty key matched an unset secret")
	}
	for _, key := range []string{"", " ", testSecret} {
		if res := m.ClearAll(context.Background(), key); res.Outcome != OutcomeForbidden {
			t.Fatalf("key %q: expected forbidden with no secret configured, got %s", key, res.Outcome)
		}
	}
	if m.Len() != 1 || store.deletes != 0 {
		t.Errorf("forbidden clear reached the store (deletes=%d, len=%d)", store.deletes, m.Len())
	}
}

func TestLoadReplacesList(t *testing.T) {
	m, store, cache := newTestManager(t)
	seed(t, m, 2)
	// Another instance writes directly to the store.
	if _, err := store.MemoryStore.Insert(context.Background(), sub("Ama", "Owusu", "5550009999")); err != nil {
		t.Fatal(err)
	}

	list, source := m.Load(context.Background())
	if source != SourceRemote {
		t.Fatalf("expected remote source, got %s", source)
	}
	if len(list) != 3 || m.Len() != 3 || list[0].FirstName != "Ama" {
		t.Errorf("list not replaced from store: %+v", list)
	}
	if len(cached(t, cache)) != 3 {
		t.Errorf("cache not written on load")
	}
}

func TestLoadFallsBackToCache(t *testing.T) {
	m, store, cache := newTestManager(t)
	want := seed(t, m, 3)
	store.listErr = errors.New("network down")

	// Another manager with the same cache, as after a restart.
	fresh := NewManager(store, cache, nil, Options{})
	list, source := fresh.Load(context.Background())
	if source != SourceCache {
		t.Fatalf("expected cache source, got %s", source)
	}
	if len(list) != len(want) {
		t.Fatalf("expected %d cached entries, got %d", len(want), len(list))
	}
	for i := range want {
		if list[i].ID != want[i].ID || !list[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("cached entry %d differs", i)
		}
	}
}

func TestLoadEmptyOrCorruptCache(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("network down")

	m := NewManager(store, NewMemoryCache(), nil, Options{})
	list, source := m.Load(context.Background())
	if source != SourceEmpty || len(list) != 0 {
		t.Errorf("empty cache: got %s with %d entries", source, len(list))
	}

	corrupt := NewMemoryCache()
	corrupt.raw = []byte(`[{"id": "a"`)
	m = NewManager(store, corrupt, nil, Options{})
	list, source = m.Load(context.Background())
	if source != SourceEmpty || len(list) != 0 {
		t.Errorf("corrupt cache: got %s with %d entries", source, len(list))
	}
}

func TestManagerPublishesChanges(t *testing.T) {
	bus := feed.NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, unsubscribe, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	m := NewManager(newFakeStore(), NewMemoryCache(), bus, Options{AdminSecret: testSecret})
	entry, res := m.Submit(ctx, sub("Kofi", "Mensah", "5550001111"))
	if !res.OK() {
		t.Fatal(res.Err)
	}
	m.DeleteMany(ctx, []string{entry.ID})
	m.ClearAll(ctx, testSecret)

	want := []feed.ChangeType{feed.Insert, feed.Delete, feed.Clear}
	for _, typ := range want {
		select {
		case c := <-changes:
			if c.Type != typ {
				t.Errorf("expected %s change, got %s", typ, c.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("no %s change published", typ)
		}
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	m, _, _ := newTestManager(t)
	seed(t, m, 2)
	list := m.Entries()
	list[0].FirstName = "Changed"
	if m.Entries()[0].FirstName == "Changed" {
		t.Errorf("Entries exposes internal slice")
	}
}
