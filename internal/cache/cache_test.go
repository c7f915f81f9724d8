package cache

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/census-resolver/internal/store"
)

// memStore is an in-memory Store carrying just the cache surface.
type memStore struct {
	mu      sync.Mutex
	entries map[string]store.CachedResult
	ttls    map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		entries: make(map[string]store.CachedResult),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *memStore) CacheGet(ctx context.Context, fingerprint string) (store.CachedResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.entries[fingerprint]
	return result, ok, nil
}

func (m *memStore) CachePut(ctx context.Context, fingerprint string, rows [][]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[fingerprint] = store.CachedResult{Rows: rows, RowCount: len(rows)}
	m.ttls[fingerprint] = ttl
	return nil
}

func (m *memStore) CacheSweep(ctx context.Context) (int64, error) { return 0, nil }

func (m *memStore) SearchSummaryLevels(ctx context.Context, name, code string, limit int) ([]store.SummaryLevelMatch, error) {
	return nil, nil
}

func (m *memStore) SearchGeographies(ctx context.Context, term string, limit int) ([]store.GeographyMatch, error) {
	return nil, nil
}

func (m *memStore) SearchGeographiesByLevel(ctx context.Context, term, levelCode string, limit int) ([]store.GeographyMatch, error) {
	return nil, nil
}

func (m *memStore) SearchTableCandidates(ctx context.Context, filter store.TableFilter) ([]store.TableCandidate, error) {
	return nil, nil
}

func (m *memStore) TableDatasets(ctx context.Context, tableID string) ([]store.DatasetJoin, error) {
	return nil, nil
}

func (m *memStore) Counts(ctx context.Context) (map[string]int64, error) { return nil, nil }

func (m *memStore) Close() error { return nil }

func sampleRequest() Request {
	return Request{
		Dataset:   "acs/acs5",
		Year:      2021,
		Variables: []string{"NAME", "B01001_001E"},
		Geography: Geography{For: "state:42"},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := sampleRequest()
	b := sampleRequest()

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical requests produced different fingerprints")
	}
	if len(a.Fingerprint()) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a.Fingerprint()))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := sampleRequest()

	variants := map[string]Request{}

	reordered := sampleRequest()
	reordered.Variables = []string{"B01001_001E", "NAME"}
	variants["variable order"] = reordered

	year := sampleRequest()
	year.Year = 2020
	variants["year"] = year

	dataset := sampleRequest()
	dataset.Dataset = "acs/acs1"
	variants["dataset"] = dataset

	scoped := sampleRequest()
	scoped.Geography.In = []string{"state:42"}
	scoped.Geography.For = "county:*"
	variants["geography"] = scoped

	grouped := sampleRequest()
	grouped.Group = "B01001"
	variants["group"] = grouped

	for name, req := range variants {
		if req.Fingerprint() == base.Fingerprint() {
			t.Errorf("changing %s did not change the fingerprint", name)
		}
	}
}

func TestPutThenGet(t *testing.T) {
	st := newMemStore()
	c := New(st)
	req := sampleRequest()

	rows := [][]string{
		{"NAME", "B01001_001E", "state"},
		{"Pennsylvania", "13002700", "42"},
	}

	c.Put(req, rows, time.Hour)
	c.Flush()

	got, ok, err := c.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("entry absent after put and flush")
	}
	if !reflect.DeepEqual(got, rows) {
		t.Errorf("rows = %v, want %v", got, rows)
	}
}

func TestGetMiss(t *testing.T) {
	c := New(newMemStore())

	_, ok, err := c.Get(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Error("got a hit from an empty cache")
	}
}

func TestPutDefaultsTTL(t *testing.T) {
	st := newMemStore()
	c := New(st)
	req := sampleRequest()

	c.Put(req, [][]string{{"NAME"}}, 0)
	c.Flush()

	st.mu.Lock()
	ttl := st.ttls[req.Fingerprint()]
	st.mu.Unlock()
	if ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", ttl, DefaultTTL)
	}
}

func TestFlushWaitsForAllWrites(t *testing.T) {
	st := newMemStore()
	c := New(st)

	reqs := make([]Request, 0, 10)
	for i := 0; i < 10; i++ {
		req := sampleRequest()
		req.Year = 2010 + i
		reqs = append(reqs, req)
		c.Put(req, [][]string{{"NAME"}}, time.Hour)
	}
	c.Flush()

	for _, req := range reqs {
		if _, ok, _ := c.Get(context.Background(), req); !ok {
			t.Errorf("entry for year %d missing after flush", req.Year)
		}
	}
}
