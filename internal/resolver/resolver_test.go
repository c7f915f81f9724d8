package resolver

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/census-resolver/internal/store"
)

// fakeStore records the arguments each resolver passes down and returns
// canned rows.
type fakeStore struct {
	levelName  string
	levelCode  string
	levelLimit int

	geoTerm  string
	geoLevel string
	geoLimit int

	tableFilter store.TableFilter

	levels     []store.SummaryLevelMatch
	geos       []store.GeographyMatch
	candidates []store.TableCandidate
	joins      map[string][]store.DatasetJoin

	calls int
}

func (f *fakeStore) SearchSummaryLevels(ctx context.Context, name, code string, limit int) ([]store.SummaryLevelMatch, error) {
	f.calls++
	f.levelName, f.levelCode, f.levelLimit = name, code, limit
	return f.levels, nil
}

func (f *fakeStore) SearchGeographies(ctx context.Context, term string, limit int) ([]store.GeographyMatch, error) {
	f.calls++
	f.geoTerm, f.geoLimit = term, limit
	return f.geos, nil
}

func (f *fakeStore) SearchGeographiesByLevel(ctx context.Context, term, levelCode string, limit int) ([]store.GeographyMatch, error) {
	f.calls++
	f.geoTerm, f.geoLevel, f.geoLimit = term, levelCode, limit
	return f.geos, nil
}

func (f *fakeStore) SearchTableCandidates(ctx context.Context, filter store.TableFilter) ([]store.TableCandidate, error) {
	f.calls++
	f.tableFilter = filter
	return f.candidates, nil
}

func (f *fakeStore) TableDatasets(ctx context.Context, tableID string) ([]store.DatasetJoin, error) {
	return f.joins[tableID], nil
}

func (f *fakeStore) CacheGet(ctx context.Context, fingerprint string) (store.CachedResult, bool, error) {
	return store.CachedResult{}, false, nil
}

func (f *fakeStore) CachePut(ctx context.Context, fingerprint string, rows [][]string, ttl time.Duration) error {
	return nil
}

func (f *fakeStore) CacheSweep(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeStore) Counts(ctx context.Context) (map[string]int64, error) { return nil, nil }

func (f *fakeStore) Close() error { return nil }

func TestSummaryLevelSearchZeroPadsNumericQueries(t *testing.T) {
	tests := []struct {
		query    string
		wantName string
		wantCode string
	}{
		{"40", "40", "040"},
		{"4", "4", "004"},
		{"040", "040", "040"},
		{"0400", "0400", "0400"},
		{"county", "county", ""},
		{"  county  ", "county", ""},
	}

	for _, tt := range tests {
		fake := &fakeStore{}
		r := NewSummaryLevelResolver(fake)

		if _, err := r.Search(context.Background(), tt.query, 5); err != nil {
			t.Fatalf("Search(%q) failed: %v", tt.query, err)
		}
		if fake.levelName != tt.wantName {
			t.Errorf("Search(%q) passed name %q, want %q", tt.query, fake.levelName, tt.wantName)
		}
		if fake.levelCode != tt.wantCode {
			t.Errorf("Search(%q) passed code %q, want %q", tt.query, fake.levelCode, tt.wantCode)
		}
	}
}

func TestSummaryLevelSearchEmptyQuery(t *testing.T) {
	fake := &fakeStore{}
	r := NewSummaryLevelResolver(fake)

	matches, err := r.Search(context.Background(), "   ", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if matches != nil {
		t.Errorf("got %v, want nil", matches)
	}
	if fake.calls != 0 {
		t.Error("store queried for an empty query")
	}
}

func TestSummaryLevelSearchDefaultLimit(t *testing.T) {
	fake := &fakeStore{}
	r := NewSummaryLevelResolver(fake)

	if _, err := r.Search(context.Background(), "state", 0); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if fake.levelLimit != DefaultSummaryLevelLimit {
		t.Errorf("limit = %d, want %d", fake.levelLimit, DefaultSummaryLevelLimit)
	}
}

func TestGeographySearchLimitClamping(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultSearchLimit},
		{-3, DefaultSearchLimit},
		{7, 7},
		{MaxSearchLimit, MaxSearchLimit},
		{500, MaxSearchLimit},
	}

	for _, tt := range tests {
		fake := &fakeStore{}
		r := NewGeographyResolver(fake)

		if _, err := r.Search(context.Background(), "springfield", tt.limit); err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if fake.geoLimit != tt.want {
			t.Errorf("limit %d passed to store as %d, want %d", tt.limit, fake.geoLimit, tt.want)
		}
	}
}

func TestGeographySearchTrimsTerm(t *testing.T) {
	fake := &fakeStore{}
	r := NewGeographyResolver(fake)

	if _, err := r.Search(context.Background(), "  philadelphia  ", 10); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if fake.geoTerm != "philadelphia" {
		t.Errorf("term = %q, want trimmed", fake.geoTerm)
	}
}

func TestGeographySearchWithinLevel(t *testing.T) {
	fake := &fakeStore{}
	r := NewGeographyResolver(fake)

	if _, err := r.SearchWithinLevel(context.Background(), "philadelphia", "160", 10); err != nil {
		t.Fatalf("SearchWithinLevel failed: %v", err)
	}
	if fake.geoLevel != "160" {
		t.Errorf("level = %q, want 160", fake.geoLevel)
	}

	matches, err := r.SearchWithinLevel(context.Background(), "", "160", 10)
	if err != nil || matches != nil {
		t.Errorf("empty term: got %v, %v; want nil, nil", matches, err)
	}
}

func TestDataTableSearchVariantLabels(t *testing.T) {
	year2020, year2021 := 2020, 2021
	variant := "Nativity and Language"
	sameButCased := "NATIVITY BY  LANGUAGE SPOKEN AT HOME"

	fake := &fakeStore{
		candidates: []store.TableCandidate{
			{TableID: "B16005", Label: "Nativity by Language Spoken at Home"},
		},
		joins: map[string][]store.DatasetJoin{
			"B16005": {
				{DatasetID: "acs5", DatasetParam: "acs/acs5", Year: &year2020},
				{DatasetID: "acs5", DatasetParam: "acs/acs5", Year: &year2021, Label: &sameButCased},
				{DatasetID: "acs1", DatasetParam: "acs/acs1", Year: &year2021, Label: &variant},
			},
		},
	}
	r := NewDataTableResolver(fake)

	results, err := r.Search(context.Background(), TableQuery{IDPrefix: "B16005", Limit: 20})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	ds := results[0].Datasets
	if len(ds) != 3 {
		t.Fatalf("got %d datasets, want 3: %+v", len(ds), ds)
	}
	if ds[0].Label != "" {
		t.Errorf("join without a label produced %q", ds[0].Label)
	}
	// Differs only by case and spacing, so it is not a variant.
	if ds[1].Label != "" {
		t.Errorf("case-variant label surfaced as %q, want omitted", ds[1].Label)
	}
	if ds[2].Label != variant {
		t.Errorf("variant label = %q, want %q", ds[2].Label, variant)
	}
}

func TestDataTableSearchFilterPassthrough(t *testing.T) {
	fake := &fakeStore{}
	r := NewDataTableResolver(fake)

	_, err := r.Search(context.Background(), TableQuery{
		IDPrefix:     " B01001 ",
		LabelQuery:   " sex by age ",
		DatasetScope: " acs5 ",
		Limit:        9999,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := store.TableFilter{
		IDPrefix:     "B01001",
		LabelQuery:   "sex by age",
		DatasetScope: "acs5",
		Limit:        MaxSearchLimit,
	}
	if !reflect.DeepEqual(fake.tableFilter, want) {
		t.Errorf("filter = %+v, want %+v", fake.tableFilter, want)
	}
}

func TestEquivalentLabels(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Sex by Age", "SEX BY AGE", true},
		{"Sex  by   Age", "Sex by Age", true},
		{" Sex by Age ", "Sex by Age", true},
		{"Sex by Age", "Sex by Age (White Alone)", false},
		{"", "", true},
	}

	for _, tt := range tests {
		if got := equivalentLabels(tt.a, tt.b); got != tt.want {
			t.Errorf("equivalentLabels(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
