package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/census-resolver/internal/census"
	"github.com/census-resolver/internal/db"
	"github.com/census-resolver/internal/resolver"
	"github.com/census-resolver/internal/store"
)

func newTestSearchHandler(t *testing.T) (*SearchHandler, store.Store) {
	t.Helper()

	conn, err := db.OpenSnapshot(":memory:", false)
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(store.SnapshotSchema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	seed := `
	INSERT INTO summary_levels (code, name, hierarchy_rank) VALUES
		('040', 'State', 1),
		('050', 'County', 2),
		('160', 'Place', 12);

	INSERT INTO geographies (id, name, summary_level_code, for_param, in_param) VALUES
		(1, 'Pennsylvania', '040', 'state:42', ''),
		(2, 'Philadelphia County, Pennsylvania', '050', 'county:101', 'state:42'),
		(3, 'Philadelphia city, Pennsylvania', '160', 'place:60000', 'state:42');

	INSERT INTO data_tables (id, table_id, label) VALUES
		(1, 'B01001', 'Sex by Age');

	INSERT INTO datasets (id, dataset_id, dataset_param, year) VALUES
		(1, 'acs5', 'acs/acs5', 2021);

	INSERT INTO table_datasets (data_table_id, dataset_id, label) VALUES
		(1, 1, NULL);
	`
	if _, err := conn.Exec(seed); err != nil {
		t.Fatalf("failed to seed fixture: %v", err)
	}

	st := store.NewSQLiteStore(conn)
	return &SearchHandler{
		SummaryLevels: resolver.NewSummaryLevelResolver(st),
		Geographies:   resolver.NewGeographyResolver(st),
		Tables:        resolver.NewDataTableResolver(st),
	}, st
}

func TestSearchSummaryLevels(t *testing.T) {
	h, _ := newTestSearchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search/summary-levels?q=40", nil)
	rec := httptest.NewRecorder()
	h.SearchSummaryLevels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var matches []store.SummaryLevelMatch
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(matches) != 1 || matches[0].Code != "040" {
		t.Errorf("matches = %+v, want just 040", matches)
	}
}

func TestSearchSummaryLevelsMissingQuery(t *testing.T) {
	h, _ := newTestSearchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search/summary-levels", nil)
	rec := httptest.NewRecorder()
	h.SearchSummaryLevels(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearchSummaryLevelsNoMatchIsEmptyArray(t *testing.T) {
	h, _ := newTestSearchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search/summary-levels?q=zzzzzz", nil)
	rec := httptest.NewRecorder()
	h.SearchSummaryLevels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want an empty JSON array", body)
	}
}

func TestSearchGeographiesUnscoped(t *testing.T) {
	h, _ := newTestSearchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search/geographies?q=Philadelphia", nil)
	rec := httptest.NewRecorder()
	h.SearchGeographies(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var matches []store.GeographyMatch
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(matches), matches)
	}
	if matches[0].SummaryLevelName != "County" {
		t.Errorf("first match level = %q, want County", matches[0].SummaryLevelName)
	}
}

func TestSearchGeographiesScopedByLevel(t *testing.T) {
	h, _ := newTestSearchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search/geographies?q=Philadelphia&level=160", nil)
	rec := httptest.NewRecorder()
	h.SearchGeographies(rec, req)

	var matches []store.GeographyMatch
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(matches) != 1 || matches[0].ForParam != "place:60000" {
		t.Errorf("matches = %+v, want just the place row", matches)
	}
}

func TestSearchTables(t *testing.T) {
	h, _ := newTestSearchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search/tables?id=B01001", nil)
	rec := httptest.NewRecorder()
	h.SearchTables(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var results []resolver.TableResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(results) != 1 || results[0].TableID != "B01001" {
		t.Fatalf("results = %+v, want just B01001", results)
	}
	if len(results[0].Datasets) != 1 || results[0].Datasets[0].DatasetID != "acs5" {
		t.Errorf("datasets = %+v", results[0].Datasets)
	}
}

func TestSearchTablesRequiresAFilter(t *testing.T) {
	h, _ := newTestSearchHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search/tables", nil)
	rec := httptest.NewRecorder()
	h.SearchTables(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetData(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]interface{}{
			{"NAME", "state"},
			{"Pennsylvania", "42"},
		})
	}))
	defer upstream.Close()

	h := &DataHandler{Client: census.NewClient(nil, census.Options{BaseURL: upstream.URL})}

	req := httptest.NewRequest(http.MethodGet, "/api/data?dataset=acs/acs5&year=2021&vars=NAME&for=state:42", nil)
	rec := httptest.NewRecorder()
	h.GetData(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var rows [][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "Pennsylvania" {
		t.Errorf("rows = %v", rows)
	}
}

func TestGetDataValidation(t *testing.T) {
	h := &DataHandler{}

	tests := []struct {
		name string
		url  string
	}{
		{"missing dataset", "/api/data?year=2021&vars=NAME&for=state:42"},
		{"missing year", "/api/data?dataset=acs/acs5&vars=NAME&for=state:42"},
		{"missing for", "/api/data?dataset=acs/acs5&year=2021&vars=NAME"},
		{"missing group and vars", "/api/data?dataset=acs/acs5&year=2021&for=state:42"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.GetData(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestGetDataUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	h := &DataHandler{Client: census.NewClient(nil, census.Options{BaseURL: upstream.URL})}

	req := httptest.NewRequest(http.MethodGet, "/api/data?dataset=acs/acs5&year=2021&vars=NAME&for=state:42", nil)
	rec := httptest.NewRecorder()
	h.GetData(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	_, st := newTestSearchHandler(t)
	api := &APIHandler{Store: st}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	api.GetStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if stats.SummaryLevels != 3 || stats.Geographies != 3 || stats.DataTables != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExportTable(t *testing.T) {
	_, st := newTestSearchHandler(t)
	h := &ExportHandler{DB: st.(*store.SQLiteStore).DB()}

	router := mux.NewRouter()
	router.HandleFunc("/api/export/{table}", h.ExportTable)

	req := httptest.NewRequest(http.MethodGet, "/api/export/summary-levels", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header plus 3 rows:\n%s", len(lines), rec.Body.String())
	}
	if lines[0] != "code,name,description,hierarchy_rank,parent_code" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "040,State,") {
		t.Errorf("first row = %q", lines[1])
	}
}

func TestExportTableUnknown(t *testing.T) {
	_, st := newTestSearchHandler(t)
	h := &ExportHandler{DB: st.(*store.SQLiteStore).DB()}

	router := mux.NewRouter()
	router.HandleFunc("/api/export/{table}", h.ExportTable)

	req := httptest.NewRequest(http.MethodGet, "/api/export/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
