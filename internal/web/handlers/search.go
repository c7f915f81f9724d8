package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/census-resolver/internal/resolver"
	"github.com/census-resolver/internal/store"
)

// SearchHandler handles the resolution endpoints
type SearchHandler struct {
	SummaryLevels *resolver.SummaryLevelResolver
	Geographies   *resolver.GeographyResolver
	Tables        *resolver.DataTableResolver
}

// SearchSummaryLevels resolves a free-text or numeric query to summary
// levels.
func (h *SearchHandler) SearchSummaryLevels(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	searchTerm := query.Get("q")
	if searchTerm == "" {
		http.Error(w, "Search term required", http.StatusBadRequest)
		return
	}
	limit := parseIntParam(query.Get("limit"), resolver.DefaultSummaryLevelLimit)

	matches, err := h.SummaryLevels.Search(r.Context(), searchTerm, limit)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []store.SummaryLevelMatch{}
	}
	writeJSON(w, matches)
}

// SearchGeographies resolves a place-name query, optionally scoped to
// one summary level via the "level" parameter.
func (h *SearchHandler) SearchGeographies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	searchTerm := query.Get("q")
	if searchTerm == "" {
		http.Error(w, "Search term required", http.StatusBadRequest)
		return
	}
	limit := parseIntParam(query.Get("limit"), resolver.DefaultSearchLimit)

	var (
		matches []store.GeographyMatch
		err     error
	)
	if level := query.Get("level"); level != "" {
		matches, err = h.Geographies.SearchWithinLevel(r.Context(), searchTerm, level, limit)
	} else {
		matches, err = h.Geographies.Search(r.Context(), searchTerm, limit)
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []store.GeographyMatch{}
	}
	writeJSON(w, matches)
}

// SearchTables resolves an id prefix, fuzzy label query and/or dataset
// scope to data tables. At least one filter is required.
func (h *SearchHandler) SearchTables(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := resolver.TableQuery{
		IDPrefix:     query.Get("id"),
		LabelQuery:   query.Get("q"),
		DatasetScope: query.Get("dataset"),
		Limit:        parseIntParam(query.Get("limit"), resolver.DefaultSearchLimit),
	}
	if q.IDPrefix == "" && q.LabelQuery == "" && q.DatasetScope == "" {
		http.Error(w, "At least one of id, q, dataset required", http.StatusBadRequest)
		return
	}

	results, err := h.Tables.Search(r.Context(), q)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []resolver.TableResult{}
	}
	writeJSON(w, results)
}

// parseIntParam parses a string parameter as int with default value
func parseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultVal
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
