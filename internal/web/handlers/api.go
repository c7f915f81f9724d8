package handlers

import (
	"net/http"

	"github.com/census-resolver/internal/store"
)

// APIHandler handles general API endpoints
type APIHandler struct {
	Store store.Store
}

// StatsResponse reports reference-data volumes and cache health.
type StatsResponse struct {
	SummaryLevels int64 `json:"summary_levels"`
	Geographies   int64 `json:"geographies"`
	DataTables    int64 `json:"data_tables"`
	Datasets      int64 `json:"datasets"`
	TableDatasets int64 `json:"table_datasets"`
	CacheEntries  int64 `json:"cache_entries"`
}

// GetStats returns row counts for each reference table and the cache.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.Counts(r.Context())
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	stats := StatsResponse{
		SummaryLevels: counts["summary_levels"],
		Geographies:   counts["geographies"],
		DataTables:    counts["data_tables"],
		Datasets:      counts["datasets"],
		TableDatasets: counts["table_datasets"],
		CacheEntries:  counts["api_cache"],
	}
	writeJSON(w, stats)
}
