package handlers

import (
	"net/http"
	"strings"

	"github.com/census-resolver/internal/cache"
	"github.com/census-resolver/internal/census"
)

// DataHandler serves statistical table data through the cached upstream
// client.
type DataHandler struct {
	Client *census.Client
}

// GetData fetches rows for a dataset/year/variable request. The
// geography scope arrives as the raw for/in fragments resolved earlier
// by the geography search.
func (h *DataHandler) GetData(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	dataset := query.Get("dataset")
	if dataset == "" {
		http.Error(w, "dataset required", http.StatusBadRequest)
		return
	}
	year := parseIntParam(query.Get("year"), 0)
	if year == 0 {
		http.Error(w, "year required", http.StatusBadRequest)
		return
	}
	forParam := query.Get("for")
	if forParam == "" {
		http.Error(w, "for required", http.StatusBadRequest)
		return
	}

	req := cache.Request{
		Dataset: dataset,
		Group:   query.Get("group"),
		Year:    year,
		Geography: cache.Geography{
			For: forParam,
			In:  query["in"],
		},
	}
	if vars := query.Get("vars"); vars != "" {
		req.Variables = strings.Split(vars, ",")
	}
	if req.Group == "" && len(req.Variables) == 0 {
		http.Error(w, "group or vars required", http.StatusBadRequest)
		return
	}

	rows, err := h.Client.FetchTable(r.Context(), req)
	if err != nil {
		http.Error(w, "Upstream fetch failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, rows)
}
