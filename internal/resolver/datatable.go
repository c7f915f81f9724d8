package resolver

import (
	"context"
	"strings"

	"github.com/census-resolver/internal/store"
)

// TableQuery is a data-table search request. At least one of IDPrefix,
// LabelQuery or DatasetScope must be set; the dispatch layer rejects
// requests with none before they reach this resolver.
type TableQuery struct {
	IDPrefix     string
	LabelQuery   string
	DatasetScope string
	Limit        int
}

// TableDataset is one dataset a result table appears in. Label is set
// only when the dataset brands the table differently from its canonical
// label.
type TableDataset struct {
	DatasetID    string `json:"dataset"`
	DatasetParam string `json:"dataset_param"`
	Year         *int   `json:"year,omitempty"`
	Label        string `json:"label,omitempty"`
}

// TableResult is one de-duplicated data table with every dataset-year
// it appears in.
type TableResult struct {
	TableID  string         `json:"table_id"`
	Label    string         `json:"label"`
	Datasets []TableDataset `json:"datasets"`
}

// DataTableResolver resolves id prefixes, fuzzy label queries and
// dataset scopes to ranked data tables.
type DataTableResolver struct {
	store store.Store
}

// NewDataTableResolver creates a data table resolver
func NewDataTableResolver(st store.Store) *DataTableResolver {
	return &DataTableResolver{store: st}
}

// Search selects up to Limit distinct tables matching the query's
// filters conjunctively, then enriches each with all of its dataset
// joins ordered by year. The limit applies to tables, not join rows.
// An empty candidate set yields an empty list, never an error.
func (r *DataTableResolver) Search(ctx context.Context, q TableQuery) ([]TableResult, error) {
	filter := store.TableFilter{
		IDPrefix:     strings.TrimSpace(q.IDPrefix),
		LabelQuery:   strings.TrimSpace(q.LabelQuery),
		DatasetScope: strings.TrimSpace(q.DatasetScope),
		Limit:        clampLimit(q.Limit),
	}

	candidates, err := r.store.SearchTableCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}

	results := make([]TableResult, 0, len(candidates))
	for _, c := range candidates {
		joins, err := r.store.TableDatasets(ctx, c.TableID)
		if err != nil {
			return nil, err
		}

		result := TableResult{
			TableID:  c.TableID,
			Label:    c.Label,
			Datasets: make([]TableDataset, 0, len(joins)),
		}
		for _, j := range joins {
			ds := TableDataset{
				DatasetID:    j.DatasetID,
				DatasetParam: j.DatasetParam,
				Year:         j.Year,
			}
			// A join label matching the canonical label (ignoring case
			// and whitespace) is not a variant and stays omitted.
			if j.Label != nil && !equivalentLabels(*j.Label, c.Label) {
				ds.Label = *j.Label
			}
			result.Datasets = append(result.Datasets, ds)
		}
		results = append(results, result)
	}
	return results, nil
}

// equivalentLabels reports whether two labels differ only by case or
// whitespace.
func equivalentLabels(a, b string) bool {
	return strings.EqualFold(collapseSpaces(a), collapseSpaces(b))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
