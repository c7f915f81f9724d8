package store

import (
	"context"
	"time"
)

// SummaryLevel is a category of geography (state, county, place, ...)
// with a hierarchy rank used to break similarity ties. Lower rank means
// higher priority; unranked levels carry the default rank 99.
type SummaryLevel struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Description   *string `json:"description,omitempty"`
	HierarchyRank int     `json:"hierarchy_rank"`
	ParentCode    *string `json:"parent_code,omitempty"`
}

// Geography is a named place with optional coordinates and the opaque
// query fragments the upstream API consumes.
type Geography struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	SummaryLevelCode *string  `json:"summary_level_code,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	ForParam         string   `json:"for_param"`
	InParam          string   `json:"in_param"`
}

// SummaryLevelMatch is one ranked summary-level search result.
type SummaryLevelMatch struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// GeographyMatch is one ranked geography search result. SummaryLevelName
// is empty when the geography has no resolvable summary level.
type GeographyMatch struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	SummaryLevelName string   `json:"summary_level"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	ForParam         string   `json:"for_param"`
	InParam          string   `json:"in_param"`
	Score            float64  `json:"score"`
}

// TableCandidate is a distinct data table selected by the candidate
// stage of a table search, before dataset enrichment.
type TableCandidate struct {
	TableID string
	Label   string
}

// DatasetJoin is one dataset a data table appears in. Label is nil when
// the join carries no label of its own.
type DatasetJoin struct {
	DatasetID    string
	DatasetParam string
	Year         *int
	Label        *string
}

// TableFilter is the conjunctive filter set for the table candidate
// stage. At least one of IDPrefix, LabelQuery, DatasetScope must be set;
// enforcing that is the dispatch layer's job.
type TableFilter struct {
	IDPrefix     string
	LabelQuery   string
	DatasetScope string
	Limit        int
}

// CachedResult is a previously fetched tabular result set.
type CachedResult struct {
	Rows     [][]string
	RowCount int
}

// Store is the read-mostly reference store behind every resolver. Two
// implementations exist: PostgresStore uses the engine's native
// similarity operator, SQLiteStore runs against a read-only snapshot
// with the Go trigram function registered as a SQL function. Both must
// expose identical query semantics; the shared conformance tests in
// this package are the contract.
type Store interface {
	// SearchSummaryLevels ranks summary levels against a trimmed name
	// query and an optional zero-padded code (empty when the query is
	// not numeric). Exact code/name matches score 1.0 at tier 1 and
	// always precede fuzzy tier-3 matches.
	SearchSummaryLevels(ctx context.Context, name, code string, limit int) ([]SummaryLevelMatch, error)

	// SearchGeographies ranks geographies across all summary levels,
	// boosting each candidate's similarity by (1 - hierarchyRank/100).
	SearchGeographies(ctx context.Context, term string, limit int) ([]GeographyMatch, error)

	// SearchGeographiesByLevel ranks geographies within one summary
	// level by plain similarity.
	SearchGeographiesByLevel(ctx context.Context, term, levelCode string, limit int) ([]GeographyMatch, error)

	// SearchTableCandidates selects up to filter.Limit distinct data
	// tables matching the conjunctive filters.
	SearchTableCandidates(ctx context.Context, filter TableFilter) ([]TableCandidate, error)

	// TableDatasets returns every dataset join for a table, ordered by
	// year ascending (NULL years first on both backends).
	TableDatasets(ctx context.Context, tableID string) ([]DatasetJoin, error)

	// CacheGet returns the live cached result for a fingerprint, or
	// ok=false when no entry exists or the entry has expired. Expiry is
	// honored on read; it never depends on a sweep having run.
	CacheGet(ctx context.Context, fingerprint string) (CachedResult, bool, error)

	// CachePut upserts the cache entry for a fingerprint. At most one
	// entry exists per fingerprint; concurrent writers race safely with
	// last-writer-wins.
	CachePut(ctx context.Context, fingerprint string, rows [][]string, ttl time.Duration) error

	// CacheSweep physically removes expired entries and reports how
	// many were deleted. Readers do not depend on it.
	CacheSweep(ctx context.Context) (int64, error)

	// Counts reports row counts per reference table, for diagnostics.
	Counts(ctx context.Context) (map[string]int64, error)

	Close() error
}
