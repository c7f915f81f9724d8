package resolver

import (
	"context"
	"strings"

	"github.com/census-resolver/internal/store"
)

// Result limits shared by the geography and data-table resolvers.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// GeographyResolver resolves place-name queries to ranked geography
// records.
type GeographyResolver struct {
	store store.Store
}

// NewGeographyResolver creates a geography resolver
func NewGeographyResolver(st store.Store) *GeographyResolver {
	return &GeographyResolver{store: st}
}

// Search ranks geographies across all summary levels. Each candidate's
// similarity score is boosted by up to ~1 according to its summary
// level's hierarchy rank, so a county named like the query can outrank
// an equally similar minor place.
func (r *GeographyResolver) Search(ctx context.Context, term string, limit int) ([]store.GeographyMatch, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	return r.store.SearchGeographies(ctx, term, clampLimit(limit))
}

// SearchWithinLevel ranks geographies inside one summary level by plain
// similarity. Rows from other levels are never returned.
func (r *GeographyResolver) SearchWithinLevel(ctx context.Context, term, summaryLevelCode string, limit int) ([]store.GeographyMatch, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	return r.store.SearchGeographiesByLevel(ctx, term, summaryLevelCode, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}
