// Package resolver maps free-text, human-entered queries to canonical
// reference records. Each resolver is a stateless front over a
// store.Store; ranking semantics live in the store queries so that both
// backends stay in lockstep.
package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/census-resolver/internal/store"
)

// DefaultSummaryLevelLimit bounds summary-level results unless the
// caller asks for more.
const DefaultSummaryLevelLimit = 5

var numericQuery = regexp.MustCompile(`^[0-9]+$`)

// SummaryLevelResolver resolves queries like "county" or "40" to
// summary levels.
type SummaryLevelResolver struct {
	store store.Store
}

// NewSummaryLevelResolver creates a summary level resolver
func NewSummaryLevelResolver(st store.Store) *SummaryLevelResolver {
	return &SummaryLevelResolver{store: st}
}

// Search returns summary levels matching a free-text or numeric query,
// ordered by match confidence. A purely numeric query is zero-padded to
// the 3-character code form, so "40" finds code "040". No match means
// an empty result, never an error; callers fall back to the unscoped
// geography search.
func (r *SummaryLevelResolver) Search(ctx context.Context, query string, limit int) ([]store.SummaryLevelMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSummaryLevelLimit
	}

	code := ""
	if numericQuery.MatchString(query) {
		code = zeroPadCode(query)
	}

	return r.store.SearchSummaryLevels(ctx, query, code, limit)
}

// zeroPadCode left-pads a numeric query to the 3-character code form.
// Queries already 3 characters or longer pass through unchanged.
func zeroPadCode(q string) string {
	for len(q) < 3 {
		q = "0" + q
	}
	return q
}
