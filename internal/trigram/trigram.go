package trigram

import "strings"

// DefaultThreshold is the minimum similarity score a candidate must reach
// to be considered a fuzzy match. It mirrors pg_trgm's default and is
// embedded in both store backends; change it everywhere or nowhere.
const DefaultThreshold = 0.3

// Similarity returns a trigram similarity score in [0,1] between two
// strings. It is commutative and case-insensitive. It approximates
// PostgreSQL's similarity() but does not pad terms and divides by the
// trigram-count average rather than the union, so absolute scores run
// higher than pg_trgm's for near matches.
//
// Equal strings (after lower-casing) score exactly 1. Strings too short
// to form a trigram score 0. Otherwise the score
// is the Dice coefficient over the sets of contiguous 3-character
// substrings: 2*|A∩B| / (|A|+|B|). Duplicate trigrams within one string
// count once.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}

	ta := extract(a)
	tb := extract(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

// extract returns the set of contiguous 3-character substrings of s.
// No boundary padding is applied.
func extract(s string) map[string]struct{} {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil
	}

	set := make(map[string]struct{}, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}
