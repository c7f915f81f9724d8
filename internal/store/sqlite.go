package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/census-resolver/internal/trigram"
)

// SQLiteStore is the client-embedded Store backed by a read-only SQLite
// snapshot of the reference data. SQLite has no trigram operator; the
// connection must have trigram.Similarity registered as the SQL
// function similarity() (see internal/db.OpenSnapshot), which lets both
// backends share the same query shapes and, more importantly, the same
// numeric ranking behavior.
type SQLiteStore struct {
	db        *sql.DB
	threshold float64
}

// NewSQLiteStore wraps an open snapshot connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, threshold: trigram.DefaultThreshold}
}

// SetThreshold overrides the fuzzy-match threshold. Both backends must
// be configured identically or ranking diverges.
func (s *SQLiteStore) SetThreshold(t float64) { s.threshold = t }

// DB exposes the underlying connection for diagnostics.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SearchSummaryLevels mirrors PostgresStore.SearchSummaryLevels.
func (s *SQLiteStore) SearchSummaryLevels(ctx context.Context, name, code string, limit int) ([]SummaryLevelMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name,
		       CASE WHEN (?2 <> '' AND code = ?2) OR lower(name) = lower(?1)
		            THEN 1.0
		            ELSE similarity(lower(name), lower(?1))
		       END AS score,
		       CASE WHEN (?2 <> '' AND code = ?2) OR lower(name) = lower(?1)
		            THEN 1 ELSE 3
		       END AS tier
		FROM summary_levels
		WHERE (?2 <> '' AND code = ?2)
		   OR lower(name) = lower(?1)
		   OR similarity(lower(name), lower(?1)) > ?3
		ORDER BY score DESC, tier ASC, code ASC
		LIMIT ?4
	`, name, code, s.threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("summary level search failed: %w", err)
	}
	defer rows.Close()

	var matches []SummaryLevelMatch
	for rows.Next() {
		var m SummaryLevelMatch
		var score float64
		var tier int
		if err := rows.Scan(&m.Code, &m.Name, &score, &tier); err != nil {
			return nil, fmt.Errorf("summary level scan failed: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SearchGeographies mirrors PostgresStore.SearchGeographies; instr()
// stands in for strpos().
func (s *SQLiteStore) SearchGeographies(ctx context.Context, term string, limit int) ([]GeographyMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, COALESCE(sl.name, ''),
		       g.latitude, g.longitude, g.for_param, g.in_param,
		       similarity(lower(g.name), lower(?1))
		         + (1 - COALESCE(sl.hierarchy_rank, 99) / 100.0) AS score
		FROM geographies g
		LEFT JOIN summary_levels sl ON sl.code = g.summary_level_code
		WHERE similarity(lower(g.name), lower(?1)) > ?2
		   OR instr(lower(g.name), lower(?1)) > 0
		ORDER BY score DESC, length(g.name) ASC, g.name ASC
		LIMIT ?3
	`, term, s.threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("geography search failed: %w", err)
	}
	defer rows.Close()
	return scanGeographyMatches(rows)
}

// SearchGeographiesByLevel mirrors PostgresStore.SearchGeographiesByLevel.
func (s *SQLiteStore) SearchGeographiesByLevel(ctx context.Context, term, levelCode string, limit int) ([]GeographyMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, COALESCE(sl.name, ''),
		       g.latitude, g.longitude, g.for_param, g.in_param,
		       similarity(lower(g.name), lower(?1)) AS score
		FROM geographies g
		LEFT JOIN summary_levels sl ON sl.code = g.summary_level_code
		WHERE g.summary_level_code = ?2
		  AND (similarity(lower(g.name), lower(?1)) > ?3
		       OR instr(lower(g.name), lower(?1)) > 0)
		ORDER BY score DESC, length(g.name) ASC, g.name ASC
		LIMIT ?4
	`, term, levelCode, s.threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("scoped geography search failed: %w", err)
	}
	defer rows.Close()
	return scanGeographyMatches(rows)
}

// SearchTableCandidates mirrors PostgresStore.SearchTableCandidates.
func (s *SQLiteStore) SearchTableCandidates(ctx context.Context, filter TableFilter) ([]TableCandidate, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("?%d", len(args))
	}

	labelExpr := "t.label"
	scoped := filter.DatasetScope != ""
	if scoped {
		labelExpr = "COALESCE(td.label, t.label)"
		conds = append(conds, fmt.Sprintf("d.dataset_id = %s", arg(filter.DatasetScope)))
	}
	if filter.IDPrefix != "" {
		p := arg(filter.IDPrefix)
		// SQLite LIKE is case-insensitive; substr keeps the prefix
		// match case-sensitive like the Postgres backend.
		conds = append(conds, fmt.Sprintf("(t.table_id = %s OR substr(t.table_id, 1, length(%s)) = %s)", p, p, p))
	}
	labelArg := ""
	if filter.LabelQuery != "" {
		labelArg = arg(filter.LabelQuery)
		t := arg(s.threshold)
		conds = append(conds, fmt.Sprintf(
			"(similarity(lower(%s), lower(%s)) > %s OR instr(lower(%s), lower(%s)) > 0)",
			labelExpr, labelArg, t, labelExpr, labelArg))
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("table search requires at least one filter")
	}

	query := "SELECT t.table_id, t.label FROM data_tables t"
	if scoped {
		query += `
			JOIN table_datasets td ON td.data_table_id = t.id
			JOIN datasets d ON d.id = td.dataset_id`
	}
	query += " WHERE " + strings.Join(conds, " AND ")
	if scoped {
		query += " GROUP BY t.id, t.table_id, t.label"
	}
	if filter.LabelQuery != "" {
		sim := fmt.Sprintf("similarity(lower(%s), lower(%s))", labelExpr, labelArg)
		if scoped {
			sim = "MAX(" + sim + ")"
		}
		query += " ORDER BY " + sim + " DESC, t.table_id ASC"
	} else {
		query += " ORDER BY t.table_id ASC"
	}
	query += fmt.Sprintf(" LIMIT %s", arg(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("table search failed: %w", err)
	}
	defer rows.Close()

	var candidates []TableCandidate
	for rows.Next() {
		var c TableCandidate
		if err := rows.Scan(&c.TableID, &c.Label); err != nil {
			return nil, fmt.Errorf("table scan failed: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// TableDatasets mirrors PostgresStore.TableDatasets.
func (s *SQLiteStore) TableDatasets(ctx context.Context, tableID string) ([]DatasetJoin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.dataset_id, d.dataset_param, d.year, td.label
		FROM table_datasets td
		JOIN datasets d ON d.id = td.dataset_id
		JOIN data_tables t ON t.id = td.data_table_id
		WHERE t.table_id = ?1
		ORDER BY COALESCE(d.year, 0) ASC, d.dataset_id ASC
	`, tableID)
	if err != nil {
		return nil, fmt.Errorf("table dataset lookup failed: %w", err)
	}
	defer rows.Close()

	var joins []DatasetJoin
	for rows.Next() {
		var j DatasetJoin
		if err := rows.Scan(&j.DatasetID, &j.DatasetParam, &j.Year, &j.Label); err != nil {
			return nil, fmt.Errorf("table dataset scan failed: %w", err)
		}
		joins = append(joins, j)
	}
	return joins, rows.Err()
}

// CacheGet mirrors PostgresStore.CacheGet. Timestamps are passed from
// Go so both engines compare against the same clock.
func (s *SQLiteStore) CacheGet(ctx context.Context, fingerprint string) (CachedResult, bool, error) {
	var (
		payload  string
		rowCount int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT response_data, row_count FROM api_cache
		WHERE fingerprint = ?1 AND expires_at > ?2
	`, fingerprint, time.Now().UTC()).Scan(&payload, &rowCount)
	if err == sql.ErrNoRows {
		return CachedResult{}, false, nil
	}
	if err != nil {
		return CachedResult{}, false, fmt.Errorf("cache read failed: %w", err)
	}

	var result CachedResult
	if err := json.Unmarshal([]byte(payload), &result.Rows); err != nil {
		return CachedResult{}, false, fmt.Errorf("cache entry corrupt: %w", err)
	}
	result.RowCount = rowCount

	s.db.ExecContext(ctx, `UPDATE api_cache SET last_accessed = ?2 WHERE fingerprint = ?1`,
		fingerprint, time.Now().UTC())

	return result, true, nil
}

// CachePut mirrors PostgresStore.CachePut. Fails when the snapshot was
// opened read-only; callers treat that as a diagnosable, non-fatal
// condition.
func (s *SQLiteStore) CachePut(ctx context.Context, fingerprint string, rows [][]string, ttl time.Duration) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_cache (fingerprint, response_data, row_count, expires_at, last_accessed)
		VALUES (?1, ?2, ?3, ?4, ?5)
		ON CONFLICT (fingerprint) DO UPDATE SET
			response_data = excluded.response_data,
			row_count = excluded.row_count,
			expires_at = excluded.expires_at,
			last_accessed = excluded.last_accessed
	`, fingerprint, string(payload), len(rows), now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// CacheSweep mirrors PostgresStore.CacheSweep.
func (s *SQLiteStore) CacheSweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_cache WHERE expires_at <= ?1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cache sweep failed: %w", err)
	}
	return res.RowsAffected()
}

// Counts mirrors PostgresStore.Counts.
func (s *SQLiteStore) Counts(ctx context.Context) (map[string]int64, error) {
	return tableCounts(ctx, s.db)
}

// SnapshotSchema is the DDL for the embedded snapshot. The snapshot
// builder and the store tests create databases from it; shipped
// snapshots already contain these tables.
const SnapshotSchema = `
CREATE TABLE IF NOT EXISTS summary_levels (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	hierarchy_rank INTEGER NOT NULL DEFAULT 99,
	parent_code TEXT
);

CREATE TABLE IF NOT EXISTS geographies (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	summary_level_code TEXT REFERENCES summary_levels(code),
	latitude REAL,
	longitude REAL,
	for_param TEXT NOT NULL DEFAULT '',
	in_param TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_geographies_identity
	ON geographies (COALESCE(summary_level_code, ''), for_param, in_param);

CREATE INDEX IF NOT EXISTS idx_geographies_name ON geographies(name);
CREATE INDEX IF NOT EXISTS idx_geographies_level ON geographies(summary_level_code);

CREATE TABLE IF NOT EXISTS data_tables (
	id INTEGER PRIMARY KEY,
	table_id TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS datasets (
	id INTEGER PRIMARY KEY,
	dataset_id TEXT NOT NULL,
	dataset_param TEXT NOT NULL,
	year INTEGER,
	UNIQUE (dataset_id, year)
);

CREATE TABLE IF NOT EXISTS table_datasets (
	data_table_id INTEGER NOT NULL REFERENCES data_tables(id),
	dataset_id INTEGER NOT NULL REFERENCES datasets(id),
	label TEXT,
	PRIMARY KEY (data_table_id, dataset_id)
);

CREATE TABLE IF NOT EXISTS api_cache (
	fingerprint TEXT PRIMARY KEY,
	response_data TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	last_accessed TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_cache_expires ON api_cache(expires_at);
`
