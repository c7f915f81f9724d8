// Package snapshot builds the embedded SQLite snapshot that client
// deployments bundle in place of a live Postgres connection. The
// snapshot carries the three reference-entity families plus an empty
// cache table; resolution queries against it must rank exactly like the
// server does.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/census-resolver/internal/db"
	"github.com/census-resolver/internal/store"
)

// Build writes a fresh snapshot of the reference data at path,
// replacing any existing file. The copy runs inside one transaction so
// a failed build never leaves a partial snapshot behind a successful
// open.
func Build(ctx context.Context, src *sql.DB, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old snapshot: %w", err)
	}

	dest, err := db.OpenSnapshot(path, false)
	if err != nil {
		return err
	}
	defer dest.Close()

	if _, err := dest.ExecContext(ctx, store.SnapshotSchema); err != nil {
		return fmt.Errorf("failed to create snapshot schema: %w", err)
	}

	tx, err := dest.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	copies := []struct {
		name    string
		query   string
		insert  string
		columns int
	}{
		{
			name:    "summary_levels",
			query:   "SELECT code, name, description, hierarchy_rank, parent_code FROM summary_levels",
			insert:  "INSERT INTO summary_levels (code, name, description, hierarchy_rank, parent_code) VALUES (?, ?, ?, ?, ?)",
			columns: 5,
		},
		{
			name:    "geographies",
			query:   "SELECT id, name, summary_level_code, latitude, longitude, for_param, in_param FROM geographies",
			insert:  "INSERT INTO geographies (id, name, summary_level_code, latitude, longitude, for_param, in_param) VALUES (?, ?, ?, ?, ?, ?, ?)",
			columns: 7,
		},
		{
			name:    "data_tables",
			query:   "SELECT id, table_id, label FROM data_tables",
			insert:  "INSERT INTO data_tables (id, table_id, label) VALUES (?, ?, ?)",
			columns: 3,
		},
		{
			name:    "datasets",
			query:   "SELECT id, dataset_id, dataset_param, year FROM datasets",
			insert:  "INSERT INTO datasets (id, dataset_id, dataset_param, year) VALUES (?, ?, ?, ?)",
			columns: 4,
		},
		{
			name:    "table_datasets",
			query:   "SELECT data_table_id, dataset_id, label FROM table_datasets",
			insert:  "INSERT INTO table_datasets (data_table_id, dataset_id, label) VALUES (?, ?, ?)",
			columns: 3,
		},
	}

	for _, c := range copies {
		n, err := copyTable(ctx, src, tx, c.query, c.insert, c.columns)
		if err != nil {
			return fmt.Errorf("failed to copy %s: %w", c.name, err)
		}
		fmt.Printf("Copied %d %s rows\n", n, c.name)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func copyTable(ctx context.Context, src *sql.DB, tx *sql.Tx, query, insert string, columns int) (int, error) {
	rows, err := src.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	values := make([]interface{}, columns)
	dests := make([]interface{}, columns)
	for i := range values {
		dests[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(dests...); err != nil {
			return count, err
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return count, err
		}
		count++
	}
	return count, rows.Err()
}

// Verify reopens a snapshot read-only and checks the reference tables
// are present and non-empty where the source was non-empty.
func Verify(ctx context.Context, path string) (map[string]int64, error) {
	conn, err := db.OpenSnapshot(path, true)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	st := store.NewSQLiteStore(conn)
	return st.Counts(ctx)
}
