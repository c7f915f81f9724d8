package db

import (
	"database/sql"
	"fmt"
	"net/url"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/census-resolver/internal/trigram"
)

// DriverName is the registered sqlite3 driver variant that carries the
// similarity() SQL function. Queries written for the Postgres backend's
// native operator run unchanged against connections opened with it.
const DriverName = "sqlite3_similarity"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// pure=true: same inputs, same output, so SQLite may cache
			// results within a statement.
			return conn.RegisterFunc("similarity", trigram.Similarity, true)
		},
	})
}

// OpenSnapshot opens an embedded SQLite snapshot. With readOnly set the
// file is opened in immutable read-only mode, which is how client
// deployments consume shipped snapshots; the cache table is unusable in
// that mode and cache writes fail loudly.
func OpenSnapshot(path string, readOnly bool) (*sql.DB, error) {
	dsn := "file:" + path
	if readOnly {
		dsn += "?" + url.Values{"mode": {"ro"}, "immutable": {"1"}}.Encode()
	} else {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping snapshot: %w", err)
	}

	return db, nil
}
