package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/census-resolver/internal/config"
)

// Connection holds the server-side database connection
type Connection struct {
	DB *sql.DB
}

// NewConnection opens the Postgres reference database using PG*
// environment variables.
func NewConnection() (*Connection, error) {
	host := config.GetEnv("PGHOST", "localhost")
	port := config.GetEnv("PGPORT", "5432")
	user := config.GetEnv("PGUSER", "census")
	password := config.GetEnv("PGPASSWORD", "census")
	dbname := config.GetEnv("PGDATABASE", "census_reference")
	sslmode := config.GetEnv("PGSSLMODE", "disable")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	maxConns := config.GetEnvInt("PG_MAX_CONNECTIONS", 20)
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)

	return &Connection{DB: db}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}
