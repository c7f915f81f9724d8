// Package import_pkg bulk-loads the reference dataset from CSV exports
// into the Postgres store. The resolution engine treats these tables as
// read-only; this importer is the out-of-band population path.
package import_pkg

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jszwec/csvutil"
	"github.com/panjf2000/ants/v2"
)

// CSVImporter loads reference-data CSV files into the store
type CSVImporter struct {
	db        *sql.DB
	batchSize int
	workers   int
}

// NewCSVImporter creates a new CSV importer
func NewCSVImporter(db *sql.DB) *CSVImporter {
	return &CSVImporter{db: db, batchSize: 500, workers: 4}
}

// SetBatchSize overrides the rows-per-batch default of 500.
func (ci *CSVImporter) SetBatchSize(n int) {
	if n > 0 {
		ci.batchSize = n
	}
}

// SetWorkers overrides the concurrent-batch default of 4.
func (ci *CSVImporter) SetWorkers(n int) {
	if n > 0 {
		ci.workers = n
	}
}

// decodeFile streams a CSV file through csvutil into rows of type T.
func decodeFile[T any](filename string) ([]T, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", filename, err)
	}

	var rows []T
	for {
		var row T
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode row in %s: %w", filename, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// runBatches splits rows into batches and inserts them through a
// bounded worker pool. The first batch error wins; remaining batches
// still run to completion.
func runBatches[T any](rows []T, batchSize, workers int, insert func([]T) error) error {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := insert(batch); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			return fmt.Errorf("failed to submit batch: %w", submitErr)
		}
	}

	wg.Wait()
	return firstErr
}
