package import_pkg

import (
	"fmt"
)

type summaryLevelRow struct {
	Code          string  `csv:"code"`
	Name          string  `csv:"name"`
	Description   *string `csv:"description"`
	HierarchyRank *int    `csv:"hierarchy_rank"`
	ParentCode    *string `csv:"parent_code"`
}

type geographyRow struct {
	Name             string   `csv:"name"`
	SummaryLevelCode *string  `csv:"summary_level_code"`
	Latitude         *float64 `csv:"latitude"`
	Longitude        *float64 `csv:"longitude"`
	ForParam         string   `csv:"for_param"`
	InParam          string   `csv:"in_param"`
}

type dataTableRow struct {
	TableID string `csv:"table_id"`
	Label   string `csv:"label"`
}

type tableDatasetRow struct {
	TableID      string  `csv:"table_id"`
	DatasetID    string  `csv:"dataset_id"`
	DatasetParam string  `csv:"dataset_param"`
	Year         *int    `csv:"year"`
	Label        *string `csv:"label"`
}

// ImportSummaryLevels upserts summary levels from a CSV export.
// Unranked levels default to hierarchy rank 99.
func (ci *CSVImporter) ImportSummaryLevels(filename string) error {
	fmt.Printf("Importing summary levels from %s...\n", filename)

	rows, err := decodeFile[summaryLevelRow](filename)
	if err != nil {
		return err
	}

	stmt, err := ci.db.Prepare(`
		INSERT INTO summary_levels (code, name, description, hierarchy_rank, parent_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			hierarchy_rank = EXCLUDED.hierarchy_rank,
			parent_code = EXCLUDED.parent_code
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		rank := 99
		if row.HierarchyRank != nil {
			rank = *row.HierarchyRank
		}
		if _, err := stmt.Exec(row.Code, row.Name, row.Description, rank, row.ParentCode); err != nil {
			return fmt.Errorf("failed to insert summary level %s: %w", row.Code, err)
		}
	}

	fmt.Printf("Imported %d summary levels\n", len(rows))
	return nil
}

// ImportGeographies upserts geographies from a gazetteer CSV export.
// The gazetteer runs to tens of thousands of rows, so batches insert
// through the worker pool.
func (ci *CSVImporter) ImportGeographies(filename string) error {
	fmt.Printf("Importing geographies from %s...\n", filename)

	rows, err := decodeFile[geographyRow](filename)
	if err != nil {
		return err
	}

	err = runBatches(rows, ci.batchSize, ci.workers, func(batch []geographyRow) error {
		tx, err := ci.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO geographies (name, summary_level_code, latitude, longitude, for_param, in_param)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (COALESCE(summary_level_code, ''), for_param, in_param) DO UPDATE SET
				name = EXCLUDED.name,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, row := range batch {
			_, err := stmt.Exec(row.Name, row.SummaryLevelCode, row.Latitude, row.Longitude, row.ForParam, row.InParam)
			if err != nil {
				return fmt.Errorf("failed to insert geography %q: %w", row.Name, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d geographies\n", len(rows))
	return nil
}

// ImportDataTables upserts data table definitions.
func (ci *CSVImporter) ImportDataTables(filename string) error {
	fmt.Printf("Importing data tables from %s...\n", filename)

	rows, err := decodeFile[dataTableRow](filename)
	if err != nil {
		return err
	}

	stmt, err := ci.db.Prepare(`
		INSERT INTO data_tables (table_id, label)
		VALUES ($1, $2)
		ON CONFLICT (table_id) DO UPDATE SET label = EXCLUDED.label
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(row.TableID, row.Label); err != nil {
			return fmt.Errorf("failed to insert data table %s: %w", row.TableID, err)
		}
	}

	fmt.Printf("Imported %d data tables\n", len(rows))
	return nil
}

// ImportTableDatasets upserts dataset definitions and the
// table-dataset join rows, including per-dataset variant labels. Runs
// serially: join rows race on dataset creation, and the file is small.
func (ci *CSVImporter) ImportTableDatasets(filename string) error {
	fmt.Printf("Importing table datasets from %s...\n", filename)

	rows, err := decodeFile[tableDatasetRow](filename)
	if err != nil {
		return err
	}

	for _, row := range rows {
		_, err := ci.db.Exec(`
			INSERT INTO datasets (dataset_id, dataset_param, year)
			SELECT $1, $2, $3
			WHERE NOT EXISTS (
				SELECT 1 FROM datasets
				WHERE dataset_id = $1 AND year IS NOT DISTINCT FROM $3
			)
		`, row.DatasetID, row.DatasetParam, row.Year)
		if err != nil {
			return fmt.Errorf("failed to insert dataset %s: %w", row.DatasetID, err)
		}

		res, err := ci.db.Exec(`
			INSERT INTO table_datasets (data_table_id, dataset_id, label)
			SELECT t.id, d.id, $4
			FROM data_tables t, datasets d
			WHERE t.table_id = $1
			  AND d.dataset_id = $2
			  AND d.year IS NOT DISTINCT FROM $3
			ON CONFLICT (data_table_id, dataset_id) DO UPDATE SET label = EXCLUDED.label
		`, row.TableID, row.DatasetID, row.Year, row.Label)
		if err != nil {
			return fmt.Errorf("failed to link table %s to dataset %s: %w", row.TableID, row.DatasetID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			fmt.Printf("Skipping join for unknown table %s\n", row.TableID)
		}
	}

	fmt.Printf("Imported %d table-dataset joins\n", len(rows))
	return nil
}
