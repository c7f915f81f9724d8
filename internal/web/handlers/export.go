package handlers

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jszwec/csvutil"
)

// ExportHandler streams reference tables as CSV. The column layout is
// the same one the importer consumes, so an export from one deployment
// can seed another.
type ExportHandler struct {
	DB *sql.DB
}

type summaryLevelExport struct {
	Code          string  `csv:"code"`
	Name          string  `csv:"name"`
	Description   *string `csv:"description"`
	HierarchyRank int     `csv:"hierarchy_rank"`
	ParentCode    *string `csv:"parent_code"`
}

type geographyExport struct {
	Name             string   `csv:"name"`
	SummaryLevelCode *string  `csv:"summary_level_code"`
	Latitude         *float64 `csv:"latitude"`
	Longitude        *float64 `csv:"longitude"`
	ForParam         string   `csv:"for_param"`
	InParam          string   `csv:"in_param"`
}

type dataTableExport struct {
	TableID string `csv:"table_id"`
	Label   string `csv:"label"`
}

type tableDatasetExport struct {
	TableID      string  `csv:"table_id"`
	DatasetID    string  `csv:"dataset_id"`
	DatasetParam string  `csv:"dataset_param"`
	Year         *int    `csv:"year"`
	Label        *string `csv:"label"`
}

// ExportTable streams one reference table as a CSV attachment. The
// table name arrives as the {table} path variable.
func (h *ExportHandler) ExportTable(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	var err error
	switch table {
	case "summary-levels":
		err = h.exportSummaryLevels(w)
	case "geographies":
		err = h.exportGeographies(w)
	case "data-tables":
		err = h.exportDataTables(w)
	case "table-datasets":
		err = h.exportTableDatasets(w)
	default:
		http.Error(w, "Unknown table. Use summary-levels, geographies, data-tables or table-datasets", http.StatusNotFound)
		return
	}
	if err != nil {
		// Headers may already be out; logging is all that is left.
		fmt.Printf("export of %s failed: %v\n", table, err)
	}
}

func exportCSV[T any](w http.ResponseWriter, name string, rows *sql.Rows, scan func(*sql.Rows) (T, error)) error {
	defer rows.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", name))

	writer := csv.NewWriter(w)
	enc := csvutil.NewEncoder(writer)

	for rows.Next() {
		row, err := scan(rows)
		if err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return rows.Err()
}

func (h *ExportHandler) exportSummaryLevels(w http.ResponseWriter) error {
	rows, err := h.DB.Query(`
		SELECT code, name, description, hierarchy_rank, parent_code
		FROM summary_levels ORDER BY code
	`)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return err
	}
	return exportCSV(w, "summary_levels", rows, func(rows *sql.Rows) (summaryLevelExport, error) {
		var row summaryLevelExport
		err := rows.Scan(&row.Code, &row.Name, &row.Description, &row.HierarchyRank, &row.ParentCode)
		return row, err
	})
}

func (h *ExportHandler) exportGeographies(w http.ResponseWriter) error {
	rows, err := h.DB.Query(`
		SELECT name, summary_level_code, latitude, longitude, for_param, in_param
		FROM geographies ORDER BY id
	`)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return err
	}
	return exportCSV(w, "geographies", rows, func(rows *sql.Rows) (geographyExport, error) {
		var row geographyExport
		err := rows.Scan(&row.Name, &row.SummaryLevelCode, &row.Latitude, &row.Longitude, &row.ForParam, &row.InParam)
		return row, err
	})
}

func (h *ExportHandler) exportDataTables(w http.ResponseWriter) error {
	rows, err := h.DB.Query(`
		SELECT table_id, label FROM data_tables ORDER BY table_id
	`)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return err
	}
	return exportCSV(w, "data_tables", rows, func(rows *sql.Rows) (dataTableExport, error) {
		var row dataTableExport
		err := rows.Scan(&row.TableID, &row.Label)
		return row, err
	})
}

func (h *ExportHandler) exportTableDatasets(w http.ResponseWriter) error {
	rows, err := h.DB.Query(`
		SELECT t.table_id, d.dataset_id, d.dataset_param, d.year, td.label
		FROM table_datasets td
		JOIN data_tables t ON t.id = td.data_table_id
		JOIN datasets d ON d.id = td.dataset_id
		ORDER BY t.table_id, d.dataset_id, d.year
	`)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return err
	}
	return exportCSV(w, "table_datasets", rows, func(rows *sql.Rows) (tableDatasetExport, error) {
		var row tableDatasetExport
		err := rows.Scan(&row.TableID, &row.DatasetID, &row.DatasetParam, &row.Year, &row.Label)
		return row, err
	})
}
