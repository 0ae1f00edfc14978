package storage

import (
	"context"
	"time"

	"defect-dashboard/models"
)

// Row is one record of a source table keyed by column name. Values are
// string, int64, float64, bool, time.Time or nil.
type Row map[string]any

// Table is the full content of a named source table.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// TableReader is the interface any record source must satisfy.
type TableReader interface {
	FetchTable(ctx context.Context, name string) (*Table, error)
	Close() error
}

// ArtifactWriter persists the rendered outputs of a run.
type ArtifactWriter interface {
	WriteHTML(runDate time.Time, html string) (string, error)
	WriteBreakdownCSV(runDate time.Time, lots []models.LotSummary) (string, error)
}
