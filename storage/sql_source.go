package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"defect-dashboard/utils"
)

// SQLSource reads whole tables from a relational store. It supports
// PostgreSQL (lib/pq) and SQLite files (modernc.org/sqlite).
type SQLSource struct {
	db     *sql.DB
	logger *utils.Logger
}

// OpenSQLSource opens a connection with the given driver ("postgres" or
// "sqlite"), waits for it to answer and returns a ready-to-use source.
func OpenSQLSource(ctx context.Context, driver, dsn string, logger *utils.Logger) (*SQLSource, error) {
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("source: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("source: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 5, BaseDelay: 2 * time.Second, Logger: logger}
	err = retry.Do(ctx, "source-ping", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("source: ping: %w", err)
	}

	return NewSQLSource(db, logger), nil
}

// NewSQLSource wraps an already opened database handle.
func NewSQLSource(db *sql.DB, logger *utils.Logger) *SQLSource {
	return &SQLSource{db: db, logger: logger}
}

// FetchTable returns every row of the named table with column order preserved.
func (s *SQLSource) FetchTable(ctx context.Context, name string) (*Table, error) {
	s.logger.Info("[source] Reading table %s", name)

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return nil, fmt.Errorf("source: query %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("source: columns of %s: %w", name, err)
	}

	table := &Table{Name: name, Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("source: scan %s: %w", name, err)
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normaliseValue(values[i])
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: iterate %s: %w", name, err)
	}

	s.logger.Info("[source] %s: %d rows, %d columns", name, len(table.Rows), len(cols))
	return table, nil
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}

// quoteIdent quotes a table name for both PostgreSQL and SQLite.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func normaliseValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
