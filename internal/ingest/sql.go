package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	_ "modernc.org/sqlite"

	"github.com/v09-software/cubico/internal/engine"
)

// OpenSQLite opens a SQLite database through the pure-Go driver.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	return db, nil
}

// ReadSQL runs query and appends every result row to cube, returning the
// number of records added. Result columns that are not yet dimensions are
// created: Numeric when the declared column type is numeric, or, for
// untyped expressions, when every non-NULL value is an integer or float.
// NULL is absent. Rows are buffered and validated before the first insert.
func ReadSQL(ctx context.Context, db *sql.DB, cube *engine.Cube, query string, args ...any) (int, error) {
	start := time.Now()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return 0, err
	}

	var buffered [][]any
	for rows.Next() {
		vals := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalizeSQL(v)
		}
		buffered = append(buffered, vals)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	target := make([]int, len(types))
	var create []engine.DimensionSpec
	for i, ct := range types {
		name := ct.Name()
		if info, err := cube.Dimension(name); err == nil {
			target[i] = info.Index
			continue
		}
		create = append(create, engine.DimensionSpec{Name: name, DataType: sqlColumnType(ct.DatabaseTypeName(), buffered, i)})
		target[i] = cube.NbrOfDimensions() + len(create) - 1
	}

	records := make([]engine.Record, len(buffered))
	for n, vals := range buffered {
		rec := make(engine.Record, cube.NbrOfDimensions()+len(create))
		for i, v := range vals {
			rec[target[i]] = v
		}
		records[n] = rec
	}
	if err := cube.Append(create, records); err != nil {
		return 0, err
	}
	log.Debugf("SQL load: %d rows, %d new dimensions in %v", len(records), len(create), time.Since(start))
	return len(records), nil
}

func normalizeSQL(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func sqlColumnType(declared string, rows [][]any, i int) engine.DataType {
	switch t := strings.ToUpper(declared); {
	case t == "":
	case strings.Contains(t, "INT"), strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"),
		strings.Contains(t, "DOUB"), strings.Contains(t, "NUM"), strings.Contains(t, "DEC"):
		return engine.Numeric
	default:
		return engine.Text
	}
	numeric := false
	for _, row := range rows {
		switch row[i].(type) {
		case nil:
		case int64, float64:
			numeric = true
		default:
			return engine.Text
		}
	}
	if numeric {
		return engine.Numeric
	}
	return engine.Text
}
