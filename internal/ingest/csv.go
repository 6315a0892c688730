package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"github.com/v09-software/cubico/internal/engine"
)

// LoadCSV reads a CSV file, optionally compressed, into a new cube.
func LoadCSV(path string) (*engine.Cube, error) {
	start := time.Now()
	log.Infof("Loading %s...", path)

	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	cube := engine.New()
	n, err := ReadCSV(rc, cube)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	log.Infof("Load Complete. Rows: %d. Dimensions: %d. Time: %v", n, cube.NbrOfDimensions(), time.Since(start))
	return cube, nil
}

// ReadCSV appends the rows of a headed CSV stream to cube and returns the
// number of records added. Header names that are not yet dimensions are
// created, Numeric when every non-empty cell parses as a number. Empty
// cells are absent. Rows are converted in parallel and inserted in file
// order; nothing is inserted if any row fails to convert.
func ReadCSV(r io.Reader, cube *engine.Cube) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV rows: %w", err)
	}

	cols, err := planColumns(header, rows, cube)
	if err != nil {
		return 0, err
	}
	records, err := convertRows(rows, cols)
	if err != nil {
		return 0, err
	}

	var create []engine.DimensionSpec
	for _, col := range cols {
		if col.create {
			create = append(create, engine.DimensionSpec{Name: col.name, DataType: col.dataType})
		}
	}
	// header position -> position in the widened schema
	width := cube.NbrOfDimensions() + len(create)
	target := make([]int, len(cols))
	next := cube.NbrOfDimensions()
	for i, col := range cols {
		if col.create {
			target[i], next = next, next+1
			continue
		}
		target[i], _ = cube.DimensionIndex(col.name)
	}
	staged := make([]engine.Record, len(records))
	for i, vals := range records {
		rec := make(engine.Record, width)
		for j, v := range vals {
			rec[target[j]] = v
		}
		staged[i] = rec
	}
	if err := cube.Append(create, staged); err != nil {
		return 0, err
	}
	return len(staged), nil
}

type column struct {
	name     string
	dataType engine.DataType
	create   bool
}

func planColumns(header []string, rows [][]string, cube *engine.Cube) ([]column, error) {
	cols := make([]column, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, fmt.Errorf("CSV column %d has no name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q appears twice in CSV header", engine.ErrDuplicateDimension, name)
		}
		seen[name] = true

		if info, err := cube.Dimension(name); err == nil {
			cols[i] = column{name: name, dataType: info.DataType}
			continue
		}
		cols[i] = column{name: name, dataType: inferColumn(rows, i), create: true}
	}
	return cols, nil
}

// inferColumn reports Numeric when column i has at least one value and all
// of its non-empty cells are finite numbers.
func inferColumn(rows [][]string, i int) engine.DataType {
	numeric := false
	for _, row := range rows {
		cell := strings.TrimSpace(row[i])
		if cell == "" {
			continue
		}
		if _, ok := engine.ParseNumber(cell); !ok {
			return engine.Text
		}
		numeric = true
	}
	if numeric {
		return engine.Numeric
	}
	return engine.Text
}

// convertRows types every cell. Work is split into one contiguous chunk per
// CPU; each worker writes only its own slots.
func convertRows(rows [][]string, cols []column) ([][]any, error) {
	out := make([][]any, len(rows))
	workers := runtime.NumCPU()
	chunk := (len(rows) + workers - 1) / workers
	if chunk == 0 {
		return out, nil
	}

	var g errgroup.Group
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				vals, err := convertRow(rows[i], cols)
				if err != nil {
					return fmt.Errorf("row %d: %w", i+2, err)
				}
				out[i] = vals
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func convertRow(row []string, cols []column) ([]any, error) {
	vals := make([]any, len(cols))
	for j, col := range cols {
		cell := strings.TrimSpace(row[j])
		if cell == "" {
			continue
		}
		if col.dataType != engine.Numeric {
			vals[j] = cell
			continue
		}
		f, ok := engine.ParseNumber(cell)
		if !ok {
			return nil, fmt.Errorf("%w: %q in numeric column %q", engine.ErrInvalidValue, cell, col.name)
		}
		vals[j] = f
	}
	return vals, nil
}
