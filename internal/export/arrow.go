// Package export converts cubes to Apache Arrow columnar data.
package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/v09-software/cubico/internal/engine"
)

// Schema maps the cube's dimensions to nullable Arrow fields: Numeric to
// float64, Text to utf8.
func Schema(c *engine.Cube) *arrow.Schema {
	dims := c.Dimensions()
	fields := make([]arrow.Field, len(dims))
	for i, d := range dims {
		var dt arrow.DataType = arrow.BinaryTypes.String
		if d.DataType == engine.Numeric {
			dt = arrow.PrimitiveTypes.Float64
		}
		fields[i] = arrow.Field{Name: d.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// ToRecord builds one Arrow record holding every row of c. Absent values
// become nulls. The caller must Release the result.
func ToRecord(c *engine.Cube, mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	schema := Schema(c)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, rec := range c.Records() {
		for i, v := range rec {
			switch fb := b.Field(i).(type) {
			case *array.Float64Builder:
				if x, ok := v.(float64); ok {
					fb.Append(x)
				} else {
					fb.AppendNull()
				}
			case *array.StringBuilder:
				if s, ok := v.(string); ok {
					fb.Append(s)
				} else {
					fb.AppendNull()
				}
			default:
				return nil, fmt.Errorf("unsupported arrow builder %T for %q", fb, schema.Field(i).Name)
			}
		}
	}
	return b.NewRecord(), nil
}

// WriteIPC streams c to w in the Arrow IPC stream format.
func WriteIPC(w io.Writer, c *engine.Cube, mem memory.Allocator) error {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	rec, err := ToRecord(c, mem)
	if err != nil {
		return err
	}
	defer rec.Release()

	wr := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := wr.Write(rec); err != nil {
		wr.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	return wr.Close()
}

// FromRecord appends the rows of an Arrow record to c, creating missing
// dimensions. Float and integer columns map to Numeric, utf8 to Text.
// Nothing changes unless every row is valid.
func FromRecord(c *engine.Cube, rec arrow.Record) error {
	schema := rec.Schema()
	var create []engine.DimensionSpec
	target := make([]int, len(schema.Fields()))
	for i, f := range schema.Fields() {
		if idx, err := c.DimensionIndex(f.Name); err == nil {
			target[i] = idx
			continue
		}
		dt := engine.Text
		if arrow.IsFloating(f.Type.ID()) || arrow.IsInteger(f.Type.ID()) {
			dt = engine.Numeric
		}
		create = append(create, engine.DimensionSpec{Name: f.Name, DataType: dt})
		target[i] = c.NbrOfDimensions() + len(create) - 1
	}

	width := c.NbrOfDimensions() + len(create)
	rows := make([]engine.Record, rec.NumRows())
	for row := range rows {
		out := make(engine.Record, width)
		for i, col := range rec.Columns() {
			if col.IsNull(row) {
				continue
			}
			out[target[i]] = cellValue(col, row)
		}
		rows[row] = out
	}
	if err := c.Append(create, rows); err != nil {
		return fmt.Errorf("arrow record: %w", err)
	}
	return nil
}

func cellValue(col arrow.Array, row int) any {
	switch a := col.(type) {
	case *array.Float64:
		return a.Value(row)
	case *array.Float32:
		return a.Value(row)
	case *array.Int64:
		return a.Value(row)
	case *array.Int32:
		return a.Value(row)
	case *array.String:
		return a.Value(row)
	}
	return col.ValueStr(row)
}
