package engine

import "math"

// DimensionStats holds the running statistics of one dimension. Numeric
// fields are only maintained for Numeric dimensions.
type DimensionStats struct {
	Sum           float64
	SumOfSquares  float64
	Min           float64
	Max           float64
	NonNullCount  int
	DistinctCount int

	// exact population standard deviation, valid until the next observe
	stdDev    float64
	hasStdDev bool
}

// Dimension is a named, typed column of a cube together with its running
// statistics and value index.
type Dimension struct {
	Name     string
	DataType DataType
	// Index is the position of this dimension in every record. Stable for
	// the life of the cube.
	Index int

	stats DimensionStats
	// stringified value -> positions in the record store, in insert order
	values map[string][]int
}

func newDimension(name string, dt DataType, index int) *Dimension {
	return &Dimension{
		Name:     name,
		DataType: dt,
		Index:    index,
		stats: DimensionStats{
			Min: math.Inf(1),
			Max: math.Inf(-1),
		},
		values: make(map[string][]int),
	}
}

// Stats returns a snapshot of the running statistics.
func (d *Dimension) Stats() DimensionStats {
	s := d.stats
	if s.NonNullCount == 0 || d.DataType != Numeric {
		s.Min, s.Max = 0, 0
	}
	return s
}

// observe folds the value of one inserted record into the running state.
// pos is the record's position in the store.
func (d *Dimension) observe(v any, pos int) {
	if v == nil {
		return
	}
	if d.DataType == Numeric {
		x := v.(float64)
		d.stats.Sum += x
		d.stats.SumOfSquares += x * x
		if x < d.stats.Min {
			d.stats.Min = x
		}
		if x > d.stats.Max {
			d.stats.Max = x
		}
	}
	d.stats.NonNullCount++
	d.stats.hasStdDev = false

	key := indexKey(v)
	refs, seen := d.values[key]
	if !seen {
		d.stats.DistinctCount++
	}
	d.values[key] = append(refs, pos)
}

// lookup returns the record positions holding value key.
func (d *Dimension) lookup(key string) ([]int, bool) {
	refs, ok := d.values[key]
	return refs, ok
}

// schemaCopy returns a dimension with the same name, type and index but no
// statistics or index entries.
func (d *Dimension) schemaCopy() *Dimension {
	return newDimension(d.Name, d.DataType, d.Index)
}
