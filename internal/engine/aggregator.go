package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
	"github.com/zeebo/xxh3"
)

// Aggregator is a streaming measure. Fold is called once per source record
// of a group, in scan order, with that group's private state, and returns
// the aggregate so far. The value returned for the last record is the one
// stored in the output row.
type Aggregator interface {
	NewState() any
	Fold(rec Record, state any) any
}

// AggregatorFunc adapts a typed step function to Aggregator. Each group
// gets its own *S, initialised by Init when set and zero otherwise.
type AggregatorFunc[S any] struct {
	Init func() S
	Step func(rec Record, state *S) any
}

func (f AggregatorFunc[S]) NewState() any {
	s := new(S)
	if f.Init != nil {
		*s = f.Init()
	}
	return s
}

func (f AggregatorFunc[S]) Fold(rec Record, state any) any {
	return f.Step(rec, state.(*S))
}

// AggregationKind selects a built-in aggregator.
type AggregationKind int

const (
	KindCustom AggregationKind = iota
	KindSum
	KindCount
	KindCountUnique
	KindAverage
	KindMin
	KindMax
)

var kindNames = map[AggregationKind]string{
	KindCustom:      "custom",
	KindSum:         "sum",
	KindCount:       "count",
	KindCountUnique: "countUnique",
	KindAverage:     "average",
	KindMin:         "min",
	KindMax:         "max",
}

func (k AggregationKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("AggregationKind(%d)", int(k))
}

// ParseAggregationKind resolves a kind name, case-insensitively. "avg" and
// "count_unique" are accepted as aliases.
func ParseAggregationKind(s string) (AggregationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return KindSum, nil
	case "count":
		return KindCount, nil
	case "countunique", "count_unique":
		return KindCountUnique, nil
	case "average", "avg":
		return KindAverage, nil
	case "min":
		return KindMin, nil
	case "max":
		return KindMax, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAggregation, s)
}

// AllRecords is the Count dimension meaning "count every record".
const AllRecords = "*"

// Measure describes one output column of an aggregation.
type Measure struct {
	Name      string
	Kind      AggregationKind
	Dimension string
	// DataType of the output column. Built-in kinds are always Numeric.
	DataType DataType

	custom Aggregator
}

// NewMeasure resolves a (kind, dimension) pair.
func NewMeasure(kind, dimension string) (Measure, error) {
	k, err := ParseAggregationKind(kind)
	if err != nil {
		return Measure{}, err
	}
	return builtin(k, dimension), nil
}

func builtin(k AggregationKind, dimension string) Measure {
	name := k.String() + "_" + dimension
	if k == KindCount && dimension == AllRecords {
		name = "count"
	}
	return Measure{Name: name, Kind: k, Dimension: dimension, DataType: Numeric}
}

func Sum(dimension string) Measure { return builtin(KindSum, dimension) }

// Count counts non-absent values of dimension, or every record when
// dimension is AllRecords.
func Count(dimension string) Measure { return builtin(KindCount, dimension) }

func CountAll() Measure { return builtin(KindCount, AllRecords) }

// CountUnique counts distinct non-absent values of dimension per group.
func CountUnique(dimension string) Measure { return builtin(KindCountUnique, dimension) }

func Average(dimension string) Measure { return builtin(KindAverage, dimension) }

func Min(dimension string) Measure { return builtin(KindMin, dimension) }

func Max(dimension string) Measure { return builtin(KindMax, dimension) }

// Custom wraps a user aggregator under a synthetic unique name. The output
// column is Numeric unless changed with WithType.
func Custom(agg Aggregator) Measure {
	return Measure{
		Name:     "custom_" + uuid.NewString(),
		Kind:     KindCustom,
		DataType: Numeric,
		custom:   agg,
	}
}

// As renames the output column.
func (m Measure) As(name string) Measure {
	m.Name = name
	return m
}

// WithType sets the output column type of a custom measure.
func (m Measure) WithType(dt DataType) Measure {
	m.DataType = dt
	return m
}

// bind resolves m against the source cube.
func (c *Cube) bind(m Measure) (Aggregator, error) {
	if m.Kind == KindCustom {
		if m.custom == nil {
			return nil, fmt.Errorf("%w: custom measure %q has no aggregator", ErrUnknownAggregation, m.Name)
		}
		return m.custom, nil
	}
	if m.Kind == KindCount && m.Dimension == AllRecords {
		return countAggregator{idx: -1}, nil
	}
	var (
		d   *Dimension
		err error
	)
	switch m.Kind {
	case KindCount, KindCountUnique:
		d, err = c.dimension(m.Dimension)
	case KindSum, KindAverage, KindMin, KindMax:
		d, err = c.numericDimension(m.Dimension)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownAggregation, m.Kind)
	}
	if err != nil {
		return nil, err
	}
	switch m.Kind {
	case KindSum:
		return sumAggregator{idx: d.Index}, nil
	case KindCount:
		return countAggregator{idx: d.Index}, nil
	case KindCountUnique:
		return countUniqueAggregator{idx: d.Index}, nil
	case KindAverage:
		return averageAggregator{idx: d.Index}, nil
	case KindMin:
		return extremumAggregator{idx: d.Index, less: func(a, b float64) bool { return a < b }}, nil
	default:
		return extremumAggregator{idx: d.Index, less: func(a, b float64) bool { return a > b }}, nil
	}
}

type sumAggregator struct{ idx int }

func (a sumAggregator) NewState() any { return new(float64) }

func (a sumAggregator) Fold(rec Record, state any) any {
	s := state.(*float64)
	if x, ok := rec.Float(a.idx); ok {
		*s += x
	}
	return *s
}

// countAggregator counts every record when idx is negative.
type countAggregator struct{ idx int }

func (a countAggregator) NewState() any { return new(float64) }

func (a countAggregator) Fold(rec Record, state any) any {
	n := state.(*float64)
	if a.idx < 0 || rec[a.idx] != nil {
		*n++
	}
	return *n
}

type countUniqueAggregator struct{ idx int }

func (a countUniqueAggregator) NewState() any { return make(map[string]struct{}) }

func (a countUniqueAggregator) Fold(rec Record, state any) any {
	seen := state.(map[string]struct{})
	if v := rec[a.idx]; v != nil {
		seen[indexKey(v)] = struct{}{}
	}
	return float64(len(seen))
}

type averageState struct {
	sum float64
	n   int
}

type averageAggregator struct{ idx int }

func (a averageAggregator) NewState() any { return new(averageState) }

func (a averageAggregator) Fold(rec Record, state any) any {
	s := state.(*averageState)
	if x, ok := rec.Float(a.idx); ok {
		s.sum += x
		s.n++
	}
	if s.n == 0 {
		return 0.0
	}
	return s.sum / float64(s.n)
}

type extremumState struct {
	v    float64
	seen bool
}

// extremumAggregator keeps the value for which less(new, current) holds.
// A group with no values yields an absent result.
type extremumAggregator struct {
	idx  int
	less func(a, b float64) bool
}

func (a extremumAggregator) NewState() any { return new(extremumState) }

func (a extremumAggregator) Fold(rec Record, state any) any {
	s := state.(*extremumState)
	if x, ok := rec.Float(a.idx); ok && (!s.seen || a.less(x, s.v)) {
		s.v, s.seen = x, true
	}
	if !s.seen {
		return nil
	}
	return s.v
}

// ============================================================================
// GROUPING
// ============================================================================

// group is one partition of the source records. members are positions in
// the source store, in scan order.
type group struct {
	key     []any
	members []int
}

// partition assigns every record to the group of its typed key tuple.
// Groups are returned in discovery order.
func (c *Cube) partition(keyIdx []int) []*group {
	var order []*group
	buckets := make(map[uint64][]*group)
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	key := make([]any, len(keyIdx))
	for pos, rec := range c.store.records {
		for i, idx := range keyIdx {
			key[i] = rec[idx]
		}
		h := hashKey(buf, key)
		var g *group
		for _, cand := range buckets[h] {
			if keysEqual(cand.key, key) {
				g = cand
				break
			}
		}
		if g == nil {
			g = &group{key: append([]any(nil), key...)}
			buckets[h] = append(buckets[h], g)
			order = append(order, g)
		}
		g.members = append(g.members, pos)
	}
	return order
}

// hashKey hashes a type-tagged, length-prefixed encoding of key so that
// distinct tuples never share an encoding.
func hashKey(buf *bytebufferpool.ByteBuffer, key []any) uint64 {
	buf.Reset()
	for _, v := range key {
		switch x := v.(type) {
		case nil:
			buf.B = append(buf.B, 0)
		case float64:
			if x == 0 {
				x = 0 // fold -0 into +0
			}
			buf.B = append(buf.B, 1)
			buf.B = binary.LittleEndian.AppendUint64(buf.B, math.Float64bits(x))
		case string:
			buf.B = append(buf.B, 2)
			buf.B = binary.AppendUvarint(buf.B, uint64(len(x)))
			buf.B = append(buf.B, x...)
		}
	}
	return xxh3.Hash(buf.B)
}

func keysEqual(a, b []any) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Aggregate groups records by the values of groupBy and folds every measure
// per group. The result cube has the groupBy dimensions first, with their
// original types, followed by one dimension per measure. Rows are emitted
// in group discovery order. An absent group-by value forms its own group.
//
// Output dimension names must be unique: a group-by dimension listed twice,
// two measures with the same name (Sum("x") twice), or a measure named like
// a group-by dimension fail with ErrDuplicateDimension. Use Measure.As to
// rename.
func (c *Cube) Aggregate(groupBy []string, measures ...Measure) (*Cube, error) {
	out := New()
	keyIdx := make([]int, len(groupBy))
	for i, name := range groupBy {
		d, err := c.dimension(name)
		if err != nil {
			return nil, err
		}
		keyIdx[i] = d.Index
		if err := out.AddDimension(d.Name, d.DataType); err != nil {
			return nil, err
		}
	}
	aggs := make([]Aggregator, len(measures))
	for i, m := range measures {
		agg, err := c.bind(m)
		if err != nil {
			return nil, err
		}
		aggs[i] = agg
		if err := out.AddDimension(m.Name, m.DataType); err != nil {
			return nil, err
		}
	}

	for _, g := range c.partition(keyIdx) {
		row := make(Record, out.NbrOfDimensions())
		copy(row, g.key)
		states := make([]any, len(aggs))
		for i, agg := range aggs {
			states[i] = agg.NewState()
		}
		slot := len(keyIdx)
		for _, pos := range g.members {
			rec := c.store.at(pos)
			for i, agg := range aggs {
				row[slot+i] = agg.Fold(rec, states[i])
			}
		}
		if err := out.AddRecord(row); err != nil {
			return nil, fmt.Errorf("aggregate row %v: %w", g.key, err)
		}
	}
	return out, nil
}
