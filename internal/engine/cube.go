package engine

import (
	"fmt"
	"sort"
)

// Cube is an in-memory, column-typed collection of records. It grows only
// by adding dimensions and records; Slice and Aggregate always build a new
// cube and never touch the receiver.
//
// A Cube does no locking. Callers that share one across goroutines must
// serialize writers against readers themselves.
type Cube struct {
	dims   []*Dimension
	byName map[string]*Dimension
	store  recordStore
}

// New returns an empty cube.
func New() *Cube {
	return &Cube{byName: make(map[string]*Dimension)}
}

// AddDimension appends a named, typed dimension. Existing records are
// extended with an absent value at the new position.
func (c *Cube) AddDimension(name string, dt DataType) error {
	if _, ok := c.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateDimension, name)
	}
	if !dt.Valid() {
		return fmt.Errorf("%w: %v for dimension %q", ErrInvalidDataType, dt, name)
	}
	c.addDimension(newDimension(name, dt, len(c.dims)))
	return nil
}

func (c *Cube) addDimension(d *Dimension) {
	c.dims = append(c.dims, d)
	c.byName[d.Name] = d
	c.store.widen()
}

// AddRecord appends a positional record. Values are coerced to their
// dimension's type into a fresh tuple; the caller keeps ownership of values.
// Nothing is mutated unless every value is valid.
func (c *Cube) AddRecord(values Record) error {
	rec, err := coerceRecord(c.dims, values)
	if err != nil {
		return err
	}
	c.insert(rec)
	return nil
}

// coerceRecord validates values against dims and returns a fresh tuple of
// stored values.
func coerceRecord(dims []*Dimension, values Record) (Record, error) {
	if len(values) != len(dims) {
		return nil, fmt.Errorf("%w: got %d values, cube has %d dimensions",
			ErrDimensionalityMismatch, len(values), len(dims))
	}
	rec := make(Record, len(values))
	for i, v := range values {
		cv, err := coerce(dims[i].DataType, v)
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %w", dims[i].Name, err)
		}
		rec[i] = cv
	}
	return rec, nil
}

// DimensionSpec names a dimension to be created by Append.
type DimensionSpec struct {
	Name     string
	DataType DataType
}

// Append creates dims, then inserts records laid out against the widened
// schema. It is all or nothing: the cube is unchanged unless every
// dimension and every record is valid.
func (c *Cube) Append(dims []DimensionSpec, records []Record) error {
	cols := make([]*Dimension, len(c.dims), len(c.dims)+len(dims))
	copy(cols, c.dims)
	for _, d := range dims {
		if _, ok := c.byName[d.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateDimension, d.Name)
		}
		for _, prev := range cols[len(c.dims):] {
			if prev.Name == d.Name {
				return fmt.Errorf("%w: %q", ErrDuplicateDimension, d.Name)
			}
		}
		if !d.DataType.Valid() {
			return fmt.Errorf("%w: %v for dimension %q", ErrInvalidDataType, d.DataType, d.Name)
		}
		cols = append(cols, newDimension(d.Name, d.DataType, len(cols)))
	}

	staged := make([]Record, len(records))
	for n, values := range records {
		rec, err := coerceRecord(cols, values)
		if err != nil {
			return fmt.Errorf("record %d: %w", n+1, err)
		}
		staged[n] = rec
	}

	for _, d := range cols[len(c.dims):] {
		c.addDimension(d)
	}
	for _, rec := range staged {
		c.insert(rec)
	}
	return nil
}

// AddLabeledRecord appends a record given as dimension name -> value.
// Unknown names become new dimensions, Numeric when the value is a number
// or parses as one and Text otherwise; they are created in sorted name
// order. Dimensions not named in labeled are absent in the new record.
func (c *Cube) AddLabeledRecord(labeled map[string]any) error {
	names := make([]string, 0, len(labeled))
	for name := range labeled {
		names = append(names, name)
	}
	sort.Strings(names)

	// validate everything before the first mutation
	var created []*Dimension
	width := len(c.dims)
	typeOf := make(map[string]DataType, len(names))
	for _, name := range names {
		var dt DataType
		if d, ok := c.byName[name]; ok {
			dt = d.DataType
		} else {
			dt = inferType(labeled[name])
			created = append(created, newDimension(name, dt, width))
			width++
		}
		typeOf[name] = dt
	}
	coerced := make(map[string]any, len(names))
	for _, name := range names {
		cv, err := coerce(typeOf[name], labeled[name])
		if err != nil {
			return fmt.Errorf("dimension %q: %w", name, err)
		}
		coerced[name] = cv
	}

	for _, d := range created {
		c.addDimension(d)
	}
	rec := make(Record, len(c.dims))
	for name, v := range coerced {
		rec[c.byName[name].Index] = v
	}
	c.insert(rec)
	return nil
}

// Add appends a record given either as a positional tuple (Record or
// []any) or as a labeled mapping.
func (c *Cube) Add(v any) error {
	switch r := v.(type) {
	case Record:
		return c.AddRecord(r)
	case []any:
		return c.AddRecord(Record(r))
	case map[string]any:
		return c.AddLabeledRecord(r)
	}
	return fmt.Errorf("%w: %T", ErrInvalidRecordShape, v)
}

// insert stores an already validated record and folds it into every
// dimension's statistics and value index.
func (c *Cube) insert(rec Record) {
	pos := c.store.append(rec)
	for i, d := range c.dims {
		d.observe(rec[i], pos)
	}
}

// cloneSchema returns an empty cube with the same dimensions.
func (c *Cube) cloneSchema() *Cube {
	out := New()
	for _, d := range c.dims {
		cp := d.schemaCopy()
		out.dims = append(out.dims, cp)
		out.byName[cp.Name] = cp
	}
	out.store.width = len(c.dims)
	return out
}

// HasDimension reports whether name is registered.
func (c *Cube) HasDimension(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// DimensionIndex returns the record position of name.
func (c *Cube) DimensionIndex(name string) (int, error) {
	d, err := c.dimension(name)
	if err != nil {
		return -1, err
	}
	return d.Index, nil
}

// Dimension returns a copy of the named dimension's schema and stats.
func (c *Cube) Dimension(name string) (DimensionInfo, error) {
	d, err := c.dimension(name)
	if err != nil {
		return DimensionInfo{}, err
	}
	return d.info(), nil
}

// DimensionInfo is a read-only view of a dimension.
type DimensionInfo struct {
	Name     string
	DataType DataType
	Index    int
	Stats    DimensionStats
}

func (d *Dimension) info() DimensionInfo {
	return DimensionInfo{Name: d.Name, DataType: d.DataType, Index: d.Index, Stats: d.Stats()}
}

// Dimensions returns the schema in index order.
func (c *Cube) Dimensions() []DimensionInfo {
	out := make([]DimensionInfo, len(c.dims))
	for i, d := range c.dims {
		out[i] = d.info()
	}
	return out
}

// DimensionNames returns dimension names in index order.
func (c *Cube) DimensionNames() []string {
	out := make([]string, len(c.dims))
	for i, d := range c.dims {
		out[i] = d.Name
	}
	return out
}

func (c *Cube) NbrOfDimensions() int { return len(c.dims) }

func (c *Cube) NbrOfRecords() int { return c.store.len() }

// Record returns the record at position i. The returned tuple is shared
// with the cube and must not be modified.
func (c *Cube) Record(i int) Record { return c.store.at(i) }

// Records returns all records in insertion order. The tuples are shared
// with the cube and must not be modified.
func (c *Cube) Records() []Record {
	out := make([]Record, c.store.len())
	copy(out, c.store.records)
	return out
}

func (c *Cube) dimension(name string) (*Dimension, error) {
	d, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, name)
	}
	return d, nil
}

func (c *Cube) numericDimension(name string) (*Dimension, error) {
	d, err := c.dimension(name)
	if err != nil {
		return nil, err
	}
	if d.DataType != Numeric {
		return nil, fmt.Errorf("%w: %q is %v", ErrNonNumericDimension, name, d.DataType)
	}
	return d, nil
}
