package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Operator is a comparison used by a dimension criterion.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// ParseOperator validates s as one of the six supported operators.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
}

// Predicate is an opaque record filter.
type Predicate func(Record) bool

// Criterion is one filter condition: either a (dimension, operator, value)
// triple or an opaque predicate.
type Criterion struct {
	Dimension string
	Op        Operator
	Value     any
	Predicate Predicate
}

// Where builds a dimension criterion.
func Where(dimension string, op Operator, value any) Criterion {
	return Criterion{Dimension: dimension, Op: op, Value: value}
}

// Match wraps an opaque predicate as a criterion.
func Match(p Predicate) Criterion {
	return Criterion{Predicate: p}
}

// Equal normalizes a name -> value mapping into equality criteria, in
// sorted name order.
func Equal(values map[string]any) []Criterion {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Criterion, len(names))
	for i, name := range names {
		out[i] = Where(name, OpEqual, values[name])
	}
	return out
}

// operators in match order: two-character forms first so "<=" is not read
// as "<".
var operatorTokens = []Operator{OpNotEqual, OpLessEqual, OpGreaterEqual, OpEqual, OpLess, OpGreater}

// ParseCriterion reads expressions like "country=AR" or "income >= 100".
// The value is kept as a string and coerced against the dimension type
// when the criterion is compiled.
func ParseCriterion(expr string) (Criterion, error) {
	for i := 0; i < len(expr); i++ {
		for _, op := range operatorTokens {
			if strings.HasPrefix(expr[i:], string(op)) {
				dim := strings.TrimSpace(expr[:i])
				val := strings.TrimSpace(expr[i+len(op):])
				if dim == "" {
					return Criterion{}, fmt.Errorf("%w: missing dimension in %q", ErrInvalidCriterion, expr)
				}
				return Where(dim, op, val), nil
			}
		}
	}
	return Criterion{}, fmt.Errorf("%w: no operator in %q", ErrInvalidCriterion, expr)
}

// compiled is a criterion resolved against a cube's schema.
type compiled struct {
	match Predicate
	// set for equality criteria only
	dim *Dimension
	key string
	eq  bool
}

func (c *Cube) compile(cr Criterion) (compiled, error) {
	if cr.Predicate != nil {
		if cr.Dimension != "" || cr.Op != "" {
			return compiled{}, fmt.Errorf("%w: predicate criterion must not name a dimension", ErrInvalidCriterion)
		}
		return compiled{match: cr.Predicate}, nil
	}
	if cr.Dimension == "" {
		return compiled{}, fmt.Errorf("%w: missing dimension", ErrInvalidCriterion)
	}
	d, err := c.dimension(cr.Dimension)
	if err != nil {
		return compiled{}, err
	}
	op, err := ParseOperator(string(cr.Op))
	if err != nil {
		return compiled{}, err
	}
	if cr.Value == nil {
		return compiled{}, fmt.Errorf("%w: nil value for %q", ErrInvalidCriterion, cr.Dimension)
	}
	v, err := coerce(d.DataType, cr.Value)
	if err != nil {
		return compiled{}, fmt.Errorf("%w: %v", ErrInvalidCriterion, err)
	}

	idx := d.Index
	var cmp func(any) int
	if d.DataType == Numeric {
		want := v.(float64)
		cmp = func(got any) int {
			g := got.(float64)
			switch {
			case g < want:
				return -1
			case g > want:
				return 1
			}
			return 0
		}
	} else {
		want := v.(string)
		cmp = func(got any) int { return strings.Compare(got.(string), want) }
	}
	test := opTest(op)
	out := compiled{
		match: func(r Record) bool {
			got := r[idx]
			if got == nil {
				return op == OpNotEqual
			}
			return test(cmp(got))
		},
	}
	if op == OpEqual {
		out.dim, out.key, out.eq = d, indexKey(v), true
	}
	return out, nil
}

func opTest(op Operator) func(int) bool {
	switch op {
	case OpEqual:
		return func(c int) bool { return c == 0 }
	case OpNotEqual:
		return func(c int) bool { return c != 0 }
	case OpLess:
		return func(c int) bool { return c < 0 }
	case OpLessEqual:
		return func(c int) bool { return c <= 0 }
	case OpGreater:
		return func(c int) bool { return c > 0 }
	default:
		return func(c int) bool { return c >= 0 }
	}
}

// Slice returns a new cube with the same schema holding every record for
// which all criteria hold. Records are shared with the receiver, not copied.
//
// When equality criteria are present, only the shortest value-index
// candidate list is scanned; every criterion is still evaluated against
// each candidate.
func (c *Cube) Slice(criteria ...Criterion) (*Cube, error) {
	preds := make([]Predicate, len(criteria))
	var candidates []int
	narrowed := false
	for i, cr := range criteria {
		cc, err := c.compile(cr)
		if err != nil {
			return nil, err
		}
		preds[i] = cc.match
		if !cc.eq {
			continue
		}
		refs, ok := cc.dim.lookup(cc.key)
		if !ok {
			// no record holds this value
			refs = nil
		}
		if !narrowed || len(refs) < len(candidates) {
			candidates, narrowed = refs, true
		}
	}

	out := c.cloneSchema()
	keep := func(r Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
	if narrowed {
		for _, pos := range candidates {
			if r := c.store.at(pos); keep(r) {
				out.insert(r)
			}
		}
		return out, nil
	}
	for _, r := range c.store.records {
		if keep(r) {
			out.insert(r)
		}
	}
	return out, nil
}

// SliceEqual slices on implied equality for each name -> value pair.
func (c *Cube) SliceEqual(values map[string]any) (*Cube, error) {
	return c.Slice(Equal(values)...)
}
