package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// DataType is the type of a dimension's values.
type DataType int

const (
	Numeric DataType = iota + 1
	Text
)

func (t DataType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Text:
		return "text"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// Valid reports whether t is Numeric or Text.
func (t DataType) Valid() bool { return t == Numeric || t == Text }

// ParseDataType accepts "numeric"/"number" and "text"/"string".
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "numeric", "number":
		return Numeric, nil
	case "text", "string":
		return Text, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDataType, s)
}

// Record is one row of a cube: a fixed-width tuple positionally aligned to
// the dimension registry. Numeric values are float64, Text values are
// string, and nil marks an absent value.
type Record []any

// Float returns the numeric value at position i and whether one is present.
func (r Record) Float(i int) (float64, bool) {
	if i < 0 || i >= len(r) {
		return 0, false
	}
	f, ok := r[i].(float64)
	return f, ok
}

// String returns the text value at position i and whether one is present.
func (r Record) String(i int) (string, bool) {
	if i < 0 || i >= len(r) {
		return "", false
	}
	s, ok := r[i].(string)
	return s, ok
}

// coerce converts an input value to the stored representation for dt.
// nil passes through as absent.
func coerce(dt DataType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch dt {
	case Numeric:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("%w: %v (%T) is not numeric", ErrInvalidValue, v, v)
	case Text:
		return toText(v), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidDataType, dt)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, finite(n)
	case float32:
		return float64(n), finite(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		return ParseNumber(n.String())
	case string:
		return ParseNumber(n)
	}
	return 0, false
}

// ParseNumber reads s as a Numeric value. NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func toText(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	}
	if f, ok := toFloat(v); ok {
		return formatNumber(f)
	}
	return fmt.Sprint(v)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// inferType picks the dimension type for a value seen in a labeled record.
func inferType(v any) DataType {
	switch v.(type) {
	case nil:
		return Text
	case string:
		if _, ok := ParseNumber(v.(string)); ok {
			return Numeric
		}
		return Text
	}
	if _, ok := toFloat(v); ok {
		return Numeric
	}
	return Text
}

// indexKey is the stringified value used as the value index key.
func indexKey(v any) string {
	switch x := v.(type) {
	case float64:
		if x == 0 {
			x = 0 // -0
		}
		return formatNumber(x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
