package models

// DimensionInfo describes one dimension and its running statistics.
type DimensionInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Index         int      `json:"index"`
	NonNullCount  int      `json:"non_null_count"`
	DistinctCount int      `json:"distinct_count"`
	Sum           *float64 `json:"sum,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
}

type AddDimensionRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// AddRecordRequest carries exactly one of Values (positional) or Record
// (labeled).
type AddRecordRequest struct {
	Values []any          `json:"values,omitempty"`
	Record map[string]any `json:"record,omitempty"`
}

type Criterion struct {
	Dimension string `json:"dimension"`
	Op        string `json:"op"`
	Value     any    `json:"value"`
}

// Filter is the union of every way a request can narrow the cube. All
// parts are AND-combined.
type Filter struct {
	Criteria []Criterion    `json:"criteria,omitempty"`
	Where    []string       `json:"where,omitempty"` // "income>=100"
	Equals   map[string]any `json:"equals,omitempty"`
}

type MeasureSpec struct {
	Kind      string `json:"kind"`
	Dimension string `json:"dimension"`
	Name      string `json:"name,omitempty"`
}

type AggregateRequest struct {
	Filter
	GroupBy  []string      `json:"group_by"`
	Measures []MeasureSpec `json:"measures"`
}

// CubeData is a page of a cube's records.
type CubeData struct {
	Dimensions []string `json:"dimensions"`
	Records    [][]any  `json:"records"`
	Total      int      `json:"total"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
}

// StatsResponse carries counts for every dimension; the numeric fields are
// set only for Numeric dimensions.
type StatsResponse struct {
	Dimension     string   `json:"dimension"`
	Type          string   `json:"type"`
	Approximate   bool     `json:"approximate"`
	Count         int      `json:"count"`
	DistinctCount int      `json:"distinct_count"`
	Sum           *float64 `json:"sum,omitempty"`
	SumOfSquares  *float64 `json:"sum_of_squares,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Average       *float64 `json:"average,omitempty"`
	StdDev        *float64 `json:"std_dev,omitempty"`
	Variance      *float64 `json:"variance,omitempty"`
}

type CovarianceResponse struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Covariance float64 `json:"covariance"`
}
