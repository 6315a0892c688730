package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestAggregate(t *testing.T) {
	// 1. Setup
	// AR 100, AR 300, US 50
	c := New()
	for _, r := range []map[string]any{
		{"country": "AR", "income": 100},
		{"country": "AR", "income": 300},
		{"country": "US", "income": 50},
	} {
		if err := c.AddLabeledRecord(r); err != nil {
			t.Fatal(err)
		}
	}

	// 2. Run Aggregation
	out, err := c.Aggregate([]string{"country"}, Sum("income"))
	if err != nil {
		t.Fatal(err)
	}

	// 3. Assertions
	if out.NbrOfRecords() != 2 {
		t.Fatalf("Expected 2 groups, got %d", out.NbrOfRecords())
	}
	if names := out.DimensionNames(); names[0] != "country" || names[1] != "sum_income" {
		t.Errorf("unexpected result schema %v", names)
	}
	ar, us := out.Record(0), out.Record(1)
	if ar[0] != "AR" || ar[1] != 400.0 {
		t.Errorf("Expected (AR, 400), got %v", ar)
	}
	if us[0] != "US" || us[1] != 50.0 {
		t.Errorf("Expected (US, 50), got %v", us)
	}
	info, _ := out.Dimension("country")
	if info.DataType != Text {
		t.Errorf("group-by dimension should keep its type, got %v", info.DataType)
	}
}

func TestAggregateBuiltins(t *testing.T) {
	c := salesCube(t)
	_ = c.AddRecord(Record{"AR", "north", nil})

	out, err := c.Aggregate([]string{"country"},
		CountAll(),
		Count("income"),
		CountUnique("region"),
		Average("income"),
		Min("income"),
		Max("income"),
	)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]Record{
		"AR": {"AR", 3.0, 2.0, 2.0, 200.0, 100.0, 300.0},
		"US": {"US", 1.0, 1.0, 1.0, 50.0, 50.0, 50.0},
		"UY": {"UY", 1.0, 1.0, 0.0, 20.0, 20.0, 20.0},
	}
	if out.NbrOfRecords() != len(want) {
		t.Fatalf("Expected %d groups, got %d", len(want), out.NbrOfRecords())
	}
	for _, r := range out.Records() {
		w := want[r[0].(string)]
		for i := range w {
			if r[i] != w[i] {
				t.Errorf("%s column %s: expected %v, got %v", r[0], out.DimensionNames()[i], w[i], r[i])
			}
		}
	}
}

func TestAggregateMultipleKeysAndAbsent(t *testing.T) {
	c := salesCube(t)
	out, err := c.Aggregate([]string{"region", "country"}, CountAll())
	if err != nil {
		t.Fatal(err)
	}
	// (north, AR) (south, AR) (north, US) (absent, UY)
	if out.NbrOfRecords() != 4 {
		t.Fatalf("Expected 4 groups, got %d", out.NbrOfRecords())
	}
	last := out.Record(3)
	if last[0] != nil || last[1] != "UY" {
		t.Errorf("absent group-by value should form its own group, got %v", last)
	}
	if n, _ := out.NonNullCount("region"); n != 3 {
		t.Errorf("absent key must not be indexed, region non-null = %d", n)
	}
}

// Values whose string concatenation collides must still form separate groups.
func TestAggregateKeysDoNotCollide(t *testing.T) {
	c := New()
	_ = c.AddDimension("a", Text)
	_ = c.AddDimension("b", Text)
	for _, r := range []Record{{"1", "7x"}, {"17", "x"}, {"1|7", "x"}, {"1", "7|x"}} {
		if err := c.AddRecord(r); err != nil {
			t.Fatal(err)
		}
	}
	out, err := c.Aggregate([]string{"a", "b"}, CountAll())
	if err != nil {
		t.Fatal(err)
	}
	if out.NbrOfRecords() != 4 {
		t.Errorf("Expected 4 distinct groups, got %d", out.NbrOfRecords())
	}
}

func TestAggregateCustom(t *testing.T) {
	c := salesCube(t)

	// concatenates regions in scan order; per-group state must not leak
	regions := AggregatorFunc[[]string]{
		Step: func(rec Record, seen *[]string) any {
			if s, ok := rec.String(1); ok {
				*seen = append(*seen, s)
			}
			return strings.Join(*seen, ",")
		},
	}
	range_ := AggregatorFunc[[2]float64]{
		Init: func() [2]float64 { return [2]float64{1e18, -1e18} },
		Step: func(rec Record, mm *[2]float64) any {
			if x, ok := rec.Float(2); ok {
				mm[0], mm[1] = min(mm[0], x), max(mm[1], x)
			}
			return mm[1] - mm[0]
		},
	}

	custom := Custom(regions).WithType(Text)
	if !strings.HasPrefix(custom.Name, "custom_") {
		t.Errorf("custom measure should get a synthetic name, got %q", custom.Name)
	}
	if other := Custom(regions); other.Name == custom.Name {
		t.Error("synthetic names must be unique")
	}

	out, err := c.Aggregate([]string{"country"}, custom.As("regions"), Custom(range_).As("spread"))
	if err != nil {
		t.Fatal(err)
	}
	ar := out.Record(0)
	if ar[1] != "north,south" {
		t.Errorf("Expected AR regions north,south, got %v", ar[1])
	}
	if ar[2] != 200.0 {
		t.Errorf("Expected AR spread 200, got %v", ar[2])
	}
	if us := out.Record(1); us[1] != "north" {
		t.Errorf("Expected US regions north, got %v", us[1])
	}
}

func TestAggregateNoGroupBy(t *testing.T) {
	c := salesCube(t)
	out, err := c.Aggregate(nil, Sum("income"), CountAll())
	if err != nil {
		t.Fatal(err)
	}
	if out.NbrOfRecords() != 1 {
		t.Fatalf("Expected a single total row, got %d", out.NbrOfRecords())
	}
	if r := out.Record(0); r[0] != 470.0 || r[1] != 4.0 {
		t.Errorf("unexpected totals %v", r)
	}
}

func TestAggregateErrors(t *testing.T) {
	c := salesCube(t)

	if _, err := NewMeasure("median", "income"); !errors.Is(err, ErrUnknownAggregation) {
		t.Errorf("expected ErrUnknownAggregation, got %v", err)
	}
	if _, err := c.Aggregate([]string{"planet"}, CountAll()); !errors.Is(err, ErrUnknownDimension) {
		t.Errorf("unknown group-by: expected ErrUnknownDimension, got %v", err)
	}
	if _, err := c.Aggregate([]string{"country"}, Sum("region")); !errors.Is(err, ErrNonNumericDimension) {
		t.Errorf("sum over text: expected ErrNonNumericDimension, got %v", err)
	}
	if _, err := c.Aggregate([]string{"country"}, Count("nope")); !errors.Is(err, ErrUnknownDimension) {
		t.Errorf("count over unknown: expected ErrUnknownDimension, got %v", err)
	}
	if _, err := c.Aggregate([]string{"country"}, Sum("income").As("country")); !errors.Is(err, ErrDuplicateDimension) {
		t.Errorf("measure shadowing a key: expected ErrDuplicateDimension, got %v", err)
	}
	if _, err := c.Aggregate(nil, Measure{Name: "x"}); !errors.Is(err, ErrUnknownAggregation) {
		t.Errorf("empty custom measure: expected ErrUnknownAggregation, got %v", err)
	}
}

func TestAggregateOutputNamesMustBeUnique(t *testing.T) {
	c := salesCube(t)
	_ = c.AddDimension("count", Text)

	if _, err := c.Aggregate([]string{"country"}, Sum("income"), Sum("income")); !errors.Is(err, ErrDuplicateDimension) {
		t.Errorf("repeated measure: expected ErrDuplicateDimension, got %v", err)
	}
	if _, err := c.Aggregate([]string{"count"}, CountAll()); !errors.Is(err, ErrDuplicateDimension) {
		t.Errorf("count over * grouped by \"count\": expected ErrDuplicateDimension, got %v", err)
	}
	if _, err := c.Aggregate([]string{"country", "country"}, CountAll()); !errors.Is(err, ErrDuplicateDimension) {
		t.Errorf("repeated group-by: expected ErrDuplicateDimension, got %v", err)
	}

	out, err := c.Aggregate([]string{"country"}, Sum("income"), Sum("income").As("total"))
	if err != nil {
		t.Fatal(err)
	}
	if names := out.DimensionNames(); len(names) != 3 || names[2] != "total" {
		t.Errorf("renamed measure should be accepted, got %v", names)
	}
}

func TestParseAggregationKind(t *testing.T) {
	for in, want := range map[string]AggregationKind{
		"sum": KindSum, "COUNT": KindCount, "countUnique": KindCountUnique,
		"count_unique": KindCountUnique, "avg": KindAverage, "average": KindAverage,
		"min": KindMin, "max": KindMax,
	} {
		got, err := ParseAggregationKind(in)
		if err != nil || got != want {
			t.Errorf("ParseAggregationKind(%q) = %v, %v", in, got, err)
		}
	}
	m, err := NewMeasure("count", AllRecords)
	if err != nil || m.Name != "count" {
		t.Errorf("NewMeasure(count, *) = %+v, %v", m, err)
	}
}
