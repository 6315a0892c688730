package engine

import "math"

// ============================================================================
// STATISTICS — O(1) reads of running state, exact values by a second pass
// ============================================================================

// Sum returns the sum of the non-absent values of a numeric dimension.
func (c *Cube) Sum(name string) (float64, error) {
	d, err := c.numericDimension(name)
	if err != nil {
		return 0, err
	}
	return d.stats.Sum, nil
}

func (c *Cube) SumOfSquares(name string) (float64, error) {
	d, err := c.numericDimension(name)
	if err != nil {
		return 0, err
	}
	return d.stats.SumOfSquares, nil
}

// Min returns the smallest value, or 0 when the dimension has no values.
func (c *Cube) Min(name string) (float64, error) {
	d, err := c.numericDimension(name)
	if err != nil {
		return 0, err
	}
	return d.Stats().Min, nil
}

// Max returns the largest value, or 0 when the dimension has no values.
func (c *Cube) Max(name string) (float64, error) {
	d, err := c.numericDimension(name)
	if err != nil {
		return 0, err
	}
	return d.Stats().Max, nil
}

// NonNullCount returns the number of records holding a value for name.
func (c *Cube) NonNullCount(name string) (int, error) {
	d, err := c.dimension(name)
	if err != nil {
		return 0, err
	}
	return d.stats.NonNullCount, nil
}

// CountUnique returns the size of the value index: the number of
// non-absent observations of name. It equals NonNullCount; use
// DistinctCount for the number of different values.
func (c *Cube) CountUnique(name string) (int, error) {
	return c.NonNullCount(name)
}

// DistinctCount returns the number of different values held by name.
func (c *Cube) DistinctCount(name string) (int, error) {
	d, err := c.dimension(name)
	if err != nil {
		return 0, err
	}
	return d.stats.DistinctCount, nil
}

// Average returns Sum / NonNullCount, or 0 when there are no values.
func (c *Cube) Average(name string) (float64, error) {
	d, err := c.numericDimension(name)
	if err != nil {
		return 0, err
	}
	return d.mean(), nil
}

func (d *Dimension) mean() float64 {
	if d.stats.NonNullCount == 0 {
		return 0
	}
	return d.stats.Sum / float64(d.stats.NonNullCount)
}

// StdDev returns the population standard deviation of name.
//
// With approximate set it is derived in O(1) from the running sums as
// sqrt(n·Σx² − (Σx)²)/n. That form loses precision when values are large
// relative to their spread; callers that care should ask for the exact
// value, which takes one pass over the records and is cached until the
// dimension observes another value.
func (c *Cube) StdDev(name string, approximate bool) (float64, error) {
	d, err := c.numericDimension(name)
	if err != nil {
		return 0, err
	}
	n := float64(d.stats.NonNullCount)
	if n == 0 {
		return 0, nil
	}
	if approximate {
		r := n*d.stats.SumOfSquares - d.stats.Sum*d.stats.Sum
		if r < 0 {
			r = 0
		}
		return math.Sqrt(r) / n, nil
	}
	if d.stats.hasStdDev {
		return d.stats.stdDev, nil
	}
	mean := d.mean()
	var acc float64
	for _, rec := range c.store.records {
		if x, ok := rec.Float(d.Index); ok {
			acc += (x - mean) * (x - mean)
		}
	}
	d.stats.stdDev = math.Sqrt(acc / n)
	d.stats.hasStdDev = true
	return d.stats.stdDev, nil
}

// Variance is StdDev squared.
func (c *Cube) Variance(name string, approximate bool) (float64, error) {
	sd, err := c.StdDev(name, approximate)
	if err != nil {
		return 0, err
	}
	return sd * sd, nil
}

// Covariance computes Σ(a−mean(a))(b−mean(b)) over records holding both
// values, divided by the larger of the two non-null counts.
func (c *Cube) Covariance(a, b string) (float64, error) {
	da, err := c.numericDimension(a)
	if err != nil {
		return 0, err
	}
	db, err := c.numericDimension(b)
	if err != nil {
		return 0, err
	}
	n := max(da.stats.NonNullCount, db.stats.NonNullCount)
	if n == 0 {
		return 0, nil
	}
	ma, mb := da.mean(), db.mean()
	var acc float64
	for _, rec := range c.store.records {
		x, okx := rec.Float(da.Index)
		y, oky := rec.Float(db.Index)
		if okx && oky {
			acc += (x - ma) * (y - mb)
		}
	}
	return acc / float64(n), nil
}
