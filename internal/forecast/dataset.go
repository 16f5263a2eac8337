package forecast

import (
	"fmt"
	"math"

	"fintrack/internal/core"
	"fintrack/internal/ml"
)

// VarianceThreshold is the cutoff below which feature columns are dropped.
const VarianceThreshold = 0.001

// Dataset is the read-only training view shared by every model of a request.
type Dataset struct {
	Agg    *Aggregation
	Months []core.MonthKey
	X      [][]float64
	Y      []float64
	Exog   [][]float64

	// Selector is fitted once on X; Selected is X after filtering.
	Selector *ml.VarianceThreshold
	Selected [][]float64
}

// NewDataset derives features from agg. An empty aggregation yields an empty
// dataset; models report it as insufficient data.
func NewDataset(agg *Aggregation) (*Dataset, error) {
	months, X, y, exog := MonthsXY(agg)
	ds := &Dataset{Agg: agg, Months: months, X: X, Y: y, Exog: exog}
	if len(months) == 0 {
		return ds, nil
	}
	ds.Selector = ml.NewVarianceThreshold(VarianceThreshold)
	if err := ds.Selector.Fit(X); err != nil {
		return nil, fmt.Errorf("variance filter: %w", err)
	}
	sel, err := ml.TransformAll(ds.Selector, X)
	if err != nil {
		return nil, fmt.Errorf("variance filter: %w", err)
	}
	ds.Selected = sel
	return ds, nil
}

func (d *Dataset) Len() int { return len(d.Months) }

// Future returns fresh template rows for the next n months.
func (d *Dataset) Future(n int) (rows, exog [][]float64) {
	return FutureFeatures(d.Months, d.Y, d.Agg, n)
}

// FutureMonths lists the n months after the last observed one.
func (d *Dataset) FutureMonths(n int) []core.MonthKey {
	if d.Len() == 0 {
		return nil
	}
	last := d.Months[d.Len()-1]
	out := make([]core.MonthKey, n)
	for i := range out {
		out[i] = last.AddMonths(i + 1)
	}
	return out
}

// UpperBound is the clip ceiling applied to every prediction.
func (d *Dataset) UpperBound() float64 {
	m := 0.0
	for _, v := range d.Y {
		m = math.Max(m, v)
	}
	return 2 * m
}

// ClippedY caps y at its 95th percentile.
func (d *Dataset) ClippedY() []float64 {
	return ml.Clip(d.Y, math.Inf(-1), ml.Percentile(d.Y, 95))
}
