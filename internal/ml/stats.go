// Package ml holds the numeric building blocks used by the forecasting models:
// preprocessing (scalers, polynomial expansion, variance filtering), regressors,
// tree ensembles, a seasonal ARIMA estimator and hyperparameter search.
//
// Matrices are passed around as row slices ([][]float64). gonum is used where
// real linear algebra or optimisation happens.
package ml

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyInput     = errors.New("empty input")
	ErrShapeMismatch  = errors.New("shape mismatch")
	ErrNotFitted      = errors.New("model not fitted")
	ErrNonFiniteValue = errors.New("non-finite value")
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// SampleStd is the ddof=1 standard deviation. It returns NaN for fewer than
// two values, matching pandas.
func SampleStd(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.StdDev(x, nil)
}

// Percentile uses numpy's default linear interpolation between order statistics.
// p is in [0, 100].
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return percentileSorted(s, p/100)
}

func percentileSorted(s []float64, q float64) float64 {
	if len(s) == 1 {
		return s[0]
	}
	h := q * float64(len(s)-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(s) {
		hi = len(s) - 1
	}
	return s[lo] + (h-float64(lo))*(s[hi]-s[lo])
}

// Median of x; NaN for empty input.
func Median(x []float64) float64 {
	return Percentile(x, 50)
}

// Clip bounds every value into [lo, hi] in a new slice.
func Clip(x []float64, lo, hi float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Min(math.Max(v, lo), hi)
	}
	return out
}

// MSE is the mean squared error between truth and prediction.
func MSE(truth, pred []float64) float64 {
	if len(truth) == 0 || len(truth) != len(pred) {
		return math.NaN()
	}
	d := make([]float64, len(truth))
	floats.SubTo(d, truth, pred)
	return floats.Dot(d, d) / float64(len(d))
}

// Column copies column j of X.
func Column(X [][]float64, j int) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[j]
	}
	return out
}

// Rows selects the given row indices.
func Rows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, k := range idx {
		out[i] = X[k]
	}
	return out
}

// Take selects the given indices of y.
func Take(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, k := range idx {
		out[i] = y[k]
	}
	return out
}

// CopyMatrix returns a deep copy.
func CopyMatrix(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func checkXY(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	if len(X) != len(y) {
		return ErrShapeMismatch
	}
	w := len(X[0])
	for _, row := range X {
		if len(row) != w {
			return ErrShapeMismatch
		}
	}
	return nil
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
