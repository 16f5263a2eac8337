package ml

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// VarianceThreshold drops columns whose population variance on the fitting
// matrix is not above Threshold.
type VarianceThreshold struct {
	Threshold float64

	keep   []int
	width  int
	fitted bool
}

func NewVarianceThreshold(threshold float64) *VarianceThreshold {
	return &VarianceThreshold{Threshold: threshold}
}

func (v *VarianceThreshold) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	v.width = len(X[0])
	v.keep = v.keep[:0]
	v.fitted = true
	for j := 0; j < v.width; j++ {
		if stat.PopVariance(Column(X, j), nil) > v.Threshold {
			v.keep = append(v.keep, j)
		}
	}
	return nil
}

func (v *VarianceThreshold) Transform(x []float64) ([]float64, error) {
	if !v.fitted {
		return nil, ErrNotFitted
	}
	if len(x) != v.width {
		return nil, fmt.Errorf("%w: got %d columns, fitted on %d", ErrShapeMismatch, len(x), v.width)
	}
	out := make([]float64, len(v.keep))
	for i, j := range v.keep {
		out[i] = x[j]
	}
	return out, nil
}

// Support lists the retained column indices.
func (v *VarianceThreshold) Support() []int {
	return append([]int(nil), v.keep...)
}
