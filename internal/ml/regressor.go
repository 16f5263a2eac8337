package ml

import (
	"fmt"
	"math"
)

// Regressor is a supervised model with a scalar target.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) (float64, error)
}

// Transformer is a column-wise preprocessing step.
type Transformer interface {
	Fit(X [][]float64) error
	Transform(x []float64) ([]float64, error)
}

// PredictAll applies r to every row.
func PredictAll(r Regressor, X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		v, err := r.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// TransformAll applies t to every row.
func TransformAll(t Transformer, X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		v, err := t.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Pipeline chains optional transformers in front of a regressor.
type Pipeline struct {
	Steps     []Transformer
	Regressor Regressor
}

func NewPipeline(r Regressor, steps ...Transformer) *Pipeline {
	kept := make([]Transformer, 0, len(steps))
	for _, s := range steps {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Pipeline{Steps: kept, Regressor: r}
}

func (p *Pipeline) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	cur := X
	for i, step := range p.Steps {
		if err := step.Fit(cur); err != nil {
			return fmt.Errorf("fit step %d: %w", i, err)
		}
		next, err := TransformAll(step, cur)
		if err != nil {
			return fmt.Errorf("transform step %d: %w", i, err)
		}
		cur = next
	}
	return p.Regressor.Fit(cur, y)
}

func (p *Pipeline) Predict(x []float64) (float64, error) {
	cur := x
	for _, step := range p.Steps {
		next, err := step.Transform(cur)
		if err != nil {
			return 0, err
		}
		cur = next
	}
	v, err := p.Regressor.Predict(cur)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFiniteValue
	}
	return v, nil
}
