package forecast

import (
	"fmt"
	"math"

	"fintrack/internal/ml"
)

// Predictor scores one unfiltered feature row.
type Predictor interface {
	PredictOne(row []float64) (float64, error)
}

// FittedPipeline applies the dataset's variance filter and then a fitted
// regressor.
type FittedPipeline struct {
	Selector  *ml.VarianceThreshold
	Regressor ml.Regressor
}

func (p *FittedPipeline) PredictOne(row []float64) (float64, error) {
	x := row
	if p.Selector != nil {
		var err error
		if x, err = p.Selector.Transform(row); err != nil {
			return 0, err
		}
	}
	return p.Regressor.Predict(x)
}

// IterativeForecast predicts one future row at a time, feeding each clipped
// prediction back into the lag, difference and rolling columns of the next
// row. future is not modified.
func IterativeForecast(p Predictor, future [][]float64, historicalY []float64) ([]float64, error) {
	n := len(future)
	rows := ml.CopyMatrix(future)
	recent := append([]float64(nil), historicalY...)
	upper := 0.0
	for _, v := range historicalY {
		upper = math.Max(upper, v)
	}
	upper *= 2
	longHistory := len(historicalY) > 12

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		raw, err := p.PredictOne(rows[i])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return nil, fmt.Errorf("step %d: %w", i+1, ml.ErrNonFiniteValue)
		}
		pred := math.Min(math.Max(raw, 0), upper)
		out[i] = pred
		if i+1 >= n {
			break
		}

		recent = append(recent, pred)
		next := rows[i+1]
		next[ColLag1] = pred
		next[ColDiff1] = pred - rows[i][ColLag1]
		if len(recent) >= 3 {
			next[ColRollMean3] = ml.Mean(tail(recent, 3))
			next[ColRollStd3] = ml.SampleStd(tail(recent, 3))
		} else {
			next[ColRollMean3] = pred
			next[ColRollStd3] = 0
		}
		if len(recent) >= 6 {
			next[ColRollMean6] = ml.Mean(tail(recent, 6))
		} else {
			next[ColRollMean6] = pred
		}
		if longHistory {
			if len(recent) >= 12 {
				next[ColLag12] = recent[len(recent)-12]
			} else {
				next[ColLag12] = ml.Mean(recent)
			}
		}
	}
	return out, nil
}
