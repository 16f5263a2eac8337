package ml

// Fold is one train/test split expressed as row indices.
type Fold struct {
	Train []int
	Test  []int
}

// TimeSeriesSplits returns the forward-chaining split count used for short
// monthly histories: max(1, min(3, (n-1)/2)).
func TimeSeriesSplits(n int) int {
	return max(1, min(3, (n-1)/2))
}

// TimeSeriesSplit produces expanding-window folds. Every test block lies
// strictly after its training block; the test size is n/(splits+1).
func TimeSeriesSplit(n, splits int) []Fold {
	if n < 2 || splits < 1 {
		return nil
	}
	testSize := n / (splits + 1)
	if testSize < 1 {
		testSize = 1
		splits = n - 1
	}
	folds := make([]Fold, 0, splits)
	for k := 0; k < splits; k++ {
		start := n - (splits-k)*testSize
		if start < 1 {
			continue
		}
		f := Fold{Train: seq(0, start), Test: seq(start, start+testSize)}
		folds = append(folds, f)
	}
	return folds
}

// HoldoutSplit keeps the first int(frac*n) rows (at least one) for training.
func HoldoutSplit(n int, frac float64) (train, val []int) {
	cut := max(1, int(float64(n)*frac))
	if cut > n {
		cut = n
	}
	return seq(0, cut), seq(cut, n)
}

func seq(from, to int) []int {
	out := make([]int, 0, max(0, to-from))
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

// CrossValidate fits a fresh estimator per fold and returns the mean test MSE.
func CrossValidate(newEstimator func() Regressor, X [][]float64, y []float64, folds []Fold) (float64, error) {
	if len(folds) == 0 {
		return 0, ErrEmptyInput
	}
	var total float64
	for _, f := range folds {
		est := newEstimator()
		if err := est.Fit(Rows(X, f.Train), Take(y, f.Train)); err != nil {
			return 0, err
		}
		pred, err := PredictAll(est, Rows(X, f.Test))
		if err != nil {
			return 0, err
		}
		total += MSE(Take(y, f.Test), pred)
	}
	return total / float64(len(folds)), nil
}
