// Package search implements hyperparameter search strategies: exhaustive
// grid search with forward-chaining cross-validation, and a sequential
// tree-structured Parzen estimator study with median pruning.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"

	"fintrack/internal/ml"

	"golang.org/x/sync/errgroup"
)

var ErrNoViableCandidate = errors.New("no candidate could be evaluated")

// GridResult is the winning candidate and its mean cross-validated MSE.
type GridResult[P any] struct {
	Params P
	MSE    float64
	Index  int
	Scores []float64
}

// Grid evaluates every candidate with cross-validation and returns the one
// with the lowest mean MSE. Ties go to the earliest candidate. Candidates
// whose fit fails score +Inf and are skipped.
func Grid[P any](ctx context.Context, candidates []P, build func(P) ml.Regressor, X [][]float64, y []float64, folds []ml.Fold, parallelism int) (GridResult[P], error) {
	var zero GridResult[P]
	if len(candidates) == 0 {
		return zero, fmt.Errorf("grid search: %w", ml.ErrEmptyInput)
	}
	scores := make([]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, parallelism))
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mse, err := ml.CrossValidate(func() ml.Regressor { return build(c) }, X, y, folds)
			if err != nil || math.IsNaN(mse) {
				scores[i] = math.Inf(1)
				return nil
			}
			scores[i] = mse
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}

	best := -1
	for i, s := range scores {
		if math.IsInf(s, 1) {
			continue
		}
		if best < 0 || s < scores[best] {
			best = i
		}
	}
	if best < 0 {
		return zero, ErrNoViableCandidate
	}
	return GridResult[P]{Params: candidates[best], MSE: scores[best], Index: best, Scores: scores}, nil
}
