package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/ml"
	"fintrack/internal/ml/search"
)

// RandomForest grid-searches bagged regression trees.
type RandomForest struct {
	seed        uint64
	parallelism int
	logger      *slog.Logger
}

func NewRandomForest(opts Options) *RandomForest {
	opts = opts.withDefaults()
	return &RandomForest{
		seed:        opts.seedFor(KindRandomForest),
		parallelism: opts.Parallelism,
		logger:      opts.modelLogger(KindRandomForest),
	}
}

func (m *RandomForest) Kind() ModelKind { return KindRandomForest }
func (m *RandomForest) MinMonths() int  { return MinRegressionMonths }

func (m *RandomForest) Forecast(ctx context.Context, ds *Dataset, horizon int) (*Outcome, error) {
	return regressionForecast(ctx, KindRandomForest, ds, horizon, m.logger, m.Fit)
}

func (m *RandomForest) candidates() []ml.ForestParams {
	var out []ml.ForestParams
	for _, trees := range []int{50, 100, 150} {
		// Depth 0 grows until the leaves are pure.
		for _, depth := range []int{0, 2, 5, 8, 10} {
			for _, split := range []int{2, 3} {
				for _, leaf := range []int{1, 2} {
					for _, feats := range []string{"all", "sqrt", "log2"} {
						for _, boot := range []bool{false, true} {
							out = append(out, ml.ForestParams{
								NEstimators:     trees,
								MaxDepth:        depth,
								MinSamplesSplit: split,
								MinSamplesLeaf:  leaf,
								MaxFeatures:     feats,
								Bootstrap:       boot,
								Seed:            m.seed,
							})
						}
					}
				}
			}
		}
	}
	return out
}

func (m *RandomForest) Fit(ctx context.Context, X [][]float64, y []float64) (ml.Regressor, map[string]any, float64, error) {
	res, err := search.Grid(ctx, m.candidates(), func(p ml.ForestParams) ml.Regressor { return ml.NewRandomForest(p) }, X, y, forwardChaining(len(y)), m.parallelism)
	if err != nil {
		return nil, nil, 0, err
	}
	rf := ml.NewRandomForest(res.Params)
	if err := rf.Fit(X, y); err != nil {
		return nil, nil, 0, fmt.Errorf("final fit: %w", err)
	}
	p := res.Params
	depth := any(p.MaxDepth)
	if p.MaxDepth == 0 {
		depth = "none"
	}
	return rf, map[string]any{
		"n_estimators":      p.NEstimators,
		"max_depth":         depth,
		"min_samples_split": p.MinSamplesSplit,
		"min_samples_leaf":  p.MinSamplesLeaf,
		"max_features":      p.MaxFeatures,
		"bootstrap":         p.Bootstrap,
	}, res.MSE, nil
}
