package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/ml"
	"fintrack/internal/ml/search"
)

type polyConfig struct {
	linearConfig
	Degree int
}

func (c polyConfig) pipeline() *ml.Pipeline {
	return newScaledPipeline(ml.NewLinearModel(c.Params), c.Scaler, ml.NewPolynomialFeatures(c.Degree))
}

func (c polyConfig) describe() map[string]any {
	out := c.linearConfig.describe()
	out["degree"] = c.Degree
	return out
}

// Polynomial expands the features to degree 2 or 3 before a regularised
// linear fit.
type Polynomial struct {
	parallelism int
	logger      *slog.Logger
}

func NewPolynomial(opts Options) *Polynomial {
	opts = opts.withDefaults()
	return &Polynomial{
		parallelism: opts.Parallelism,
		logger:      opts.modelLogger(KindPolynomial),
	}
}

func (m *Polynomial) Kind() ModelKind { return KindPolynomial }
func (m *Polynomial) MinMonths() int  { return MinRegressionMonths }

func (m *Polynomial) Forecast(ctx context.Context, ds *Dataset, horizon int) (*Outcome, error) {
	return regressionForecast(ctx, KindPolynomial, ds, horizon, m.logger, m.Fit)
}

func polyCandidates() []polyConfig {
	var out []polyConfig
	for _, kind := range []ml.LinearKind{ml.Ridge, ml.Lasso} {
		for _, a := range gridAlphas {
			for _, icpt := range []bool{true, false} {
				for _, scaler := range ml.ScalerKinds() {
					for _, deg := range []int{2, 3} {
						out = append(out, polyConfig{
							linearConfig: linearConfig{Params: penalizedParams(kind, a, icpt), Scaler: scaler},
							Degree:       deg,
						})
					}
				}
			}
		}
	}
	return out
}

func (m *Polynomial) Fit(ctx context.Context, X [][]float64, y []float64) (ml.Regressor, map[string]any, float64, error) {
	res, err := search.Grid(ctx, polyCandidates(), func(c polyConfig) ml.Regressor { return c.pipeline() }, X, y, forwardChaining(len(y)), m.parallelism)
	if err != nil {
		return nil, nil, 0, err
	}
	pipe := res.Params.pipeline()
	if err := pipe.Fit(X, y); err != nil {
		return nil, nil, 0, fmt.Errorf("final fit: %w", err)
	}
	return pipe, res.Params.describe(), res.MSE, nil
}
