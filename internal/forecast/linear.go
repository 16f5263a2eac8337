package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"fintrack/internal/ml"
	"fintrack/internal/ml/search"
)

// shortHistoryMonths is the history below which the linear search is skipped
// in favour of a fixed robust-scaled OLS.
const shortHistoryMonths = 6

var gridAlphas = []float64{0.001, 0.01, 0.1, 1, 10}

const gridMaxIter = 1000

type linearConfig struct {
	Params ml.LinearParams
	Scaler ml.ScalerKind
}

func (c linearConfig) pipeline() *ml.Pipeline {
	return newScaledPipeline(ml.NewLinearModel(c.Params), c.Scaler)
}

func (c linearConfig) describe() map[string]any {
	out := map[string]any{
		"regressor":     string(c.Params.Kind),
		"scaler":        string(c.Scaler),
		"fit_intercept": c.Params.FitIntercept,
	}
	if c.Params.Kind != ml.OLS {
		out["alpha"] = c.Params.Alpha
	}
	if c.Params.Kind == ml.Lasso || c.Params.Kind == ml.Huber {
		out["max_iter"] = c.Params.MaxIter
	}
	if c.Params.Kind == ml.Huber {
		out["epsilon"] = c.Params.Epsilon
	}
	return out
}

// Linear searches the OLS/ridge/lasso/huber family across scalers.
type Linear struct {
	trials      int
	strategy    LinearStrategy
	seed        uint64
	parallelism int
	logger      *slog.Logger
}

func NewLinear(opts Options) *Linear {
	opts = opts.withDefaults()
	return &Linear{
		trials:      opts.LinearTrials,
		strategy:    opts.LinearStrategy,
		seed:        opts.seedFor(KindLinear),
		parallelism: opts.Parallelism,
		logger:      opts.modelLogger(KindLinear),
	}
}

func (m *Linear) Kind() ModelKind { return KindLinear }
func (m *Linear) MinMonths() int  { return MinRegressionMonths }

func (m *Linear) Forecast(ctx context.Context, ds *Dataset, horizon int) (*Outcome, error) {
	return regressionForecast(ctx, KindLinear, ds, horizon, m.logger, m.Fit)
}

// Fit selects and trains the pipeline on X and y.
func (m *Linear) Fit(ctx context.Context, X [][]float64, y []float64) (ml.Regressor, map[string]any, float64, error) {
	var (
		cfg linearConfig
		mse float64
		err error
	)
	switch {
	case len(y) < shortHistoryMonths:
		cfg = linearConfig{Params: ml.LinearParams{Kind: ml.OLS, FitIntercept: true}, Scaler: ml.RobustScaling}
		mse, err = ml.CrossValidate(func() ml.Regressor { return cfg.pipeline() }, X, y, forwardChaining(len(y)))
	case m.strategy == LinearGrid:
		cfg, mse, err = m.grid(ctx, X, y)
	default:
		cfg, mse, err = m.tpe(ctx, X, y)
	}
	if err != nil {
		return nil, nil, 0, err
	}
	pipe := cfg.pipeline()
	if err := pipe.Fit(X, y); err != nil {
		return nil, nil, 0, fmt.Errorf("final fit: %w", err)
	}
	return pipe, cfg.describe(), mse, nil
}

func (m *Linear) tpe(ctx context.Context, X [][]float64, y []float64) (linearConfig, float64, error) {
	study := search.NewStudy(m.seed)
	study.Parallelism = m.parallelism
	var configs sync.Map
	objective := func(_ context.Context, t *search.Trial) (float64, error) {
		cfg := suggestLinear(t)
		configs.Store(t.Number(), cfg)
		mse, err := holdoutMSE(cfg.pipeline(), X, y, 0.8)
		if err != nil {
			return 0, err
		}
		t.Report(0, mse)
		if t.ShouldPrune() {
			return mse, search.ErrPruned
		}
		return mse, nil
	}
	if err := study.Optimize(ctx, objective, m.trials); err != nil {
		return linearConfig{}, 0, err
	}
	best, err := study.Best()
	if err != nil {
		return linearConfig{}, 0, err
	}
	cfg, _ := configs.Load(best.Number)
	return cfg.(linearConfig), best.Value, nil
}

func suggestLinear(t *search.Trial) linearConfig {
	kind := ml.LinearKind(t.SuggestCategorical("regressor", string(ml.OLS), string(ml.Ridge), string(ml.Lasso), string(ml.Huber)))
	scalers := make([]string, 0, len(ml.ScalerKinds()))
	for _, s := range ml.ScalerKinds() {
		scalers = append(scalers, string(s))
	}
	cfg := linearConfig{
		Params: ml.LinearParams{Kind: kind},
		Scaler: ml.ScalerKind(t.SuggestCategorical("scaler", scalers...)),
	}
	cfg.Params.FitIntercept, _ = strconv.ParseBool(t.SuggestCategorical("fit_intercept", "true", "false"))
	if kind != ml.OLS {
		cfg.Params.Alpha = t.SuggestFloat("alpha", 0.001, 10, true)
	}
	if kind == ml.Lasso || kind == ml.Huber {
		cfg.Params.MaxIter = t.SuggestInt("max_iter", 1000, 10000)
	}
	if kind == ml.Huber {
		cfg.Params.Epsilon = t.SuggestFloat("epsilon", 1, 2, false)
	}
	return cfg
}

// penalizedParams builds a grid candidate. Lasso carries the coordinate
// descent iteration cap it is fitted with.
func penalizedParams(kind ml.LinearKind, alpha float64, icpt bool) ml.LinearParams {
	p := ml.LinearParams{Kind: kind, Alpha: alpha, FitIntercept: icpt}
	if kind == ml.Lasso {
		p.MaxIter = gridMaxIter
	}
	return p
}

func linearCandidates() []linearConfig {
	var out []linearConfig
	for _, scaler := range ml.ScalerKinds() {
		for _, icpt := range []bool{true, false} {
			out = append(out, linearConfig{Params: ml.LinearParams{Kind: ml.OLS, FitIntercept: icpt}, Scaler: scaler})
			for _, kind := range []ml.LinearKind{ml.Ridge, ml.Lasso} {
				for _, a := range gridAlphas {
					out = append(out, linearConfig{Params: penalizedParams(kind, a, icpt), Scaler: scaler})
				}
			}
		}
	}
	return out
}

func (m *Linear) grid(ctx context.Context, X [][]float64, y []float64) (linearConfig, float64, error) {
	candidates := linearCandidates()
	res, err := search.Grid(ctx, candidates, func(c linearConfig) ml.Regressor { return c.pipeline() }, X, y, forwardChaining(len(y)), m.parallelism)
	if err != nil {
		return linearConfig{}, 0, err
	}
	return res.Params, res.MSE, nil
}
