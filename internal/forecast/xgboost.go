package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fintrack/internal/ml"
	"fintrack/internal/ml/search"
)

const (
	boostRounds        = 1000
	boostEarlyStopping = 10
	boostValidation    = 0.9
)

type boostConfig struct {
	Params ml.BoostParams
	Scaler ml.ScalerKind
}

func (c boostConfig) describe() map[string]any {
	p := c.Params
	out := map[string]any{
		"booster":       string(p.Booster),
		"learning_rate": p.LearningRate,
		"reg_lambda":    p.Lambda,
		"reg_alpha":     p.Alpha,
		"scaler":        string(c.Scaler),
		"n_estimators":  p.NEstimators,
	}
	if p.Booster != ml.GBLinear {
		out["subsample"] = p.Subsample
		out["colsample_bytree"] = p.ColsampleByTree
		out["colsample_bylevel"] = p.ColsampleByLevel
		out["max_depth"] = p.MaxDepth
	}
	return out
}

// XGBoost tunes gradient boosting with a pruned TPE study. Every trial trains
// with early stopping on the trailing tenth of the history.
type XGBoost struct {
	trials      int
	seed        uint64
	parallelism int
	logger      *slog.Logger
}

func NewXGBoost(opts Options) *XGBoost {
	opts = opts.withDefaults()
	return &XGBoost{
		trials:      opts.XGBoostTrials,
		seed:        opts.seedFor(KindXGBoost),
		parallelism: opts.Parallelism,
		logger:      opts.modelLogger(KindXGBoost),
	}
}

func (m *XGBoost) Kind() ModelKind { return KindXGBoost }
func (m *XGBoost) MinMonths() int  { return MinRegressionMonths }

func (m *XGBoost) Forecast(ctx context.Context, ds *Dataset, horizon int) (*Outcome, error) {
	return regressionForecast(ctx, KindXGBoost, ds, horizon, m.logger, m.Fit)
}

func (m *XGBoost) suggest(t *search.Trial) boostConfig {
	boosters := make([]string, 0, 3)
	for _, b := range ml.Boosters() {
		boosters = append(boosters, string(b))
	}
	scalers := make([]string, 0, len(ml.ScalerKinds()))
	for _, s := range ml.ScalerKinds() {
		scalers = append(scalers, string(s))
	}
	p := ml.BoostParams{
		Booster:             ml.Booster(t.SuggestCategorical("booster", boosters...)),
		NEstimators:         boostRounds,
		EarlyStoppingRounds: boostEarlyStopping,
		LearningRate:        t.SuggestFloat("learning_rate", 0.3, 0.5, false),
		Lambda:              t.SuggestFloat("reg_lambda", 0.001, 5, true),
		Alpha:               t.SuggestFloat("reg_alpha", 0.01, 25, true),
		Seed:                m.seed + uint64(t.Number()),
	}
	// Sampling and depth only exist for tree boosters.
	if p.Booster != ml.GBLinear {
		p.Subsample = t.SuggestFloat("subsample", 0.5, 1, false)
		p.ColsampleByTree = t.SuggestFloat("colsample_bytree", 0.5, 1, false)
		p.ColsampleByLevel = t.SuggestFloat("colsample_bylevel", 0.5, 1, false)
		p.MaxDepth = t.SuggestInt("max_depth", 4, 10)
	}
	return boostConfig{Params: p, Scaler: ml.ScalerKind(t.SuggestCategorical("scaler", scalers...))}
}

// evaluate trains cfg on the leading rows with early stopping on the rest and
// returns the validation MSE and the best round.
func evaluate(cfg boostConfig, X [][]float64, y []float64, onRound ml.RoundFunc) (float64, int, bool, error) {
	train, val := ml.HoldoutSplit(len(y), boostValidation)
	if len(val) == 0 {
		return 0, 0, false, fmt.Errorf("validation split: %w", ml.ErrEmptyInput)
	}
	scaler, err := ml.NewScaler(cfg.Scaler)
	if err != nil {
		return 0, 0, false, err
	}
	Xt, yt := ml.Rows(X, train), ml.Take(y, train)
	if err := scaler.Fit(Xt); err != nil {
		return 0, 0, false, err
	}
	Xts, err := ml.TransformAll(scaler, Xt)
	if err != nil {
		return 0, 0, false, err
	}
	Xvs, err := ml.TransformAll(scaler, ml.Rows(X, val))
	if err != nil {
		return 0, 0, false, err
	}
	g := ml.NewGradientBoosting(cfg.Params)
	g.OnRound = onRound
	if err := g.FitWithEval(Xts, yt, Xvs, ml.Take(y, val)); err != nil {
		return 0, 0, false, err
	}
	pred, err := ml.PredictAll(g, Xvs)
	if err != nil {
		return 0, 0, false, err
	}
	return ml.MSE(ml.Take(y, val), pred), g.BestIteration, g.Stopped, nil
}

func (m *XGBoost) Fit(ctx context.Context, X [][]float64, y []float64) (ml.Regressor, map[string]any, float64, error) {
	study := search.NewStudy(m.seed)
	study.Parallelism = m.parallelism
	var configs sync.Map
	objective := func(_ context.Context, t *search.Trial) (float64, error) {
		cfg := m.suggest(t)
		mse, bestRound, stopped, err := evaluate(cfg, X, y, func(round int, rmse float64) bool {
			t.Report(round, rmse*rmse)
			return t.ShouldPrune()
		})
		if err != nil {
			return 0, err
		}
		cfg.Params.NEstimators = bestRound + 1
		configs.Store(t.Number(), cfg)
		if stopped {
			return mse, search.ErrPruned
		}
		return mse, nil
	}
	if err := study.Optimize(ctx, objective, m.trials); err != nil {
		return nil, nil, 0, err
	}
	best, err := study.Best()
	if err != nil {
		return nil, nil, 0, err
	}
	v, _ := configs.Load(best.Number)
	cfg := v.(boostConfig)
	cfg.Params.EarlyStoppingRounds = 0

	pipe := newScaledPipeline(ml.NewGradientBoosting(cfg.Params), cfg.Scaler)
	if err := pipe.Fit(X, y); err != nil {
		return nil, nil, 0, fmt.Errorf("final fit: %w", err)
	}
	return pipe, cfg.describe(), best.Value, nil
}
