package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/ml"
	"fintrack/internal/ml/search"
)

// fitFunc trains on the filtered feature matrix and returns the fitted
// regressor, the chosen hyperparameters and the validation MSE.
type fitFunc func(ctx context.Context, X [][]float64, y []float64) (ml.Regressor, map[string]any, float64, error)

// regressionForecast is the shared path of every regression model: fit on
// the filtered history with y capped at its 95th percentile, then forecast
// iteratively from unfiltered future rows.
func regressionForecast(ctx context.Context, kind ModelKind, ds *Dataset, horizon int, logger *slog.Logger, fit fitFunc) (*Outcome, error) {
	if err := insufficient(kind, MinRegressionMonths, ds.Len()); err != nil {
		return nil, err
	}
	reg, params, mse, err := fit(ctx, ds.Selected, ds.ClippedY())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	logger.InfoContext(ctx, "Model selected",
		"params", search.FormatParams(params),
		"mse", mse,
		"months", ds.Len())

	future, _ := ds.Future(horizon)
	preds, err := IterativeForecast(&FittedPipeline{Selector: ds.Selector, Regressor: reg}, future, ds.Y)
	if err != nil {
		return nil, fmt.Errorf("%s forecast: %w", kind, err)
	}
	return &Outcome{Predictions: preds, MSE: mse, Params: params}, nil
}

// forwardChaining returns the expanding-window folds for n samples.
func forwardChaining(n int) []ml.Fold {
	return ml.TimeSeriesSplit(n, ml.TimeSeriesSplits(n))
}

// holdoutMSE fits r on the leading rows and scores it on the rest.
func holdoutMSE(r ml.Regressor, X [][]float64, y []float64, frac float64) (float64, error) {
	train, val := ml.HoldoutSplit(len(y), frac)
	if len(val) == 0 {
		return 0, fmt.Errorf("holdout: %w", ml.ErrEmptyInput)
	}
	if err := r.Fit(ml.Rows(X, train), ml.Take(y, train)); err != nil {
		return 0, err
	}
	pred, err := ml.PredictAll(r, ml.Rows(X, val))
	if err != nil {
		return 0, err
	}
	return ml.MSE(ml.Take(y, val), pred), nil
}

func newScaledPipeline(r ml.Regressor, scaler ml.ScalerKind, pre ...ml.Transformer) *ml.Pipeline {
	// Unknown kinds come back as a nil step, which NewPipeline skips.
	s, _ := ml.NewScaler(scaler)
	return ml.NewPipeline(r, append(pre, s)...)
}
