package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"fintrack/internal/ml"

	"golang.org/x/sync/errgroup"
)

// SeasonalPeriod is the SARIMAX season length in months.
const SeasonalPeriod = 12

var ErrNoFittableOrder = errors.New("no SARIMAX order could be fitted")

// SARIMAX brute-forces the seasonal ARIMA order grid with the category
// columns as exogenous regressors and keeps the lowest AIC.
type SARIMAX struct {
	parallelism int
	logger      *slog.Logger
}

func NewSARIMAX(opts Options) *SARIMAX {
	opts = opts.withDefaults()
	return &SARIMAX{
		parallelism: opts.Parallelism,
		logger:      opts.modelLogger(KindSARIMAX),
	}
}

func (m *SARIMAX) Kind() ModelKind { return KindSARIMAX }
func (m *SARIMAX) MinMonths() int  { return MinSeasonalMonths }

func (m *SARIMAX) Forecast(ctx context.Context, ds *Dataset, horizon int) (*Outcome, error) {
	if err := insufficient(KindSARIMAX, MinSeasonalMonths, ds.Len()); err != nil {
		return nil, err
	}
	best, err := m.Select(ctx, ds.Y, ds.Exog)
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "Model selected",
		"order", best.Order.String(),
		"aic", best.AIC,
		"mse", best.MSE(),
		"months", ds.Len())

	_, futureExog := ds.Future(horizon)
	raw, err := best.Forecast(futureExog)
	if err != nil {
		return nil, fmt.Errorf("sarimax forecast: %w", err)
	}
	preds := ml.Clip(raw, 0, ds.UpperBound())
	return &Outcome{
		Predictions: preds,
		MSE:         best.MSE(),
		Params: map[string]any{
			"order":          [3]int{best.Order.P, best.Order.D, best.Order.Q},
			"seasonal_order": [4]int{best.Order.SP, best.Order.SD, best.Order.SQ, best.Order.S},
			"aic":            best.AIC,
		},
	}, nil
}

// Select fits every order of the grid and returns the one with minimum AIC.
// Orders that cannot be fitted are logged and skipped.
func (m *SARIMAX) Select(ctx context.Context, y []float64, exog [][]float64) (*ml.SARIMAX, error) {
	orders := ml.SARIMAOrders(SeasonalPeriod)
	fits := make([]*ml.SARIMAX, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.parallelism))
	for i, o := range orders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fit, err := ml.FitSARIMAX(y, exog, o)
			if err != nil {
				ff := &FittingFailure{Order: o.String(), Err: err}
				m.logger.DebugContext(gctx, "Skipping SARIMAX order", "error", ff)
				return nil
			}
			fits[i] = fit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *ml.SARIMAX
	for _, f := range fits {
		if f == nil || math.IsNaN(f.AIC) {
			continue
		}
		if best == nil || f.AIC < best.AIC {
			best = f
		}
	}
	if best == nil {
		return nil, ErrNoFittableOrder
	}
	return best, nil
}
