// Package forecast turns a transaction history into monthly expense
// forecasts: aggregation, feature engineering, the model family, the
// iterative multi-step loop and the ensemble.
package forecast

import (
	"context"
	"fmt"
	"strings"
)

// ModelKind selects a forecasting model.
type ModelKind string

const (
	KindLinear       ModelKind = "linear"
	KindPolynomial   ModelKind = "polynomial"
	KindSARIMAX      ModelKind = "sarimax"
	KindRandomForest ModelKind = "randomforest"
	KindXGBoost      ModelKind = "xgboost"
	KindEnsemble     ModelKind = "ensemble"
)

// Minimum months of history.
const (
	MinRegressionMonths = 4
	MinSeasonalMonths   = 12
)

// Kinds lists every selectable model.
func Kinds() []ModelKind {
	return []ModelKind{KindLinear, KindPolynomial, KindSARIMAX, KindRandomForest, KindXGBoost, KindEnsemble}
}

func ParseModelKind(s string) (ModelKind, error) {
	k := ModelKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidModel, s)
}

// MinMonths is the history a model kind needs.
func (k ModelKind) MinMonths() int {
	switch k {
	case KindSARIMAX, KindEnsemble:
		return MinSeasonalMonths
	default:
		return MinRegressionMonths
	}
}

// Outcome is what a model produces for one request.
type Outcome struct {
	Predictions []float64
	MSE         float64
	Params      map[string]any
}

// Model trains on a dataset and forecasts horizon months ahead. Every call
// trains from scratch; implementations keep no state between calls.
type Model interface {
	Kind() ModelKind
	MinMonths() int
	Forecast(ctx context.Context, ds *Dataset, horizon int) (*Outcome, error)
}

// New builds the model for kind.
func New(kind ModelKind, opts Options) (Model, error) {
	opts = opts.withDefaults()
	switch kind {
	case KindLinear:
		return NewLinear(opts), nil
	case KindPolynomial:
		return NewPolynomial(opts), nil
	case KindSARIMAX:
		return NewSARIMAX(opts), nil
	case KindRandomForest:
		return NewRandomForest(opts), nil
	case KindXGBoost:
		return NewXGBoost(opts), nil
	case KindEnsemble:
		return NewEnsemble(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidModel, kind)
	}
}
