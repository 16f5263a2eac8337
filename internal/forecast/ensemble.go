package forecast

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Ensemble runs its members concurrently on the same dataset and averages
// the forecasts of those that succeed.
type Ensemble struct {
	Members  []Model
	Weighted bool

	logger *slog.Logger
}

// NewEnsemble combines linear, polynomial, SARIMAX and XGBoost, plus the
// random forest when opts.IncludeForest is set.
func NewEnsemble(opts Options) *Ensemble {
	opts = opts.withDefaults()
	members := []Model{NewLinear(opts), NewPolynomial(opts), NewSARIMAX(opts), NewXGBoost(opts)}
	if opts.IncludeForest {
		members = append(members, NewRandomForest(opts))
	}
	return &Ensemble{
		Members:  members,
		Weighted: opts.Weighted,
		logger:   opts.modelLogger(KindEnsemble),
	}
}

func (e *Ensemble) Kind() ModelKind { return KindEnsemble }
func (e *Ensemble) MinMonths() int  { return MinSeasonalMonths }

func (e *Ensemble) Forecast(ctx context.Context, ds *Dataset, horizon int) (*Outcome, error) {
	if err := insufficient(KindEnsemble, MinSeasonalMonths, ds.Len()); err != nil {
		return nil, err
	}
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	outcomes := make([]*Outcome, len(e.Members))
	errs := make([]error, len(e.Members))
	var g errgroup.Group
	for i, m := range e.Members {
		g.Go(func() error {
			outcomes[i], errs[i] = m.Forecast(ctx, ds, horizon)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var kept []*Outcome
	var names []ModelKind
	failure := &EnsembleAggregateFailure{Errors: map[ModelKind]error{}}
	for i, m := range e.Members {
		if errs[i] != nil {
			logger.WarnContext(ctx, "Ensemble member failed", "member", m.Kind(), "error", errs[i])
			failure.Errors[m.Kind()] = errs[i]
			failure.order = append(failure.order, m.Kind())
			continue
		}
		kept = append(kept, outcomes[i])
		names = append(names, m.Kind())
	}
	if len(kept) == 0 {
		return nil, failure
	}

	weights := e.weights(kept)
	preds := make([]float64, horizon)
	var mse float64
	members := map[string]any{}
	for k, o := range kept {
		for j := range preds {
			preds[j] += weights[k] * o.Predictions[j]
		}
		mse += o.MSE
		members[string(names[k])] = map[string]any{
			"weight":      weights[k],
			"mse":         o.MSE,
			"predictions": o.Predictions,
			"params":      o.Params,
		}
	}
	mse /= float64(len(kept))
	logger.InfoContext(ctx, "Ensemble combined",
		"members", len(kept),
		"failed", len(failure.order),
		"weighted", e.Weighted,
		"mse", mse)

	return &Outcome{
		Predictions: preds,
		MSE:         mse,
		Params: map[string]any{
			"weighted": e.Weighted,
			"members":  members,
		},
	}, nil
}

// weights are uniform, or proportional to 1/MSE when Weighted is set. Members
// with a zero MSE take the whole weight between them.
func (e *Ensemble) weights(kept []*Outcome) []float64 {
	w := make([]float64, len(kept))
	if !e.Weighted {
		for i := range w {
			w[i] = 1 / float64(len(kept))
		}
		return w
	}
	var perfect int
	for _, o := range kept {
		if o.MSE <= 0 {
			perfect++
		}
	}
	var total float64
	for i, o := range kept {
		switch {
		case perfect > 0 && o.MSE <= 0:
			w[i] = 1
		case perfect == 0:
			w[i] = 1 / o.MSE
		}
		total += w[i]
	}
	for i := range w {
		w[i] /= total
	}
	return w
}
