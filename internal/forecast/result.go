package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

var ErrInvalidHorizon = errors.New("horizon must be at least 1")

// Predictions is always a slice in Go. When decoding it also accepts a bare
// number, which older clients send for single-month forecasts.
type Predictions []float64

func (p *Predictions) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*p = nil
		return nil
	}
	var one float64
	if err := json.Unmarshal(b, &one); err == nil {
		*p = Predictions{one}
		return nil
	}
	var many []float64
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("predictions: %w", err)
	}
	*p = many
	return nil
}

// Result is a forecast together with the history it was computed from.
type Result struct {
	Model        ModelKind       `json:"model"`
	Predictions  Predictions     `json:"predictions"`
	FutureMonths []core.MonthKey `json:"future_months"`
	Months       []core.MonthKey `json:"months"`
	Actuals      []float64       `json:"actuals"`
	ErrorMetric  *float64        `json:"error_metric"`
	Params       map[string]any  `json:"params,omitempty"`
}

// FutureLabels formats the forecast months as "Jan 2006".
func (r *Result) FutureLabels() []string {
	out := make([]string, len(r.FutureMonths))
	for i, m := range r.FutureMonths {
		out[i] = m.Label()
	}
	return out
}

// Window returns the last n months of history and their actual totals.
// n < 1 means the default of 12.
func (r *Result) Window(n int) ([]core.MonthKey, []float64) {
	if n < 1 {
		n = 12
	}
	start := max(0, len(r.Months)-n)
	return r.Months[start:], r.Actuals[start:]
}

// Run forecasts horizon months with m from a transaction snapshot.
func Run(ctx context.Context, m Model, txs []core.Transaction, horizon int) (*Result, error) {
	ds, err := NewDataset(Aggregate(txs))
	if err != nil {
		return nil, err
	}
	return RunDataset(ctx, m, ds, horizon)
}

// RunDataset forecasts from an already built dataset.
func RunDataset(ctx context.Context, m Model, ds *Dataset, horizon int) (*Result, error) {
	if horizon < 1 {
		return nil, ErrInvalidHorizon
	}
	if err := insufficient(m.Kind(), m.MinMonths(), ds.Len()); err != nil {
		return nil, err
	}
	out, err := m.Forecast(ctx, ds, horizon)
	if err != nil {
		return nil, err
	}
	if len(out.Predictions) != horizon {
		return nil, fmt.Errorf("%s returned %d predictions for horizon %d", m.Kind(), len(out.Predictions), horizon)
	}
	metric := out.MSE
	return &Result{
		Model:        m.Kind(),
		Predictions:  out.Predictions,
		FutureMonths: ds.FutureMonths(horizon),
		Months:       ds.Months,
		Actuals:      ds.Y,
		ErrorMetric:  &metric,
		Params:       out.Params,
	}, nil
}
