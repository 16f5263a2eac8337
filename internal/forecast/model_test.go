package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"fintrack/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastOptions keeps the searches small enough for unit tests.
func fastOptions() Options {
	return Options{LinearTrials: 30, XGBoostTrials: 20, Seed: 7, Parallelism: 4}
}

func TestParseModelKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseModelKind(" " + string(k) + " ")
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseModelKind("XGBoost")
	require.NoError(t, err)
	assert.Equal(t, KindXGBoost, got)

	_, err = ParseModelKind("prophet")
	assert.ErrorIs(t, err, ErrInvalidModel)
	assert.True(t, IsUserFacing(err))

	_, err = New("prophet", Options{})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestNewBuildsEveryKind(t *testing.T) {
	for _, k := range Kinds() {
		m, err := New(k, Options{})
		require.NoError(t, err)
		assert.Equal(t, k, m.Kind())
		assert.Equal(t, k.MinMonths(), m.MinMonths())
	}
}

func TestLinearFourMonthScenario(t *testing.T) {
	txs := monthlyTxs(jan2024, []float64{100, 120, 90, 130}, "food")
	m, err := New(KindLinear, fastOptions())
	require.NoError(t, err)

	res, err := Run(context.Background(), m, txs, 1)
	require.NoError(t, err)
	require.Len(t, res.Predictions, 1)
	assert.GreaterOrEqual(t, res.Predictions[0], 0.0)
	assert.LessOrEqual(t, res.Predictions[0], 260.0)
	require.NotNil(t, res.ErrorMetric)
	assert.False(t, math.IsNaN(*res.ErrorMetric))
	assert.Equal(t, "robust", res.Params["scaler"])
	assert.Equal(t, []string{"May 2024"}, res.FutureLabels())
}

func TestInsufficientData(t *testing.T) {
	four := monthlyTxs(jan2024, []float64{100, 120, 90, 130}, "food")
	three := four[:3]
	tests := []struct {
		kind     ModelKind
		txs      []core.Transaction
		required int
	}{
		{KindSARIMAX, four, 12},
		{KindEnsemble, four, 12},
		{KindLinear, three, 4},
		{KindPolynomial, three, 4},
		{KindRandomForest, three, 4},
		{KindXGBoost, three, 4},
		{KindLinear, nil, 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			m, err := New(tt.kind, fastOptions())
			require.NoError(t, err)

			// Straight into the model as well as through Run.
			ds, err := NewDataset(Aggregate(tt.txs))
			require.NoError(t, err)
			out, err := m.Forecast(context.Background(), ds, 1)
			assert.Nil(t, out)
			var ide *InsufficientDataError
			require.ErrorAs(t, err, &ide)
			assert.Equal(t, tt.required, ide.Required)
			assert.Equal(t, len(tt.txs), ide.Got)
			assert.Contains(t, ide.Error(), "at least")

			res, err := Run(context.Background(), m, tt.txs, 1)
			assert.Nil(t, res)
			assert.ErrorAs(t, err, &ide)
			assert.True(t, IsUserFacing(err))
		})
	}
}

func TestInvalidHorizon(t *testing.T) {
	m, _ := New(KindLinear, fastOptions())
	_, err := Run(context.Background(), m, monthlyTxs(jan2024, flat(6, 100), "food"), 0)
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}

func TestFlatSeriesStaysFlat(t *testing.T) {
	txs := monthlyTxs(jan2024, flat(13, 100), "food")
	for _, k := range []ModelKind{KindLinear, KindPolynomial, KindRandomForest, KindXGBoost, KindSARIMAX} {
		t.Run(string(k), func(t *testing.T) {
			m, err := New(k, fastOptions())
			require.NoError(t, err)
			res, err := Run(context.Background(), m, txs, 3)
			require.NoError(t, err)
			require.Len(t, res.Predictions, 3)
			for _, p := range res.Predictions {
				assert.InDelta(t, 100, p, 20)
			}
		})
	}
}

func TestLinearGridStrategy(t *testing.T) {
	txs := monthlyTxs(jan2024, []float64{100, 120, 90, 130, 110, 125, 95, 135}, "food")
	opts := fastOptions()
	opts.LinearStrategy = LinearGrid
	m, err := New(KindLinear, opts)
	require.NoError(t, err)
	res, err := Run(context.Background(), m, txs, 2)
	require.NoError(t, err)
	for _, p := range res.Predictions {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 270.0)
	}
}

func TestModelsDeterministic(t *testing.T) {
	y := []float64{100, 120, 90, 130, 110, 125, 95, 135, 105, 128}
	txs := monthlyTxs(jan2024, y, "food")
	for _, k := range []ModelKind{KindLinear, KindXGBoost} {
		t.Run(string(k), func(t *testing.T) {
			run := func(par int) []float64 {
				opts := fastOptions()
				opts.Parallelism = par
				m, err := New(k, opts)
				require.NoError(t, err)
				res, err := Run(context.Background(), m, txs, 3)
				require.NoError(t, err)
				return res.Predictions
			}
			assert.Equal(t, run(1), run(4))
		})
	}
}

func TestCancelledSearch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	txs := monthlyTxs(jan2024, []float64{100, 120, 90, 130, 110, 125, 95, 135}, "food")
	m, _ := New(KindXGBoost, fastOptions())
	_, err := Run(ctx, m, txs, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

type stubModel struct {
	kind  ModelKind
	preds []float64
	mse   float64
	err   error
}

func (s *stubModel) Kind() ModelKind { return s.kind }
func (s *stubModel) MinMonths() int  { return 1 }
func (s *stubModel) Forecast(_ context.Context, _ *Dataset, horizon int) (*Outcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Outcome{Predictions: s.preds[:horizon], MSE: s.mse}, nil
}

func stubDataset(t *testing.T) *Dataset {
	ds, err := NewDataset(Aggregate(monthlyTxs(jan2024, flat(12, 100), "food")))
	require.NoError(t, err)
	return ds
}

func TestEnsembleMean(t *testing.T) {
	e := &Ensemble{Members: []Model{
		&stubModel{kind: KindLinear, preds: []float64{100, 200}, mse: 1},
		&stubModel{kind: KindPolynomial, preds: []float64{130, 230}, mse: 4},
		&stubModel{kind: KindXGBoost, preds: []float64{160, 260}, mse: 4},
	}}
	out, err := e.Forecast(context.Background(), stubDataset(t), 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{130, 230}, out.Predictions, 1e-9)
	assert.InDelta(t, 3, out.MSE, 1e-9)

	e.Weighted = true
	out, err = e.Forecast(context.Background(), stubDataset(t), 2)
	require.NoError(t, err)
	// Weights 1, 1/4, 1/4 normalised to 2/3, 1/6, 1/6.
	assert.InDeltaSlice(t, []float64{100*2.0/3 + 130.0/6 + 160.0/6, 200*2.0/3 + 230.0/6 + 260.0/6}, out.Predictions, 1e-9)
}

func TestEnsembleZeroErrorMembersTakeAllWeight(t *testing.T) {
	e := &Ensemble{Weighted: true, Members: []Model{
		&stubModel{kind: KindLinear, preds: []float64{100}, mse: 0},
		&stubModel{kind: KindPolynomial, preds: []float64{300}, mse: 2},
		&stubModel{kind: KindXGBoost, preds: []float64{120}, mse: 0},
	}}
	out, err := e.Forecast(context.Background(), stubDataset(t), 1)
	require.NoError(t, err)
	assert.InDelta(t, 110, out.Predictions[0], 1e-9)
}

func TestEnsembleSkipsFailedMembers(t *testing.T) {
	e := &Ensemble{Members: []Model{
		&stubModel{kind: KindLinear, preds: []float64{100}, mse: 1},
		&stubModel{kind: KindSARIMAX, err: &InsufficientDataError{Model: KindSARIMAX, Required: 12, Got: 3}},
		&stubModel{kind: KindXGBoost, preds: []float64{120}, mse: 3},
	}}
	out, err := e.Forecast(context.Background(), stubDataset(t), 1)
	require.NoError(t, err)
	assert.InDelta(t, 110, out.Predictions[0], 1e-9)
	assert.InDelta(t, 2, out.MSE, 1e-9)
	members := out.Params["members"].(map[string]any)
	assert.Len(t, members, 2)
}

func TestEnsembleAggregateFailure(t *testing.T) {
	boom := errors.New("boom")
	e := &Ensemble{Members: []Model{
		&stubModel{kind: KindLinear, err: boom},
		&stubModel{kind: KindSARIMAX, err: &FittingFailure{Order: "(0,0,0)x(0,0,0,12)", Err: boom}},
	}}
	out, err := e.Forecast(context.Background(), stubDataset(t), 1)
	assert.Nil(t, out)
	var agg *EnsembleAggregateFailure
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.ErrorIs(t, err, boom)
	var ff *FittingFailure
	assert.ErrorAs(t, err, &ff)
	assert.Contains(t, err.Error(), "linear: boom")
	assert.True(t, IsUserFacing(err))
}

func TestEnsembleRealModelsOnFlatSeries(t *testing.T) {
	opts := fastOptions()
	opts.Weighted = true
	m, err := New(KindEnsemble, opts)
	require.NoError(t, err)
	res, err := Run(context.Background(), m, monthlyTxs(jan2024, flat(13, 100), "food"), 2)
	require.NoError(t, err)
	for _, p := range res.Predictions {
		assert.InDelta(t, 100, p, 20)
	}
}

func TestPredictionsJSON(t *testing.T) {
	var r Result
	require.NoError(t, json.Unmarshal([]byte(`{"model":"linear","predictions":123.5}`), &r))
	assert.Equal(t, Predictions{123.5}, r.Predictions)

	require.NoError(t, json.Unmarshal([]byte(`{"predictions":[1,2,3]}`), &r))
	assert.Equal(t, Predictions{1, 2, 3}, r.Predictions)

	assert.Error(t, json.Unmarshal([]byte(`{"predictions":"x"}`), &r))

	metric := 2.5
	b, err := json.Marshal(Result{
		Model:        KindLinear,
		Predictions:  Predictions{1},
		FutureMonths: []core.MonthKey{{Year: 2024, Month: 5}},
		ErrorMetric:  &metric,
	})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"predictions":[1]`)
	assert.Contains(t, string(b), `"future_months":["2024-05"]`)
}

func TestResultWindow(t *testing.T) {
	ds, err := NewDataset(Aggregate(monthlyTxs(jan2024, []float64{1, 2, 3, 4, 5}, "food")))
	require.NoError(t, err)
	r := &Result{Months: ds.Months, Actuals: ds.Y}
	months, actuals := r.Window(2)
	assert.Equal(t, []string{"2024-04", "2024-05"}, monthStrings(months))
	assert.Equal(t, []float64{4, 5}, actuals)

	months, _ = r.Window(0)
	assert.Len(t, months, 5)
}
