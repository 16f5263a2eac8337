package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalers(t *testing.T) {
	X := [][]float64{{1, 10}, {2, 10}, {3, 10}, {4, 10}, {10, 10}}
	for _, kind := range ScalerKinds() {
		t.Run(string(kind), func(t *testing.T) {
			s, err := NewScaler(kind)
			require.NoError(t, err)
			require.NoError(t, s.Fit(X))
			out, err := TransformAll(s, X)
			require.NoError(t, err)
			require.Len(t, out, len(X))
			for _, row := range out {
				require.Len(t, row, 2)
				assert.True(t, allFinite(row), "row %v", row)
			}
			// A constant column never divides by zero.
			assert.True(t, allFinite(Column(out, 1)))
			// Scaling preserves the order of a column.
			col := Column(out, 0)
			for i := 1; i < len(col); i++ {
				assert.LessOrEqual(t, col[i-1], col[i])
			}
		})
	}
}

func TestScalerKnownValues(t *testing.T) {
	X := [][]float64{{0}, {5}, {10}}

	mm, _ := NewScaler(MinMaxScaling)
	require.NoError(t, mm.Fit(X))
	v, err := mm.Transform([]float64{5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v[0], 1e-12)

	ma, _ := NewScaler(MaxAbsScaling)
	require.NoError(t, ma.Fit(X))
	v, _ = ma.Transform([]float64{-5})
	assert.InDelta(t, -0.5, v[0], 1e-12)

	q, _ := NewScaler(QuantileScaling)
	require.NoError(t, q.Fit(X))
	v, _ = q.Transform([]float64{100})
	assert.InDelta(t, 1, v[0], 1e-12)
	v, _ = q.Transform([]float64{5})
	assert.InDelta(t, 0.5, v[0], 1e-9)
}

func TestParseScalerKind(t *testing.T) {
	k, err := ParseScalerKind(" Robust ")
	require.NoError(t, err)
	assert.Equal(t, RobustScaling, k)

	_, err = ParseScalerKind("zscore")
	assert.Error(t, err)
}

func TestVarianceThreshold(t *testing.T) {
	X := [][]float64{
		{1, 5, 0.0},
		{2, 5, 0.01},
		{3, 5, 0.02},
	}
	v := NewVarianceThreshold(0.001)
	_, err := v.Transform(X[0])
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, v.Fit(X))
	assert.Equal(t, []int{0}, v.Support())

	out, err := v.Transform([]float64{9, 9, 9})
	require.NoError(t, err)
	assert.Equal(t, []float64{9}, out)

	_, err = v.Transform([]float64{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestPolynomialFeatures(t *testing.T) {
	p := NewPolynomialFeatures(2)
	require.NoError(t, p.Fit([][]float64{{1, 2}}))
	assert.Equal(t, 5, p.OutputWidth())

	out, err := p.Transform([]float64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4, 6, 9}, out)

	p3 := NewPolynomialFeatures(3)
	require.NoError(t, p3.Fit([][]float64{{1, 2, 3}}))
	// 3 + 6 + 10 monomials
	assert.Equal(t, 19, p3.OutputWidth())
}

func TestPipeline(t *testing.T) {
	X := [][]float64{{1, 7}, {2, 7}, {3, 7}, {4, 7}, {5, 7}}
	y := []float64{3, 5, 7, 9, 11}
	scaler, err := NewScaler(StandardScaling)
	require.NoError(t, err)
	pipe := NewPipeline(NewLinearModel(LinearParams{Kind: OLS, FitIntercept: true}), NewVarianceThreshold(0.001), nil, scaler)
	require.NoError(t, pipe.Fit(X, y))

	got, err := pipe.Predict([]float64{6, 7})
	require.NoError(t, err)
	assert.InDelta(t, 13, got, 1e-6)
}
