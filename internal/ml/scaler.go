package ml

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

type ScalerKind string

const (
	StandardScaling ScalerKind = "standard"
	RobustScaling   ScalerKind = "robust"
	MinMaxScaling   ScalerKind = "minmax"
	MaxAbsScaling   ScalerKind = "maxabs"
	QuantileScaling ScalerKind = "quantile"
)

// ScalerKinds lists every scaler in search order.
func ScalerKinds() []ScalerKind {
	return []ScalerKind{StandardScaling, RobustScaling, MinMaxScaling, MaxAbsScaling, QuantileScaling}
}

func ParseScalerKind(s string) (ScalerKind, error) {
	k := ScalerKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ScalerKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown scaler %q", s)
}

// NewScaler builds an unfitted scaler of the given kind.
func NewScaler(kind ScalerKind) (Transformer, error) {
	switch kind {
	case StandardScaling:
		return &affineScaler{fit: standardParams}, nil
	case RobustScaling:
		return &affineScaler{fit: robustParams}, nil
	case MinMaxScaling:
		return &affineScaler{fit: minMaxParams}, nil
	case MaxAbsScaling:
		return &affineScaler{fit: maxAbsParams}, nil
	case QuantileScaling:
		return &QuantileTransformer{NQuantiles: 1000}, nil
	default:
		return nil, fmt.Errorf("unknown scaler %q", kind)
	}
}

// affineScaler maps every column through (x - center) / scale.
type affineScaler struct {
	fit    func(col []float64) (center, scale float64)
	center []float64
	scale  []float64
}

func (s *affineScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	w := len(X[0])
	s.center = make([]float64, w)
	s.scale = make([]float64, w)
	for j := 0; j < w; j++ {
		c, sc := s.fit(Column(X, j))
		if sc == 0 || math.IsNaN(sc) {
			sc = 1
		}
		s.center[j], s.scale[j] = c, sc
	}
	return nil
}

func (s *affineScaler) Transform(x []float64) ([]float64, error) {
	if s.scale == nil {
		return nil, ErrNotFitted
	}
	if len(x) != len(s.scale) {
		return nil, ErrShapeMismatch
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.center[j]) / s.scale[j]
	}
	return out, nil
}

func standardParams(col []float64) (float64, float64) {
	return stat.PopMeanStdDev(col, nil)
}

func robustParams(col []float64) (float64, float64) {
	s := append([]float64(nil), col...)
	sort.Float64s(s)
	return percentileSorted(s, 0.5), percentileSorted(s, 0.75) - percentileSorted(s, 0.25)
}

func minMaxParams(col []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range col {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return lo, hi - lo
}

func maxAbsParams(col []float64) (float64, float64) {
	var m float64
	for _, v := range col {
		m = math.Max(m, math.Abs(v))
	}
	return 0, m
}

// QuantileTransformer maps each column onto [0, 1] through its empirical CDF.
// Values outside the fitted range are clipped.
type QuantileTransformer struct {
	NQuantiles int

	references []float64
	quantiles  [][]float64
}

func (q *QuantileTransformer) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	nq := min(q.NQuantiles, len(X))
	if nq < 2 {
		nq = 2
	}
	q.references = make([]float64, nq)
	for i := range q.references {
		q.references[i] = float64(i) / float64(nq-1)
	}
	w := len(X[0])
	q.quantiles = make([][]float64, w)
	for j := 0; j < w; j++ {
		s := Column(X, j)
		sort.Float64s(s)
		qs := make([]float64, nq)
		for i, r := range q.references {
			qs[i] = percentileSorted(s, r)
		}
		q.quantiles[j] = qs
	}
	return nil
}

func (q *QuantileTransformer) Transform(x []float64) ([]float64, error) {
	if q.quantiles == nil {
		return nil, ErrNotFitted
	}
	if len(x) != len(q.quantiles) {
		return nil, ErrShapeMismatch
	}
	out := make([]float64, len(x))
	for j, v := range x {
		qs := q.quantiles[j]
		switch {
		case v <= qs[0]:
			out[j] = 0
		case v >= qs[len(qs)-1]:
			out[j] = 1
		default:
			// Average the forward and backward interpolation so that runs of
			// equal quantiles map to the middle of their reference range.
			out[j] = 0.5 * (interpForward(qs, q.references, v) + interpBackward(qs, q.references, v))
		}
	}
	return out, nil
}

func interpForward(xs, ys []float64, v float64) float64 {
	i := sort.SearchFloat64s(xs, v)
	if i < len(xs) && xs[i] == v {
		return ys[i]
	}
	return lerp(xs, ys, i-1, i, v)
}

func interpBackward(xs, ys []float64, v float64) float64 {
	i := sort.Search(len(xs), func(k int) bool { return xs[k] > v })
	if i > 0 && xs[i-1] == v {
		return ys[i-1]
	}
	return lerp(xs, ys, i-1, i, v)
}

func lerp(xs, ys []float64, lo, hi int, v float64) float64 {
	if lo < 0 {
		return ys[0]
	}
	if hi >= len(xs) {
		return ys[len(ys)-1]
	}
	if xs[hi] == xs[lo] {
		return ys[lo]
	}
	return ys[lo] + (v-xs[lo])*(ys[hi]-ys[lo])/(xs[hi]-xs[lo])
}
