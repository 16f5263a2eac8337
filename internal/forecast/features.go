package forecast

import (
	"math"

	"fintrack/internal/core"
	"fintrack/internal/ml"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// Feature column layout. Category spend columns follow BaseColumns.
const (
	ColNormIndex = iota
	ColIndex
	ColRollMean3
	ColRollMean6
	ColMonth
	ColLag1
	ColLag12
	ColDiff1
	ColRollStd3
	ColMonthSin
	ColMonthCos
	ColQuarter
	BaseColumns
)

// FeatureNames lists the base column names in layout order.
var FeatureNames = [BaseColumns]string{
	"norm_index", "index", "rolling_mean_3", "rolling_mean_6", "month",
	"lag_1", "lag_12", "diff_1", "rolling_std_3", "month_sin", "month_cos", "quarter",
}

// MonthsXY builds the historical design matrix. exog is the category block of
// X, row for row.
func MonthsXY(agg *Aggregation) (months []core.MonthKey, X [][]float64, y []float64, exog [][]float64) {
	n := agg.Len()
	months = append([]core.MonthKey(nil), agg.Months...)
	y = append([]float64(nil), agg.Totals...)
	if n == 0 {
		return months, nil, y, nil
	}

	rm3 := centeredMean(y, 3)
	rm6 := centeredMean(y, 6)
	std3 := centeredStd(y, 3)
	lag12Fill := ml.Mean(y[:min(12, n)])
	width := BaseColumns + len(agg.Categories)

	X = make([][]float64, n)
	exog = make([][]float64, n)
	for i := range y {
		row := make([]float64, width)
		row[ColNormIndex] = float64(i) / float64(max(1, n-1))
		row[ColIndex] = float64(i)
		row[ColRollMean3] = rm3[i]
		row[ColRollMean6] = rm6[i]
		calendarColumns(row, months[i])
		row[ColLag1] = y[max(0, i-1)]
		if i >= 12 {
			row[ColLag12] = y[i-12]
		} else {
			row[ColLag12] = lag12Fill
		}
		if i > 0 {
			row[ColDiff1] = y[i] - y[i-1]
		}
		row[ColRollStd3] = std3[i]
		copy(row[BaseColumns:], agg.Pivot[i])
		X[i] = row
		exog[i] = row[BaseColumns:]
	}
	return months, X, y, exog
}

// FutureFeatures returns template rows for the n months after the last
// observed one. Rolling statistics and lags are seeded from the tail of y and
// are advanced by the iterative forecaster; calendar, index and category
// columns stay as generated.
func FutureFeatures(months []core.MonthKey, y []float64, agg *Aggregation, n int) (X [][]float64, exog [][]float64) {
	if len(months) == 0 || n <= 0 {
		return nil, nil
	}
	hist := len(months)
	last := months[hist-1]
	history := agg.Pivot[max(0, len(agg.Pivot)-12):]
	catMeans := make([]float64, len(agg.Categories))
	for j := range catMeans {
		catMeans[j] = ml.Mean(ml.Column(agg.Pivot, j))
	}

	seed3 := ml.Mean(tail(y, 3))
	seed6 := ml.Mean(tail(y, 6))
	var std3 float64
	if len(y) >= 3 {
		std3 = ml.SampleStd(tail(y, 3))
	}
	lag12 := ml.Mean(y)
	if len(y) >= 12 {
		lag12 = y[len(y)-12]
	}

	width := BaseColumns + len(agg.Categories)
	X = make([][]float64, n)
	exog = make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, width)
		raw := float64(hist + i)
		row[ColNormIndex] = raw / float64(max(1, hist-1))
		row[ColIndex] = raw
		row[ColRollMean3] = seed3
		row[ColRollMean6] = seed6
		calendarColumns(row, last.AddMonths(i+1))
		row[ColLag1] = y[len(y)-1]
		row[ColLag12] = lag12
		row[ColDiff1] = 0
		row[ColRollStd3] = std3
		if len(history) > 0 {
			copy(row[BaseColumns:], history[i%len(history)])
		} else {
			copy(row[BaseColumns:], catMeans)
		}
		X[i] = row
		exog[i] = row[BaseColumns:]
	}
	return X, exog
}

func calendarColumns(row []float64, mk core.MonthKey) {
	m := float64(mk.Month)
	row[ColMonth] = m
	row[ColMonthSin] = math.Sin(2 * math.Pi * m / 12)
	row[ColMonthCos] = math.Cos(2 * math.Pi * m / 12)
	row[ColQuarter] = float64((int(mk.Month)-1)/3 + 1)
}

func tail(y []float64, k int) []float64 {
	return y[max(0, len(y)-k):]
}

// centeredMean is a centred rolling mean that requires a full window, with
// the undefined edges back- then forward-filled.
func centeredMean(y []float64, w int) []float64 {
	n := len(y)
	sma := helper.ChanToSlice(trend.NewSmaWithPeriod[float64](w).Compute(helper.SliceToChan(y)))
	return centered(n, w, func(end int) float64 {
		// sma[k] covers y[k : k+w].
		return sma[len(sma)-(n-end)]
	})
}

func centeredStd(y []float64, w int) []float64 {
	return centered(len(y), w, func(end int) float64 {
		return ml.SampleStd(y[end-w+1 : end+1])
	})
}

func centered(n, w int, at func(end int) float64) []float64 {
	out := make([]float64, n)
	off := (w - 1) / 2
	for i := range out {
		end := i + off
		if end >= n || end-w+1 < 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = at(end)
	}
	fillEdges(out)
	return out
}

// fillEdges back-fills then forward-fills NaNs; an all-NaN slice becomes zeros.
func fillEdges(v []float64) {
	next := math.NaN()
	for i := len(v) - 1; i >= 0; i-- {
		if math.IsNaN(v[i]) {
			v[i] = next
		} else {
			next = v[i]
		}
	}
	prev := math.NaN()
	for i := range v {
		if math.IsNaN(v[i]) {
			v[i] = prev
		} else {
			prev = v[i]
		}
	}
	for i := range v {
		if math.IsNaN(v[i]) {
			v[i] = 0
		}
	}
}
