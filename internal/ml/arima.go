package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// cssPenalty replaces non-finite or out-of-region objective values so the
// simplex keeps moving instead of aborting.
const cssPenalty = 1e100

var ErrTooFewObservations = errors.New("too few observations for order")

// SARIMAOrder is (p,d,q)x(P,D,Q,s).
type SARIMAOrder struct {
	P, D, Q    int
	SP, SD, SQ int
	S          int
}

func (o SARIMAOrder) String() string {
	return fmt.Sprintf("(%d,%d,%d)x(%d,%d,%d,%d)", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.S)
}

// SARIMAOrders enumerates the search grid p,q in 0..2, d in 0..1 and
// P,D,Q in 0..1 with the given seasonal period.
func SARIMAOrders(season int) []SARIMAOrder {
	var out []SARIMAOrder
	for p := 0; p <= 2; p++ {
		for d := 0; d <= 1; d++ {
			for q := 0; q <= 2; q++ {
				for sp := 0; sp <= 1; sp++ {
					for sd := 0; sd <= 1; sd++ {
						for sq := 0; sq <= 1; sq++ {
							out = append(out, SARIMAOrder{P: p, D: d, Q: q, SP: sp, SD: sd, SQ: sq, S: season})
						}
					}
				}
			}
		}
	}
	return out
}

// SARIMAX is a regression with seasonal ARIMA errors. The series and the
// exogenous columns are differenced with (1-B)^d (1-B^s)^D, the differenced
// series is regressed on the differenced exog by least squares, and an ARMA
// model is fitted to the regression residual by conditional sum of squares.
type SARIMAX struct {
	Order  SARIMAOrder
	Beta   []float64
	Params []float64 // phi_1..p, Phi_1..P, theta_1..q, Theta_1..Q
	Sigma2 float64
	LogLik float64
	AIC    float64

	delta []float64 // differencing polynomial, delta[0] == 1
	ar    []float64 // expanded AR lags, ar[k] applies to u_{t-k}
	ma    []float64
	y     []float64
	exog  [][]float64
	u     []float64 // regression residual on the differenced region
	e     []float64 // one-step innovations
}

// FitSARIMAX fits the model on y (length n) and exog (n rows, possibly zero
// columns).
func FitSARIMAX(y []float64, exog [][]float64, order SARIMAOrder) (*SARIMAX, error) {
	if len(y) == 0 {
		return nil, ErrEmptyInput
	}
	if len(exog) != len(y) {
		return nil, ErrShapeMismatch
	}
	if !allFinite(y) {
		return nil, ErrNonFiniteValue
	}
	m := &SARIMAX{Order: order, y: append([]float64(nil), y...), exog: CopyMatrix(exog)}
	m.delta = differencingPolynomial(order)
	lag := len(m.delta) - 1
	n := len(y) - lag
	width := 0
	if len(exog) > 0 {
		width = len(exog[0])
	}
	k := order.P + order.Q + order.SP + order.SQ + width + 1
	if n <= k+1 {
		return nil, fmt.Errorf("%s: %w (have %d, need more than %d)", order, ErrTooFewObservations, n, k+1)
	}

	w := make([]float64, n)
	xd := make([][]float64, n)
	for i := range w {
		w[i] = m.difference(m.y, i+lag)
		xd[i] = m.differenceExog(m.exog, i+lag)
	}

	m.Beta = make([]float64, width)
	if width > 0 {
		beta, _, err := solveWeightedRidge(xd, w, nil, 0, false)
		if err != nil {
			return nil, fmt.Errorf("%s: exog regression: %w", order, err)
		}
		m.Beta = beta
	}
	m.u = make([]float64, n)
	for i := range w {
		m.u[i] = w[i] - floats.Dot(m.Beta, xd[i])
	}

	nParams := order.P + order.SP + order.Q + order.SQ
	m.Params = make([]float64, nParams)
	if nParams > 0 {
		problem := optimize.Problem{Func: func(x []float64) float64 {
			for _, v := range x {
				if math.Abs(v) > 2 {
					return cssPenalty
				}
			}
			ar, ma := m.expand(x)
			sse := cssResiduals(m.u, ar, ma, nil)
			if math.IsNaN(sse) || math.IsInf(sse, 0) || sse > cssPenalty {
				return cssPenalty
			}
			return sse
		}}
		settings := &optimize.Settings{
			FuncEvaluations: 500 * nParams,
			Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Relative: 1e-10, Iterations: 50},
		}
		res, err := optimize.Minimize(problem, make([]float64, nParams), settings, &optimize.NelderMead{})
		if res == nil {
			return nil, fmt.Errorf("%s: css: %w", order, err)
		}
		if res.F >= cssPenalty {
			return nil, fmt.Errorf("%s: css did not reach a finite objective", order)
		}
		copy(m.Params, res.X)
	}

	m.ar, m.ma = m.expand(m.Params)
	m.e = make([]float64, n)
	sse := cssResiduals(m.u, m.ar, m.ma, m.e)
	m.Sigma2 = math.Max(sse/float64(n), 1e-12)
	m.LogLik = -float64(n) / 2 * (math.Log(2*math.Pi*m.Sigma2) + 1)
	m.AIC = 2*float64(k) - 2*m.LogLik
	if math.IsNaN(m.AIC) || math.IsInf(m.AIC, 0) {
		return nil, fmt.Errorf("%s: %w", order, ErrNonFiniteValue)
	}
	return m, nil
}

// MSE is the mean squared one-step error over the fitted region.
func (m *SARIMAX) MSE() float64 {
	var s float64
	for _, v := range m.e {
		s += v * v
	}
	return s / float64(len(m.e))
}

// Forecast returns len(futureExog) predictions on the original scale.
func (m *SARIMAX) Forecast(futureExog [][]float64) ([]float64, error) {
	h := len(futureExog)
	width := len(m.Beta)
	for _, row := range futureExog {
		if len(row) != width {
			return nil, ErrShapeMismatch
		}
	}
	lag := len(m.delta) - 1
	n0 := len(m.y)
	y := append(append([]float64(nil), m.y...), make([]float64, h)...)
	exog := append(m.exog[:n0:n0], futureExog...)

	u := append(append([]float64(nil), m.u...), make([]float64, h)...)
	e := append(append([]float64(nil), m.e...), make([]float64, h)...)
	out := make([]float64, h)
	for j := 0; j < h; j++ {
		t := n0 + j
		i := t - lag
		var ut float64
		for k := 1; k < len(m.ar); k++ {
			if i-k >= 0 {
				ut += m.ar[k] * u[i-k]
			}
		}
		for k := 1; k < len(m.ma); k++ {
			if i-k >= 0 {
				ut += m.ma[k] * e[i-k]
			}
		}
		u[i] = ut
		wt := ut + floats.Dot(m.Beta, m.differenceExog(exog, t))
		yt := wt
		for k := 1; k < len(m.delta); k++ {
			yt -= m.delta[k] * y[t-k]
		}
		if math.IsNaN(yt) || math.IsInf(yt, 0) {
			return nil, ErrNonFiniteValue
		}
		y[t] = yt
		out[j] = yt
	}
	return out, nil
}

func (m *SARIMAX) difference(x []float64, t int) float64 {
	var s float64
	for k, c := range m.delta {
		s += c * x[t-k]
	}
	return s
}

func (m *SARIMAX) differenceExog(exog [][]float64, t int) []float64 {
	out := make([]float64, len(exog[t]))
	for k, c := range m.delta {
		if c == 0 {
			continue
		}
		floats.AddScaled(out, c, exog[t-k])
	}
	return out
}

// expand multiplies the non-seasonal and seasonal lag polynomials and
// returns them as lag coefficients (index 0 unused).
func (m *SARIMAX) expand(x []float64) (ar, ma []float64) {
	o := m.Order
	phi := x[:o.P]
	sphi := x[o.P : o.P+o.SP]
	theta := x[o.P+o.SP : o.P+o.SP+o.Q]
	stheta := x[o.P+o.SP+o.Q:]

	arPoly := polyMul(lagPolynomial(phi, 1, -1), lagPolynomial(sphi, o.S, -1))
	maPoly := polyMul(lagPolynomial(theta, 1, 1), lagPolynomial(stheta, o.S, 1))
	ar = make([]float64, len(arPoly))
	for k := 1; k < len(arPoly); k++ {
		ar[k] = -arPoly[k]
	}
	return ar, maPoly
}

// cssResiduals computes innovations with pre-sample values set to zero and
// returns their sum of squares. e may be nil.
func cssResiduals(u, ar, ma, e []float64) float64 {
	if e == nil {
		e = make([]float64, len(u))
	}
	var sse float64
	for t := range u {
		v := u[t]
		for k := 1; k < len(ar); k++ {
			if t-k >= 0 {
				v -= ar[k] * u[t-k]
			}
		}
		for k := 1; k < len(ma); k++ {
			if t-k >= 0 {
				v -= ma[k] * e[t-k]
			}
		}
		e[t] = v
		sse += v * v
	}
	return sse
}

// lagPolynomial builds 1 + sign*(c_1 B^step + c_2 B^(2 step) + ...).
func lagPolynomial(c []float64, step int, sign float64) []float64 {
	out := make([]float64, len(c)*step+1)
	out[0] = 1
	for i, v := range c {
		out[(i+1)*step] = sign * v
	}
	return out
}

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

func differencingPolynomial(o SARIMAOrder) []float64 {
	p := []float64{1}
	for i := 0; i < o.D; i++ {
		p = polyMul(p, []float64{1, -1})
	}
	for i := 0; i < o.SD; i++ {
		p = polyMul(p, lagPolynomial([]float64{1}, o.S, -1))
	}
	return p
}
