package ml

import (
	"fmt"
	"math"

	"github.com/sajari/regression"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type LinearKind string

const (
	OLS   LinearKind = "ols"
	Ridge LinearKind = "ridge"
	Lasso LinearKind = "lasso"
	Huber LinearKind = "huber"
)

// LinearParams configures every member of the linear family. Fields that do
// not apply to a kind are ignored.
type LinearParams struct {
	Kind         LinearKind
	Alpha        float64
	FitIntercept bool
	Epsilon      float64
	MaxIter      int
}

// LinearModel is y = Intercept + Coef . x, fitted according to Params.
type LinearModel struct {
	Params    LinearParams
	Coef      []float64
	Intercept float64
	fitted    bool
}

func NewLinearModel(p LinearParams) *LinearModel {
	return &LinearModel{Params: p}
}

func (m *LinearModel) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	var err error
	switch m.Params.Kind {
	case OLS, "":
		m.Coef, m.Intercept, err = fitOLS(X, y, m.Params.FitIntercept)
	case Ridge:
		m.Coef, m.Intercept, err = solveWeightedRidge(X, y, nil, m.Params.Alpha, m.Params.FitIntercept)
	case Lasso:
		m.Coef, m.Intercept = fitLasso(X, y, m.Params.Alpha, m.Params.FitIntercept, m.Params.MaxIter)
	case Huber:
		m.Coef, m.Intercept, err = fitHuber(X, y, m.Params)
	default:
		return fmt.Errorf("unknown linear model %q", m.Params.Kind)
	}
	if err != nil {
		return err
	}
	if !allFinite(m.Coef) || math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return ErrNonFiniteValue
	}
	m.fitted = true
	return nil
}

func (m *LinearModel) Predict(x []float64) (float64, error) {
	if !m.fitted {
		return 0, ErrNotFitted
	}
	if len(x) != len(m.Coef) {
		return 0, ErrShapeMismatch
	}
	return m.Intercept + floats.Dot(m.Coef, x), nil
}

// fitOLS prefers the QR based solver from sajari/regression when the design is
// well conditioned and falls back to the minimum-norm SVD solution otherwise
// (collinear columns, fewer rows than columns, or no intercept).
func fitOLS(X [][]float64, y []float64, intercept bool) ([]float64, float64, error) {
	p := len(X[0])
	if intercept && p > 0 && len(X) > p+1 && conditionNumber(X) < 1e10 {
		if coef, b, err := sajariOLS(X, y); err == nil {
			return coef, b, nil
		}
	}
	return solveWeightedRidge(X, y, nil, 0, intercept)
}

func sajariOLS(X [][]float64, y []float64) ([]float64, float64, error) {
	r := new(regression.Regression)
	r.SetObserved("y")
	p := len(X[0])
	for j := 0; j < p; j++ {
		r.SetVar(j, fmt.Sprintf("x%d", j))
	}
	for i, row := range X {
		r.Train(regression.DataPoint(y[i], row))
	}
	if err := r.Run(); err != nil {
		return nil, 0, err
	}
	coef := make([]float64, p)
	for j := range coef {
		coef[j] = r.Coeff(j + 1)
	}
	b := r.Coeff(0)
	if !allFinite(coef) || math.IsNaN(b) || math.IsInf(b, 0) {
		return nil, 0, ErrNonFiniteValue
	}
	return coef, b, nil
}

func conditionNumber(X [][]float64) float64 {
	a := denseFromRows(X, true)
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return math.Inf(1)
	}
	return svd.Cond()
}

// denseFromRows builds a gonum matrix, optionally prefixed with a ones column.
func denseFromRows(X [][]float64, withOnes bool) *mat.Dense {
	n, p := len(X), len(X[0])
	off := 0
	if withOnes {
		off = 1
	}
	a := mat.NewDense(n, p+off, nil)
	for i, row := range X {
		if withOnes {
			a.Set(i, 0, 1)
		}
		for j, v := range row {
			a.Set(i, j+off, v)
		}
	}
	return a
}

// solveWeightedRidge minimises sum w_i (y_i - b - x_i.beta)^2 + alpha*|beta|^2.
// The intercept is never penalised. alpha == 0 gives the minimum-norm least
// squares solution.
func solveWeightedRidge(X [][]float64, y, w []float64, alpha float64, intercept bool) ([]float64, float64, error) {
	n, p := len(X), len(X[0])
	if w == nil {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
	}
	sw := floats.Sum(w)
	xm := make([]float64, p)
	var ym float64
	if intercept && sw > 0 {
		for i, row := range X {
			floats.AddScaled(xm, w[i]/sw, row)
			ym += w[i] * y[i] / sw
		}
	}
	if p == 0 {
		return []float64{}, ym, nil
	}

	a := mat.NewDense(n, p, nil)
	b := mat.NewVecDense(n, nil)
	for i, row := range X {
		s := math.Sqrt(w[i])
		for j, v := range row {
			a.Set(i, j, s*(v-xm[j]))
		}
		b.SetVec(i, s*(y[i]-ym))
	}

	coef := mat.NewVecDense(p, nil)
	if alpha > 0 && p > n {
		// Dual form: beta = A^T (A A^T + alpha I)^-1 b keeps the solve n x n
		// for wide polynomial expansions.
		var gram mat.SymDense
		gram.SymOuterK(1, a)
		for i := 0; i < n; i++ {
			gram.SetSym(i, i, gram.At(i, i)+alpha)
		}
		var chol mat.Cholesky
		if !chol.Factorize(&gram) {
			return nil, 0, fmt.Errorf("ridge: gram matrix not positive definite")
		}
		dual := mat.NewVecDense(n, nil)
		if err := chol.SolveVecTo(dual, b); err != nil {
			return nil, 0, fmt.Errorf("ridge solve: %w", err)
		}
		coef.MulVec(a.T(), dual)
	} else if alpha > 0 {
		var ata mat.SymDense
		ata.SymOuterK(1, a.T())
		for j := 0; j < p; j++ {
			ata.SetSym(j, j, ata.At(j, j)+alpha)
		}
		var atb mat.VecDense
		atb.MulVec(a.T(), b)
		var chol mat.Cholesky
		if !chol.Factorize(&ata) {
			return nil, 0, fmt.Errorf("ridge: normal equations not positive definite")
		}
		if err := chol.SolveVecTo(coef, &atb); err != nil {
			return nil, 0, fmt.Errorf("ridge solve: %w", err)
		}
	} else {
		var svd mat.SVD
		if !svd.Factorize(a, mat.SVDThin) {
			return nil, 0, fmt.Errorf("least squares: svd failed")
		}
		if rank := svd.Rank(1e-10); rank > 0 {
			svd.SolveVecTo(coef, b, rank)
		}
	}
	beta := make([]float64, p)
	for j := range beta {
		beta[j] = coef.AtVec(j)
	}
	return beta, ym - floats.Dot(xm, beta), nil
}

// fitLasso runs cyclic coordinate descent on
// (1/2n)|y - b - X beta|^2 + alpha*|beta|_1.
func fitLasso(X [][]float64, y []float64, alpha float64, intercept bool, maxIter int) ([]float64, float64) {
	n, p := len(X), len(X[0])
	if maxIter <= 0 {
		maxIter = 1000
	}
	xm := make([]float64, p)
	var ym float64
	if intercept {
		for _, row := range X {
			floats.AddScaled(xm, 1/float64(n), row)
		}
		ym = Mean(y)
	}
	cols := make([][]float64, p)
	norms := make([]float64, p)
	for j := 0; j < p; j++ {
		c := Column(X, j)
		floats.AddConst(-xm[j], c)
		cols[j] = c
		norms[j] = floats.Dot(c, c)
	}
	resid := make([]float64, n)
	for i := range resid {
		resid[i] = y[i] - ym
	}
	beta := make([]float64, p)
	thresh := alpha * float64(n)
	const tol = 1e-4
	for it := 0; it < maxIter; it++ {
		var maxDelta, maxBeta float64
		for j := 0; j < p; j++ {
			if norms[j] == 0 {
				continue
			}
			old := beta[j]
			rho := floats.Dot(cols[j], resid) + norms[j]*old
			nb := softThreshold(rho, thresh) / norms[j]
			if nb != old {
				floats.AddScaled(resid, old-nb, cols[j])
				beta[j] = nb
			}
			maxDelta = math.Max(maxDelta, math.Abs(nb-old))
			maxBeta = math.Max(maxBeta, math.Abs(nb))
		}
		if maxBeta == 0 || maxDelta/maxBeta < tol {
			break
		}
	}
	return beta, ym - floats.Dot(xm, beta)
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

// fitHuber uses iteratively reweighted ridge regression with a MAD scale
// estimate; residuals beyond Epsilon*scale get down-weighted linearly.
func fitHuber(X [][]float64, y []float64, p LinearParams) ([]float64, float64, error) {
	eps := p.Epsilon
	if eps < 1 {
		eps = 1.35
	}
	maxIter := p.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}
	maxIter = min(maxIter, 200)
	alpha := math.Max(p.Alpha, 1e-8)

	coef, b, err := solveWeightedRidge(X, y, nil, alpha, p.FitIntercept)
	if err != nil {
		return nil, 0, err
	}
	n := len(X)
	w := make([]float64, n)
	resid := make([]float64, n)
	for it := 0; it < maxIter; it++ {
		for i, row := range X {
			resid[i] = y[i] - b - floats.Dot(coef, row)
		}
		abs := make([]float64, n)
		for i, r := range resid {
			abs[i] = math.Abs(r)
		}
		scale := Median(abs) / 0.6745
		if scale < 1e-12 {
			break
		}
		for i, r := range abs {
			if r <= eps*scale {
				w[i] = 1
			} else {
				w[i] = eps * scale / r
			}
		}
		nc, nb, err := solveWeightedRidge(X, y, w, alpha, p.FitIntercept)
		if err != nil {
			return nil, 0, err
		}
		delta := math.Abs(nb - b)
		for j := range nc {
			delta = math.Max(delta, math.Abs(nc[j]-coef[j]))
		}
		coef, b = nc, nb
		if delta < 1e-6 {
			break
		}
	}
	return coef, b, nil
}
