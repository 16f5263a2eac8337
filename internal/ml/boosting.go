package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

type Booster string

const (
	GBTree   Booster = "gbtree"
	GBLinear Booster = "gblinear"
	Dart     Booster = "dart"
)

func Boosters() []Booster { return []Booster{GBTree, GBLinear, Dart} }

// BoostParams mirrors the usual gradient boosting knobs for squared error.
// Subsample, ColsampleByTree, ColsampleByLevel and MaxDepth only apply to the
// tree boosters.
type BoostParams struct {
	Booster             Booster
	NEstimators         int
	LearningRate        float64
	Lambda              float64
	Alpha               float64
	Subsample           float64
	ColsampleByTree     float64
	ColsampleByLevel    float64
	MaxDepth            int
	EarlyStoppingRounds int
	RateDrop            float64
	Seed                uint64
}

// RoundFunc observes the validation RMSE after every boosting round. Returning
// true stops training.
type RoundFunc func(round int, valRMSE float64) bool

// GradientBoosting is an additive model trained on squared error gradients.
type GradientBoosting struct {
	Params  BoostParams
	OnRound RoundFunc

	// BestIteration is the zero-based round with the lowest validation error,
	// or the last round when no validation set was supplied.
	BestIteration int
	// Stopped reports that OnRound requested termination.
	Stopped bool

	base    float64
	trees   []*treeNode
	weights []float64
	linW    []float64
	linB    float64
	width   int
	fitted  bool
}

func NewGradientBoosting(p BoostParams) *GradientBoosting {
	return &GradientBoosting{Params: p}
}

func (g *GradientBoosting) Fit(X [][]float64, y []float64) error {
	return g.FitWithEval(X, y, nil, nil)
}

// FitWithEval trains with an optional validation set used for early stopping.
func (g *GradientBoosting) FitWithEval(X [][]float64, y []float64, Xv [][]float64, yv []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	if len(Xv) != len(yv) {
		return ErrShapeMismatch
	}
	p := g.normalized()
	g.width = len(X[0])
	g.base = Mean(y)
	g.trees, g.weights = nil, nil
	g.linW, g.linB = make([]float64, g.width), 0
	g.Stopped = false

	switch p.Booster {
	case GBTree, Dart:
		g.fitTrees(p, X, y, Xv, yv)
	case GBLinear:
		g.fitLinear(p, X, y, Xv, yv)
	default:
		return fmt.Errorf("unknown booster %q", p.Booster)
	}
	g.fitted = true
	return nil
}

func (g *GradientBoosting) normalized() BoostParams {
	p := g.Params
	if p.Booster == "" {
		p.Booster = GBTree
	}
	if p.NEstimators <= 0 {
		p.NEstimators = 100
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 0.3
	}
	if p.Lambda < 0 {
		p.Lambda = 0
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		p.Subsample = 1
	}
	if p.ColsampleByTree <= 0 || p.ColsampleByTree > 1 {
		p.ColsampleByTree = 1
	}
	if p.ColsampleByLevel <= 0 || p.ColsampleByLevel > 1 {
		p.ColsampleByLevel = 1
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 6
	}
	if p.Booster == Dart && p.RateDrop <= 0 {
		p.RateDrop = 0.1
	}
	return p
}

type earlyStopper struct {
	patience int
	best     float64
	bestAt   int
}

func (e *earlyStopper) observe(round int, v float64) (stop bool) {
	if round == 0 || v < e.best {
		e.best, e.bestAt = v, round
		return false
	}
	return e.patience > 0 && round-e.bestAt >= e.patience
}

func (g *GradientBoosting) fitTrees(p BoostParams, X [][]float64, y []float64, Xv [][]float64, yv []float64) {
	rng := rand.New(rand.NewPCG(p.Seed, 0x2545f4914f6cdd1d))
	n, nv := len(X), len(Xv)
	// Per-tree outputs are cached so dart can rescale contributions cheaply.
	var trainOut, valOut [][]float64
	pred := make([]float64, n)
	vpred := make([]float64, nv)
	stopper := earlyStopper{patience: p.EarlyStoppingRounds}

	for round := 0; round < p.NEstimators; round++ {
		dropped := map[int]bool{}
		if p.Booster == Dart {
			for k := range g.trees {
				if rng.Float64() < p.RateDrop {
					dropped[k] = true
				}
			}
		}
		grad := make([]float64, n)
		for i := range grad {
			cur := g.base + pred[i]
			for k := range dropped {
				cur -= g.weights[k] * trainOut[k][i]
			}
			grad[i] = cur - y[i]
		}

		rows := seq(0, n)
		if p.Subsample < 1 {
			rows = rows[:0]
			for i := 0; i < n; i++ {
				if rng.Float64() < p.Subsample {
					rows = append(rows, i)
				}
			}
			if len(rows) == 0 {
				rows = append(rows, rng.IntN(n))
			}
		}
		cols := sampleColumns(rng, seq(0, g.width), p.ColsampleByTree)
		root := growBoostTree(X, grad, rows, cols, 0, p, rng)

		w := 1.0
		if k := len(dropped); k > 0 {
			w = 1 / float64(k+1)
			scale := float64(k) / float64(k+1)
			for d := range dropped {
				delta := g.weights[d] * (scale - 1)
				for i := range pred {
					pred[i] += delta * trainOut[d][i]
				}
				for i := range vpred {
					vpred[i] += delta * valOut[d][i]
				}
				g.weights[d] *= scale
			}
		}
		to := make([]float64, n)
		for i, row := range X {
			to[i] = p.LearningRate * root.predict(row)
			pred[i] += w * to[i]
		}
		vo := make([]float64, nv)
		for i, row := range Xv {
			vo[i] = p.LearningRate * root.predict(row)
			vpred[i] += w * vo[i]
		}
		g.trees = append(g.trees, root)
		g.weights = append(g.weights, w)
		trainOut = append(trainOut, to)
		valOut = append(valOut, vo)

		if nv == 0 {
			g.BestIteration = round
			continue
		}
		rmse := rmseAgainst(yv, vpred, g.base)
		if g.OnRound != nil && g.OnRound(round, rmse) {
			g.Stopped = true
			stopper.observe(round, rmse)
			break
		}
		if stopper.observe(round, rmse) {
			break
		}
	}
	if nv > 0 {
		g.BestIteration = stopper.bestAt
		g.trees = g.trees[:stopper.bestAt+1]
		g.weights = g.weights[:stopper.bestAt+1]
	}
	// Fold the learning rate into the weights so Predict can use raw leaf values.
	for k := range g.weights {
		g.weights[k] *= p.LearningRate
	}
}

func (g *GradientBoosting) fitLinear(p BoostParams, X [][]float64, y []float64, Xv [][]float64, yv []float64) {
	n, nv := len(X), len(Xv)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.base
	}
	stopper := earlyStopper{patience: p.EarlyStoppingRounds}
	bestW, bestB := append([]float64(nil), g.linW...), g.linB

	for round := 0; round < p.NEstimators; round++ {
		grad := make([]float64, n)
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		db := -p.LearningRate * sum(grad) / float64(n)
		g.linB += db
		for i := range pred {
			pred[i] += db
			grad[i] += db
		}
		for j := 0; j < g.width; j++ {
			var gj, hj float64
			for i, row := range X {
				gj += grad[i] * row[j]
				hj += row[j] * row[j]
			}
			gj += p.Lambda * g.linW[j]
			hj += p.Lambda
			if hj < 1e-5 {
				continue
			}
			delta := p.LearningRate * coordinateDelta(gj, hj, g.linW[j], p.Alpha)
			if delta == 0 {
				continue
			}
			g.linW[j] += delta
			for i, row := range X {
				pred[i] += delta * row[j]
				grad[i] += delta * row[j]
			}
		}

		if nv == 0 {
			g.BestIteration = round
			continue
		}
		vp := make([]float64, nv)
		for i, row := range Xv {
			vp[i] = g.linearOut(row)
		}
		rmse := rmseAgainst(yv, vp, 0)
		improved := round == 0 || rmse < stopper.best
		stop := stopper.observe(round, rmse)
		if improved {
			bestW, bestB = append(bestW[:0], g.linW...), g.linB
		}
		if g.OnRound != nil && g.OnRound(round, rmse) {
			g.Stopped = true
			break
		}
		if stop {
			break
		}
	}
	if nv > 0 {
		g.BestIteration = stopper.bestAt
		g.linW, g.linB = bestW, bestB
	}
}

// coordinateDelta is the elastic-net coordinate step that never crosses zero.
func coordinateDelta(grad, hess, w, alpha float64) float64 {
	if w-grad/hess >= 0 {
		return math.Max(-(grad+alpha)/hess, -w)
	}
	return math.Min(-(grad-alpha)/hess, -w)
}

func (g *GradientBoosting) linearOut(x []float64) float64 {
	v := g.base + g.linB
	for j, w := range g.linW {
		v += w * x[j]
	}
	return v
}

func (g *GradientBoosting) Predict(x []float64) (float64, error) {
	if !g.fitted {
		return 0, ErrNotFitted
	}
	if len(x) != g.width {
		return 0, ErrShapeMismatch
	}
	if g.Params.Booster == GBLinear {
		return g.linearOut(x), nil
	}
	v := g.base
	for k, t := range g.trees {
		v += g.weights[k] * t.predict(x)
	}
	return v, nil
}

func growBoostTree(X [][]float64, grad []float64, rows, cols []int, depth int, p BoostParams, rng *rand.Rand) *treeNode {
	G := 0.0
	for _, i := range rows {
		G += grad[i]
	}
	H := float64(len(rows))
	node := &treeNode{value: leafWeight(G, H, p.Lambda, p.Alpha)}
	if depth >= p.MaxDepth || len(rows) < 2 {
		return node
	}
	levelCols := sampleColumns(rng, cols, p.ColsampleByLevel)
	parent := splitScore(G, H, p.Lambda, p.Alpha)

	bestGain, bestFeat, bestThr := 0.0, -1, 0.0
	order := append([]int(nil), rows...)
	for _, f := range levelCols {
		sort.SliceStable(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })
		var gl float64
		for k := 0; k < len(order)-1; k++ {
			gl += grad[order[k]]
			cur, next := X[order[k]][f], X[order[k+1]][f]
			if cur == next {
				continue
			}
			hl := float64(k + 1)
			gain := 0.5 * (splitScore(gl, hl, p.Lambda, p.Alpha) + splitScore(G-gl, H-hl, p.Lambda, p.Alpha) - parent)
			if gain > bestGain+1e-12 {
				bestGain, bestFeat, bestThr = gain, f, cur+(next-cur)/2
			}
		}
	}
	if bestFeat < 0 {
		return node
	}
	var left, right []int
	for _, i := range rows {
		if X[i][bestFeat] <= bestThr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.feature, node.threshold = bestFeat, bestThr
	node.left = growBoostTree(X, grad, left, cols, depth+1, p, rng)
	node.right = growBoostTree(X, grad, right, cols, depth+1, p, rng)
	return node
}

func leafWeight(G, H, lambda, alpha float64) float64 {
	return -softThreshold(G, alpha) / (H + lambda)
}

func splitScore(G, H, lambda, alpha float64) float64 {
	t := softThreshold(G, alpha)
	return t * t / (H + lambda)
}

func sampleColumns(rng *rand.Rand, cols []int, frac float64) []int {
	if frac >= 1 || len(cols) <= 1 {
		return cols
	}
	k := max(1, int(math.Round(frac*float64(len(cols)))))
	out := append([]int(nil), cols...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	out = out[:k]
	sort.Ints(out)
	return out
}

func rmseAgainst(truth, pred []float64, offset float64) float64 {
	var s float64
	for i, v := range truth {
		d := v - (pred[i] + offset)
		s += d * d
	}
	return math.Sqrt(s / float64(len(truth)))
}

func sum(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}
