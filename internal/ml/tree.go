package ml

import (
	"math"
	"math/rand/v2"
	"sort"
)

// TreeParams configures a regression tree. MaxDepth <= 0 means unlimited.
// MaxFeatures <= 0 means every column is considered at each split.
type TreeParams struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
}

type treeNode struct {
	feature   int
	threshold float64
	value     float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) leaf() bool { return n.left == nil }

func (n *treeNode) predict(x []float64) float64 {
	for !n.leaf() {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// RegressionTree is a CART tree grown by variance (squared error) reduction.
type RegressionTree struct {
	Params TreeParams
	rng    *rand.Rand
	root   *treeNode
	width  int
}

func NewRegressionTree(p TreeParams, rng *rand.Rand) *RegressionTree {
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	return &RegressionTree{Params: p, rng: rng}
}

func (t *RegressionTree) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	idx := seq(0, len(y))
	return t.fitIndices(X, y, idx)
}

func (t *RegressionTree) fitIndices(X [][]float64, y []float64, idx []int) error {
	t.width = len(X[0])
	p := t.Params
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > t.width {
		p.MaxFeatures = t.width
	}
	t.root = t.grow(X, y, idx, 0, p)
	return nil
}

func (t *RegressionTree) Predict(x []float64) (float64, error) {
	if t.root == nil {
		return 0, ErrNotFitted
	}
	if len(x) != t.width {
		return 0, ErrShapeMismatch
	}
	return t.root.predict(x), nil
}

func (t *RegressionTree) grow(X [][]float64, y []float64, idx []int, depth int, p TreeParams) *treeNode {
	node := &treeNode{value: meanAt(y, idx)}
	if len(idx) < p.MinSamplesSplit || (p.MaxDepth > 0 && depth >= p.MaxDepth) {
		return node
	}
	feat, thr, ok := t.bestSplit(X, y, idx, p)
	if !ok {
		return node
	}
	var left, right []int
	for _, i := range idx {
		if X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.feature, node.threshold = feat, thr
	node.left = t.grow(X, y, left, depth+1, p)
	node.right = t.grow(X, y, right, depth+1, p)
	return node
}

func (t *RegressionTree) bestSplit(X [][]float64, y []float64, idx []int, p TreeParams) (int, float64, bool) {
	features := seq(0, t.width)
	if p.MaxFeatures < t.width {
		t.rng.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
		features = features[:p.MaxFeatures]
	}

	var total, totalSq float64
	for _, i := range idx {
		total += y[i]
		totalSq += y[i] * y[i]
	}
	n := float64(len(idx))
	parentSSE := totalSq - total*total/n

	bestGain := 1e-12
	bestFeat, bestThr, found := -1, 0.0, false
	order := append([]int(nil), idx...)
	for _, f := range features {
		sort.SliceStable(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })
		var ls, lsq float64
		for k := 0; k < len(order)-1; k++ {
			v := y[order[k]]
			ls += v
			lsq += v * v
			nl := float64(k + 1)
			nr := n - nl
			if k+1 < p.MinSamplesLeaf || len(order)-(k+1) < p.MinSamplesLeaf {
				continue
			}
			cur, next := X[order[k]][f], X[order[k+1]][f]
			if cur == next {
				continue
			}
			rs, rsq := total-ls, totalSq-lsq
			sse := (lsq - ls*ls/nl) + (rsq - rs*rs/nr)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain, bestFeat, bestThr, found = gain, f, cur+(next-cur)/2, true
			}
		}
	}
	return bestFeat, bestThr, found
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += y[i]
	}
	return s / float64(len(idx))
}

// MaxFeaturesFor resolves a max-features strategy name for a given width.
// Supported: "all" (or ""), "sqrt", "log2".
func MaxFeaturesFor(strategy string, width int) int {
	switch strategy {
	case "sqrt":
		return max(1, int(math.Sqrt(float64(width))))
	case "log2":
		return max(1, int(math.Log2(float64(max(1, width)))))
	default:
		return width
	}
}
