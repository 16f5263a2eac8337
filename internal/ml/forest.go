package ml

import (
	"math/rand/v2"
)

// ForestParams configures a random forest regressor.
type ForestParams struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	Seed            uint64
}

// RandomForest averages independently grown regression trees.
type RandomForest struct {
	Params ForestParams
	trees  []*RegressionTree
}

func NewRandomForest(p ForestParams) *RandomForest {
	return &RandomForest{Params: p}
}

func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	n := len(X)
	nt := f.Params.NEstimators
	if nt <= 0 {
		nt = 100
	}
	rng := rand.New(rand.NewPCG(f.Params.Seed, 0x9e3779b97f4a7c15))
	tp := TreeParams{
		MaxDepth:        f.Params.MaxDepth,
		MinSamplesSplit: f.Params.MinSamplesSplit,
		MinSamplesLeaf:  f.Params.MinSamplesLeaf,
		MaxFeatures:     MaxFeaturesFor(f.Params.MaxFeatures, len(X[0])),
	}
	f.trees = make([]*RegressionTree, nt)
	for k := range f.trees {
		tree := NewRegressionTree(tp, rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64())))
		idx := seq(0, n)
		if f.Params.Bootstrap {
			for i := range idx {
				idx[i] = rng.IntN(n)
			}
		}
		if err := tree.fitIndices(X, y, idx); err != nil {
			return err
		}
		f.trees[k] = tree
	}
	return nil
}

func (f *RandomForest) Predict(x []float64) (float64, error) {
	if len(f.trees) == 0 {
		return 0, ErrNotFitted
	}
	var s float64
	for _, t := range f.trees {
		v, err := t.Predict(x)
		if err != nil {
			return 0, err
		}
		s += v
	}
	return s / float64(len(f.trees)), nil
}
