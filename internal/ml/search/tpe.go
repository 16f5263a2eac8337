package search

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

type distribution interface {
	random(rng *rand.Rand) float64
	bounds() (lo, hi float64)
	categorical() int
}

type floatDist struct {
	low, high float64
	log       bool
}

func (d floatDist) bounds() (float64, float64) {
	if d.log {
		return math.Log(d.low), math.Log(d.high)
	}
	return d.low, d.high
}

func (d floatDist) random(rng *rand.Rand) float64 {
	lo, hi := d.bounds()
	return lo + rng.Float64()*(hi-lo)
}

func (d floatDist) categorical() int { return 0 }

func (d floatDist) fromInternal(v float64) float64 {
	if d.log {
		v = math.Exp(v)
	}
	return math.Min(math.Max(v, d.low), d.high)
}

type intDist struct {
	low, high int
}

func (d intDist) bounds() (float64, float64) {
	return float64(d.low) - 0.5, float64(d.high) + 0.5
}

func (d intDist) random(rng *rand.Rand) float64 {
	return float64(d.low + rng.IntN(d.high-d.low+1))
}

func (d intDist) categorical() int { return 0 }

func (d intDist) fromInternal(v float64) int {
	return min(max(int(math.Round(v)), d.low), d.high)
}

type catDist struct {
	choices []string
}

func (d catDist) bounds() (float64, float64) { return 0, float64(len(d.choices) - 1) }

func (d catDist) random(rng *rand.Rand) float64 { return float64(rng.IntN(len(d.choices))) }

func (d catDist) categorical() int { return len(d.choices) }

func (d catDist) fromInternal(v float64) string {
	return d.choices[min(max(int(v), 0), len(d.choices)-1)]
}

// TPESampler is an independent tree-structured Parzen estimator: for every
// parameter, past trials are split into a good and a bad group and the
// candidate maximising l(x)/g(x) is chosen.
type TPESampler struct {
	NStartupTrials   int
	NEICandidates    int
	PriorWeight      float64
	ConsiderEndpoint bool
}

func NewTPESampler(startup int) *TPESampler {
	return &TPESampler{NStartupTrials: startup, NEICandidates: 24, PriorWeight: 1}
}

type observation struct {
	value float64
	score float64
	state TrialState
}

func (s *TPESampler) sample(rng *rand.Rand, name string, d distribution, history []FrozenTrial) float64 {
	var obs []observation
	for _, t := range history {
		if t.State != TrialComplete && t.State != TrialPruned {
			continue
		}
		v, ok := t.internal[name]
		if !ok {
			continue
		}
		obs = append(obs, observation{value: v, score: t.Value, state: t.State})
	}
	if len(obs) < s.NStartupTrials {
		return d.random(rng)
	}

	// Completed trials rank ahead of pruned ones.
	sort.SliceStable(obs, func(i, j int) bool {
		if (obs[i].state == TrialComplete) != (obs[j].state == TrialComplete) {
			return obs[i].state == TrialComplete
		}
		return obs[i].score < obs[j].score
	})
	nBelow := min(int(math.Ceil(0.1*float64(len(obs)))), 25)
	nBelow = max(1, nBelow)
	below := values(obs[:nBelow])
	above := values(obs[nBelow:])

	if k := d.categorical(); k > 0 {
		return s.sampleCategorical(rng, k, below, above)
	}
	lo, hi := d.bounds()
	return s.sampleNumeric(rng, lo, hi, below, above)
}

func values(obs []observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.value
	}
	return out
}

func (s *TPESampler) sampleCategorical(rng *rand.Rand, k int, below, above []float64) float64 {
	l := categoricalWeights(k, below, s.PriorWeight)
	g := categoricalWeights(k, above, s.PriorWeight)
	best, bestScore := 0, math.Inf(-1)
	for c := 0; c < s.NEICandidates; c++ {
		cand := drawIndex(rng, l)
		if score := math.Log(l[cand]) - math.Log(g[cand]); score > bestScore {
			best, bestScore = cand, score
		}
	}
	return float64(best)
}

func categoricalWeights(k int, obs []float64, prior float64) []float64 {
	w := make([]float64, k)
	for i := range w {
		w[i] = prior / float64(k)
	}
	for _, o := range obs {
		w[int(o)]++
	}
	var total float64
	for _, v := range w {
		total += v
	}
	for i := range w {
		w[i] /= total
	}
	return w
}

func drawIndex(rng *rand.Rand, w []float64) int {
	u := rng.Float64()
	for i, v := range w {
		u -= v
		if u <= 0 {
			return i
		}
	}
	return len(w) - 1
}

// parzen is a truncated Gaussian mixture with one component per observation
// plus a wide prior component centred in the search range.
type parzen struct {
	lo, hi  float64
	weights []float64
	comps   []distuv.Normal
}

func newParzen(obs []float64, lo, hi, prior float64) parzen {
	mus := append(append([]float64(nil), obs...), (lo+hi)/2)
	sort.Float64s(mus)
	span := hi - lo
	minSigma := span / math.Min(100, 1+float64(len(mus)))
	p := parzen{lo: lo, hi: hi}
	priorIdx := -1
	for i, mu := range mus {
		if priorIdx < 0 && mu == (lo+hi)/2 {
			priorIdx = i
			p.comps = append(p.comps, distuv.Normal{Mu: mu, Sigma: span})
			p.weights = append(p.weights, prior)
			continue
		}
		left, right := lo, hi
		if i > 0 {
			left = mus[i-1]
		}
		if i+1 < len(mus) {
			right = mus[i+1]
		}
		sigma := math.Max(mu-left, right-mu)
		sigma = math.Min(math.Max(sigma, minSigma), span)
		if sigma <= 0 {
			sigma = math.Max(minSigma, 1e-12)
		}
		p.comps = append(p.comps, distuv.Normal{Mu: mu, Sigma: sigma})
		p.weights = append(p.weights, 1)
	}
	var total float64
	for _, w := range p.weights {
		total += w
	}
	for i := range p.weights {
		p.weights[i] /= total
	}
	return p
}

func (p parzen) sample(rng *rand.Rand) float64 {
	c := p.comps[drawIndex(rng, p.weights)]
	a, b := c.CDF(p.lo), c.CDF(p.hi)
	if b-a < 1e-12 {
		return math.Min(math.Max(c.Mu, p.lo), p.hi)
	}
	u := a + rng.Float64()*(b-a)
	u = math.Min(math.Max(u, 1e-12), 1-1e-12)
	return math.Min(math.Max(c.Quantile(u), p.lo), p.hi)
}

func (p parzen) logPDF(x float64) float64 {
	var s float64
	for i, c := range p.comps {
		z := c.CDF(p.hi) - c.CDF(p.lo)
		if z <= 0 {
			continue
		}
		s += p.weights[i] * c.Prob(x) / z
	}
	if s <= 0 {
		return math.Inf(-1)
	}
	return math.Log(s)
}

func (s *TPESampler) sampleNumeric(rng *rand.Rand, lo, hi float64, below, above []float64) float64 {
	if hi <= lo {
		return lo
	}
	l := newParzen(below, lo, hi, s.PriorWeight)
	g := newParzen(above, lo, hi, s.PriorWeight)
	best, bestScore := l.sample(rng), math.Inf(-1)
	for c := 0; c < s.NEICandidates; c++ {
		x := l.sample(rng)
		if score := l.logPDF(x) - g.logPDF(x); score > bestScore {
			best, bestScore = x, score
		}
	}
	return best
}

// MedianPruner stops a trial whose best intermediate value so far is worse
// than the median of completed trials at the same step.
type MedianPruner struct {
	NStartupTrials int
	NWarmupSteps   int
}

func NewMedianPruner(startup, warmup int) *MedianPruner {
	return &MedianPruner{NStartupTrials: startup, NWarmupSteps: warmup}
}

func (m *MedianPruner) prune(t *Trial, history []FrozenTrial) bool {
	step := t.lastStep()
	if step < m.NWarmupSteps {
		return false
	}
	var others []float64
	completed := 0
	for _, ft := range history {
		if ft.State != TrialComplete {
			continue
		}
		completed++
		if v, ok := bestUpTo(ft.Intermediate, step); ok {
			others = append(others, v)
		}
	}
	if completed < m.NStartupTrials || len(others) == 0 {
		return false
	}
	sort.Float64s(others)
	var median float64
	if n := len(others); n%2 == 1 {
		median = others[n/2]
	} else {
		median = (others[n/2-1] + others[n/2]) / 2
	}
	cur, _ := bestUpTo(t.intermediate, step)
	return cur > median
}

func bestUpTo(values map[int]float64, step int) (float64, bool) {
	best, ok := math.Inf(1), false
	for s, v := range values {
		if s <= step && v < best {
			best, ok = v, true
		}
	}
	return best, ok
}
