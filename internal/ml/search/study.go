package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPruned is returned by an objective when Trial.ShouldPrune reported true.
var ErrPruned = errors.New("trial pruned")

var ErrNoCompletedTrials = errors.New("no trial completed")

type TrialState int

const (
	TrialRunning TrialState = iota
	TrialComplete
	TrialPruned
	TrialFailed
)

func (s TrialState) String() string {
	switch s {
	case TrialComplete:
		return "complete"
	case TrialPruned:
		return "pruned"
	case TrialFailed:
		return "failed"
	default:
		return "running"
	}
}

// FrozenTrial is the immutable record of a finished trial.
type FrozenTrial struct {
	Number       int
	State        TrialState
	Value        float64
	Params       map[string]any
	internal     map[string]float64
	dists        map[string]distribution
	Intermediate map[int]float64
}

// Objective evaluates one trial. It returns ErrPruned when it stopped early.
type Objective func(ctx context.Context, t *Trial) (float64, error)

// Study runs a sequential model-based optimisation for a minimisation problem.
type Study struct {
	Sampler     *TPESampler
	Pruner      *MedianPruner
	Parallelism int

	mu     sync.Mutex
	trials []FrozenTrial
	queued []map[string]any
	rng    *rand.Rand
}

// NewStudy creates a study with a TPE sampler (5 random start-up trials) and a
// median pruner (5 start-up trials, 5 warm-up steps).
func NewStudy(seed uint64) *Study {
	return &Study{
		Sampler:     NewTPESampler(5),
		Pruner:      NewMedianPruner(5, 5),
		Parallelism: 1,
		rng:         rand.New(rand.NewPCG(seed, 0xda3e39cb94b95bdb)),
	}
}

// Optimize runs nTrials trials. The random start-up trials are sampled up
// front and may be evaluated concurrently; later trials are sequential since
// every suggestion depends on the finished history.
func (s *Study) Optimize(ctx context.Context, objective Objective, nTrials int) error {
	startup := min(nTrials, s.Sampler.NStartupTrials)
	if s.Parallelism > 1 && startup > 1 && len(s.completed()) == 0 {
		if err := s.runStartupConcurrently(ctx, objective, startup); err != nil {
			return err
		}
		nTrials -= startup
	}
	for i := 0; i < nTrials; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := s.newTrial(len(s.snapshot()))
		if err := s.run(ctx, objective, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Study) runStartupConcurrently(ctx context.Context, objective Objective, n int) error {
	sem := semaphore.NewWeighted(int64(s.Parallelism))
	trials := make([]*Trial, n)
	for i := range trials {
		// Random suggestions only, drawn in order so results stay reproducible.
		trials[i] = s.newTrial(i)
		trials[i].forceRandom = true
	}
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, t := range trials {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			errs[i] = s.run(ctx, objective, t)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Enqueue fixes parameters for the next trial. Queued trials run in order;
// parameters they do not name are sampled as usual.
func (s *Study) Enqueue(params map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, params)
}

func (s *Study) newTrial(number int) *Trial {
	s.mu.Lock()
	seed1, seed2 := s.rng.Uint64(), s.rng.Uint64()
	params := map[string]any{}
	if len(s.queued) > 0 {
		for k, v := range s.queued[0] {
			params[k] = v
		}
		s.queued = s.queued[1:]
	}
	s.mu.Unlock()
	return &Trial{
		study:        s,
		number:       number,
		rng:          rand.New(rand.NewPCG(seed1, seed2)),
		params:       params,
		internal:     map[string]float64{},
		dists:        map[string]distribution{},
		intermediate: map[int]float64{},
	}
}

func (s *Study) run(ctx context.Context, objective Objective, t *Trial) error {
	v, err := objective(ctx, t)
	ft := FrozenTrial{
		Number:       t.number,
		Params:       t.params,
		internal:     t.internal,
		dists:        t.dists,
		Intermediate: t.intermediate,
	}
	switch {
	case err == nil && !math.IsNaN(v) && !math.IsInf(v, 0):
		ft.State, ft.Value = TrialComplete, v
	case errors.Is(err, ErrPruned):
		ft.State, ft.Value = TrialPruned, t.lastIntermediate()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		ft.State, ft.Value = TrialFailed, math.Inf(1)
	}
	s.mu.Lock()
	s.trials = append(s.trials, ft)
	sort.Slice(s.trials, func(i, j int) bool { return s.trials[i].Number < s.trials[j].Number })
	s.mu.Unlock()
	return nil
}

// Trials returns a copy of the finished trials ordered by number.
func (s *Study) Trials() []FrozenTrial {
	return s.snapshot()
}

func (s *Study) snapshot() []FrozenTrial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FrozenTrial(nil), s.trials...)
}

func (s *Study) completed() []FrozenTrial {
	var out []FrozenTrial
	for _, t := range s.snapshot() {
		if t.State == TrialComplete {
			out = append(out, t)
		}
	}
	return out
}

// Best returns the completed trial with the lowest value; ties go to the
// earliest trial.
func (s *Study) Best() (FrozenTrial, error) {
	var best *FrozenTrial
	done := s.completed()
	for i := range done {
		if best == nil || done[i].Value < best.Value {
			best = &done[i]
		}
	}
	if best == nil {
		return FrozenTrial{}, ErrNoCompletedTrials
	}
	return *best, nil
}

// Trial is handed to the objective; parameters are suggested define-by-run.
type Trial struct {
	study        *Study
	number       int
	rng          *rand.Rand
	forceRandom  bool
	params       map[string]any
	internal     map[string]float64
	dists        map[string]distribution
	intermediate map[int]float64
}

func (t *Trial) Number() int { return t.number }

// Params returns the parameters suggested so far.
func (t *Trial) Params() map[string]any { return t.params }

func (t *Trial) SuggestFloat(name string, low, high float64, log bool) float64 {
	if v, ok := t.params[name].(float64); ok {
		return v
	}
	d := floatDist{low: low, high: high, log: log}
	v := d.fromInternal(t.sample(name, d))
	t.params[name] = v
	return v
}

func (t *Trial) SuggestInt(name string, low, high int) int {
	if v, ok := t.params[name].(int); ok {
		return v
	}
	d := intDist{low: low, high: high}
	v := d.fromInternal(t.sample(name, d))
	t.params[name] = v
	return v
}

func (t *Trial) SuggestCategorical(name string, choices ...string) string {
	if v, ok := t.params[name].(string); ok {
		return v
	}
	d := catDist{choices: choices}
	v := d.fromInternal(t.sample(name, d))
	t.params[name] = v
	return v
}

func (t *Trial) sample(name string, d distribution) float64 {
	var internal float64
	if t.forceRandom {
		internal = d.random(t.rng)
	} else {
		internal = t.study.Sampler.sample(t.rng, name, d, t.study.snapshot())
	}
	t.internal[name] = internal
	t.dists[name] = d
	return internal
}

// Report records an intermediate objective value at step.
func (t *Trial) Report(step int, value float64) {
	t.intermediate[step] = value
}

// ShouldPrune asks the study's pruner about the latest reported step.
func (t *Trial) ShouldPrune() bool {
	if t.study.Pruner == nil || len(t.intermediate) == 0 {
		return false
	}
	return t.study.Pruner.prune(t, t.study.snapshot())
}

func (t *Trial) lastStep() int {
	last := -1
	for s := range t.intermediate {
		last = max(last, s)
	}
	return last
}

func (t *Trial) lastIntermediate() float64 {
	if s := t.lastStep(); s >= 0 {
		return t.intermediate[s]
	}
	return math.Inf(1)
}

// FormatParams renders parameters deterministically for logs.
func FormatParams(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, p[k])
	}
	return out
}
