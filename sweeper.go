package automl

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

//////
// Const, vars, types.
//////

const (
	// enumerateLimit is the largest fully enumerable space the sweepers list
	// point by point when looking for an unobserved assignment.
	enumerateLimit = 4096

	// randomRetries bounds the draws spent looking for an unobserved
	// assignment in a space too large to enumerate.
	randomRetries = 64
)

// Observation is one scored, successful attempt of a trainer with a non-empty
// hyperparameter assignment.
type Observation struct {
	Hyperparams Assignment
	Score       float64
}

// Sweeper proposes the next hyperparameter assignment for one trainer.
//
// Propose returns (assignment, true) with a proposal, or (nil, false) when
// it has nothing useful left to propose, for instance because every point of
// a purely discrete space was already observed. A trainer without
// hyperparameters gets (Assignment{}, true).
//
// Implementations must be safe for concurrent use.
type Sweeper interface {
	Propose(params []ValueGenerator, history []Observation, direction Direction) (Assignment, bool)
}

// BayesianConfig holds the settings of the model-based sweeper.
//
// Fields:
// - NumCandidates: Random assignments ranked per proposal
// - InitialSamples: Observations required before the model is used; below
// that the sweeper proposes uniformly random assignments
// - AcquisitionFunc: Ranks the pool (lower = more promising)
// - AcqParams: Parameters of the acquisition function
// - KernelWidth: RBF kernel width over the unit-scaled feature space
// - Noise: Observation noise of the model
type BayesianConfig struct {
	NumCandidates   int
	InitialSamples  int
	AcquisitionFunc AcquisitionFunc
	AcqParams       AcquisitionParams
	KernelWidth     float64
	Noise           float64
}

// DefaultBayesianConfig returns a default configuration.
func DefaultBayesianConfig() BayesianConfig {
	return BayesianConfig{
		NumCandidates:   100,
		InitialSamples:  1,
		AcquisitionFunc: ExpectedImprovement,
		AcqParams: AcquisitionParams{
			Beta: 2.0,
			Xi:   0.01,
		},
		KernelWidth: 0.25,
		Noise:       1e-6,
	}
}

// BayesianSweeper fits a Gaussian process from assignment features to score,
// samples a pool of random assignments and returns the one the acquisition
// function finds most promising. With fewer than InitialSamples usable
// observations it falls back to a uniformly random assignment.
type BayesianSweeper struct {
	cfg BayesianConfig

	// mu guards rng.
	mu  sync.Mutex
	rng *rand.Rand
}

// RandomSweeper proposes uniformly random assignments, skipping the observed
// ones when the space is small enough to enumerate.
type RandomSweeper struct {
	mu  sync.Mutex
	rng *rand.Rand
}

//////
// Factory.
//////

// NewBayesianSweeper creates a model-based sweeper.
//
// Parameters:
// - cfg: Settings, zero fields fall back to DefaultBayesianConfig values
// - rng: Seeded random source; the run is reproducible given the seed
//
// Usage example:
//
//	sweeper := NewBayesianSweeper(DefaultBayesianConfig(), rand.New(rand.NewSource(42)))
func NewBayesianSweeper(cfg BayesianConfig, rng *rand.Rand) *BayesianSweeper {
	def := DefaultBayesianConfig()

	if cfg.NumCandidates <= 0 {
		cfg.NumCandidates = def.NumCandidates
	}

	if cfg.InitialSamples <= 0 {
		cfg.InitialSamples = def.InitialSamples
	}

	if cfg.AcquisitionFunc == nil {
		cfg.AcquisitionFunc = def.AcquisitionFunc
	}

	if cfg.KernelWidth <= 0 {
		cfg.KernelWidth = def.KernelWidth
	}

	if cfg.Noise <= 0 {
		cfg.Noise = def.Noise
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	if cfg.AcqParams.RandomState == nil {
		cfg.AcqParams.RandomState = rng
	}

	return &BayesianSweeper{cfg: cfg, rng: rng}
}

// NewRandomSweeper creates a random-search sweeper.
func NewRandomSweeper(rng *rand.Rand) *RandomSweeper {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	return &RandomSweeper{rng: rng}
}

//////
// Methods.
//////

// Propose implements Sweeper.
func (s *RandomSweeper) Propose(params []ValueGenerator, history []Observation, _ Direction) (Assignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(params) == 0 {
		return Assignment{}, true
	}

	return proposeUnseen(s.rng, params, observedKeys(history))
}

// Propose implements Sweeper.
//
// How it works:
// 1. Observations with usable scores are mapped to feature vectors
// 2. Scores are negated when maximizing, so the model always minimizes
// 3. A Gaussian process is fitted; NumCandidates random assignments are drawn
// 4. Observed and repeated draws are skipped; the remaining draw with the
// lowest acquisition value is returned
//
// Any failure to fit the model degrades to random proposal.
func (s *BayesianSweeper) Propose(params []ValueGenerator, history []Observation, direction Direction) (Assignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(params) == 0 {
		return Assignment{}, true
	}

	seen := observedKeys(history)

	xs, ys := featurizeObservations(params, history, direction)
	if len(xs) < s.cfg.InitialSamples {
		return proposeUnseen(s.rng, params, seen)
	}

	gp := newGaussianProcess(s.cfg.KernelWidth, s.cfg.Noise)

	best := math.Inf(1)
	for i := range xs {
		gp.Update(xs[i], ys[i])

		best = math.Min(best, ys[i])
	}

	if err := gp.Fit(); err != nil {
		return proposeUnseen(s.rng, params, seen)
	}

	acqParams := s.cfg.AcqParams
	acqParams.BestSoFar = best

	var (
		next            Assignment
		bestAcquisition = math.Inf(1)
		drawn           = make(map[string]struct{}, s.cfg.NumCandidates)
	)

	for j := 0; j < s.cfg.NumCandidates; j++ {
		candidate := randomAssignment(s.rng, params)

		key := candidate.Key()
		if _, ok := seen[key]; ok {
			continue
		}

		if _, ok := drawn[key]; ok {
			continue
		}

		drawn[key] = struct{}{}

		x, err := features(params, candidate)
		if err != nil {
			continue
		}

		mean, variance := gp.Predict(x)

		// Evaluate how promising this point is
		acquisition := s.cfg.AcquisitionFunc(mean, variance, acqParams)

		if next == nil || acquisition < bestAcquisition {
			bestAcquisition = acquisition
			next = candidate
		}
	}

	if next == nil {
		// Every draw was already observed: the space is small or nearly
		// exhausted, so look for the remaining points directly.
		return proposeUnseen(s.rng, params, seen)
	}

	return next, true
}

//////
// Helper functions.
//////

// spaceSize returns the number of distinct assignments of an enumerable
// space, capped at enumerateLimit+1. The second value is false when any
// parameter is continuous.
func spaceSize(params []ValueGenerator) (int, bool) {
	size := 1

	for _, p := range params {
		n := p.Len()
		if n == 0 {
			return 0, false
		}

		size *= n
		if size > enumerateLimit {
			return enumerateLimit + 1, true
		}
	}

	return size, true
}

// proposeUnseen returns a random assignment that is not in seen. Small
// enumerable spaces are listed exhaustively, and (nil, false) is returned
// when every point is taken. Other spaces get a bounded number of draws, the
// last draw being returned even if it was seen; callers dedupe by
// fingerprint.
func proposeUnseen(rng *rand.Rand, params []ValueGenerator, seen map[string]struct{}) (Assignment, bool) {
	if size, enumerable := spaceSize(params); enumerable && size <= enumerateLimit {
		free := make([]Assignment, 0, size)

		for i := 0; i < size; i++ {
			a := assignmentAt(params, i)
			if _, ok := seen[a.Key()]; !ok {
				free = append(free, a)
			}
		}

		if len(free) == 0 {
			return nil, false
		}

		return free[rng.Intn(len(free))], true
	}

	var a Assignment

	for i := 0; i < randomRetries; i++ {
		a = randomAssignment(rng, params)
		if _, ok := seen[a.Key()]; !ok {
			break
		}
	}

	return a, true
}

// assignmentAt decodes i in the mixed radix given by the parameter sizes.
func assignmentAt(params []ValueGenerator, i int) Assignment {
	a := make(Assignment, len(params))

	for _, p := range params {
		n := p.Len()
		a[p.Name()] = p.At(i % n)
		i /= n
	}

	return a
}

func randomAssignment(rng *rand.Rand, params []ValueGenerator) Assignment {
	a := make(Assignment, len(params))
	for _, p := range params {
		a[p.Name()] = p.Random(rng)
	}

	return a
}

func observedKeys(history []Observation) map[string]struct{} {
	seen := make(map[string]struct{}, len(history))
	for _, o := range history {
		seen[o.Hyperparams.Key()] = struct{}{}
	}

	return seen
}

// features concatenates the per-parameter feature vectors of a.
func features(params []ValueGenerator, a Assignment) ([]float64, error) {
	x := make([]float64, 0, len(params))

	for _, p := range params {
		v, ok := a[p.Name()]
		if !ok {
			return nil, fmt.Errorf("hyperparameter %q not set", p.Name())
		}

		f, err := p.Features(v)
		if err != nil {
			return nil, err
		}

		x = append(x, f...)
	}

	return x, nil
}

// featurizeObservations keeps the observations with a usable score whose
// assignment fits params, negating scores when maximizing.
func featurizeObservations(params []ValueGenerator, history []Observation, direction Direction) ([][]float64, []float64) {
	xs := make([][]float64, 0, len(history))
	ys := make([]float64, 0, len(history))

	for _, o := range history {
		if !isUsable(o.Score) {
			continue
		}

		x, err := features(params, o.Hyperparams)
		if err != nil {
			continue
		}

		y := o.Score
		if direction == Maximize {
			y = -y
		}

		xs = append(xs, x)
		ys = append(ys, y)
	}

	return xs, ys
}
