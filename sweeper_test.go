package automl

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generators(t *testing.T, domains ...ParamDomain) []ValueGenerator {
	t.Helper()

	gens, err := NewValueGenerators(domains)
	require.NoError(t, err)

	return gens
}

func sweepers() map[string]Sweeper {
	return map[string]Sweeper{
		"bayesian": NewBayesianSweeper(DefaultBayesianConfig(), rand.New(rand.NewSource(1))),
		"random":   NewRandomSweeper(rand.New(rand.NewSource(1))),
	}
}

func TestSweeperWithoutParamsReturnsEmptyAssignment(t *testing.T) {
	for name, s := range sweepers() {
		t.Run(name, func(t *testing.T) {
			a, ok := s.Propose(nil, nil, Maximize)
			assert.True(t, ok)
			assert.NotNil(t, a)
			assert.Empty(t, a)
		})
	}
}

func TestSweeperColdStartProposesFromDomain(t *testing.T) {
	params := generators(t,
		Discrete("Shuffle", "false", "true"),
		Float("LearningRate", 0.025, 0.4, WithLogScale()),
	)

	for name, s := range sweepers() {
		t.Run(name, func(t *testing.T) {
			a, ok := s.Propose(params, nil, Maximize)
			require.True(t, ok)
			require.Len(t, a, 2)

			assert.Contains(t, []string{"false", "true"}, a["Shuffle"])

			rate, err := strconv.ParseFloat(a["LearningRate"], 64)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, rate, 0.025)
			assert.LessOrEqual(t, rate, 0.4)
		})
	}
}

func TestSweeperExhaustsDiscreteSpace(t *testing.T) {
	params := generators(t, Discrete("a", "1", "2"), Discrete("b", "x", "y"))

	for name, s := range sweepers() {
		t.Run(name, func(t *testing.T) {
			var history []Observation

			seen := map[string]bool{}

			// Four distinct points, then nothing.
			for i := 0; i < 4; i++ {
				a, ok := s.Propose(params, history, Maximize)
				require.True(t, ok)
				require.False(t, seen[a.Key()], "proposed %v twice", a)

				seen[a.Key()] = true
				history = append(history, Observation{Hyperparams: a, Score: float64(i)})
			}

			a, ok := s.Propose(params, history, Maximize)
			assert.False(t, ok)
			assert.Nil(t, a)
		})
	}
}

func TestBayesianSweeperIsReproducible(t *testing.T) {
	params := generators(t, Float("x", 0, 1), Long("n", 1, 100))
	history := []Observation{
		{Hyperparams: Assignment{"x": "0.1", "n": "10"}, Score: 0.7},
		{Hyperparams: Assignment{"x": "0.9", "n": "90"}, Score: 0.2},
	}

	a1, ok1 := NewBayesianSweeper(DefaultBayesianConfig(), rand.New(rand.NewSource(42))).Propose(params, history, Maximize)
	a2, ok2 := NewBayesianSweeper(DefaultBayesianConfig(), rand.New(rand.NewSource(42))).Propose(params, history, Maximize)

	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, a1, a2)
}

func TestBayesianSweeperFollowsDirection(t *testing.T) {
	params := generators(t, Float("x", 0, 1, WithNumSteps(101)))

	// Score grows with x.
	var history []Observation
	for _, x := range []float64{0.05, 0.2, 0.35, 0.5, 0.65, 0.8} {
		history = append(history, Observation{
			Hyperparams: Assignment{"x": formatFloat(x)},
			Score:       x,
		})
	}

	cfg := DefaultBayesianConfig()
	cfg.NumCandidates = 200
	cfg.AcquisitionFunc = UCB
	cfg.AcqParams.Beta = 0

	propose := func(d Direction) float64 {
		a, ok := NewBayesianSweeper(cfg, rand.New(rand.NewSource(3))).Propose(params, history, d)
		require.True(t, ok)

		x, err := strconv.ParseFloat(a["x"], 64)
		require.NoError(t, err)

		return x
	}

	assert.Greater(t, propose(Maximize), 0.7)
	assert.Less(t, propose(Minimize), 0.3)
}

func TestBayesianSweeperIgnoresUnusableObservations(t *testing.T) {
	params := generators(t, Float("x", 0, 1))
	history := []Observation{
		{Hyperparams: Assignment{"x": "0.5"}, Score: math.NaN()},
		{Hyperparams: Assignment{"other": "1"}, Score: 0.3},
	}

	a, ok := NewBayesianSweeper(DefaultBayesianConfig(), rand.New(rand.NewSource(1))).Propose(params, history, Minimize)
	require.True(t, ok)
	assert.Contains(t, a, "x")
}

func TestNewBayesianSweeperFillsDefaults(t *testing.T) {
	s := NewBayesianSweeper(BayesianConfig{}, nil)

	def := DefaultBayesianConfig()
	assert.Equal(t, def.NumCandidates, s.cfg.NumCandidates)
	assert.Equal(t, def.InitialSamples, s.cfg.InitialSamples)
	assert.NotNil(t, s.cfg.AcquisitionFunc)
	assert.NotNil(t, s.cfg.AcqParams.RandomState)
}

func TestSpaceSize(t *testing.T) {
	n, ok := spaceSize(generators(t, Discrete("a", "1", "2", "3"), Long("n", 1, 4, WithStepSize(1))))
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = spaceSize(generators(t, Discrete("a", "1"), Float("x", 0, 1)))
	assert.False(t, ok)
}

func TestAssignmentAtEnumeratesEveryPoint(t *testing.T) {
	params := generators(t, Discrete("a", "1", "2", "3"), Discrete("b", "x", "y"))

	keys := map[string]bool{}
	for i := 0; i < 6; i++ {
		keys[assignmentAt(params, i).Key()] = true
	}

	assert.Len(t, keys, 6)
}

func TestGaussianProcessInterpolates(t *testing.T) {
	gp := newGaussianProcess(0.3, 1e-8)

	// Prediction without a posterior is the prior.
	m, v := gp.Predict([]float64{0.5})
	assert.Equal(t, 0.0, m)
	assert.Equal(t, 1.0, v)

	for _, x := range []float64{0, 0.25, 0.5, 0.75, 1} {
		gp.Update([]float64{x}, x*x)
	}

	require.NoError(t, gp.Fit())
	assert.Equal(t, 5, gp.Len())

	m, v = gp.Predict([]float64{0.5})
	assert.InDelta(t, 0.25, m, 1e-3)
	assert.Less(t, v, 1e-3)

	_, far := gp.Predict([]float64{5})
	assert.Greater(t, far, v)
}

func TestGaussianProcessHandlesDuplicatePoints(t *testing.T) {
	gp := newGaussianProcess(0.25, 1e-6)
	gp.Update([]float64{0.5, 0.5}, 1)
	gp.Update([]float64{0.5, 0.5}, 1)
	gp.Update([]float64{0.5, 0.5}, 1)

	require.NoError(t, gp.Fit())

	m, _ := gp.Predict([]float64{0.5, 0.5})
	assert.InDelta(t, 1, m, 1e-3)
}

func TestRBFKernel(t *testing.T) {
	assert.Equal(t, 1.0, rbf([]float64{1, 2}, []float64{1, 2}, 1))
	assert.Less(t, rbf([]float64{0}, []float64{10}, 1), 1e-10)
	assert.Greater(t, rbf([]float64{0}, []float64{1}, 2), rbf([]float64{0}, []float64{1}, 1), "wider kernels decay slower")
	assert.Panics(t, func() { rbf([]float64{1}, []float64{1, 2}, 1) })
}

func TestAcquisitionFunctionsPreferLowerMeans(t *testing.T) {
	params := AcquisitionParams{
		Beta:        2,
		Xi:          0.01,
		BestSoFar:   0,
		RandomState: rand.New(rand.NewSource(1)),
	}

	for name, acq := range map[string]AcquisitionFunc{
		"UCB": UCB,
		"PI":  ProbabilityOfImprovement,
		"EI":  ExpectedImprovement,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Less(t, acq(-1, 0.1, params), acq(1, 0.1, params))
		})
	}

	// Zero variance falls back to the deterministic improvement.
	assert.InDelta(t, -0.99, ExpectedImprovement(-1, 0, params), 1e-12)
	assert.Equal(t, 0.0, ExpectedImprovement(1, 0, params))
	assert.Equal(t, -1.0, ProbabilityOfImprovement(-1, 0, params))

	// Thompson sampling with no variance is the mean.
	assert.Equal(t, 0.3, ThompsonSampling(0.3, 0, params))
}
