package automl

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValueGeneratorRejectsInvalidDomains(t *testing.T) {
	tests := []struct {
		name   string
		domain ParamDomain
	}{
		{"empty name", Float("", 0, 1)},
		{"inverted float", Float("x", 2, 1)},
		{"inverted long", Long("n", 10, 1)},
		{"no options", Discrete("d")},
		{"duplicate option", Discrete("d", "a", "a")},
		{"log with zero min", Float("x", 0, 1, WithLogScale())},
		{"negative steps", Float("x", 0, 1, WithNumSteps(-1))},
		{"log step size <= 1", Float("x", 1, 10, WithLogScale(), WithStepSize(1))},
		{"too many points", Float("x", 0, 1, WithStepSize(1e-9))},
		{"non integral long", ParamDomain{Name: "n", Kind: LongParam, Min: 0.5, Max: 3}},
		{"long beyond float precision", Long("n", math.MinInt64, math.MaxInt64)},
		{"long max beyond float precision", Long("n", 0, 1<<53+2)},
		{"unknown kind", ParamDomain{Name: "n", Min: 0, Max: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewValueGenerator(tt.domain)
			assert.ErrorIs(t, err, ErrInvalidDomain)
		})
	}
}

func TestNewValueGeneratorsRejectsDuplicateNames(t *testing.T) {
	_, err := NewValueGenerators([]ParamDomain{Float("x", 0, 1), Long("x", 0, 3)})
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestDiscreteGenerator(t *testing.T) {
	g, err := NewValueGenerator(Discrete("Shuffle", "false", "true"))
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, "false", g.At(0))
	assert.Equal(t, "true", g.At(1))

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		assert.Contains(t, []string{"false", "true"}, g.Random(rng))
	}

	f, err := g.Features("true")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, f)
	assert.Equal(t, 2, g.Dim())

	_, err = g.Features("maybe")
	assert.Error(t, err)
}

func TestNumericGridBySteps(t *testing.T) {
	g, err := NewValueGenerator(Float("x", 0, 1, WithNumSteps(5)))
	require.NoError(t, err)

	require.Equal(t, 5, g.Len())

	got := make([]string, g.Len())
	for i := range got {
		got[i] = g.At(i)
	}

	assert.Equal(t, []string{"0", "0.25", "0.5", "0.75", "1"}, got)
}

func TestNumericGridByStepsLogScale(t *testing.T) {
	g, err := NewValueGenerator(Float("x", 1, 1000, WithLogScale(), WithNumSteps(4)))
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	for i, want := range []float64{1, 10, 100, 1000} {
		v, err := strconv.ParseFloat(g.At(i), 64)
		require.NoError(t, err)
		assert.InDelta(t, want, v, 1e-9*want)
	}
}

func TestNumericGridByStepSize(t *testing.T) {
	linear, err := NewValueGenerator(Long("n", 1, 10, WithStepSize(3)))
	require.NoError(t, err)
	assert.Equal(t, 4, linear.Len()) // 1 4 7 10
	assert.Equal(t, "10", linear.At(3))

	logScale, err := NewValueGenerator(Long("leaves", 2, 128, WithLogScale(), WithStepSize(4)))
	require.NoError(t, err)

	got := make([]string, logScale.Len())
	for i := range got {
		got[i] = logScale.At(i)
	}

	assert.Equal(t, []string{"2", "8", "32", "128"}, got)
}

func TestNumStepsTakesPrecedenceOverStepSize(t *testing.T) {
	g, err := NewValueGenerator(Float("x", 0, 1, WithNumSteps(3), WithStepSize(0.1)))
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
}

func TestContinuousGeneratorStaysInBounds(t *testing.T) {
	floatGen, err := NewValueGenerator(Float("rate", 0.025, 0.4, WithLogScale()))
	require.NoError(t, err)
	assert.Equal(t, 0, floatGen.Len())

	longGen, err := NewValueGenerator(Long("n", -3, 3))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		v, err := strconv.ParseFloat(floatGen.Random(rng), 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.025)
		assert.LessOrEqual(t, v, 0.4)

		n, err := strconv.ParseInt(longGen.Random(rng), 10, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(-3))
		assert.LessOrEqual(t, n, int64(3))
	}
}

func TestWideLongGeneratorExplores(t *testing.T) {
	g, err := NewValueGenerator(Long("seed", -(1 << 53), 1<<53))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	seen := map[string]struct{}{}

	for i := 0; i < 20; i++ {
		v := g.Random(rng)

		n, err := strconv.ParseInt(v, 10, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(-(1 << 53)))
		assert.LessOrEqual(t, n, int64(1<<53))

		seen[v] = struct{}{}
	}

	assert.Greater(t, len(seen), 1)
}

func TestNumericFeaturesAreUnitScaled(t *testing.T) {
	g, err := NewValueGenerator(Float("x", 10, 20))
	require.NoError(t, err)

	f, err := g.Features("15")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f[0], 1e-12)

	f, err = g.Features("30")
	require.NoError(t, err)
	assert.Equal(t, 1.0, f[0])

	_, err = g.Features("abc")
	assert.Error(t, err)

	single, err := NewValueGenerator(Long("n", 4, 4))
	require.NoError(t, err)

	f, err = single.Features("4")
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, f)
}

func TestParseParamKind(t *testing.T) {
	k, err := ParseParamKind("int")
	require.NoError(t, err)
	assert.Equal(t, LongParam, k)

	_, err = ParseParamKind("complex")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
