package automl

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// maxGridPoints caps the number of points a stepped numeric domain may expand
// to.
const maxGridPoints = 1 << 16

// maxLongBound is the largest magnitude a long bound may have: every integer
// up to 2^53 is exact in a float64.
const maxLongBound = 1 << 53

// ParamKind is the kind of values a hyperparameter domain holds.
type ParamKind int

const (
	// DiscreteParam is a closed set of textual options.
	DiscreteParam ParamKind = iota + 1

	// FloatParam is a real-valued range.
	FloatParam

	// LongParam is an integer range.
	LongParam
)

// String returns the lower-case name of the kind.
func (k ParamKind) String() string {
	switch k {
	case DiscreteParam:
		return "discrete"
	case FloatParam:
		return "float"
	case LongParam:
		return "long"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// ParseParamKind parses "discrete", "float" or "long".
func ParseParamKind(s string) (ParamKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "discrete":
		return DiscreteParam, nil
	case "float":
		return FloatParam, nil
	case "long", "int":
		return LongParam, nil
	default:
		return 0, fmt.Errorf("%w: param kind %q", ErrUnknownKind, s)
	}
}

// ParamDomain declares the values one hyperparameter may take.
//
// Fields:
// - Name: Hyperparameter name, unique within a trainer
// - Kind: DiscreteParam, FloatParam or LongParam
// - Options: The option set of a discrete domain
// - Min, Max: Inclusive bounds of a numeric domain (integral for LongParam)
// - LogScale: Sample and space points in log space (requires Min > 0)
// - NumSteps: When > 0, the domain is that many evenly spaced points
// - StepSize: When > 0 and NumSteps is unset, points are Min, Min+StepSize, ...
// (or Min, Min*StepSize, ... on a log scale)
//
// A numeric domain with neither NumSteps nor StepSize is continuous.
//
// Usage:
//
//	leaves := Long("NumLeaves", 2, 128, WithLogScale(), WithStepSize(4))
//	rate := Float("LearningRate", 0.025, 0.4, WithLogScale())
//	rounds := Discrete("NumBoostRound", "10", "20", "50", "100")
type ParamDomain struct {
	Name     string
	Kind     ParamKind
	Options  []string
	Min      float64
	Max      float64
	LogScale bool
	NumSteps int
	StepSize float64
}

// DomainOption tunes a numeric ParamDomain.
type DomainOption func(*ParamDomain)

// WithLogScale makes the domain log scaled.
func WithLogScale() DomainOption {
	return func(d *ParamDomain) { d.LogScale = true }
}

// WithNumSteps discretizes the domain into n points.
func WithNumSteps(n int) DomainOption {
	return func(d *ParamDomain) { d.NumSteps = n }
}

// WithStepSize discretizes the domain with the given step.
func WithStepSize(step float64) DomainOption {
	return func(d *ParamDomain) { d.StepSize = step }
}

// Discrete declares a discrete domain.
func Discrete(name string, options ...string) ParamDomain {
	return ParamDomain{Name: name, Kind: DiscreteParam, Options: options}
}

// Float declares a float domain.
func Float(name string, min, max float64, opts ...DomainOption) ParamDomain {
	d := ParamDomain{Name: name, Kind: FloatParam, Min: min, Max: max}
	for _, opt := range opts {
		opt(&d)
	}

	return d
}

// Long declares an integer domain.
func Long(name string, min, max int64, opts ...DomainOption) ParamDomain {
	d := ParamDomain{Name: name, Kind: LongParam, Min: float64(min), Max: float64(max)}
	for _, opt := range opts {
		opt(&d)
	}

	return d
}

// ValueGenerator produces candidate values for one hyperparameter.
//
// Values are exchanged in their canonical textual form so that assignments
// compare and fingerprint consistently regardless of the value kind.
type ValueGenerator interface {
	// Name returns the hyperparameter name.
	Name() string

	// Domain returns a copy of the declared domain.
	Domain() ParamDomain

	// Random draws a value uniformly from the domain (log-uniformly for log
	// scaled domains).
	Random(rng *rand.Rand) string

	// Len returns the number of distinct values, or 0 for a continuous
	// domain.
	Len() int

	// At returns the i-th value of an enumerable domain.
	At(i int) string

	// Features maps a value onto the unit cube used by the sweeper's model.
	Features(value string) ([]float64, error)

	// Dim returns the length of the slices returned by Features.
	Dim() int
}

//////
// Factory.
//////

// NewValueGenerator validates the domain and builds its generator.
//
// Returns ErrInvalidDomain (wrapped) when:
//   - the name is empty
//   - a discrete domain has no options or duplicate options
//   - Min > Max, or either bound is NaN/Inf
//   - LogScale is set with Min <= 0
//   - a long domain has non-integral bounds
//   - NumSteps or StepSize is negative, or a log StepSize is <= 1
//   - the stepped domain expands to more than maxGridPoints points
func NewValueGenerator(d ParamDomain) (ValueGenerator, error) {
	if strings.TrimSpace(d.Name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidDomain)
	}

	switch d.Kind {
	case DiscreteParam:
		return newDiscreteGenerator(d)
	case FloatParam:
		return newNumericGenerator[float64](d, formatFloat, parseFloat)
	case LongParam:
		if d.Min != math.Trunc(d.Min) || d.Max != math.Trunc(d.Max) {
			return nil, fmt.Errorf("%w: %s: long bounds must be integral", ErrInvalidDomain, d.Name)
		}

		if math.Abs(d.Min) > maxLongBound || math.Abs(d.Max) > maxLongBound {
			return nil, fmt.Errorf("%w: %s: long bounds must be within ±2^53", ErrInvalidDomain, d.Name)
		}

		return newNumericGenerator[int64](d, formatLong, parseLong)
	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %v", ErrInvalidDomain, d.Name, d.Kind)
	}
}

// NewValueGenerators builds one generator per domain and rejects duplicate
// names.
func NewValueGenerators(domains []ParamDomain) ([]ValueGenerator, error) {
	gens := make([]ValueGenerator, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))

	for _, d := range domains {
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate hyperparameter %q", ErrInvalidDomain, d.Name)
		}

		seen[d.Name] = struct{}{}

		g, err := NewValueGenerator(d)
		if err != nil {
			return nil, err
		}

		gens = append(gens, g)
	}

	return gens, nil
}

//////
// Discrete generator.
//////

type discreteGenerator struct {
	domain ParamDomain
	index  map[string]int
}

func newDiscreteGenerator(d ParamDomain) (*discreteGenerator, error) {
	if len(d.Options) == 0 {
		return nil, fmt.Errorf("%w: %s: no options", ErrInvalidDomain, d.Name)
	}

	index := make(map[string]int, len(d.Options))
	for i, o := range d.Options {
		if _, dup := index[o]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate option %q", ErrInvalidDomain, d.Name, o)
		}

		index[o] = i
	}

	d.Options = append([]string(nil), d.Options...)

	return &discreteGenerator{domain: d, index: index}, nil
}

func (g *discreteGenerator) Name() string { return g.domain.Name }

func (g *discreteGenerator) Domain() ParamDomain {
	d := g.domain
	d.Options = append([]string(nil), g.domain.Options...)

	return d
}

func (g *discreteGenerator) Random(rng *rand.Rand) string {
	return g.domain.Options[rng.Intn(len(g.domain.Options))]
}

func (g *discreteGenerator) Len() int { return len(g.domain.Options) }

func (g *discreteGenerator) At(i int) string { return g.domain.Options[i] }

// Features one-hot encodes the option, so that distinct options are equally
// far apart for the kernel.
func (g *discreteGenerator) Features(value string) ([]float64, error) {
	i, ok := g.index[value]
	if !ok {
		return nil, fmt.Errorf("%s: unknown option %q", g.domain.Name, value)
	}

	f := make([]float64, len(g.domain.Options))
	f[i] = 1

	return f, nil
}

func (g *discreteGenerator) Dim() int { return len(g.domain.Options) }

//////
// Numeric generator.
//////

type numericGenerator[T constraints.Integer | constraints.Float] struct {
	domain   ParamDomain
	integral bool
	points   []T
	format   func(T) string
	parse    func(string) (T, error)
}

func newNumericGenerator[T constraints.Integer | constraints.Float](
	d ParamDomain,
	format func(T) string,
	parse func(string) (T, error),
) (*numericGenerator[T], error) {
	switch {
	case math.IsNaN(d.Min) || math.IsNaN(d.Max) || math.IsInf(d.Min, 0) || math.IsInf(d.Max, 0):
		return nil, fmt.Errorf("%w: %s: bounds must be finite", ErrInvalidDomain, d.Name)
	case d.Min > d.Max:
		return nil, fmt.Errorf("%w: %s: min %v > max %v", ErrInvalidDomain, d.Name, d.Min, d.Max)
	case d.LogScale && d.Min <= 0:
		return nil, fmt.Errorf("%w: %s: log scale requires min > 0", ErrInvalidDomain, d.Name)
	case d.NumSteps < 0:
		return nil, fmt.Errorf("%w: %s: negative step count", ErrInvalidDomain, d.Name)
	case d.StepSize < 0 || math.IsNaN(d.StepSize):
		return nil, fmt.Errorf("%w: %s: negative step size", ErrInvalidDomain, d.Name)
	case d.NumSteps == 0 && d.StepSize > 0 && d.LogScale && d.StepSize <= 1:
		return nil, fmt.Errorf("%w: %s: log step size must be > 1", ErrInvalidDomain, d.Name)
	}

	var zero T

	g := &numericGenerator[T]{
		domain: d,
		format: format,
		parse:  parse,
	}

	switch any(zero).(type) {
	case float32, float64:
		g.integral = false
	default:
		g.integral = true
	}

	var err error

	switch {
	case d.NumSteps > 0:
		g.points, err = g.gridBySteps(d.NumSteps)
	case d.StepSize > 0:
		g.points, err = g.gridByStepSize(d.StepSize)
	}

	if err != nil {
		return nil, err
	}

	return g, nil
}

func (g *numericGenerator[T]) Name() string { return g.domain.Name }

func (g *numericGenerator[T]) Domain() ParamDomain { return g.domain }

func (g *numericGenerator[T]) Random(rng *rand.Rand) string {
	if len(g.points) > 0 {
		return g.format(g.points[rng.Intn(len(g.points))])
	}

	if g.integral && !g.domain.LogScale {
		lo, hi := int64(g.domain.Min), int64(g.domain.Max)
		if span := hi - lo + 1; span > 0 {
			return g.format(T(lo + rng.Int63n(span)))
		}
	}

	lo, hi := g.scale(g.domain.Min), g.scale(g.domain.Max)

	return g.format(g.fromFloat(g.unscale(lo + rng.Float64()*(hi-lo))))
}

func (g *numericGenerator[T]) Len() int { return len(g.points) }

func (g *numericGenerator[T]) At(i int) string { return g.format(g.points[i]) }

func (g *numericGenerator[T]) Features(value string) ([]float64, error) {
	v, err := g.parse(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.domain.Name, err)
	}

	lo, hi := g.scale(g.domain.Min), g.scale(g.domain.Max)
	if hi == lo {
		return []float64{0}, nil
	}

	x := (g.scale(float64(v)) - lo) / (hi - lo)

	return []float64{math.Max(0, math.Min(1, x))}, nil
}

func (g *numericGenerator[T]) Dim() int { return 1 }

// gridBySteps spaces n points evenly between the bounds, in log space when the
// domain is log scaled. The end points are the exact bounds.
func (g *numericGenerator[T]) gridBySteps(n int) ([]T, error) {
	if n > maxGridPoints {
		return nil, fmt.Errorf("%w: %s: %d steps exceed %d", ErrInvalidDomain, g.domain.Name, n, maxGridPoints)
	}

	lo, hi := g.scale(g.domain.Min), g.scale(g.domain.Max)
	points := make([]T, 0, n)

	for i := 0; i < n; i++ {
		var v float64

		switch {
		case i == 0:
			v = g.domain.Min
		case i == n-1:
			v = g.domain.Max
		default:
			v = g.unscale(lo + float64(i)*(hi-lo)/float64(n-1))
		}

		points = appendDistinct(points, g.fromFloat(v))
	}

	return points, nil
}

// gridByStepSize walks from Min to Max adding the step (multiplying by it on a
// log scale).
func (g *numericGenerator[T]) gridByStepSize(step float64) ([]T, error) {
	const eps = 1e-9

	var points []T

	for i := 0; ; i++ {
		if i > maxGridPoints {
			return nil, fmt.Errorf("%w: %s: step %v yields more than %d points", ErrInvalidDomain, g.domain.Name, step, maxGridPoints)
		}

		var v float64
		if g.domain.LogScale {
			v = g.domain.Min * math.Pow(step, float64(i))
		} else {
			v = g.domain.Min + float64(i)*step
		}

		if v > g.domain.Max+eps*math.Max(1, math.Abs(g.domain.Max)) {
			break
		}

		points = appendDistinct(points, g.fromFloat(math.Min(v, g.domain.Max)))
	}

	return points, nil
}

func (g *numericGenerator[T]) scale(v float64) float64 {
	if g.domain.LogScale {
		return math.Log(v)
	}

	return v
}

func (g *numericGenerator[T]) unscale(v float64) float64 {
	if g.domain.LogScale {
		return math.Exp(v)
	}

	return v
}

// fromFloat converts to T, rounding for integer domains and clamping to the
// bounds.
func (g *numericGenerator[T]) fromFloat(v float64) T {
	v = math.Max(g.domain.Min, math.Min(g.domain.Max, v))
	if g.integral {
		v = math.Round(v)
	}

	return T(v)
}

//////
// Helper functions.
//////

// appendDistinct appends v unless it equals the last element. Grid points are
// monotonic, so this removes every duplicate produced by rounding.
func appendDistinct[T constraints.Integer | constraints.Float](points []T, v T) []T {
	if n := len(points); n > 0 && points[n-1] == v {
		return points
	}

	return append(points, v)
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) }

func formatLong(v int64) string { return strconv.FormatInt(v, 10) }

func parseLong(s string) (int64, error) { return strconv.ParseInt(strings.TrimSpace(s), 10, 64) }
