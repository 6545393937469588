package automl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

//////
// Assignment.
//////

// Assignment maps hyperparameter names to canonical textual values. An empty
// assignment means "use the trainer defaults".
type Assignment map[string]string

// Clone returns an independent copy. A nil assignment clones to an empty one.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}

	return out
}

// Key returns a canonical, order-insensitive encoding of the assignment.
func (a Assignment) Key() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(a[k]))
		b.WriteByte(';')
	}

	return b.String()
}

// Equal reports whether both assignments hold the same key/value set.
func (a Assignment) Equal(other Assignment) bool {
	if len(a) != len(other) {
		return false
	}

	for k, v := range a {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}

	return true
}

// Get returns the value of name.
func (a Assignment) Get(name string) (string, bool) {
	v, ok := a[name]

	return v, ok
}

// Float parses the value of name as a float.
func (a Assignment) Float(name string) (float64, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("hyperparameter %q not set", name)
	}

	return strconv.ParseFloat(v, 64)
}

// Int parses the value of name as an integer.
func (a Assignment) Int(name string) (int64, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("hyperparameter %q not set", name)
	}

	return strconv.ParseInt(v, 10, 64)
}

// Bool parses the value of name as a boolean.
func (a Assignment) Bool(name string) (bool, error) {
	v, ok := a[name]
	if !ok {
		return false, fmt.Errorf("hyperparameter %q not set", name)
	}

	return strconv.ParseBool(v)
}

//////
// Transform and trainer specs.
//////

// TransformSpec describes one feature transform of a pipeline. It is produced
// by transform inference and treated as a value: the engine copies it and
// never mutates it.
type TransformSpec struct {
	Kind       TransformKind
	InColumns  []string
	OutColumns []string

	// Properties are opaque to the search and are not part of the
	// fingerprint.
	Properties map[string]any
}

// Clone returns a deep copy of the column lists and a shallow copy of the
// properties.
func (t TransformSpec) Clone() TransformSpec {
	out := TransformSpec{
		Kind:       t.Kind,
		InColumns:  append([]string(nil), t.InColumns...),
		OutColumns: append([]string(nil), t.OutColumns...),
	}

	if t.Properties != nil {
		out.Properties = make(map[string]any, len(t.Properties))
		for k, v := range t.Properties {
			out.Properties[k] = v
		}
	}

	return out
}

// String returns "Kind{in->out}".
func (t TransformSpec) String() string {
	return fmt.Sprintf("%s{%s->%s}", t.Kind, strings.Join(t.InColumns, ","), strings.Join(t.OutColumns, ","))
}

// TrainerSpec is a trainer kind plus its declared hyperparameter space. It is
// immutable once built.
type TrainerSpec struct {
	kind       TrainerKind
	generators []ValueGenerator
}

// NewTrainerSpec validates every domain and returns the trainer spec.
//
// Parameters:
// - kind: The trainer kind (must be a declared TrainerKind)
// - domains: The sweepable hyperparameters, possibly none
//
// Returns:
// - TrainerSpec: The immutable spec
// - error: ErrUnknownKind or ErrInvalidDomain (wrapped)
//
// Usage example:
//
//	spec, err := NewTrainerSpec(LightGbm,
//	    Discrete("NumBoostRound", "10", "20", "50"),
//	    Float("LearningRate", 0.025, 0.4, WithLogScale()),
//	)
func NewTrainerSpec(kind TrainerKind, domains ...ParamDomain) (TrainerSpec, error) {
	if !kind.Valid() {
		return TrainerSpec{}, fmt.Errorf("%w: trainer %v", ErrUnknownKind, kind)
	}

	gens, err := NewValueGenerators(domains)
	if err != nil {
		return TrainerSpec{}, fmt.Errorf("trainer %s: %w", kind, err)
	}

	return TrainerSpec{kind: kind, generators: gens}, nil
}

// Kind returns the trainer kind.
func (t TrainerSpec) Kind() TrainerKind { return t.kind }

// Generators returns the value generators, one per declared hyperparameter.
func (t TrainerSpec) Generators() []ValueGenerator {
	return append([]ValueGenerator(nil), t.generators...)
}

// Domains returns copies of the declared domains.
func (t TrainerSpec) Domains() []ParamDomain {
	out := make([]ParamDomain, len(t.generators))
	for i, g := range t.generators {
		out[i] = g.Domain()
	}

	return out
}

// Tunable reports whether the trainer declares any hyperparameter.
func (t TrainerSpec) Tunable() bool { return len(t.generators) > 0 }

//////
// Candidate pipeline.
//////

// Fingerprint identifies a candidate pipeline for deduplication. Two
// candidates share a fingerprint iff they have the same trainer kind, the same
// hyperparameter assignment and the same transform sequence (by kind and
// columns).
type Fingerprint string

// CandidatePipeline is one fully specified point of the search space:
// ordered transforms, a trainer and its hyperparameter assignment.
//
// The zero value is not a valid candidate; build one with NewCandidate. A
// candidate never changes after construction, so it is safe to share between
// goroutines and to keep in history.
type CandidatePipeline struct {
	transforms  []TransformSpec
	trainer     TrainerSpec
	hyperparams Assignment
	fingerprint Fingerprint
}

// NewCandidate builds a candidate. Inputs are copied.
func NewCandidate(transforms []TransformSpec, trainer TrainerSpec, hyperparams Assignment) CandidatePipeline {
	ts := make([]TransformSpec, len(transforms))
	for i, t := range transforms {
		ts[i] = t.Clone()
	}

	c := CandidatePipeline{
		transforms:  ts,
		trainer:     trainer,
		hyperparams: hyperparams.Clone(),
	}
	c.fingerprint = computeFingerprint(c.transforms, trainer.kind, c.hyperparams)

	return c
}

// WithHyperparams returns a new candidate sharing the transforms and trainer
// of c but carrying hyperparams.
func (c CandidatePipeline) WithHyperparams(hyperparams Assignment) CandidatePipeline {
	return NewCandidate(c.transforms, c.trainer, hyperparams)
}

// Transforms returns a copy of the transform sequence.
func (c CandidatePipeline) Transforms() []TransformSpec {
	out := make([]TransformSpec, len(c.transforms))
	for i, t := range c.transforms {
		out[i] = t.Clone()
	}

	return out
}

// Trainer returns the trainer spec.
func (c CandidatePipeline) Trainer() TrainerSpec { return c.trainer }

// Hyperparams returns a copy of the assignment.
func (c CandidatePipeline) Hyperparams() Assignment { return c.hyperparams.Clone() }

// Fingerprint returns the deduplication key.
func (c CandidatePipeline) Fingerprint() Fingerprint { return c.fingerprint }

// Equal reports whether both candidates have the same fingerprint.
func (c CandidatePipeline) Equal(other CandidatePipeline) bool {
	return c.fingerprint == other.fingerprint
}

// IsZero reports whether c was not built by NewCandidate.
func (c CandidatePipeline) IsZero() bool { return c.fingerprint == "" }

// String renders the pipeline as "T1 => T2 => Trainer{k=v,...}".
func (c CandidatePipeline) String() string {
	parts := make([]string, 0, len(c.transforms)+1)
	for _, t := range c.transforms {
		parts = append(parts, t.String())
	}

	keys := make([]string, 0, len(c.hyperparams))
	for k := range c.hyperparams {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	hp := make([]string, len(keys))
	for i, k := range keys {
		hp[i] = k + "=" + c.hyperparams[k]
	}

	parts = append(parts, fmt.Sprintf("%s{%s}", c.trainer.kind, strings.Join(hp, ",")))

	return strings.Join(parts, " => ")
}

// computeFingerprint hashes an unambiguous encoding (quoted columns, sorted
// hyperparameters) of the candidate structure.
func computeFingerprint(transforms []TransformSpec, kind TrainerKind, hyperparams Assignment) Fingerprint {
	h := sha256.New()

	fmt.Fprintf(h, "trainer:%d\n", int(kind))
	fmt.Fprintf(h, "hyperparams:%s\n", hyperparams.Key())

	for _, t := range transforms {
		fmt.Fprintf(h, "transform:%d|", int(t.Kind))

		for _, col := range t.InColumns {
			h.Write([]byte(strconv.Quote(col)))
		}

		h.Write([]byte("|"))

		for _, col := range t.OutColumns {
			h.Write([]byte(strconv.Quote(col)))
		}

		h.Write([]byte("\n"))
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
