package automl

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeData is a named dataset with a fixed schema.
type fakeData struct {
	name   string
	schema Schema
}

func (d fakeData) Schema() Schema { return d.schema }

var testSchema = Schema{
	{Name: "Label", Type: BoolColumn},
	{Name: "Age", Type: NumberColumn},
	{Name: "City", Type: TextColumn},
}

func newData(name string) fakeData { return fakeData{name: name, schema: testSchema} }

type identity struct{}

func (identity) Transform(_ context.Context, d Dataset) (Dataset, error) { return d, nil }

type estimatorFunc func(ctx context.Context, d Dataset) (Transformer, error)

func (f estimatorFunc) Fit(ctx context.Context, d Dataset) (Transformer, error) { return f(ctx, d) }

// fakeModel is a "trained" model remembering what produced it.
type fakeModel struct {
	kind  TrainerKind
	hp    Assignment
	train string
}

func (m fakeModel) Transform(_ context.Context, d Dataset) (Dataset, error) { return d, nil }

type fakeMetrics struct{ Value float64 }

var scoreAgent = MetricsAgentFunc(func(m any) float64 { return m.(fakeMetrics).Value })

// fakeToolkit scores models with a caller supplied function.
type fakeToolkit struct {
	mu sync.Mutex

	// score computes the metric of a model on the named validation dataset.
	score func(kind TrainerKind, hp Assignment, valid string) float64

	fitErr    map[TrainerKind]error
	panicOn   TrainerKind
	evaluated []string
	writeErr  error
}

func (tk *fakeToolkit) Transform(TransformSpec) (Estimator, error) {
	return estimatorFunc(func(context.Context, Dataset) (Transformer, error) {
		return identity{}, nil
	}), nil
}

func (tk *fakeToolkit) Trainer(kind TrainerKind, hp Assignment, _ string) (Estimator, error) {
	return estimatorFunc(func(_ context.Context, d Dataset) (Transformer, error) {
		if tk.panicOn == kind {
			panic("boom")
		}

		if err := tk.fitErr[kind]; err != nil {
			return nil, err
		}

		return fakeModel{kind: kind, hp: hp, train: d.(fakeData).name}, nil
	}), nil
}

func (tk *fakeToolkit) Evaluate(_ context.Context, model Transformer, _ string, data Dataset) (any, error) {
	chain := model.(Chain)
	m := chain[len(chain)-1].(fakeModel)
	valid := data.(fakeData).name

	tk.mu.Lock()
	tk.evaluated = append(tk.evaluated, valid)
	tk.mu.Unlock()

	if tk.score == nil {
		return fakeMetrics{Value: 0.5}, nil
	}

	return fakeMetrics{Value: tk.score(m.kind, m.hp, valid)}, nil
}

func (tk *fakeToolkit) WriteModel(w io.Writer, model Transformer) error {
	if tk.writeErr != nil {
		return tk.writeErr
	}

	_, err := io.WriteString(w, "model")

	return err
}

// memStore is an in-memory ArtifactStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (s *memStore) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	if s.err != nil {
		return s.err
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}

	s.objects[key] = b

	return nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}

	return out
}

// scriptedRunner returns scores from a table keyed by trainer kind.
type scriptedRunner struct {
	scores map[TrainerKind]float64
	runs   int
}

func (r *scriptedRunner) Run(ctx context.Context, c CandidatePipeline, _ int) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}

	r.runs++

	score, ok := r.scores[c.Trainer().Kind()]
	if !ok || math.IsNaN(score) {
		return failedResult(errors.New("no score"), nil), nil
	}

	return RunResult{Score: score, Success: true, Model: identity{}}, nil
}

func mustTrainer(t *testing.T, kind TrainerKind, domains ...ParamDomain) TrainerSpec {
	t.Helper()

	spec, err := NewTrainerSpec(kind, domains...)
	require.NoError(t, err)

	return spec
}

func okResult(score float64) RunResult {
	return RunResult{Score: score, Success: true, Model: identity{}}
}
