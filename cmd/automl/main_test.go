package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/artifact"
	"github.com/thalesfsp/automl/history"
	"github.com/thalesfsp/automl/internal/spacefile"
	"go.uber.org/zap"
)

const space = `
task: regression
trainers:
  - kind: OrdinaryLeastSquares
    params: []
  - kind: LightGbm
    params:
      - name: NumberOfLeaves
        type: long
        min: 2
        max: 128
        log: true
        step_size: 4
      - name: UseCategoricalSplit
        type: discrete
        values: ["true", "false"]
  - kind: FastTree
    params:
      - name: LearningRate
        type: float
        min: 0.001
        max: 1
        log: true
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("AUTOML_LOGGING_LEVEL", "error")

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// row returns the fields of the first output line starting with prefix.
func row(t *testing.T, out, prefix string) []string {
	t.Helper()

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.Fields(line)
		}
	}

	t.Fatalf("no line starting with %q in:\n%s", prefix, out)

	return nil
}

func TestCatalog(t *testing.T) {
	out, err := execute(t, "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "TRAINER")
	assert.Contains(t, out, "LightGbm")
	assert.Contains(t, out, "[2, 128] log")
	assert.NotContains(t, out, "OrdinaryLeastSquares", "regression only")

	out, err = execute(t, "catalog", "--task", "regression", "--format", "yaml")
	require.NoError(t, err)

	f, err := spacefile.Parse(strings.NewReader(out))
	require.NoError(t, err)

	task, err := f.TaskKind()
	require.NoError(t, err)
	assert.Equal(t, automl.Regression, task)

	specs, err := f.TrainerSpecs()
	require.NoError(t, err)

	want, err := automl.AllowedTrainers(automl.Regression)
	require.NoError(t, err)
	assert.Len(t, specs, len(want))

	_, err = execute(t, "catalog", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = execute(t, "catalog", "--task", "clustering")
	assert.ErrorIs(t, err, automl.ErrUnknownKind)
}

func TestSpaceValidate(t *testing.T) {
	out, err := execute(t, "space", "validate", writeFile(t, "space.yaml", space))
	require.NoError(t, err)

	assert.Contains(t, out, "task: regression")
	assert.Equal(t, []string{"OrdinaryLeastSquares", "0", "1"}, row(t, out, "OrdinaryLeastSquares"))
	assert.Equal(t, []string{"LightGbm", "2", "8"}, row(t, out, "LightGbm"))
	assert.Equal(t, []string{"FastTree", "1", "continuous"}, row(t, out, "FastTree"))

	_, err = execute(t, "space", "validate", writeFile(t, "bad.yaml", "trainers:\n  - kind: NeuralNet\n"))
	assert.ErrorIs(t, err, automl.ErrUnknownKind)

	_, err = execute(t, "space", "validate")
	assert.Error(t, err)
}

func TestSpaceSample(t *testing.T) {
	t.Setenv("AUTOML_SEARCH_SEED", "7")

	out, err := execute(t, "space", "sample", writeFile(t, "space.yaml", space), "-n", "6")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "Exploration", "OrdinaryLeastSquares{}"}, row(t, out, "1 "))
	assert.Equal(t, []string{"2", "Exploration", "LightGbm{}"}, row(t, out, "2 "))
	assert.Equal(t, []string{"3", "Exploration", "FastTree{}"}, row(t, out, "3 "))

	for _, prefix := range []string{"4 ", "5 ", "6 "} {
		fields := row(t, out, prefix)
		require.Len(t, fields, 3)
		assert.Equal(t, "Exploitation", fields[1])
		assert.NotContains(t, fields[2], "OrdinaryLeastSquares", "non tunable trainers are not retried")
	}

	_, err = execute(t, "space", "sample", writeFile(t, "space.yaml", space), "-n", "0")
	assert.ErrorContains(t, err, "-n")
}

func TestSpaceSampleExhausted(t *testing.T) {
	content := "trainers:\n  - kind: FastTree\n    params: []\n  - kind: LightGbm\n    params: []\n"

	out, err := execute(t, "space", "sample", writeFile(t, "space.yaml", content), "-n", "10")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3, "header plus one row per trainer")
}

func writeHistory(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "trials.jsonl")

	w, err := history.Create(path)
	require.NoError(t, err)

	score := func(v float64) *float64 { return &v }
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	records := []history.Record{
		{RunID: "r1", Iteration: 1, Stage: "Exploration", Trainer: "FastTree", Score: score(0.1), Success: true, RecordedAt: base},
		{RunID: "r2", Iteration: 1, Stage: "Exploration", Trainer: "FastTree", Score: score(0.5), Success: true, DurationMS: 1500, RecordedAt: base.Add(time.Hour)},
		{RunID: "r2", Iteration: 2, Stage: "Exploration", Trainer: "LightGbm", Score: score(0.9), Success: true, RecordedAt: base.Add(2 * time.Hour)},
		{RunID: "r2", Iteration: 3, Stage: "Exploitation", Trainer: "LightGbm", Error: "boom", RecordedAt: base.Add(3 * time.Hour)},
	}

	for _, r := range records {
		require.NoError(t, w.Write(r))
	}

	require.NoError(t, w.Close())

	return path
}

func TestResultsBest(t *testing.T) {
	path := writeHistory(t)

	out, err := execute(t, "results", "best", path)
	require.NoError(t, err)

	assert.Contains(t, out, "run: r2 (3 trials, maximize)")
	assert.Equal(t, []string{"1", "2", "Exploration", "LightGbm", "0.9", "0s"}, row(t, out, "1 "))
	assert.Equal(t, []string{"2", "1", "Exploration", "FastTree", "0.5", "1.5s"}, row(t, out, "2 "))
	assert.NotContains(t, out, "failed")

	out, err = execute(t, "results", "best", path, "--direction", "minimize", "--top", "1")
	require.NoError(t, err)
	assert.Equal(t, "FastTree", row(t, out, "1 ")[3])
	assert.NotContains(t, out, "LightGbm")

	out, err = execute(t, "results", "best", path, "--run", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "run: r1 (1 trials")

	_, err = execute(t, "results", "best", path, "--run", "r9")
	assert.ErrorContains(t, err, "no trials")

	_, err = execute(t, "results", "best")
	assert.ErrorContains(t, err, "history.path")

	t.Setenv("AUTOML_HISTORY_PATH", path)

	out, err = execute(t, "results", "best")
	require.NoError(t, err)
	assert.Contains(t, out, "run: r2")
}

func TestResultsImportRequiresDatabase(t *testing.T) {
	_, err := execute(t, "results", "import", writeHistory(t))
	assert.ErrorContains(t, err, "database_url")
}

func TestResultsUploadRequiresMinio(t *testing.T) {
	_, err := execute(t, "results", "upload", t.TempDir())
	assert.ErrorContains(t, err, "minio_endpoint")

	_, err = execute(t, "results", "upload")
	assert.ErrorContains(t, err, "artifacts.dir")
}

type memBucket struct {
	mu      sync.Mutex
	ensured bool
	objects map[string][]byte
}

func (b *memBucket) EnsureBucket(context.Context) error {
	b.ensured = true

	return nil
}

func (b *memBucket) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.objects == nil {
		b.objects = map[string][]byte{}
	}

	b.objects[key] = content

	return nil
}

func TestUpload(t *testing.T) {
	ctx := context.Background()

	src, err := artifact.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, src.Put(ctx, "Model1.zip", strings.NewReader("one"), 3))
	require.NoError(t, src.Put(ctx, "run/Model2.zip", strings.NewReader("two"), 3))

	dst := &memBucket{}

	n, err := upload(ctx, src, dst, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.True(t, dst.ensured)
	assert.Equal(t, map[string][]byte{
		"Model1.zip":     []byte("one"),
		"run/Model2.zip": []byte("two"),
	}, dst.objects)
}

func TestFormatScore(t *testing.T) {
	v := 0.123456789

	assert.Equal(t, "0.123457", formatScore(history.Record{Score: &v}))
	assert.Equal(t, "failed", formatScore(history.Record{Error: "boom"}))
	assert.Equal(t, "NaN", formatScore(history.Record{Success: true}))
}

func TestSpacePoints(t *testing.T) {
	wide := make([]automl.ParamDomain, 0, 4)
	for _, name := range []string{"a", "b", "c", "d"} {
		wide = append(wide, automl.Long(name, 0, 65535, automl.WithStepSize(1)))
	}

	tests := []struct {
		name    string
		domains []automl.ParamDomain
		want    string
	}{
		{"none", nil, "1"},
		{"grid", []automl.ParamDomain{automl.Discrete("x", "a", "b"), automl.Long("n", 1, 4, automl.WithStepSize(1))}, "8"},
		{"continuous", []automl.ParamDomain{automl.Float("lr", 0, 1)}, "continuous"},
		{"capped", wide, ">1000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := automl.NewTrainerSpec(automl.FastTree, tt.domains...)
			require.NoError(t, err)

			assert.Equal(t, tt.want, spacePoints(spec))
		})
	}
}
