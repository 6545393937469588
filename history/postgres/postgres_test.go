package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/history"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})

	return nil, f.err
}

func (f *fakeDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

// fakeRow copies preset values into Scan destinations.
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return errors.New("column count mismatch")
	}

	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r[i].(string)
		case *int:
			*p = r[i].(int)
		case *int64:
			*p = r[i].(int64)
		case *bool:
			*p = r[i].(bool)
		case *[]byte:
			*p = r[i].([]byte)
		case *sql.NullFloat64:
			*p = r[i].(sql.NullFloat64)
		case *time.Time:
			*p = r[i].(time.Time)
		default:
			return errors.New("unsupported destination")
		}
	}

	return nil
}

func testTrial(t *testing.T, runID string, iteration int, score float64) automl.Trial {
	t.Helper()

	spec, err := automl.NewTrainerSpec(automl.FastTree)
	require.NoError(t, err)

	transforms := []automl.TransformSpec{
		{Kind: automl.ColumnConcatenating, InColumns: []string{"Age"}, OutColumns: []string{"Features"}},
	}

	return automl.Trial{
		RunID:     runID,
		Iteration: iteration,
		Stage:     automl.Exploitation,
		Entry: automl.Entry{
			Candidate: automl.NewCandidate(transforms, spec, automl.Assignment{"NumberOfLeaves": "8"}),
			Result:    automl.RunResult{Score: score, Success: !math.IsNaN(score), Duration: time.Second},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig("postgres://localhost/automl").Validate())

	assert.Error(t, DefaultConfig("").Validate())

	cfg := DefaultConfig("postgres://localhost/automl")
	cfg.PingTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("postgres://localhost/automl")
	cfg.MaxIdleConns = cfg.MaxOpenConns + 1
	assert.Error(t, cfg.Validate())
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	s, err := New(db)
	require.NoError(t, err)

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].query, "CREATE TABLE IF NOT EXISTS automl_trials")

	db.err = errors.New("permission denied")
	assert.ErrorContains(t, s.EnsureSchema(context.Background()), "ensure schema")
}

func TestRecordInsertsTrial(t *testing.T) {
	db := &fakeDB{}
	s, err := New(db)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Record(context.Background(), testTrial(t, "run-1", 3, 0.75)))
	require.Len(t, db.calls, 1)

	call := db.calls[0]
	assert.True(t, strings.Contains(call.query, "ON CONFLICT (run_id, iteration) DO NOTHING"))
	require.Len(t, call.args, 13)
	assert.Equal(t, "run-1", call.args[0])
	assert.Equal(t, 3, call.args[1])
	assert.Equal(t, "Exploitation", call.args[2])
	assert.Equal(t, "FastTree", call.args[4])
	assert.JSONEq(t, `{"NumberOfLeaves":"8"}`, string(call.args[5].([]byte)))
	assert.Equal(t, sql.NullFloat64{Float64: 0.75, Valid: true}, call.args[7])
	assert.JSONEq(t, `[]`, string(call.args[10].([]byte)))
	assert.Equal(t, int64(1000), call.args[11])
}

func TestRecordStoresNaNAsNull(t *testing.T) {
	db := &fakeDB{}
	s, err := New(db)
	require.NoError(t, err)

	require.NoError(t, s.Record(context.Background(), testTrial(t, "run-1", 1, math.NaN())))
	assert.Equal(t, sql.NullFloat64{}, db.calls[0].args[7])

	db.err = errors.New("connection reset")
	assert.ErrorContains(t, s.Record(context.Background(), testTrial(t, "run-1", 2, 1)), "insert trial run-1/2")
}

func TestScanRecord(t *testing.T) {
	transforms, err := json.Marshal([]history.Transform{{Kind: "ColumnConcatenating", In: []string{"Age"}, Out: []string{"Features"}}})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	r, err := scanRecord(fakeRow{
		"run-1", 2, "Exploration", "fp", "FastTree",
		[]byte(`{}`), transforms, sql.NullFloat64{}, false, "boom", []byte(`[0.5,null]`),
		int64(20), at,
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", r.RunID)
	assert.Nil(t, r.Hyperparams)
	assert.Nil(t, r.Score)
	assert.Equal(t, "boom", r.Error)
	require.Len(t, r.FoldScores, 2)
	assert.Equal(t, 0.5, *r.FoldScores[0])
	assert.Nil(t, r.FoldScores[1])
	assert.Equal(t, "Features", r.Transforms[0].Out[0])
	assert.Equal(t, at, r.RecordedAt)

	_, err = scanRecord(fakeRow{"too few"})
	assert.Error(t, err)
}

// TestStoreRoundTrip runs against a live database when
// AUTOML_TEST_DATABASE_URL is set.
func TestStoreRoundTrip(t *testing.T) {
	url := os.Getenv("AUTOML_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AUTOML_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	db, err := Open(ctx, DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))

	runID := uuid.NewString()
	require.NoError(t, s.Record(ctx, testTrial(t, runID, 2, 0.5)))
	require.NoError(t, s.Record(ctx, testTrial(t, runID, 1, math.NaN())))
	require.NoError(t, s.Record(ctx, testTrial(t, runID, 1, 0.9)), "duplicates are ignored")

	records, err := s.Load(ctx, runID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Iteration)
	assert.Nil(t, records[0].Score)
	assert.Equal(t, 0.5, records[1].ScoreValue())
}
