// Package history persists experiment trials.
//
// A trial is stored as a Record: a flat, JSON friendly view of the candidate
// and its result. Records are written one per line (JSON lines) by Writer and
// read back by Read, or stored in Postgres by the postgres sub-package.
// Records can be turned back into entries to resume an experiment.
package history

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/thalesfsp/automl"
)

//////
// Const, vars, types.
//////

// ErrFingerprintMismatch is returned when a record does not rebuild into the
// candidate it was written from.
var ErrFingerprintMismatch = errors.New("fingerprint mismatch")

// Transform is the stored form of a transform.
type Transform struct {
	Kind string   `json:"kind"`
	In   []string `json:"in"`
	Out  []string `json:"out"`
}

// Record is one stored trial. Scores that are NaN or infinite are stored as
// null.
type Record struct {
	RunID       string            `json:"run_id"`
	Iteration   int               `json:"iteration"`
	Stage       string            `json:"stage"`
	Fingerprint string            `json:"fingerprint"`
	Trainer     string            `json:"trainer"`
	Hyperparams map[string]string `json:"hyperparams,omitempty"`
	Transforms  []Transform       `json:"transforms,omitempty"`
	Score       *float64          `json:"score"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	FoldScores  []*float64        `json:"fold_scores,omitempty"`
	DurationMS  int64             `json:"duration_ms"`
	RecordedAt  time.Time         `json:"recorded_at"`
}

//////
// Factory.
//////

// FromTrial converts a trial. recordedAt is stored in UTC.
func FromTrial(t automl.Trial, recordedAt time.Time) Record {
	c := t.Entry.Candidate
	res := t.Entry.Result

	r := Record{
		RunID:       t.RunID,
		Iteration:   t.Iteration,
		Stage:       t.Stage.String(),
		Fingerprint: string(c.Fingerprint()),
		Trainer:     c.Trainer().Kind().String(),
		Score:       scorePtr(res.Score),
		Success:     res.Success,
		DurationMS:  res.Duration.Milliseconds(),
		RecordedAt:  recordedAt.UTC(),
	}

	if hp := c.Hyperparams(); len(hp) > 0 {
		r.Hyperparams = hp
	}

	for _, spec := range c.Transforms() {
		r.Transforms = append(r.Transforms, Transform{
			Kind: spec.Kind.String(),
			In:   spec.InColumns,
			Out:  spec.OutColumns,
		})
	}

	if res.Err != nil {
		r.Error = res.Err.Error()
	}

	for _, f := range res.Folds {
		r.FoldScores = append(r.FoldScores, scorePtr(f.Score))
	}

	return r
}

//////
// Methods.
//////

// ScoreValue returns the score, NaN when it was not stored.
func (r Record) ScoreValue() float64 {
	if r.Score == nil {
		return math.NaN()
	}

	return *r.Score
}

// Entry rebuilds the history entry. When trainers holds a spec of the
// record's kind that spec is used, so the rebuilt candidate keeps its
// hyperparameter space; otherwise a spec without domains is built.
//
// Models and metrics are not stored: the rebuilt result has neither. A
// stored error becomes an opaque error with the same text.
func (r Record) Entry(trainers ...automl.TrainerSpec) (automl.Entry, error) {
	kind, err := automl.ParseTrainerKind(r.Trainer)
	if err != nil {
		return automl.Entry{}, err
	}

	trainer, err := trainerFor(kind, trainers)
	if err != nil {
		return automl.Entry{}, err
	}

	transforms := make([]automl.TransformSpec, len(r.Transforms))

	for i, t := range r.Transforms {
		tk, err := automl.ParseTransformKind(t.Kind)
		if err != nil {
			return automl.Entry{}, err
		}

		transforms[i] = automl.TransformSpec{Kind: tk, InColumns: t.In, OutColumns: t.Out}
	}

	c := automl.NewCandidate(transforms, trainer, r.Hyperparams)
	if r.Fingerprint != "" && string(c.Fingerprint()) != r.Fingerprint {
		return automl.Entry{}, fmt.Errorf("%w: iteration %d (%s)", ErrFingerprintMismatch, r.Iteration, c)
	}

	res := automl.RunResult{
		Score:    r.ScoreValue(),
		Success:  r.Success,
		Duration: time.Duration(r.DurationMS) * time.Millisecond,
	}

	if r.Error != "" {
		res.Err = errors.New(r.Error)
	}

	for _, s := range r.FoldScores {
		fold := automl.RunResult{Score: math.NaN()}
		if s != nil {
			fold.Score = *s
		}

		res.Folds = append(res.Folds, fold)
	}

	return automl.Entry{Candidate: c, Result: res}, nil
}

//////
// Exported functionalities.
//////

// ForRun keeps the records of one run, ordered by iteration.
func ForRun(records []Record, runID string) []Record {
	out := make([]Record, 0, len(records))

	for _, r := range records {
		if r.RunID == runID {
			out = append(out, r)
		}
	}

	sortByIteration(out)

	return out
}

// Resume rebuilds the history of one run.
//
// Usage example:
//
//	records, _ := history.Load("trials.jsonl")
//	prior, err := history.Resume(records, runID, trainers...)
//	cfg.History = prior
func Resume(records []Record, runID string, trainers ...automl.TrainerSpec) (*automl.History, error) {
	run := ForRun(records, runID)
	entries := make([]automl.Entry, 0, len(run))

	for _, r := range run {
		e, err := r.Entry(trainers...)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return automl.NewHistory(entries...)
}

//////
// Helper functions.
//////

func scorePtr(score float64) *float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil
	}

	return &score
}

func trainerFor(kind automl.TrainerKind, trainers []automl.TrainerSpec) (automl.TrainerSpec, error) {
	for _, t := range trainers {
		if t.Kind() == kind {
			return t, nil
		}
	}

	return automl.NewTrainerSpec(kind)
}

func sortByIteration(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Iteration < records[j].Iteration
	})
}
