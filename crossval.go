package automl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// Fold is one train/validation split of a cross-validation.
type Fold struct {
	Train Dataset
	Valid Dataset
}

// CrossValRunner scores candidates on k folds and aggregates the fold
// results.
//
// The aggregate score is the mean of the fold scores, or NaN when any fold
// score is NaN. The aggregate succeeds only when every fold does; its model
// is then the model of the best fold.
type CrossValRunner struct {
	cfg         RunnerConfig
	folds       []preparedSplit
	parallelism int
}

// NewCrossValRunner fits the pre-featurizer, if any, on each fold's own
// training split and returns the runner.
//
// Parameters:
// - ctx: Bounds the pre-featurizer fits
// - cfg: Shared runner settings
// - folds: At least one fold
// - parallelism: Folds evaluated concurrently; values below 2 run folds
// sequentially
func NewCrossValRunner(ctx context.Context, cfg RunnerConfig, folds []Fold, parallelism int) (*CrossValRunner, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	if len(folds) == 0 {
		return nil, ErrNoFolds
	}

	prepared := make([]preparedSplit, len(folds))

	for i, f := range folds {
		if f.Train == nil || f.Valid == nil {
			return nil, fmt.Errorf("fold %d: train and validation data are required", i+1)
		}

		if prepared[i], err = prepareSplit(ctx, cfg.PreFeaturizer, f.Train, f.Valid); err != nil {
			return nil, fmt.Errorf("fold %d: %w", i+1, err)
		}
	}

	if parallelism < 1 {
		parallelism = 1
	}

	return &CrossValRunner{cfg: cfg, folds: prepared, parallelism: parallelism}, nil
}

// Run implements Runner. Fold results are kept in fold order whatever the
// completion order. When ctx ends during the run the partial folds are
// discarded.
func (r *CrossValRunner) Run(ctx context.Context, c CandidatePipeline, iteration int) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}

	start := time.Now()
	results := make([]RunResult, len(r.folds))

	p := pool.New().WithErrors().WithMaxGoroutines(r.parallelism)

	for i := range r.folds {
		p.Go(func() error {
			res, err := trainAndScore(ctx, r.cfg, c, r.folds[i], iteration, i+1)
			if err != nil {
				return err
			}

			results[i] = res

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RunResult{}, ctxErr
		}

		return RunResult{}, err
	}

	return aggregateFolds(results, r.cfg.Direction, time.Since(start)), nil
}

// aggregateFolds combines per-fold results.
func aggregateFolds(folds []RunResult, direction Direction, elapsed time.Duration) RunResult {
	scores := make([]float64, len(folds))

	var errs []error

	for i, f := range folds {
		scores[i] = f.Score

		if f.Err != nil {
			errs = append(errs, fmt.Errorf("fold %d: %w", i+1, f.Err))
		}
	}

	res := RunResult{
		Score:    averageScore(scores),
		Success:  len(errs) == 0,
		Err:      errors.Join(errs...),
		Folds:    folds,
		Duration: elapsed,
	}

	if !res.Success {
		return res
	}

	if best, ok := BestBy(folds, direction, func(f RunResult) float64 { return f.Score }); ok {
		res.Model = best.Model
		res.Metrics = best.Metrics
	}

	return res
}
