package automl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

//////
// Const, vars, types.
//////

const instrumentationName = "github.com/thalesfsp/automl"

// Dataset is a tabular dataset owned by the toolkit. The engine only reads
// its schema.
type Dataset interface {
	Schema() Schema
}

// Transformer is a fitted artifact: a fitted transform or a trained model.
type Transformer interface {
	Transform(ctx context.Context, data Dataset) (Dataset, error)
}

// Estimator fits a Transformer on a dataset.
type Estimator interface {
	Fit(ctx context.Context, data Dataset) (Transformer, error)
}

// Toolkit maps the closed transform and trainer kinds onto runnable
// estimators and scores fitted models. It is the external numeric ML engine.
type Toolkit interface {
	// Transform builds the estimator of one transform.
	Transform(spec TransformSpec) (Estimator, error)

	// Trainer builds a trainer estimator. An empty assignment means the
	// trainer defaults.
	Trainer(kind TrainerKind, hyperparams Assignment, label string) (Estimator, error)

	// Evaluate applies model to data and returns the toolkit's metrics
	// object.
	Evaluate(ctx context.Context, model Transformer, label string, data Dataset) (any, error)
}

// ModelWriter is implemented by toolkits able to serialize fitted models.
type ModelWriter interface {
	WriteModel(w io.Writer, model Transformer) error
}

// MetricsAgent extracts the scalar score from a metrics object.
type MetricsAgent interface {
	Score(metrics any) float64
}

// MetricsAgentFunc adapts a function to MetricsAgent.
type MetricsAgentFunc func(metrics any) float64

// Score implements MetricsAgent.
func (f MetricsAgentFunc) Score(metrics any) float64 { return f(metrics) }

// ArtifactStore persists model files.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// Chain applies transformers in order. It is the model produced for a
// candidate: the pre-featurizer, the transforms and the trained predictor.
type Chain []Transformer

// Transform implements Transformer.
func (c Chain) Transform(ctx context.Context, data Dataset) (Dataset, error) {
	var err error

	for i, t := range c {
		if data, err = t.Transform(ctx, data); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}

	return data, nil
}

// RunResult is the outcome of running one candidate.
//
// A failed run always has a NaN score and a nil model.
type RunResult struct {
	// Score is the validation score, NaN when the run is unusable.
	Score float64

	// Success reports whether the run completed without a captured error.
	Success bool

	// Model is the fitted pipeline, nil when the run failed.
	Model Transformer

	// Metrics is the toolkit's metrics object, when scoring was reached.
	Metrics any

	// Err is the captured failure.
	Err error

	// Folds holds the per-fold results of a cross-validated run.
	Folds []RunResult

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Runner trains and scores a candidate.
//
// Failures of the candidate are reported in the RunResult. The error is
// non-nil only when ctx is done; the result must then be discarded.
type Runner interface {
	Run(ctx context.Context, c CandidatePipeline, iteration int) (RunResult, error)
}

// RunnerConfig holds what both runner variants need.
//
// Fields:
// - Toolkit: The ML engine (required)
// - Label: Label column name (required)
// - Agent: Extracts the score from the metrics (required)
// - Direction: Used to pick the cross-validated model among folds
// - PreFeaturizer: Optional estimator fitted before transform inference
// output; it is fitted once per training split
// - Store: Optional destination of model files; requires the toolkit to
// implement ModelWriter
// - Logger: Defaults to a no-op logger
// - Tracer: Defaults to the global otel tracer
type RunnerConfig struct {
	Toolkit       Toolkit
	Label         string
	Agent         MetricsAgent
	Direction     Direction
	PreFeaturizer Estimator
	Store         ArtifactStore
	Logger        *zap.Logger
	Tracer        trace.Tracer
}

// TrainValidateRunner scores candidates on one train/validation split.
type TrainValidateRunner struct {
	cfg   RunnerConfig
	split preparedSplit
}

// preparedSplit is a split after the pre-featurizer was applied.
type preparedSplit struct {
	train Dataset
	valid Dataset
	pre   Transformer
}

//////
// Factory.
//////

// NewTrainValidateRunner fits the pre-featurizer, if any, on train and
// returns the runner.
//
// Returns an error for a missing toolkit, agent, label or split, and when
// the pre-featurizer cannot be fitted.
func NewTrainValidateRunner(ctx context.Context, cfg RunnerConfig, train, valid Dataset) (*TrainValidateRunner, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	if train == nil || valid == nil {
		return nil, errors.New("train and validation data are required")
	}

	split, err := prepareSplit(ctx, cfg.PreFeaturizer, train, valid)
	if err != nil {
		return nil, err
	}

	return &TrainValidateRunner{cfg: cfg, split: split}, nil
}

//////
// Methods.
//////

// Run implements Runner.
func (r *TrainValidateRunner) Run(ctx context.Context, c CandidatePipeline, iteration int) (RunResult, error) {
	return trainAndScore(ctx, r.cfg, c, r.split, iteration, 0)
}

func (cfg RunnerConfig) withDefaults() (RunnerConfig, error) {
	switch {
	case cfg.Toolkit == nil:
		return cfg, errors.New("toolkit is required")
	case cfg.Agent == nil:
		return cfg, errors.New("metrics agent is required")
	case cfg.Label == "":
		return cfg, errors.New("label column is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}

	return cfg, nil
}

//////
// Helper functions.
//////

func prepareSplit(ctx context.Context, pre Estimator, train, valid Dataset) (preparedSplit, error) {
	if pre == nil {
		return preparedSplit{train: train, valid: valid}, nil
	}

	fitted, err := pre.Fit(ctx, train)
	if err != nil {
		return preparedSplit{}, fmt.Errorf("fit pre-featurizer: %w", err)
	}

	t, err := fitted.Transform(ctx, train)
	if err != nil {
		return preparedSplit{}, fmt.Errorf("pre-featurize train: %w", err)
	}

	v, err := fitted.Transform(ctx, valid)
	if err != nil {
		return preparedSplit{}, fmt.Errorf("pre-featurize validation: %w", err)
	}

	return preparedSplit{train: t, valid: v, pre: fitted}, nil
}

// trainAndScore runs one candidate on one split. fold is 1-based, 0 for a
// single split.
func trainAndScore(ctx context.Context, cfg RunnerConfig, c CandidatePipeline, split preparedSplit, iteration, fold int) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}

	start := time.Now()

	ctx, span := cfg.Tracer.Start(ctx, "automl.trainAndScore",
		trace.WithAttributes(
			attribute.String("trainer", c.Trainer().Kind().String()),
			attribute.Int("iteration", iteration),
			attribute.Int("fold", fold),
		),
	)
	defer span.End()

	res := fitAndEvaluate(ctx, cfg, c, split)
	res.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "canceled")

		return RunResult{}, err
	}

	logger := cfg.Logger.With(
		zap.String("trainer", c.Trainer().Kind().String()),
		zap.Int("iteration", iteration),
		zap.Duration("duration", res.Duration),
	)
	if fold > 0 {
		logger = logger.With(zap.Int("fold", fold))
	}

	if !res.Success {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "run failed")
		logger.Warn("pipeline run failed", zap.String("pipeline", c.String()), zap.Error(res.Err))

		return res, nil
	}

	span.SetAttributes(attribute.Float64("score", res.Score))
	logger.Debug("pipeline run scored", zap.Float64("score", res.Score))

	persistModel(ctx, cfg, logger, res.Model, modelKey(iteration, fold))

	return res, nil
}

// fitAndEvaluate converts every error and panic into a failed result.
func fitAndEvaluate(ctx context.Context, cfg RunnerConfig, c CandidatePipeline, split preparedSplit) (res RunResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failedResult(fmt.Errorf("%w: %v", ErrTrainerPanic, r), nil)
		}
	}()

	if err := ValidateSchemas(split.train.Schema(), split.valid.Schema()); err != nil {
		return failedResult(err, nil)
	}

	model, err := fitPipeline(ctx, cfg, c, split)
	if err != nil {
		return failedResult(err, nil)
	}

	metrics, err := cfg.Toolkit.Evaluate(ctx, model, cfg.Label, split.valid)
	if err != nil {
		return failedResult(fmt.Errorf("evaluate: %w", err), nil)
	}

	score := cfg.Agent.Score(metrics)

	switch {
	case math.IsNaN(score):
		return failedResult(ErrNaNScore, metrics)
	case math.IsInf(score, 0):
		return failedResult(fmt.Errorf("%w: %v", ErrInfiniteScore, score), metrics)
	}

	return RunResult{
		Score:   score,
		Success: true,
		Model:   model,
		Metrics: metrics,
	}
}

// fitPipeline fits the transforms in order and then the trainer, returning
// the chain prefixed by the fitted pre-featurizer.
func fitPipeline(ctx context.Context, cfg RunnerConfig, c CandidatePipeline, split preparedSplit) (Chain, error) {
	transforms := c.Transforms()
	chain := make(Chain, 0, len(transforms)+2)

	if split.pre != nil {
		chain = append(chain, split.pre)
	}

	data := split.train

	for _, spec := range transforms {
		est, err := cfg.Toolkit.Transform(spec)
		if err != nil {
			return nil, fmt.Errorf("build transform %s: %w", spec, err)
		}

		fitted, err := est.Fit(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("fit transform %s: %w", spec, err)
		}

		if data, err = fitted.Transform(ctx, data); err != nil {
			return nil, fmt.Errorf("apply transform %s: %w", spec, err)
		}

		chain = append(chain, fitted)
	}

	kind := c.Trainer().Kind()

	est, err := cfg.Toolkit.Trainer(kind, c.Hyperparams(), cfg.Label)
	if err != nil {
		return nil, fmt.Errorf("build trainer %s: %w", kind, err)
	}

	model, err := est.Fit(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("fit trainer %s: %w", kind, err)
	}

	return append(chain, model), nil
}

func failedResult(err error, metrics any) RunResult {
	return RunResult{
		Score:   math.NaN(),
		Success: false,
		Err:     err,
		Metrics: metrics,
	}
}

// modelKey names the model file of an iteration and fold (fold 0 means no
// cross-validation).
func modelKey(iteration, fold int) string {
	if fold > 0 {
		return fmt.Sprintf("Model%d_%d.zip", iteration, fold)
	}

	return fmt.Sprintf("Model%d.zip", iteration)
}

// persistModel is best effort: failures are logged and otherwise ignored.
func persistModel(ctx context.Context, cfg RunnerConfig, logger *zap.Logger, model Transformer, key string) {
	if cfg.Store == nil || model == nil {
		return
	}

	writer, ok := cfg.Toolkit.(ModelWriter)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := writer.WriteModel(&buf, model); err != nil {
		logger.Warn("failed to serialize model", zap.String("key", key), zap.Error(err))

		return
	}

	size := int64(buf.Len())
	if err := cfg.Store.Put(ctx, key, &buf, size); err != nil {
		logger.Warn("failed to store model", zap.String("key", key), zap.Error(err))

		return
	}

	logger.Debug("model stored", zap.String("key", key), zap.Int64("size", size))
}
