package automl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

//////
// Const, vars, types.
//////

// StopReason tells why an experiment ended.
type StopReason int

const (
	// StopExhausted means the strategy had no novel candidate left.
	StopExhausted StopReason = iota + 1

	// StopMaxTrials means the trial budget was spent.
	StopMaxTrials

	// StopTimeout means the experiment time budget ran out.
	StopTimeout

	// StopCanceled means the caller canceled the context.
	StopCanceled
)

// String returns the lower-case reason.
func (r StopReason) String() string {
	switch r {
	case StopExhausted:
		return "exhausted"
	case StopMaxTrials:
		return "max_trials"
	case StopTimeout:
		return "timeout"
	case StopCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Trial is one recorded run of an experiment.
type Trial struct {
	RunID     string
	Iteration int
	Stage     Stage
	Entry     Entry
}

// Recorder persists trials as they complete. Recording is best effort: a
// failing recorder is logged and the experiment goes on.
type Recorder interface {
	Record(ctx context.Context, t Trial) error
}

// ExperimentConfig controls the orchestration loop.
//
// Fields:
// - RunID: Identifies the experiment; a random UUID when empty
// - MaxExperimentTime: Wall-clock budget, checked before every trial and
// passed to the runner as a deadline
// - MaxTrials: Upper bound on the history length, 0 for no bound
// - ProgressChan: Receives one update per trial; full channels drop updates
// - Logger: Defaults to a no-op logger
// - Metrics: Optional Prometheus metrics
// - Recorder: Optional trial sink
// - History: Prior trials to resume from; a fresh history when nil
type ExperimentConfig struct {
	RunID             string
	MaxExperimentTime time.Duration
	MaxTrials         int
	ProgressChan      chan<- ProgressUpdate
	Logger            *zap.Logger
	Metrics           *Metrics
	Recorder          Recorder
	History           *History
}

// Experiment drives the search: ask the strategy for a candidate, run it,
// record the result, until a stopping criterion fires.
type Experiment struct {
	cfg       ExperimentConfig
	suggester *Suggester
	runner    Runner
	history   *History
}

// Report is the outcome of an experiment.
type Report struct {
	RunID      string
	Direction  Direction
	Entries    []Entry
	StopReason StopReason
	Elapsed    time.Duration
}

//////
// Factory.
//////

// DefaultExperimentConfig returns a default configuration.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		MaxExperimentTime: 24 * time.Hour,
		ProgressChan:      nil, // Default to no progress updates.
	}
}

// NewExperiment wires a strategy and a runner.
func NewExperiment(suggester *Suggester, runner Runner, cfg ExperimentConfig) (*Experiment, error) {
	if suggester == nil {
		return nil, errors.New("suggester is required")
	}

	if runner == nil {
		return nil, errors.New("runner is required")
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	if cfg.MaxExperimentTime <= 0 {
		cfg.MaxExperimentTime = DefaultExperimentConfig().MaxExperimentTime
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	history := cfg.History
	if history == nil {
		history, _ = NewHistory()
	}

	return &Experiment{
		cfg:       cfg,
		suggester: suggester,
		runner:    runner,
		history:   history,
	}, nil
}

//////
// Methods.
//////

// RunID returns the experiment identifier.
func (e *Experiment) RunID() string { return e.cfg.RunID }

// History returns the experiment history.
func (e *Experiment) History() *History { return e.history }

// Execute runs trials until the strategy is exhausted, the trial or time
// budget is spent, or ctx is canceled. Stopping is never an error: the
// report holds every trial recorded so far. A run interrupted by the
// deadline or cancellation is discarded.
//
// Execute returns an error only when the strategy proposes a candidate that
// is already in history, which happens when a resumed history does not match
// the configured trainers.
func (e *Experiment) Execute(ctx context.Context) (*Report, error) {
	start := time.Now()
	logger := e.cfg.Logger.With(zap.String("run_id", e.cfg.RunID))
	direction := e.suggester.cfg.Direction

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.MaxExperimentTime)
	defer cancel()

	best := Entry{Result: RunResult{Score: math.NaN()}}
	if b, ok := Best(e.history.Entries(), direction); ok {
		best = b
	}

	report := func(reason StopReason) *Report {
		e.cfg.Metrics.RecordStop(reason)

		r := &Report{
			RunID:      e.cfg.RunID,
			Direction:  direction,
			Entries:    e.history.Entries(),
			StopReason: reason,
			Elapsed:    time.Since(start),
		}

		logger.Info("experiment stopped",
			zap.Stringer("reason", reason),
			zap.Int("trials", len(r.Entries)),
			zap.Duration("elapsed", r.Elapsed),
		)

		return r
	}

	stopReason := func() StopReason {
		if ctx.Err() != nil {
			return StopCanceled
		}

		return StopTimeout
	}

	for {
		entries := e.history.Entries()

		if e.cfg.MaxTrials > 0 && len(entries) >= e.cfg.MaxTrials {
			return report(StopMaxTrials), nil
		}

		if runCtx.Err() != nil {
			return report(stopReason()), nil
		}

		stage := e.suggester.Stage(len(entries))

		candidate, ok := e.suggester.Next(entries)
		if !ok {
			return report(StopExhausted), nil
		}

		if e.history.Visited(candidate.Fingerprint()) {
			return report(StopExhausted), fmt.Errorf("%w: %s", ErrDuplicateCandidate, candidate)
		}

		iteration := len(entries) + 1

		result, err := e.runner.Run(runCtx, candidate, iteration)
		if err != nil {
			return report(stopReason()), nil
		}

		entry := Entry{Candidate: candidate, Result: result}
		if err := e.history.Append(entry); err != nil {
			return report(StopExhausted), err
		}

		trainer := candidate.Trainer().Kind()

		if isUsable(result.Score) && direction.Better(result.Score, best.Result.Score) {
			best = entry
			e.cfg.Metrics.RecordBest(e.cfg.RunID, result.Score)
		}

		e.cfg.Metrics.RecordTrial(trainer, result)

		logger.Info("trial completed",
			zap.Int("iteration", iteration),
			zap.Stringer("stage", stage),
			zap.String("pipeline", candidate.String()),
			zap.Float64("score", result.Score),
			zap.Bool("success", result.Success),
			zap.Duration("duration", result.Duration),
		)

		if e.cfg.Recorder != nil {
			trial := Trial{RunID: e.cfg.RunID, Iteration: iteration, Stage: stage, Entry: entry}
			if err := e.cfg.Recorder.Record(ctx, trial); err != nil {
				logger.Warn("failed to record trial", zap.Int("iteration", iteration), zap.Error(err))
			}
		}

		e.sendProgress(ProgressUpdate{
			RunID:       e.cfg.RunID,
			Stage:       stage,
			Iteration:   iteration,
			MaxTrials:   e.cfg.MaxTrials,
			Trainer:     trainer,
			Hyperparams: candidate.Hyperparams(),
			Score:       result.Score,
			Success:     result.Success,
			BestTrainer: best.Candidate.Trainer().Kind(),
			BestScore:   best.Result.Score,
			Elapsed:     time.Since(start),
		})
	}
}

func (e *Experiment) sendProgress(update ProgressUpdate) {
	if e.cfg.ProgressChan == nil {
		return
	}

	select {
	case e.cfg.ProgressChan <- update:
	default:
		// Skip update if channel is full.
	}
}

// Best returns the best entry of the report.
func (r *Report) Best() (Entry, bool) {
	return Best(r.Entries, r.Direction)
}

// TopN returns the n best entries of the report.
func (r *Report) TopN(n int) []Entry {
	return TopN(r.Entries, n, r.Direction)
}
