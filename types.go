package automl

import (
	"fmt"
	"math"
	"strings"
	"time"
)

//////
// Const, vars, types.
//////

// Direction tells the search whether a larger or a smaller score is better.
//
// The zero value is Maximize, which matches the common case of accuracy-like
// metrics (accuracy, AUC, R-squared). Loss-like metrics (RMSE, log-loss)
// should use Minimize.
type Direction int

const (
	// Maximize ranks larger scores first.
	Maximize Direction = iota

	// Minimize ranks smaller scores first.
	Minimize
)

// String returns the lower-case name of the direction.
func (d Direction) String() string {
	switch d {
	case Maximize:
		return "maximize"
	case Minimize:
		return "minimize"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Better reports whether score a is strictly better than score b.
//
// NaN is never better than anything, and any number is better than NaN, so a
// failed run always loses a comparison against a scored one.
func (d Direction) Better(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}

	if math.IsNaN(b) {
		return true
	}

	if d == Minimize {
		return a < b
	}

	return a > b
}

// ParseDirection parses "maximize"/"max" or "minimize"/"min".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "maximize", "max", "":
		return Maximize, nil
	case "minimize", "min":
		return Minimize, nil
	default:
		return Maximize, fmt.Errorf("%w: direction %q", ErrUnknownKind, s)
	}
}

// TaskKind is the supervised learning task being solved.
type TaskKind int

const (
	// BinaryClassification predicts one of two classes.
	BinaryClassification TaskKind = iota

	// MulticlassClassification predicts one of many classes.
	MulticlassClassification

	// Regression predicts a real value.
	Regression
)

var taskNames = map[TaskKind]string{
	BinaryClassification:     "binary",
	MulticlassClassification: "multiclass",
	Regression:               "regression",
}

// String returns the short name of the task.
func (t TaskKind) String() string {
	if name, ok := taskNames[t]; ok {
		return name
	}

	return fmt.Sprintf("TaskKind(%d)", int(t))
}

// ParseTaskKind parses a task name as produced by TaskKind.String.
func ParseTaskKind(s string) (TaskKind, error) {
	for kind, name := range taskNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return kind, nil
		}
	}

	return 0, fmt.Errorf("%w: task %q", ErrUnknownKind, s)
}

// TrainerKind identifies a trainer. The set is closed: the Toolkit maps each
// kind to a runnable estimator.
type TrainerKind int

const (
	AveragedPerceptron TrainerKind = iota + 1
	FastForest
	FastTree
	FastTreeTweedie
	LightGbm
	LinearSvm
	LogisticRegression
	OnlineGradientDescent
	OrdinaryLeastSquares
	PoissonRegression
	SdcaRegression
	StochasticDualCoordinateAscent
	SymSgd
)

var trainerNames = map[TrainerKind]string{
	AveragedPerceptron:             "AveragedPerceptron",
	FastForest:                     "FastForest",
	FastTree:                       "FastTree",
	FastTreeTweedie:                "FastTreeTweedie",
	LightGbm:                       "LightGbm",
	LinearSvm:                      "LinearSvm",
	LogisticRegression:             "LogisticRegression",
	OnlineGradientDescent:          "OnlineGradientDescent",
	OrdinaryLeastSquares:           "OrdinaryLeastSquares",
	PoissonRegression:              "PoissonRegression",
	SdcaRegression:                 "SdcaRegression",
	StochasticDualCoordinateAscent: "StochasticDualCoordinateAscent",
	SymSgd:                         "SymSgd",
}

// String returns the trainer name.
func (k TrainerKind) String() string {
	if name, ok := trainerNames[k]; ok {
		return name
	}

	return fmt.Sprintf("TrainerKind(%d)", int(k))
}

// Valid reports whether k is one of the declared trainer kinds.
func (k TrainerKind) Valid() bool {
	_, ok := trainerNames[k]

	return ok
}

// ParseTrainerKind parses a trainer name, case-insensitively.
func ParseTrainerKind(s string) (TrainerKind, error) {
	for kind, name := range trainerNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return kind, nil
		}
	}

	return 0, fmt.Errorf("%w: trainer %q", ErrUnknownKind, s)
}

// TransformKind identifies a feature transform. Like TrainerKind the set is
// closed.
type TransformKind int

const (
	ColumnConcatenating TransformKind = iota + 1
	ColumnCopying
	KeyToValueMapping
	MissingValueIndicator
	MissingValueReplacing
	Normalizing
	OneHotEncoding
	OneHotHashEncoding
	TextFeaturizing
	TypeConverting
	ValueToKeyMapping
)

var transformNames = map[TransformKind]string{
	ColumnConcatenating:   "ColumnConcatenating",
	ColumnCopying:         "ColumnCopying",
	KeyToValueMapping:     "KeyToValueMapping",
	MissingValueIndicator: "MissingValueIndicator",
	MissingValueReplacing: "MissingValueReplacing",
	Normalizing:           "Normalizing",
	OneHotEncoding:        "OneHotEncoding",
	OneHotHashEncoding:    "OneHotHashEncoding",
	TextFeaturizing:       "TextFeaturizing",
	TypeConverting:        "TypeConverting",
	ValueToKeyMapping:     "ValueToKeyMapping",
}

// String returns the transform name.
func (k TransformKind) String() string {
	if name, ok := transformNames[k]; ok {
		return name
	}

	return fmt.Sprintf("TransformKind(%d)", int(k))
}

// Valid reports whether k is one of the declared transform kinds.
func (k TransformKind) Valid() bool {
	_, ok := transformNames[k]

	return ok
}

// ParseTransformKind parses a transform name, case-insensitively.
func ParseTransformKind(s string) (TransformKind, error) {
	for kind, name := range transformNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return kind, nil
		}
	}

	return 0, fmt.Errorf("%w: transform %q", ErrUnknownKind, s)
}

// Stage is the phase of the search that produced a candidate.
type Stage int

const (
	// Exploration tries every available trainer once with default
	// hyperparameters.
	Exploration Stage = iota + 1

	// Exploitation retries the best trainers with sampled hyperparameters.
	Exploitation
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case Exploration:
		return "Exploration"
	case Exploitation:
		return "Exploitation"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// ProgressUpdate represents the current state of an experiment. One update is
// emitted after every recorded trial.
type ProgressUpdate struct {
	// RunID identifies the experiment.
	RunID string

	// Stage indicates whether the trial was an exploration or an
	// exploitation trial.
	Stage Stage

	// Iteration is the 1-based number of the trial.
	Iteration int

	// MaxTrials is the trial budget, 0 when unlimited.
	MaxTrials int

	// Trainer is the trainer used by the trial.
	Trainer TrainerKind

	// Hyperparams holds the hyperparameter values being tested.
	Hyperparams Assignment

	// Score is the trial score, NaN when the trial failed.
	Score float64

	// Success reports whether the trial produced a usable result.
	Success bool

	// BestTrainer holds the trainer of the best trial so far.
	BestTrainer TrainerKind

	// BestScore holds the best score found so far, NaN when nothing
	// succeeded yet.
	BestScore float64

	// Elapsed is the wall-clock time since the experiment started.
	Elapsed time.Duration
}
