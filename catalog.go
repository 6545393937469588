package automl

import (
	"fmt"
)

//////
// Const, vars, types.
//////

var taskTrainers = map[TaskKind][]TrainerKind{
	BinaryClassification: {
		AveragedPerceptron,
		FastForest,
		FastTree,
		LightGbm,
		LinearSvm,
		LogisticRegression,
		StochasticDualCoordinateAscent,
		SymSgd,
	},
	MulticlassClassification: {
		AveragedPerceptron,
		FastForest,
		FastTree,
		LightGbm,
		LinearSvm,
		LogisticRegression,
		StochasticDualCoordinateAscent,
		SymSgd,
	},
	Regression: {
		FastForest,
		FastTree,
		FastTreeTweedie,
		LightGbm,
		OnlineGradientDescent,
		OrdinaryLeastSquares,
		PoissonRegression,
		SdcaRegression,
	},
}

//////
// Exported functionalities.
//////

// TrainersForTask returns the catalog trainer kinds of a task in enumeration
// order.
func TrainersForTask(task TaskKind) []TrainerKind {
	return append([]TrainerKind(nil), taskTrainers[task]...)
}

// DefaultDomains returns the sweepable hyperparameters the catalog declares
// for kind.
func DefaultDomains(kind TrainerKind) []ParamDomain {
	switch kind {
	case AveragedPerceptron, OnlineGradientDescent:
		return []ParamDomain{
			Discrete("LearningRate", "0.01", "0.1", "0.5", "1"),
			Discrete("DecreaseLearningRate", "false", "true"),
			Float("L2RegularizerWeight", 0, 0.4, WithNumSteps(5)),
			Discrete("NumberOfIterations", "1", "10", "100"),
		}
	case FastForest:
		return append(treeDomains(),
			Discrete("FeatureFraction", "0.5", "0.7", "1"),
		)
	case FastTree, FastTreeTweedie:
		return append(treeDomains(),
			Float("LearningRate", 0.025, 0.4, WithLogScale()),
			Float("Shrinkage", 0.025, 4, WithLogScale()),
		)
	case LightGbm:
		return []ParamDomain{
			Discrete("NumberOfIterations", "10", "20", "50", "100", "150", "200"),
			Float("LearningRate", 0.025, 0.4, WithLogScale()),
			Long("NumberOfLeaves", 2, 128, WithLogScale(), WithStepSize(4)),
			Discrete("MinimumExampleCountPerLeaf", "1", "10", "20", "50"),
			Discrete("UseCategoricalSplit", "true", "false"),
			Discrete("L2Regularization", "0", "0.5", "1"),
		}
	case LinearSvm:
		return []ParamDomain{
			Float("Lambda", 0.00001, 0.1, WithLogScale(), WithNumSteps(5)),
			Discrete("PerformProjection", "false", "true"),
			Discrete("NoBias", "false", "true"),
			Discrete("NumberOfIterations", "1", "10", "100"),
		}
	case LogisticRegression, PoissonRegression:
		return []ParamDomain{
			Float("L2Regularization", 0, 1, WithNumSteps(4)),
			Float("L1Regularization", 0, 1, WithNumSteps(4)),
			Discrete("OptimizationTolerance", "0.0001", "0.0000001"),
			Discrete("HistorySize", "5", "20", "50"),
			Discrete("EnforceNonNegativity", "false", "true"),
		}
	case OrdinaryLeastSquares:
		return []ParamDomain{
			Discrete("L2Regularization", "0.000001", "0.1", "1"),
			Discrete("CalculateStatistics", "true", "false"),
		}
	case StochasticDualCoordinateAscent, SdcaRegression:
		return []ParamDomain{
			Discrete("L2Regularization", "0.0000001", "0.000001", "0.00001", "0.0001", "0.001", "0.01"),
			Discrete("L1Regularization", "0", "0.25", "0.5", "0.75", "1"),
			Discrete("ConvergenceTolerance", "0.001", "0.01", "0.1", "0.2"),
			Discrete("MaximumNumberOfIterations", "10", "20", "100"),
			Discrete("Shuffle", "false", "true"),
			Discrete("BiasLearningRate", "0", "0.01", "0.1", "1"),
		}
	case SymSgd:
		return []ParamDomain{
			Discrete("NumberOfIterations", "1", "5", "10", "20", "30", "40", "50"),
			Discrete("LearningRate", "10", "1", "0.1", "0.01", "0.001"),
			Discrete("L2Regularization", "0", "0.000001", "0.00001", "0.0001", "0.001", "0.01"),
			Discrete("UpdateFrequency", "5", "20"),
			Discrete("HistorySize", "256", "512", "1024"),
			Discrete("Shuffle", "false", "true"),
		}
	default:
		return nil
	}
}

// AllowedTrainers returns the catalog trainers of task, with their default
// domains, in enumeration order. When allow is not empty only the listed
// kinds are kept; a listed kind the task does not support is an error.
//
// Usage example:
//
//	trainers, err := AllowedTrainers(Regression, LightGbm, FastTree)
func AllowedTrainers(task TaskKind, allow ...TrainerKind) ([]TrainerSpec, error) {
	kinds, ok := taskTrainers[task]
	if !ok {
		return nil, fmt.Errorf("%w: task %v", ErrUnknownKind, task)
	}

	supported := make(map[TrainerKind]struct{}, len(kinds))
	for _, k := range kinds {
		supported[k] = struct{}{}
	}

	allowed := make(map[TrainerKind]struct{}, len(allow))
	for _, k := range allow {
		if _, ok := supported[k]; !ok {
			return nil, fmt.Errorf("%w: trainer %s does not support task %s", ErrUnknownKind, k, task)
		}

		allowed[k] = struct{}{}
	}

	specs := make([]TrainerSpec, 0, len(kinds))

	for _, k := range kinds {
		if len(allowed) > 0 {
			if _, ok := allowed[k]; !ok {
				continue
			}
		}

		spec, err := NewTrainerSpec(k, DefaultDomains(k)...)
		if err != nil {
			return nil, err
		}

		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, ErrNoTrainers
	}

	return specs, nil
}

// TransformsForTask completes the inferred transforms for task: multiclass
// tasks get a ValueToKeyMapping of the label column appended.
func TransformsForTask(task TaskKind, label string, inferred []TransformSpec) []TransformSpec {
	out := make([]TransformSpec, 0, len(inferred)+1)
	for _, t := range inferred {
		out = append(out, t.Clone())
	}

	if task == MulticlassClassification {
		out = append(out, TransformSpec{
			Kind:       ValueToKeyMapping,
			InColumns:  []string{label},
			OutColumns: []string{label},
		})
	}

	return out
}

//////
// Helper functions.
//////

func treeDomains() []ParamDomain {
	return []ParamDomain{
		Long("NumberOfLeaves", 2, 128, WithLogScale(), WithStepSize(4)),
		Discrete("MinimumExampleCountPerLeaf", "1", "10", "50"),
		Discrete("NumberOfTrees", "20", "100", "500"),
	}
}
