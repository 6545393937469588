package automl

import (
	"math"
	"math/rand"
)

//////
// Const, vars, types.
//////

// AcquisitionFunc scores how promising a point is given the model prediction
// at that point. Lower values are more promising: the model always minimizes,
// and maximized metrics are negated before they reach it.
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters for the acquisition functions.
//
// Fields:
// - Beta: Exploration weight of UCB (higher = more exploration)
// - Xi: Minimum improvement required by PI and EI
// - BestSoFar: Best (lowest) model target observed so far, set by the sweeper
// - RandomState: Random source used by ThompsonSampling, set by the sweeper
// when nil
type AcquisitionParams struct {
	Beta        float64
	Xi          float64
	BestSoFar   float64
	RandomState *rand.Rand
}

//////
// Available acquisition functions for Bayesian optimization.
// Each function helps decide which points to evaluate next by balancing
// exploration (trying new areas) and exploitation (focusing on known good areas).
//////

// UCB implements the confidence bound acquisition function.
//
// How it works:
// - Combines the predicted mean with the uncertainty (variance)
// - Lower values are better (the model minimizes)
// - The Beta parameter controls the trade-off between exploration and exploitation
//
// Parameters:
// - mean: Predicted target at this point
// - variance: Uncertainty in the prediction
// - params.Beta: Exploration weight (higher = more exploration)
//
// Example:
//
//	params := AcquisitionParams{
//	    Beta: 2.0,  // Balance between exploration and exploitation
//	}
//	value := UCB(0.5, 0.2, params)  // Evaluate a point with mean=0.5, variance=0.2
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement (PI) calculates the probability that a point will
// improve upon the current best observed value. The probability is negated so
// that lower values are more promising.
//
// Parameters:
// - mean: Predicted target at this point
// - variance: Uncertainty in the prediction
// - params.BestSoFar: Best (lowest) target observed so far
// - params.Xi: Minimum improvement desired
//
// When to use:
// - When you want to be conservative in exploring new points
// - In problems where being "probably better" is more important than "how much better"
//
// Example:
//
//	params := AcquisitionParams{
//	    BestSoFar: -0.91,  // Best negated accuracy
//	    Xi: 0.01,
//	}
//	prob := ProbabilityOfImprovement(-0.93, 0.02, params)
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	improvement := params.BestSoFar - mean - params.Xi

	sigma := math.Sqrt(variance)
	if sigma == 0 {
		if improvement > 0 {
			return -1
		}

		return 0
	}

	return -normalCDF(improvement / sigma)
}

// ExpectedImprovement (EI) calculates the expected value of the improvement
// over the current best value, negated so that lower values are more
// promising.
//
// How it works:
// - Combines the probability of improvement with the magnitude of improvement
// - Balances how likely and how large the improvement might be
// - Often provides better exploration than PI
//
// Parameters:
// - mean: Predicted target at this point
// - variance: Uncertainty in the prediction
// - params.BestSoFar: Best (lowest) target observed so far
// - params.Xi: Minimum improvement desired
//
// Example:
//
//	params := AcquisitionParams{
//	    BestSoFar: 1.0,
//	    Xi: 0.01,
//	}
//	expected := ExpectedImprovement(0.9, 0.2, params)
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	improvement := params.BestSoFar - mean - params.Xi

	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return -math.Max(improvement, 0)
	}

	z := improvement / sigma

	return -(improvement*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling implements Thompson Sampling acquisition by drawing random
// samples from the posterior distribution.
//
// Parameters:
// - mean: Predicted target at this point
// - variance: Uncertainty in the prediction
// - params.RandomState: Random number generator (required!)
//
// When to use:
// - When you want to avoid the complexity of tuning Beta or Xi
// - In problems where random exploration is acceptable
//
// Warning:
// - Don't share RandomState between different searches.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}
