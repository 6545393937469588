package automl

import (
	"math"
)

//////
// Helper functions.
//////

// Helper function used by PI and EI to compute the cumulative distribution
// function of the standard normal distribution.
//
// Returns:
// - Probability that a standard normal random variable is less than x.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// Helper function used by EI to compute the probability density function
// of the standard normal distribution.
//
// Returns:
// - Value of the standard normal PDF at x.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}

// isUsable reports whether a score can be ranked.
func isUsable(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0)
}

// averageScore returns the arithmetic mean, NaN when any value is NaN or values is
// empty.
func averageScore(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	var sum float64

	for _, v := range values {
		if math.IsNaN(v) {
			return math.NaN()
		}

		sum += v
	}

	return sum / float64(len(values))
}
