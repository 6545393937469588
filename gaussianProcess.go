package automl

import (
	"errors"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

// errNotPositiveDefinite is returned by Fit when the kernel matrix cannot be
// factorized even after adding jitter.
var errNotPositiveDefinite = errors.New("kernel matrix is not positive definite")

// gaussianProcess implements a thread-safe Gaussian Process regression model
// with multidimensional inputs. It predicts the score of untested
// hyperparameter assignments from the scores of the ones already run.
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - X: Slice of observed input points (feature vectors of assignments)
// - Y: Slice of observed values at each input point (lower is better)
// - sigma: Kernel width parameter controlling the smoothness of interpolation
// - noise: Observation noise added to the kernel diagonal
//
// The posterior (Cholesky factor and weights) is rebuilt by Fit. Predict uses
// the posterior of the last successful Fit.
//
// Memory usage:
// - O(n^2) for the kernel factor, where n is the number of observations.
type gaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the input points. Length of inner slices must be consistent.
	X [][]float64

	// Y stores the observed values at each point in X.
	Y []float64

	// sigma is the kernel width parameter.
	// Larger values = smoother interpolation
	// Smaller values = more local influence
	sigma float64

	// noise is added to the diagonal so that repeated or very close points
	// keep the kernel matrix invertible.
	noise float64

	chol  *mat.Cholesky
	alpha *mat.VecDense
	yMean float64
	yStd  float64
}

//////
// Methods.
//////

// Fit rebuilds the posterior from the current observations.
//
// The targets are standardized (zero mean, unit variance) before fitting so
// the kernel amplitude of 1.0 matches the scale of any metric. When the kernel
// matrix is not numerically positive definite, the diagonal jitter is raised
// tenfold up to five times.
//
// Returns:
// - error: errNotPositiveDefinite if factorization keeps failing
func (gp *gaussianProcess) Fit() error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	n := len(gp.X)
	if n == 0 {
		gp.chol, gp.alpha = nil, nil

		return nil
	}

	// Standardize targets.
	var sum float64
	for _, y := range gp.Y {
		sum += y
	}

	mean := sum / float64(n)

	var sq float64
	for _, y := range gp.Y {
		sq += (y - mean) * (y - mean)
	}

	std := math.Sqrt(sq / float64(n))
	if std == 0 || math.IsNaN(std) {
		std = 1
	}

	y := mat.NewVecDense(n, nil)
	for i, v := range gp.Y {
		y.SetVec(i, (v-mean)/std)
	}

	jitter := gp.noise

	for attempt := 0; attempt < 6; attempt++ {
		k := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := rbf(gp.X[i], gp.X[j], gp.sigma)
				if i == j {
					v += jitter
				}

				k.SetSym(i, j, v)
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(k); !ok {
			jitter *= 10

			continue
		}

		alpha := mat.NewVecDense(n, nil)
		if err := chol.SolveVecTo(alpha, y); err != nil {
			jitter *= 10

			continue
		}

		gp.chol = &chol
		gp.alpha = alpha
		gp.yMean = mean
		gp.yStd = std

		return nil
	}

	gp.chol, gp.alpha = nil, nil

	return errNotPositiveDefinite
}

// Predict estimates the expected value and uncertainty at a given point.
//
// Parameters:
// - x: Input point at which to make prediction
//
// Returns:
// - mean: Expected value at the input point
// - variance: Uncertainty in the prediction (higher = less certain)
//
// Mathematical details:
//
//	mean     = k*ᵀ K⁻¹ y
//	variance = k(x, x) - k*ᵀ K⁻¹ k*
//
// both rescaled back to the units of the observations. Returns (0, 1) when
// the model has not been fitted.
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	// Handle case with no fitted posterior
	if gp.chol == nil || gp.alpha == nil {
		return 0, 1
	}

	n := len(gp.X)

	ks := mat.NewVecDense(n, nil)
	for i := range gp.X {
		ks.SetVec(i, rbf(x, gp.X[i], gp.sigma))
	}

	mean = mat.Dot(ks, gp.alpha)*gp.yStd + gp.yMean

	v := mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(v, ks); err != nil {
		return mean, gp.yStd * gp.yStd
	}

	variance = (1 - mat.Dot(ks, v)) * gp.yStd * gp.yStd

	// Rounding can push the variance slightly below zero at observed points.
	if variance < 1e-12 {
		variance = 1e-12
	}

	return mean, variance
}

// Update adds a new observation to the model. Call Fit afterwards to refresh
// the posterior.
//
// Important notes:
// - Creates a deep copy of input slice x to prevent external modifications
// - Does not refit; Predict keeps using the previous posterior until Fit
func (gp *gaussianProcess) Update(x []float64, y float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	// Create deep copy of input to prevent external modifications
	newX := make([]float64, len(x))
	copy(newX, x)

	gp.X = append(gp.X, newX)
	gp.Y = append(gp.Y, y)
}

// Len returns the number of observations.
func (gp *gaussianProcess) Len() int {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return len(gp.X)
}

//////
// Helper functions.
//////

// rbf is the Radial Basis Function (Gaussian) kernel:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// It returns 1.0 for identical points and panics when the lengths differ.
func rbf(x1, x2 []float64, sigma float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	// Calculate squared Euclidean distance
	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * sigma * sigma))
}

//////
// Factory.
//////

// newGaussianProcess creates a Gaussian Process with the given kernel width
// and diagonal noise. Non-positive values fall back to 0.25 and 1e-6, which
// suit inputs scaled to the unit cube.
func newGaussianProcess(sigma, noise float64) *gaussianProcess {
	if sigma <= 0 {
		sigma = 0.25
	}

	if noise <= 0 {
		noise = 1e-6
	}

	return &gaussianProcess{
		sigma: sigma,
		noise: noise,
	}
}
