// Package automl searches for the best data-processing and model pipeline of
// a supervised learning task. Given training data, a label and a transform
// set, it tries (trainer, hyperparameter) combinations, trains and scores
// them through an external ML toolkit, and keeps a ranked history of
// attempts.
//
// # Features
//
// The package includes the following key features:
//
//   - Two-stage search: every available trainer is tried once with its
//     defaults, then the best trainers are tuned in turn
//   - Bayesian hyperparameter sweeping: a Gaussian Process over the
//     hyperparameter space ranks random proposals with an acquisition
//     function; a random sweeper is available with the same contract
//   - Deduplication: candidates are fingerprinted and never run twice
//   - Single split and k-fold runners: failures of one candidate are recorded,
//     never propagated; one failing fold fails the cross-validated candidate
//   - Ranking: best and top-N results, maximized or minimized metrics
//   - Progress Monitoring: Real-time updates on the search via channels
//   - Reproducibility: every random choice comes from a seedable source
//
// # Search stages
//
// 1. Exploration:
//
//   - Trainers are tried in the order given, one per trial, with an empty
//     (default) hyperparameter assignment
//
// 2. Exploitation:
//
//   - The TopKTrainers (3) best trainers of the exploration stage form a pool
//
//   - The least tried trainer of the pool is tuned first
//
//   - Up to MaxAttempts (10) proposals are drawn per trainer until one is new
//
//     cfg := DefaultSuggesterConfig()
//     cfg.Trainers, _ = AllowedTrainers(BinaryClassification)
//     cfg.Sweeper = NewBayesianSweeper(DefaultBayesianConfig(), rand.New(rand.NewSource(42)))
//     suggester, err := NewSuggester(cfg)
//
// # Acquisition Functions
//
// The Bayesian sweeper accepts four acquisition functions. All return lower
// values for more promising points:
//
//   - ExpectedImprovement (default): balances improvement probability and
//     magnitude
//   - ProbabilityOfImprovement: conservative, favors small reliable gains
//   - UCB: confidence bound controlled by Beta
//   - ThompsonSampling: samples the posterior
//
// # Running an experiment
//
//	runner, err := NewTrainValidateRunner(ctx, RunnerConfig{
//	    Toolkit: toolkit,
//	    Label:   "Label",
//	    Agent:   MetricsAgentFunc(func(m any) float64 { return m.(BinaryMetrics).AreaUnderRocCurve }),
//	}, train, valid)
//
//	exp, err := NewExperiment(suggester, runner, ExperimentConfig{
//	    MaxExperimentTime: 10 * time.Minute,
//	})
//
//	report, err := exp.Execute(ctx)
//	best, ok := report.Best()
//
// # Thread Safety
//
//   - The search loop is sequential; History is safe for concurrent readers
//   - Sweepers guard their random source and may be shared
//   - CrossValRunner may evaluate folds concurrently
//   - Progress channel updates never block the search
package automl
