package automl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for experiments.
type Metrics struct {
	TrialsTotal   *prometheus.CounterVec
	TrialDuration *prometheus.HistogramVec
	BestScore     *prometheus.GaugeVec
	StopsTotal    *prometheus.CounterVec
}

// NewMetrics creates the experiment metrics and registers them on reg. A nil
// reg leaves the collectors unregistered, which suits tests and embedding
// more than one experiment in a process.
//
// All metrics are prefixed with "automl_".
//
// Metrics:
//   - automl_trials_total{trainer,outcome} - Trials run, outcome "success" or "failure"
//   - automl_trial_duration_seconds{trainer} - Histogram of trial durations
//   - automl_best_score{run_id} - Best score so far
//   - automl_experiment_stops_total{reason} - Experiments stopped, by reason
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TrialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automl_trials_total",
				Help: "Total number of pipeline trials run",
			},
			[]string{"trainer", "outcome"},
		),

		TrialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automl_trial_duration_seconds",
				Help:    "Duration of pipeline trials in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5min
			},
			[]string{"trainer"},
		),

		BestScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "automl_best_score",
				Help: "Best validation score found so far",
			},
			[]string{"run_id"},
		),

		StopsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automl_experiment_stops_total",
				Help: "Total number of experiments stopped, by reason",
			},
			[]string{"reason"},
		),
	}
}

// RecordTrial records one trial outcome. Safe on a nil receiver.
func (m *Metrics) RecordTrial(trainer TrainerKind, res RunResult) {
	if m == nil {
		return
	}

	outcome := "failure"
	if res.Success {
		outcome = "success"
	}

	m.TrialsTotal.WithLabelValues(trainer.String(), outcome).Inc()
	m.TrialDuration.WithLabelValues(trainer.String()).Observe(res.Duration.Seconds())
}

// RecordBest records the best score of a run. Safe on a nil receiver.
func (m *Metrics) RecordBest(runID string, score float64) {
	if m == nil || !isUsable(score) {
		return
	}

	m.BestScore.WithLabelValues(runID).Set(score)
}

// RecordStop records why an experiment stopped. Safe on a nil receiver.
func (m *Metrics) RecordStop(reason StopReason) {
	if m == nil {
		return
	}

	m.StopsTotal.WithLabelValues(reason.String()).Inc()
}
