// Package config provides configuration loading for the automl command.
package config

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/artifact"
	"github.com/thalesfsp/automl/internal/logging"
	"go.uber.org/zap"
)

// Config is the complete configuration.
type Config struct {
	Search    SearchConfig    `koanf:"search"`
	Logging   logging.Config  `koanf:"logging"`
	Artifacts ArtifactsConfig `koanf:"artifacts"`
	History   HistoryConfig   `koanf:"history"`
}

// SearchConfig controls the pipeline search.
type SearchConfig struct {
	Task              string        `koanf:"task"`
	Direction         string        `koanf:"direction"`
	Trainers          []string      `koanf:"trainers"`
	Sweeper           string        `koanf:"sweeper"`
	Seed              int64         `koanf:"seed"`
	NumCandidates     int           `koanf:"num_candidates"`
	TopKTrainers      int           `koanf:"top_k_trainers"`
	MaxAttempts       int           `koanf:"max_attempts"`
	MaxTrials         int           `koanf:"max_trials"`
	MaxExperimentTime time.Duration `koanf:"max_experiment_time"`
}

// ArtifactsConfig selects where model files go: a local directory, a MinIO
// bucket, or both.
type ArtifactsConfig struct {
	Dir            string `koanf:"dir"`
	MinioEndpoint  string `koanf:"minio_endpoint"`
	MinioAccessKey string `koanf:"minio_access_key"`
	MinioSecretKey string `koanf:"minio_secret_key"`
	MinioBucket    string `koanf:"minio_bucket"`
	MinioRegion    string `koanf:"minio_region"`
	MinioPrefix    string `koanf:"minio_prefix"`
	MinioUseSSL    bool   `koanf:"minio_use_ssl"`
}

// HistoryConfig selects where trials are recorded.
type HistoryConfig struct {
	Path        string `koanf:"path"`
	DatabaseURL string `koanf:"database_url"`
}

// Default returns the defaults applied to missing values.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Task:              automl.BinaryClassification.String(),
			Direction:         automl.Maximize.String(),
			Sweeper:           "bayesian",
			NumCandidates:     automl.DefaultBayesianConfig().NumCandidates,
			TopKTrainers:      automl.DefaultSuggesterConfig().TopKTrainers,
			MaxAttempts:       automl.DefaultSuggesterConfig().MaxAttempts,
			MaxExperimentTime: automl.DefaultExperimentConfig().MaxExperimentTime,
		},
		Logging: logging.NewDefaultConfig(),
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error

	if _, err := automl.ParseTaskKind(c.Search.Task); err != nil {
		errs = append(errs, fmt.Errorf("search.task: %w", err))
	}

	if _, err := automl.ParseDirection(c.Search.Direction); err != nil {
		errs = append(errs, fmt.Errorf("search.direction: %w", err))
	}

	for _, name := range c.Search.Trainers {
		if _, err := automl.ParseTrainerKind(name); err != nil {
			errs = append(errs, fmt.Errorf("search.trainers: %w", err))
		}
	}

	switch strings.ToLower(c.Search.Sweeper) {
	case "bayesian", "random":
	default:
		errs = append(errs, fmt.Errorf("search.sweeper: must be bayesian or random, got %q", c.Search.Sweeper))
	}

	if c.Search.MaxTrials < 0 {
		errs = append(errs, errors.New("search.max_trials must be >= 0"))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if c.Artifacts.MinioEnabled() {
		if err := c.Artifacts.Minio().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("artifacts: %w", err))
		}
	}

	return errors.Join(errs...)
}

// MinioEnabled reports whether a MinIO endpoint is configured.
func (a ArtifactsConfig) MinioEnabled() bool { return a.MinioEndpoint != "" }

// Minio returns the MinIO store settings.
func (a ArtifactsConfig) Minio() artifact.MinioConfig {
	return artifact.MinioConfig{
		Endpoint:  a.MinioEndpoint,
		AccessKey: a.MinioAccessKey,
		SecretKey: a.MinioSecretKey,
		Bucket:    a.MinioBucket,
		Region:    a.MinioRegion,
		Prefix:    a.MinioPrefix,
		UseSSL:    a.MinioUseSSL,
	}
}

// TaskKind returns the parsed task. Call after Validate.
func (s SearchConfig) TaskKind() automl.TaskKind {
	task, _ := automl.ParseTaskKind(s.Task)

	return task
}

// AllowedTrainers returns the catalog trainers of the task restricted to
// the allow list.
func (s SearchConfig) AllowedTrainers() ([]automl.TrainerSpec, error) {
	allow := make([]automl.TrainerKind, 0, len(s.Trainers))

	for _, name := range s.Trainers {
		kind, err := automl.ParseTrainerKind(name)
		if err != nil {
			return nil, err
		}

		allow = append(allow, kind)
	}

	return automl.AllowedTrainers(s.TaskKind(), allow...)
}

// NewSweeper builds the configured sweeper. A zero seed seeds from the clock.
func (s SearchConfig) NewSweeper() automl.Sweeper {
	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))

	if strings.EqualFold(s.Sweeper, "random") {
		return automl.NewRandomSweeper(rng)
	}

	cfg := automl.DefaultBayesianConfig()
	if s.NumCandidates > 0 {
		cfg.NumCandidates = s.NumCandidates
	}

	return automl.NewBayesianSweeper(cfg, rng)
}

// SuggesterConfig maps the search settings onto the strategy settings.
func (s SearchConfig) SuggesterConfig(trainers []automl.TrainerSpec, transforms []automl.TransformSpec, logger *zap.Logger) automl.SuggesterConfig {
	direction, _ := automl.ParseDirection(s.Direction)

	cfg := automl.DefaultSuggesterConfig()
	cfg.Trainers = trainers
	cfg.Transforms = transforms
	cfg.Sweeper = s.NewSweeper()
	cfg.Direction = direction
	cfg.Logger = logger

	if s.TopKTrainers > 0 {
		cfg.TopKTrainers = s.TopKTrainers
	}

	if s.MaxAttempts > 0 {
		cfg.MaxAttempts = s.MaxAttempts
	}

	return cfg
}

// ExperimentConfig maps the settings onto the orchestration settings.
func (c *Config) ExperimentConfig(logger *zap.Logger) automl.ExperimentConfig {
	cfg := automl.DefaultExperimentConfig()
	cfg.MaxTrials = c.Search.MaxTrials
	cfg.Logger = logger

	if c.Search.MaxExperimentTime > 0 {
		cfg.MaxExperimentTime = c.Search.MaxExperimentTime
	}

	return cfg
}
