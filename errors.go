package automl

import "errors"

var (
	// ErrInvalidDomain is returned when a hyperparameter domain cannot be
	// sampled (inverted bounds, no options, bad step, ...).
	ErrInvalidDomain = errors.New("invalid hyperparameter domain")

	// ErrUnknownKind is returned when a name does not map to a declared kind.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrNoTrainers is returned when a search is configured without trainers.
	ErrNoTrainers = errors.New("no trainers available")

	// ErrDuplicateTrainer is returned when the same trainer kind is listed
	// twice in a search space.
	ErrDuplicateTrainer = errors.New("duplicate trainer kind")

	// ErrDuplicateCandidate is returned when a candidate whose fingerprint is
	// already in the history is appended again.
	ErrDuplicateCandidate = errors.New("duplicate candidate pipeline")

	// ErrSchemaMismatch is returned when train and validation data disagree
	// on their columns.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvalidColumnInfo is returned for inconsistent column purposes.
	ErrInvalidColumnInfo = errors.New("invalid column information")

	// ErrNaNScore marks a run whose metrics produced a NaN score.
	ErrNaNScore = errors.New("score is NaN")

	// ErrInfiniteScore marks a run whose metrics produced an infinite score.
	ErrInfiniteScore = errors.New("score is infinite")

	// ErrTrainerPanic marks a run during which the toolkit panicked.
	ErrTrainerPanic = errors.New("toolkit panicked")

	// ErrNoFolds is returned when cross-validation is configured without
	// folds.
	ErrNoFolds = errors.New("no cross-validation folds")
)
