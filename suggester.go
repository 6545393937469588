package automl

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
)

//////
// Const, vars, types.
//////

// SuggesterConfig configures the search strategy.
//
// Fields:
// - Trainers: Available trainers, in enumeration order (required, unique kinds)
// - Transforms: Transform set shared by every candidate
// - Sweeper: Proposes hyperparameters; defaults to a time-seeded
// BayesianSweeper. Pass a seeded sweeper for reproducible runs
// - Direction: Whether the score is maximized or minimized
// - TopKTrainers: Size of the exploitation pool
// - MaxAttempts: Proposals per trainer kind before moving to the next one
// - Logger: Defaults to a no-op logger
type SuggesterConfig struct {
	Trainers     []TrainerSpec
	Transforms   []TransformSpec
	Sweeper      Sweeper
	Direction    Direction
	TopKTrainers int
	MaxAttempts  int
	Logger       *zap.Logger
}

// Suggester decides the next candidate from the run history in two stages:
// exploration tries every trainer once with its defaults, then exploitation
// tunes the best trainers of the exploration stage.
//
// Suggester holds no state of its own: every decision is derived from the
// history passed to Next, so the same history always leads to the same
// decision given the same sweeper state.
type Suggester struct {
	cfg SuggesterConfig
}

//////
// Factory.
//////

// DefaultSuggesterConfig returns a default configuration without trainers.
func DefaultSuggesterConfig() SuggesterConfig {
	return SuggesterConfig{
		Direction:    Maximize,
		TopKTrainers: 3,
		MaxAttempts:  10,
	}
}

// NewSuggester validates cfg and returns the strategy.
//
// Returns ErrNoTrainers when no trainer is given and ErrDuplicateTrainer when
// a kind is listed twice.
func NewSuggester(cfg SuggesterConfig) (*Suggester, error) {
	if len(cfg.Trainers) == 0 {
		return nil, ErrNoTrainers
	}

	seen := make(map[TrainerKind]struct{}, len(cfg.Trainers))
	for _, t := range cfg.Trainers {
		if !t.Kind().Valid() {
			return nil, fmt.Errorf("%w: trainer %v", ErrUnknownKind, t.Kind())
		}

		if _, dup := seen[t.Kind()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTrainer, t.Kind())
		}

		seen[t.Kind()] = struct{}{}
	}

	def := DefaultSuggesterConfig()

	if cfg.TopKTrainers <= 0 {
		cfg.TopKTrainers = def.TopKTrainers
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	if cfg.Sweeper == nil {
		cfg.Sweeper = NewBayesianSweeper(DefaultBayesianConfig(), rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cfg.Trainers = append([]TrainerSpec(nil), cfg.Trainers...)

	transforms := make([]TransformSpec, len(cfg.Transforms))
	for i, t := range cfg.Transforms {
		transforms[i] = t.Clone()
	}

	cfg.Transforms = transforms

	return &Suggester{cfg: cfg}, nil
}

//////
// Methods.
//////

// Stage returns the stage the next suggestion belongs to after n runs.
func (s *Suggester) Stage(n int) Stage {
	if n < len(s.cfg.Trainers) {
		return Exploration
	}

	return Exploitation
}

// Trainers returns the available trainers in enumeration order.
func (s *Suggester) Trainers() []TrainerSpec {
	return append([]TrainerSpec(nil), s.cfg.Trainers...)
}

// Next returns the next candidate to run, or false when the exploitation pool
// yields no novel candidate.
//
// How it works:
//
// 1. While len(history) < len(Trainers), return Trainers[len(history)] with
// the default (empty) assignment.
//
// 2. Otherwise rank the first entry of each kind among the first
// len(Trainers) entries by score (best first, NaN last, ties by first
// appearance) and keep the TopKTrainers best kinds.
//
// 3. Order the pool by how often each kind appears in the whole history,
// least tried first (ties by first appearance).
//
// 4. For each kind, ask the sweeper up to MaxAttempts times for an
// assignment whose candidate fingerprint is not in history. A sweeper with no
// proposal abandons the kind.
func (s *Suggester) Next(history []Entry) (CandidatePipeline, bool) {
	if len(history) < len(s.cfg.Trainers) {
		trainer := s.cfg.Trainers[len(history)]

		return NewCandidate(s.cfg.Transforms, trainer, Assignment{}), true
	}

	visited := make(map[Fingerprint]struct{}, len(history))
	for _, e := range history {
		visited[e.Candidate.Fingerprint()] = struct{}{}
	}

	for _, trainer := range s.orderByTrials(history, s.topTrainers(history)) {
		observations := observationsFor(history, trainer.Kind())
		template := NewCandidate(s.cfg.Transforms, trainer, Assignment{})

		for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
			proposal, ok := s.cfg.Sweeper.Propose(trainer.Generators(), observations, s.cfg.Direction)
			if !ok {
				s.cfg.Logger.Debug("sweeper has no proposal", zap.String("trainer", trainer.Kind().String()))

				break
			}

			candidate := template.WithHyperparams(proposal)
			if _, seen := visited[candidate.Fingerprint()]; !seen {
				return candidate, true
			}
		}

		s.cfg.Logger.Debug("no novel candidate for trainer",
			zap.String("trainer", trainer.Kind().String()),
			zap.Int("attempts", s.cfg.MaxAttempts),
		)
	}

	return CandidatePipeline{}, false
}

// topTrainers returns the TopKTrainers best kinds of the exploration stage.
func (s *Suggester) topTrainers(history []Entry) []TrainerSpec {
	byKind := make(map[TrainerKind]TrainerSpec, len(s.cfg.Trainers))
	for _, t := range s.cfg.Trainers {
		byKind[t.Kind()] = t
	}

	stageOne := history
	if len(stageOne) > len(s.cfg.Trainers) {
		stageOne = stageOne[:len(s.cfg.Trainers)]
	}

	type ranked struct {
		trainer TrainerSpec
		score   float64
	}

	firsts := make([]ranked, 0, len(stageOne))
	grouped := make(map[TrainerKind]struct{}, len(stageOne))

	for _, e := range stageOne {
		kind := e.Candidate.Trainer().Kind()
		if _, dup := grouped[kind]; dup {
			continue
		}

		grouped[kind] = struct{}{}

		// Kinds no longer available are not tuned.
		if t, ok := byKind[kind]; ok {
			firsts = append(firsts, ranked{trainer: t, score: e.Result.Score})
		}
	}

	sort.SliceStable(firsts, func(i, j int) bool {
		return s.cfg.Direction.Better(firsts[i].score, firsts[j].score)
	})

	if len(firsts) > s.cfg.TopKTrainers {
		firsts = firsts[:s.cfg.TopKTrainers]
	}

	out := make([]TrainerSpec, len(firsts))
	for i, r := range firsts {
		out[i] = r.trainer
	}

	return out
}

// orderByTrials sorts pool by ascending number of attempts in history. Kinds
// tried equally often keep the order of their first appearance in history.
func (s *Suggester) orderByTrials(history []Entry, pool []TrainerSpec) []TrainerSpec {
	counts := make(map[TrainerKind]int, len(pool))
	first := make(map[TrainerKind]int, len(pool))

	for i, e := range history {
		kind := e.Candidate.Trainer().Kind()

		counts[kind]++
		if _, ok := first[kind]; !ok {
			first[kind] = i
		}
	}

	ordered := append([]TrainerSpec(nil), pool...)

	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := ordered[i].Kind(), ordered[j].Kind()
		if counts[ki] != counts[kj] {
			return counts[ki] < counts[kj]
		}

		return first[ki] < first[kj]
	})

	return ordered
}

//////
// Helper functions.
//////

// observationsFor returns the successful, scored runs of kind that carried a
// non-empty assignment.
func observationsFor(history []Entry, kind TrainerKind) []Observation {
	var out []Observation

	for _, e := range history {
		if !e.Result.Success || e.Candidate.Trainer().Kind() != kind {
			continue
		}

		hp := e.Candidate.Hyperparams()
		if len(hp) == 0 || !isUsable(e.Result.Score) {
			continue
		}

		out = append(out, Observation{Hyperparams: hp, Score: e.Result.Score})
	}

	return out
}
