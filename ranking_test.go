package automl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredEntries(t *testing.T, scores ...float64) []Entry {
	t.Helper()

	kinds := []TrainerKind{FastTree, LightGbm, SymSgd, LinearSvm, FastForest, AveragedPerceptron}
	require.LessOrEqual(t, len(scores), len(kinds))

	entries := make([]Entry, len(scores))
	for i, s := range scores {
		entries[i] = Entry{
			Candidate: NewCandidate(nil, mustTrainer(t, kinds[i]), nil),
			Result:    RunResult{Score: s, Success: !math.IsNaN(s)},
		}
	}

	return entries
}

func TestBestEmpty(t *testing.T) {
	_, ok := Best(nil, Maximize)
	assert.False(t, ok)

	_, ok = Best(scoredEntries(t, math.NaN(), math.NaN()), Maximize)
	assert.False(t, ok)

	assert.Empty(t, TopN(nil, 3, Maximize))
}

func TestBestHonorsDirection(t *testing.T) {
	entries := scoredEntries(t, 0.4, math.NaN(), 0.9, 0.1, math.Inf(1))

	best, ok := Best(entries, Maximize)
	require.True(t, ok)
	assert.Equal(t, SymSgd, best.Candidate.Trainer().Kind())

	best, ok = Best(entries, Minimize)
	require.True(t, ok)
	assert.Equal(t, LinearSvm, best.Candidate.Trainer().Kind())
}

func TestBestTiesGoToFirst(t *testing.T) {
	best, ok := Best(scoredEntries(t, 0.5, 0.7, 0.7), Maximize)
	require.True(t, ok)
	assert.Equal(t, LightGbm, best.Candidate.Trainer().Kind())
}

func TestTopN(t *testing.T) {
	entries := scoredEntries(t, 0.4, math.NaN(), 0.9, 0.4, 0.6)

	kinds := func(es []Entry) []TrainerKind {
		out := make([]TrainerKind, len(es))
		for i, e := range es {
			out[i] = e.Candidate.Trainer().Kind()
		}

		return out
	}

	assert.Equal(t, []TrainerKind{SymSgd, FastForest, FastTree}, kinds(TopN(entries, 3, Maximize)))
	assert.Equal(t, []TrainerKind{FastTree, LinearSvm}, kinds(TopN(entries, 2, Minimize)))
	assert.Len(t, TopN(entries, 10, Maximize), 4)
	assert.Empty(t, TopN(entries, 0, Maximize))
	assert.NotNil(t, TopN(entries, -1, Maximize))
}
