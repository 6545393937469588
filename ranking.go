package automl

import "sort"

//////
// Exported functionalities.
//////

// BestBy returns the item with the best usable score, honoring direction.
// Items whose score is NaN or infinite are skipped. Ties go to the first
// occurrence. The boolean is false when no item has a usable score.
//
// Usage example:
//
//	best, ok := BestBy(records, Minimize, func(r Record) float64 { return r.Score })
func BestBy[T any](items []T, direction Direction, score func(T) float64) (T, bool) {
	var (
		best  T
		found bool
		top   float64
	)

	for _, item := range items {
		s := score(item)
		if !isUsable(s) {
			continue
		}

		if !found || direction.Better(s, top) {
			best, top, found = item, s, true
		}
	}

	return best, found
}

// TopNBy returns at most n items with usable scores, best first. Equal
// scores keep their input order. It returns an empty slice when nothing is
// usable or n <= 0.
func TopNBy[T any](items []T, n int, direction Direction, score func(T) float64) []T {
	if n <= 0 {
		return []T{}
	}

	usable := make([]T, 0, len(items))
	for _, item := range items {
		if isUsable(score(item)) {
			usable = append(usable, item)
		}
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return direction.Better(score(usable[i]), score(usable[j]))
	})

	if len(usable) > n {
		usable = usable[:n]
	}

	return usable
}

// Best returns the entry with the best validation score.
func Best(entries []Entry, direction Direction) (Entry, bool) {
	return BestBy(entries, direction, entryScore)
}

// TopN returns the n best entries by validation score.
func TopN(entries []Entry, n int, direction Direction) []Entry {
	return TopNBy(entries, n, direction, entryScore)
}

//////
// Helper functions.
//////

func entryScore(e Entry) float64 { return e.Result.Score }
