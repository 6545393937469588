package automl

import (
	"fmt"
	"sync"
)

// Entry pairs a candidate with the outcome of running it.
type Entry struct {
	Candidate CandidatePipeline
	Result    RunResult
}

// History is the append-only record of one search run. It keeps the set of
// visited fingerprints so that no candidate is selected twice.
//
// History is safe for concurrent use. The search loop is its only writer.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	visited map[Fingerprint]struct{}
}

// NewHistory returns a history seeded with prior entries, e.g. from a
// resumed run. A duplicate fingerprint among them is an error.
func NewHistory(prior ...Entry) (*History, error) {
	h := &History{visited: make(map[Fingerprint]struct{}, len(prior))}

	for _, e := range prior {
		if err := h.Append(e); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Append records e. It returns ErrDuplicateCandidate when the candidate's
// fingerprint is already present, leaving the history unchanged.
func (h *History) Append(e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.visited == nil {
		h.visited = make(map[Fingerprint]struct{})
	}

	fp := e.Candidate.Fingerprint()
	if _, ok := h.visited[fp]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCandidate, e.Candidate)
	}

	h.visited[fp] = struct{}{}
	h.entries = append(h.entries, e)

	return nil
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.entries)
}

// Entries returns a snapshot of the entries in append order.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]Entry(nil), h.entries...)
}

// Visited reports whether a candidate with fingerprint fp was recorded.
func (h *History) Visited(fp Fingerprint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.visited[fp]

	return ok
}
