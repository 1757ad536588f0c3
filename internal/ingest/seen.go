package ingest

import "sync"

// seenSet is a process-local, memory-bounded record of handled
// transaction hashes. It is an optimization, not the durability
// mechanism: the ledger's uniqueness key absorbs anything that slips
// through. Past the cap the whole set is cleared and refills.
type seenSet struct {
	mu  sync.Mutex
	set map[string]struct{}
	cap int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		set: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

// Contains reports whether the hash was already recorded.
func (s *seenSet) Contains(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.set[hash]
	return ok
}

// Add records a hash. Callers record hashes only after the surrounding
// block persisted, so a failed block stays retryable.
func (s *seenSet) Add(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[hash]; ok {
		return
	}
	if len(s.set) >= s.cap {
		s.set = make(map[string]struct{}, s.cap)
	}
	s.set[hash] = struct{}{}
}
