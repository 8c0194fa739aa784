package notify

import (
	"sync"
	"time"
)

// seenIDs tracks recently handled message IDs so a redelivered change is
// applied once. Entries older than ttl are pruned lazily, at most once per
// ttl, on the next check.
type seenIDs struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	ttl       time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func newSeenIDs(ttl time.Duration) *seenIDs {
	return &seenIDs{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// check reports whether id was already seen, marking it seen if not.
func (s *seenIDs) check(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastPrune) >= s.ttl {
		s.prune(now)
	}
	if at, ok := s.entries[id]; ok && now.Sub(at) < s.ttl {
		return true
	}
	s.entries[id] = now
	return false
}

func (s *seenIDs) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *seenIDs) prune(now time.Time) {
	cutoff := now.Add(-s.ttl)
	for id, at := range s.entries {
		if at.Before(cutoff) {
			delete(s.entries, id)
		}
	}
	s.lastPrune = now
}
