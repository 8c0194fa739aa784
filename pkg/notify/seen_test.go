package notify

import (
	"testing"
	"time"
)

func TestSeenIDsBasic(t *testing.T) {
	s := newSeenIDs(5 * time.Minute)

	// First check: not seen
	if s.check("msg-1") {
		t.Fatal("expected msg-1 to not be seen")
	}

	// Second check: seen
	if !s.check("msg-1") {
		t.Fatal("expected msg-1 to be seen")
	}

	// Different ID: not seen
	if s.check("msg-2") {
		t.Fatal("expected msg-2 to not be seen")
	}
	if s.len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.len())
	}
}

func TestSeenIDsExpire(t *testing.T) {
	s := newSeenIDs(time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.check("old")
	clock = clock.Add(2 * time.Minute)

	// Pruned on the next check, so "old" is new again
	if s.check("old") {
		t.Fatal("expected old to not be seen after its ttl")
	}
	s.check("fresh")
	if s.len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.len())
	}

	clock = clock.Add(2 * time.Minute)
	s.check("newest")
	if s.len() != 1 {
		t.Fatalf("expected expired entries pruned, got %d", s.len())
	}
}
