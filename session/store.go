package session

import (
	"sync"
	"time"
)

// Target is an in-progress gift selection: the player picked a
// recipient and a gift but has not confirmed the send yet.
type Target struct {
	ReceiverID   int64
	ReceiverName string
	GiftID       string
	ExpiresAt    time.Time
}

// Store holds per-player gift targets with a TTL. It is passed by
// reference into the command layer instead of living as process-global
// state, and is scoped to the command lifecycle: a confirmed or expired
// selection is removed.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	targets map[int64]Target
}

// NewStore creates a session store. ttl bounds how long a selection
// stays valid.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Store{
		ttl:     ttl,
		targets: make(map[int64]Target),
	}
}

// Set records the player's current gift target, replacing any previous
// selection.
func (s *Store) Set(playerID int64, t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ExpiresAt = time.Now().Add(s.ttl)
	s.targets[playerID] = t
}

// Get returns the player's selection if it has not expired. Expired
// entries are removed on read.
func (s *Store) Get(playerID int64) (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[playerID]
	if !ok {
		return Target{}, false
	}
	if time.Now().After(t.ExpiresAt) {
		delete(s.targets, playerID)
		return Target{}, false
	}
	return t, true
}

// Clear drops the player's selection.
func (s *Store) Clear(playerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, playerID)
}

// Count returns the number of live selections, for diagnostics.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for _, t := range s.targets {
		if now.Before(t.ExpiresAt) {
			n++
		}
	}
	return n
}
