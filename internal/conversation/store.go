package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type session struct {
	state    *State
	lastUsed time.Time
}

// Store keeps conversation states by session id.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*session), now: time.Now}
}

// Get returns the state for id, creating it when missing. An empty id gets a fresh uuid.
func (s *Store) Get(id string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if sess, ok := s.sessions[id]; ok {
		sess.lastUsed = s.now()
		return sess.state
	}
	st := NewState(id)
	s.sessions[id] = &session{state: st, lastUsed: s.now()}
	return st
}

// Clear resets a session's state if it exists.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.state.Clear()
	}
	return ok
}

// Delete removes a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune drops sessions not used within maxIdle and returns how many went.
func (s *Store) Prune(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor prunes idle sessions every interval until ctx ends. A
// non-positive maxIdle disables it.
func (s *Store) RunJanitor(ctx context.Context, interval, maxIdle time.Duration, onPrune func(int)) {
	if maxIdle <= 0 {
		return
	}
	if interval <= 0 {
		interval = maxIdle / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Prune(maxIdle); n > 0 && onPrune != nil {
				onPrune(n)
			}
		}
	}
}
