package store

import (
	"sync"

	"streamer-quiz-server/match"
	"streamer-quiz-server/matcherrors"
)

// Store is the process-wide registry of live matches, keyed by match id.
// It is an explicitly owned object injected into the connection-handling
// layer rather than a package-level global, so tests can run isolated
// instances. Mutations of a match itself go through its room goroutine;
// the store only guards the id -> room mapping.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*match.Room
}

// New creates an empty Store.
func New() *Store {
	return &Store{rooms: make(map[string]*match.Room)}
}

// Create registers a room under its match id. Fails with ErrDuplicateID
// if the id is already live.
func (s *Store) Create(r *match.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.Match.ID
	if _, exists := s.rooms[id]; exists {
		return matcherrors.ErrDuplicateID
	}
	s.rooms[id] = r
	return nil
}

// Get returns the room for id, or ErrMatchNotFound.
func (s *Store) Get(id string) (*match.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, matcherrors.ErrMatchNotFound
	}
	return r, nil
}

// Remove forgets the room for id. Safe to call for unknown ids.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

// InUse reports whether id currently maps to a live match. Used by the
// id generator to re-roll colliding candidates.
func (s *Store) InUse(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[id]
	return ok
}

// Count returns the number of live matches (health surface).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// RemoveParticipant removes the connection from every match containing
// it (the disconnect path). Rooms that do not contain the connection
// treat the leave as a no-op.
func (s *Store) RemoveParticipant(connectionID string) {
	s.mu.RLock()
	rooms := make([]*match.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	for _, r := range rooms {
		r.Dispatch(match.Action{Type: match.ActionLeave, ConnectionID: connectionID})
	}
}
