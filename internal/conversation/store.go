// Package conversation keeps the ordered turn history of every live session.
package conversation

import "sync"

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Turn is one entry of a conversation, replayed verbatim to the model.
type Turn struct {
	Role Role
	Text string
}

// Store maps session ids to their turn history. A missing id reads as an
// empty history.
type Store struct {
	mu    sync.Mutex
	turns map[string][]Turn
}

func NewStore() *Store {
	return &Store{turns: make(map[string][]Turn)}
}

// Seed replaces any history under id with a single assistant greeting turn.
func (s *Store) Seed(id, greeting string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[id] = []Turn{{Role: RoleAssistant, Text: greeting}}
}

func (s *Store) Append(id string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[id] = append(s.turns[id], turns...)
}

// History returns a copy of the turns stored under id.
func (s *Store) History(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.turns[id]
	if len(h) == 0 {
		return nil
	}
	out := make([]Turn, len(h))
	copy(out, h)
	return out
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, id)
}

// Move transfers the history of oldID to newID, overwriting whatever newID
// held. Nothing happens when oldID has no history or the ids are equal.
func (s *Store) Move(oldID, newID string) bool {
	if oldID == newID {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.turns[oldID]
	if !ok {
		return false
	}
	delete(s.turns, oldID)
	s.turns[newID] = h
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
