// Package scene tracks the tokens placed on the shared play surface and the
// per-token target sets drawn as secondary indicators.
package scene

import (
	"fmt"
	"slices"
	"sync"
)

// Token is a placed piece on the scene, optionally tied to an actor.
type Token struct {
	ID      string
	Name    string
	ActorID string
	// ControlledBy lists the participants currently controlling this token.
	ControlledBy []string
	// targets holds the ids of tokens this token has targeted. Unique, order irrelevant.
	targets []string
}

// Scene holds every token on the play surface.
// All methods are safe for concurrent use.
type Scene struct {
	mu     sync.RWMutex
	order  []string
	tokens map[string]*Token
}

// New creates an empty Scene.
func New() *Scene {
	return &Scene{tokens: make(map[string]*Token)}
}

// Place adds tok to the scene.
//
// Precondition: tok.ID must be non-empty.
// Postcondition: Returns an error if a token with the same ID is already placed.
func (s *Scene) Place(tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == "" {
		return fmt.Errorf("token id must not be empty")
	}
	if _, exists := s.tokens[tok.ID]; exists {
		return fmt.Errorf("token %q already placed", tok.ID)
	}
	s.tokens[tok.ID] = tok
	s.order = append(s.order, tok.ID)
	return nil
}

// Remove deletes a token. References to it held in other target sets become
// stale and are skipped on lookup.
func (s *Scene) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return
	}
	delete(s.tokens, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

// Token returns the token with id, or false if it does not resolve.
func (s *Scene) Token(id string) (*Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	return tok, ok
}

// Tokens returns all tokens in placement order.
func (s *Scene) Tokens() []*Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Token, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tokens[id])
	}
	return out
}

// ActiveToken returns the first placed token linked to actorID.
func (s *Scene) ActiveToken(actorID string) (*Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if tok := s.tokens[id]; tok.ActorID == actorID {
			return tok, true
		}
	}
	return nil, false
}

// ControlledBy returns the tokens participant currently controls, in placement order.
func (s *Scene) ControlledBy(participant string) []*Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Token
	for _, id := range s.order {
		tok := s.tokens[id]
		if slices.Contains(tok.ControlledBy, participant) {
			out = append(out, tok)
		}
	}
	return out
}

// SetControl replaces the participants controlling token id.
func (s *Scene) SetControl(id string, participants ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return fmt.Errorf("token %q not found", id)
	}
	tok.ControlledBy = slices.Clone(participants)
	return nil
}

// AddTarget inserts targetID into the target set of token id.
//
// Postcondition: Returns true iff the set changed.
func (s *Scene) AddTarget(id, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return false, fmt.Errorf("token %q not found", id)
	}
	if slices.Contains(tok.targets, targetID) {
		return false, nil
	}
	tok.targets = append(tok.targets, targetID)
	return true, nil
}

// RemoveTarget deletes targetID from the target set of token id.
//
// Postcondition: Returns true iff the set changed.
func (s *Scene) RemoveTarget(id, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return false, fmt.Errorf("token %q not found", id)
	}
	i := slices.Index(tok.targets, targetID)
	if i < 0 {
		return false, nil
	}
	tok.targets = slices.Delete(tok.targets, i, i+1)
	return true, nil
}

// ClearTargets empties the target set of token id.
//
// Postcondition: Returns true iff the set was non-empty.
func (s *Scene) ClearTargets(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok || len(tok.targets) == 0 {
		return false
	}
	tok.targets = nil
	return true
}

// TargetsOf returns a copy of the target set of token id.
func (s *Scene) TargetsOf(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil
	}
	return slices.Clone(tok.targets)
}
