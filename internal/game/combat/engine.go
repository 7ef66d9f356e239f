package combat

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cory-johannsen/action-initiative/internal/game/initiative"
	"github.com/cory-johannsen/action-initiative/internal/game/scene"
)

// ErrNotInEncounter is returned when a combatant or actor is not part of the encounter.
var ErrNotInEncounter = errors.New("not part of the encounter")

// Encounter holds the live state of one structured combat.
// All methods are safe for concurrent use.
type Encounter struct {
	// ID is the encounter identifier.
	ID string
	// Scene is the play surface the encounter takes place on.
	Scene *scene.Scene

	mu         sync.RWMutex
	round      int
	combatants []*Combatant
	actors     map[string]*Actor
}

// NewEncounter creates an empty encounter on sc at round 0.
//
// Precondition: id must be non-empty; sc must be non-nil.
func NewEncounter(id string, sc *scene.Scene) *Encounter {
	return &Encounter{ID: id, Scene: sc, actors: make(map[string]*Actor)}
}

// Add registers a combatant and its actor.
//
// Precondition: c.ID must be non-empty and unique within the encounter; actor.ID == c.ActorID.
// Postcondition: Returns an error on duplicate IDs; the combatant starts without initiative.
func (e *Encounter) Add(c *Combatant, actor *Actor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.ID == "" {
		return fmt.Errorf("combatant id must not be empty")
	}
	for _, existing := range e.combatants {
		if existing.ID == c.ID {
			return fmt.Errorf("combatant %q already in encounter %q", c.ID, e.ID)
		}
	}
	if actor != nil {
		if actor.ID != c.ActorID {
			return fmt.Errorf("actor %q does not match combatant actor %q", actor.ID, c.ActorID)
		}
		e.actors[actor.ID] = actor
	}
	c.initiative = nil
	c.chatMessageID = ""
	e.combatants = append(e.combatants, c)
	return nil
}

// Remove deletes a combatant from the encounter.
func (e *Encounter) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.combatants {
		if c.ID == id {
			e.combatants = append(e.combatants[:i], e.combatants[i+1:]...)
			return
		}
	}
}

// Actor returns the actor registered under id.
func (e *Encounter) Actor(id string) (*Actor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.actors[id]
	return a, ok
}

// InCombat reports whether actorID has a combatant in this encounter.
func (e *Encounter) InCombat(actorID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.combatants {
		if c.ActorID == actorID {
			return true
		}
	}
	return false
}

// CombatantForActor resolves the combatant acting for actorID: the combatant
// bound to the actor's first active token, else the first combatant of that actor.
//
// Postcondition: Returns a snapshot, or ErrNotInEncounter.
func (e *Encounter) CombatantForActor(actorID string) (Turn, error) {
	var tokenID string
	if e.Scene != nil {
		if tok, ok := e.Scene.ActiveToken(actorID); ok {
			tokenID = tok.ID
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	var fallback *Combatant
	for _, c := range e.combatants {
		if c.ActorID != actorID {
			continue
		}
		if tokenID != "" && c.TokenID == tokenID {
			return c.snapshot(), nil
		}
		if fallback == nil {
			fallback = c
		}
	}
	if fallback == nil {
		return Turn{}, fmt.Errorf("actor %q: %w", actorID, ErrNotInEncounter)
	}
	return fallback.snapshot(), nil
}

// Combatant returns a snapshot of combatant id.
func (e *Encounter) Combatant(id string) (Turn, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c := e.find(id)
	if c == nil {
		return Turn{}, false
	}
	return c.snapshot(), true
}

// SetInitiative commits score for combatant id together with the chat entry that produced it.
//
// Postcondition: Returns ErrNotInEncounter if id is unknown; otherwise the
// combatant's initiative and chat reference are replaced.
func (e *Encounter) SetInitiative(id string, score initiative.Score, chatMessageID string) error {
	if !score.Category.Valid() {
		return fmt.Errorf("combatant %q: %w", id, initiative.ErrUnknownCategory)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.find(id)
	if c == nil {
		return fmt.Errorf("combatant %q: %w", id, ErrNotInEncounter)
	}
	s := score
	if s.Tiebreak != nil {
		tb := *s.Tiebreak
		s.Tiebreak = &tb
	}
	c.initiative = &s
	c.chatMessageID = chatMessageID
	return nil
}

// ClearInitiative removes the initiative and chat reference of combatant id.
//
// Postcondition: Returns ErrNotInEncounter if id is unknown.
func (e *Encounter) ClearInitiative(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.find(id)
	if c == nil {
		return fmt.Errorf("combatant %q: %w", id, ErrNotInEncounter)
	}
	c.initiative = nil
	c.chatMessageID = ""
	return nil
}

// ResetAll clears every combatant's initiative and chat reference.
//
// Postcondition: Returns the number of combatants whose initiative was cleared.
func (e *Encounter) ResetAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.combatants {
		if c.initiative != nil {
			n++
		}
		c.initiative = nil
		c.chatMessageID = ""
	}
	return n
}

// Turns returns the combatants in turn order.
//
// Postcondition: The result is sorted with initiative.Sort and shares no state with the encounter.
func (e *Encounter) Turns() []Turn {
	e.mu.RLock()
	turns := make([]Turn, 0, len(e.combatants))
	for _, c := range e.combatants {
		turns = append(turns, c.snapshot())
	}
	e.mu.RUnlock()
	initiative.Sort(turns)
	return turns
}

// Round returns the current round number.
func (e *Encounter) Round() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

// NextRound increments the round counter.
//
// Postcondition: Returns the new round number.
func (e *Encounter) NextRound() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round++
	return e.round
}

func (e *Encounter) find(id string) *Combatant {
	for _, c := range e.combatants {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Engine manages all encounters, keyed by encounter ID.
// All methods are safe for concurrent use.
type Engine struct {
	mu         sync.RWMutex
	encounters map[string]*Encounter
	active     string
}

// NewEngine creates an empty Engine.
//
// Postcondition: Returns a non-nil Engine ready for use.
func NewEngine() *Engine {
	return &Engine{encounters: make(map[string]*Encounter)}
}

// Start registers enc and makes it the active encounter.
//
// Postcondition: Returns an error if an encounter with the same ID exists.
func (g *Engine) Start(enc *Encounter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.encounters[enc.ID]; exists {
		return fmt.Errorf("encounter %q already active", enc.ID)
	}
	g.encounters[enc.ID] = enc
	g.active = enc.ID
	return nil
}

// Get returns the encounter with id.
func (g *Engine) Get(id string) (*Encounter, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	enc, ok := g.encounters[id]
	return enc, ok
}

// Active returns the most recently started encounter that has not ended.
func (g *Engine) Active() (*Encounter, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	enc, ok := g.encounters[g.active]
	return enc, ok
}

// End removes the encounter with id.
func (g *Engine) End(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.encounters, id)
	if g.active == id {
		g.active = ""
	}
}
