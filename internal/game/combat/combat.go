// Package combat models encounters, their combatants, and the actors behind them.
package combat

import (
	"github.com/cory-johannsen/action-initiative/internal/game/initiative"
)

// Ability identifies one of the six ability scores.
type Ability string

const (
	Strength     Ability = "str"
	Dexterity    Ability = "dex"
	Constitution Ability = "con"
	Intelligence Ability = "int"
	Wisdom       Ability = "wis"
	Charisma     Ability = "cha"
)

// Valid reports whether a names one of the six abilities.
func (a Ability) Valid() bool {
	switch a {
	case Strength, Dexterity, Constitution, Intelligence, Wisdom, Charisma:
		return true
	}
	return false
}

// Actor is the character sheet behind a token.
type Actor struct {
	ID   string
	Name string
	// Abilities maps ability to raw score (e.g. 14). Missing entries are unscored.
	Abilities map[Ability]int
	// SpellcastingAbility is the ability used for spell-like actions; empty when the actor has none.
	SpellcastingAbility Ability
}

// Modifier returns the modifier for ability a, or false when the actor has no such score.
//
// Postcondition: When ok, mod == AbilityMod(score).
func (a *Actor) Modifier(ab Ability) (mod int, ok bool) {
	if a == nil || ab == "" {
		return 0, false
	}
	score, ok := a.Abilities[ab]
	if !ok {
		return 0, false
	}
	return AbilityMod(score), true
}

// Score returns the raw score for ability a, or false when the actor has no such score.
func (a *Actor) Score(ab Ability) (int, bool) {
	if a == nil {
		return 0, false
	}
	v, ok := a.Abilities[ab]
	return v, ok
}

// AbilityMod computes the standard ability modifier using floor division: floor((score - 10) / 2).
// Postcondition: Returns floor((score - 10) / 2).
func AbilityMod(score int) int {
	diff := score - 10
	if diff < 0 {
		return (diff - 1) / 2
	}
	return diff / 2
}

// Combatant is one participant entry in an encounter.
// Initiative and chat reference are only mutated through the owning Encounter.
type Combatant struct {
	ID      string
	Name    string
	ActorID string
	TokenID string

	initiative    *initiative.Score
	chatMessageID string
}

// Turn is an immutable snapshot of a combatant's place in the turn order.
type Turn struct {
	CombatantID   string
	Name          string
	ActorID       string
	TokenID       string
	Initiative    *initiative.Score
	ChatMessageID string
}

// EntryID implements initiative.Entry.
func (t Turn) EntryID() string { return t.CombatantID }

// EntryScore implements initiative.Entry.
func (t Turn) EntryScore() (initiative.Score, bool) {
	if t.Initiative == nil {
		return initiative.Score{}, false
	}
	return *t.Initiative, true
}

// Group returns the tracker group of the turn: the score category, or declared
// when the combatant has not acted yet.
func (t Turn) Group() initiative.Category {
	if t.Initiative == nil {
		return initiative.Declared
	}
	return t.Initiative.Category
}

func (c *Combatant) snapshot() Turn {
	t := Turn{
		CombatantID:   c.ID,
		Name:          c.Name,
		ActorID:       c.ActorID,
		TokenID:       c.TokenID,
		ChatMessageID: c.chatMessageID,
	}
	if c.initiative != nil {
		s := *c.initiative
		if s.Tiebreak != nil {
			tb := *s.Tiebreak
			s.Tiebreak = &tb
		}
		t.Initiative = &s
	}
	return t
}
