// Package content loads encounter scripts: the actors, tokens, combatants and
// actions of one encounter plus an ordered list of steps to replay against it.
package content

import (
	"fmt"
	"time"

	"github.com/cory-johannsen/action-initiative/internal/game/action"
	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/dice"
	"github.com/cory-johannsen/action-initiative/internal/game/scene"
)

// Op names a step of an encounter script.
type Op string

const (
	OpJoin          Op = "join"
	OpLeave         Op = "leave"
	OpRound         Op = "round"
	OpStart         Op = "start"
	OpUse           Op = "use"
	OpConfirmAttack Op = "confirm_attack"
	OpAttackRolled  Op = "attack_rolled"
	OpTarget        Op = "target"
	OpHover         Op = "hover"
	OpAdvance       Op = "advance"
	OpPause         Op = "pause"
	OpResume        Op = "resume"
	OpSetDuration   Op = "set_duration"
)

var validOps = map[Op]bool{
	OpJoin: true, OpLeave: true, OpRound: true, OpStart: true,
	OpUse: true, OpConfirmAttack: true, OpAttackRolled: true,
	OpTarget: true, OpHover: true, OpAdvance: true,
	OpPause: true, OpResume: true, OpSetDuration: true,
}

// Participant is a session member declared by the script.
type Participant struct {
	ID    string
	Name  string
	Owner bool
}

// Step is one scripted event. Only the fields relevant to Op are set.
type Step struct {
	Op          Op
	Participant string
	Actor       string
	Action      string
	Token       string
	Target      string
	// On is the toggle state for target and hover steps.
	On bool
	// Answer is the confirmation answer for confirm_attack.
	Answer action.Answer
	// Total is the attack roll total for attack_rolled.
	Total    int
	Advance  time.Duration
	Duration int64
}

// String renders the step the way it reads in a replay log, e.g. "use aria burning-hands".
func (st Step) String() string {
	onOff := func(on bool) string {
		if on {
			return "on"
		}
		return "off"
	}
	switch st.Op {
	case OpJoin, OpLeave:
		return fmt.Sprintf("%s %s", st.Op, st.Participant)
	case OpUse:
		return fmt.Sprintf("%s %s %s", st.Op, st.Actor, st.Action)
	case OpConfirmAttack:
		return fmt.Sprintf("%s %s %s %s", st.Op, st.Actor, st.Action, answerNames[st.Answer])
	case OpAttackRolled:
		return fmt.Sprintf("%s %s %s %d", st.Op, st.Actor, st.Action, st.Total)
	case OpTarget:
		return fmt.Sprintf("%s %s %s %s", st.Op, st.Participant, st.Target, onOff(st.On))
	case OpHover:
		return fmt.Sprintf("%s %s %s", st.Op, st.Token, onOff(st.On))
	case OpAdvance:
		return fmt.Sprintf("%s %s", st.Op, st.Advance)
	case OpSetDuration:
		return fmt.Sprintf("%s %d", st.Op, st.Duration)
	}
	return string(st.Op)
}

var answerNames = map[action.Answer]string{
	action.Affirm:  "affirm",
	action.Decline: "decline",
	action.Cancel:  "cancel",
}

// Script is a validated encounter script.
type Script struct {
	Encounter     string
	TimerDuration int64
	DexTiebreaker bool
	// Dice lists the scripted d20 faces; empty means random rolls.
	Dice         []int
	Participants []Participant
	Actors       []combat.Actor
	Tokens       []scene.Token
	Combatants   []combat.Combatant
	Actions      map[string]action.Action
	Steps        []Step
}

// Build creates a fresh scene and encounter populated from the script.
//
// Postcondition: Every token is placed and every combatant is added with its actor.
func (s *Script) Build() (*scene.Scene, *combat.Encounter, error) {
	sc := scene.New()
	for i := range s.Tokens {
		tok := s.Tokens[i]
		if err := sc.Place(&tok); err != nil {
			return nil, nil, fmt.Errorf("placing token: %w", err)
		}
	}
	actors := make(map[string]*combat.Actor, len(s.Actors))
	for i := range s.Actors {
		a := s.Actors[i]
		actors[a.ID] = &a
	}
	enc := combat.NewEncounter(s.Encounter, sc)
	for i := range s.Combatants {
		c := s.Combatants[i]
		if err := enc.Add(&c, actors[c.ActorID]); err != nil {
			return nil, nil, fmt.Errorf("adding combatant: %w", err)
		}
	}
	return sc, enc, nil
}

// Validate checks ids are unique and every reference resolves.
//
// Postcondition: Returns nil or an error naming the first violation.
func (s *Script) Validate() error {
	if s.Encounter == "" {
		return fmt.Errorf("encounter id must not be empty")
	}
	if s.TimerDuration < 0 {
		return fmt.Errorf("timer_duration must be >= 0, got %d", s.TimerDuration)
	}
	for _, face := range s.Dice {
		if face < 1 {
			return fmt.Errorf("dice faces must be >= 1, got %d", face)
		}
	}

	participants := make(map[string]bool)
	for _, p := range s.Participants {
		if p.ID == "" {
			return fmt.Errorf("participant id must not be empty")
		}
		if participants[p.ID] {
			return fmt.Errorf("duplicate participant %q", p.ID)
		}
		participants[p.ID] = true
	}
	actors := make(map[string]bool)
	for _, a := range s.Actors {
		if a.ID == "" {
			return fmt.Errorf("actor id must not be empty")
		}
		if actors[a.ID] {
			return fmt.Errorf("duplicate actor %q", a.ID)
		}
		for ab := range a.Abilities {
			if !ab.Valid() {
				return fmt.Errorf("actor %q: unknown ability %q", a.ID, ab)
			}
		}
		if a.SpellcastingAbility != "" && !a.SpellcastingAbility.Valid() {
			return fmt.Errorf("actor %q: unknown spellcasting ability %q", a.ID, a.SpellcastingAbility)
		}
		actors[a.ID] = true
	}
	tokens := make(map[string]bool)
	for _, t := range s.Tokens {
		if t.ID == "" {
			return fmt.Errorf("token id must not be empty")
		}
		if tokens[t.ID] {
			return fmt.Errorf("duplicate token %q", t.ID)
		}
		if t.ActorID != "" && !actors[t.ActorID] {
			return fmt.Errorf("token %q references unknown actor %q", t.ID, t.ActorID)
		}
		for _, p := range t.ControlledBy {
			if !participants[p] {
				return fmt.Errorf("token %q controlled by unknown participant %q", t.ID, p)
			}
		}
		tokens[t.ID] = true
	}
	combatants := make(map[string]bool)
	for _, c := range s.Combatants {
		if c.ID == "" {
			return fmt.Errorf("combatant id must not be empty")
		}
		if combatants[c.ID] {
			return fmt.Errorf("duplicate combatant %q", c.ID)
		}
		if !actors[c.ActorID] {
			return fmt.Errorf("combatant %q references unknown actor %q", c.ID, c.ActorID)
		}
		if c.TokenID != "" && !tokens[c.TokenID] {
			return fmt.Errorf("combatant %q references unknown token %q", c.ID, c.TokenID)
		}
		combatants[c.ID] = true
	}
	for id, a := range s.Actions {
		if a.Kind == "" {
			return fmt.Errorf("action %q: kind must not be empty", id)
		}
		if a.SaveAbility != "" && !a.SaveAbility.Valid() {
			return fmt.Errorf("action %q: unknown save ability %q", id, a.SaveAbility)
		}
		for _, part := range a.DamageParts {
			if _, err := dice.ParseFormula(part); err != nil {
				return fmt.Errorf("action %q: %w", id, err)
			}
		}
	}

	for i, st := range s.Steps {
		if err := s.validateStep(st, participants, actors, tokens); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
	}
	return nil
}

func (s *Script) validateStep(st Step, participants, actors, tokens map[string]bool) error {
	if !validOps[st.Op] {
		return fmt.Errorf("unknown op")
	}
	need := func(ok bool, what, id string) error {
		if !ok {
			return fmt.Errorf("unknown %s %q", what, id)
		}
		return nil
	}
	switch st.Op {
	case OpJoin, OpLeave:
		return need(participants[st.Participant], "participant", st.Participant)
	case OpUse, OpConfirmAttack, OpAttackRolled:
		if err := need(actors[st.Actor], "actor", st.Actor); err != nil {
			return err
		}
		_, ok := s.Actions[st.Action]
		if err := need(ok, "action", st.Action); err != nil {
			return err
		}
		if st.Op == OpConfirmAttack && st.Answer == 0 {
			return fmt.Errorf("answer must be one of [affirm, decline, cancel]")
		}
	case OpTarget:
		if err := need(participants[st.Participant], "participant", st.Participant); err != nil {
			return err
		}
		return need(tokens[st.Target], "token", st.Target)
	case OpHover:
		return need(tokens[st.Token], "token", st.Token)
	case OpAdvance:
		if st.Advance <= 0 {
			return fmt.Errorf("advance must be positive")
		}
	case OpSetDuration:
		if st.Duration < 0 {
			return fmt.Errorf("duration must be >= 0")
		}
	}
	return nil
}
