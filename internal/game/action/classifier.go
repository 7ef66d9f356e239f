package action

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/chatlog"
	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/dice"
	"github.com/cory-johannsen/action-initiative/internal/game/initiative"
	"github.com/cory-johannsen/action-initiative/internal/render"
)

// ErrCancelled is returned when the actor cancels the attack confirmation.
// The triggering action must abort without rolling.
var ErrCancelled = errors.New("action cancelled")

// Answer is the outcome of the attack confirmation prompt.
type Answer int

const (
	// Affirm sets the initiative flag and proceeds with the attack.
	Affirm Answer = iota + 1
	// Decline proceeds with the attack without setting the flag.
	Decline
	// Cancel aborts the attack.
	Cancel
)

// Prompter asks the acting participant whether an attack should set initiative.
type Prompter interface {
	Confirm(ctx context.Context, act Action) (Answer, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, act Action) (Answer, error)

// Confirm implements Prompter.
func (f PrompterFunc) Confirm(ctx context.Context, act Action) (Answer, error) {
	return f(ctx, act)
}

// Skip names why an action left initiative untouched.
type Skip string

const (
	SkipNone         Skip = ""
	SkipNotInCombat  Skip = "not_in_combat"
	SkipAttack       Skip = "attack_path"
	SkipIneligible   Skip = "ineligible"
	SkipNoModifier   Skip = "no_modifier"
	SkipNotConfirmed Skip = "not_confirmed"
	SkipNoCombatant  Skip = "no_combatant"
	SkipNotAnAttack  Skip = "not_an_attack"
)

// Outcome reports what handling an action did.
type Outcome struct {
	// Skipped is empty when initiative was committed.
	Skipped     Skip
	CombatantID string
	Score       initiative.Score
	// MessageID references the chat entry behind the score.
	MessageID string
}

// Committed reports whether initiative was set.
func (o Outcome) Committed() bool {
	return o.Skipped == SkipNone
}

// AttackRoll is a completed attack roll reported by the host.
type AttackRoll struct {
	Total int
	// MessageID is the chat entry of the attack roll; may be empty.
	MessageID string
}

// Classifier sets combatant initiative from the actions they take.
type Classifier struct {
	roller        *dice.Roller
	log           chatlog.Log
	sink          render.Sink
	gate          *Gate
	dexTiebreaker bool
	logger        *zap.Logger
}

// NewClassifier creates a Classifier.
//
// Precondition: all pointer and interface arguments must be non-nil.
// Postcondition: when dexTiebreaker is set, committed scores carry the actor's
// dexterity score as tiebreak.
func NewClassifier(roller *dice.Roller, log chatlog.Log, sink render.Sink, gate *Gate, dexTiebreaker bool, logger *zap.Logger) *Classifier {
	return &Classifier{
		roller:        roller,
		log:           log,
		sink:          sink,
		gate:          gate,
		dexTiebreaker: dexTiebreaker,
		logger:        logger,
	}
}

// Use handles a non-attack action taken by actorID in enc.
//
// Postcondition: either initiative is committed for the actor's combatant
// with a published roll, or Outcome.Skipped names the no-op policy that applied.
func (c *Classifier) Use(ctx context.Context, enc *combat.Encounter, actorID string, act Action) (Outcome, error) {
	if enc == nil || !enc.InCombat(actorID) {
		return c.skip(SkipNotInCombat, actorID, act), nil
	}
	if act.Kind.IsAttack() {
		return c.skip(SkipAttack, actorID, act), nil
	}
	if !act.Eligible() {
		return c.skip(SkipIneligible, actorID, act), nil
	}
	actor, _ := enc.Actor(actorID)
	mod, ok := resolveModifier(actor, act)
	if !ok {
		return c.skip(SkipNoModifier, actorID, act), nil
	}
	turn, err := enc.CombatantForActor(actorID)
	if err != nil {
		return c.skip(SkipNoCombatant, actorID, act), nil
	}

	speaker := turn.Name
	if enc.Scene != nil {
		if tok, ok := enc.Scene.Token(turn.TokenID); ok && tok.Name != "" {
			speaker = tok.Name
		}
	}
	roll := c.roller.Roll(dice.D20(mod))
	msg, err := c.log.Publish(ctx, chatlog.Message{
		Speaker: speaker,
		Flavor:  fmt.Sprintf("%s rolls for Initiative!", speaker),
		Formula: roll.Formula,
		Dice:    roll.Faces,
		Total:   roll.Total(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("publishing initiative roll: %w", err)
	}
	return c.commit(enc, actor, turn, act.Category(), roll.Total(), msg.ID)
}

// ConfirmAttack runs the confirmation prompt before actorID's attack resolves.
//
// Postcondition: Affirm arms the flag for act.ID; Decline leaves it unset;
// Cancel returns ErrCancelled with no flag set. Actors outside the encounter
// and non-attack actions are not prompted.
func (c *Classifier) ConfirmAttack(ctx context.Context, enc *combat.Encounter, actorID string, act Action, p Prompter) error {
	if !act.Kind.IsAttack() || enc == nil || !enc.InCombat(actorID) {
		return nil
	}
	answer, err := p.Confirm(ctx, act)
	if err != nil {
		return fmt.Errorf("confirming %s: %w", act.Name, err)
	}
	switch answer {
	case Affirm:
		c.gate.Arm(act.ID)
		return nil
	case Decline:
		return nil
	case Cancel:
		return ErrCancelled
	default:
		return fmt.Errorf("confirming %s: unknown answer %d", act.Name, answer)
	}
}

// AttackRolled handles a completed attack roll for a confirmed action.
//
// Postcondition: the flag for act.ID is consumed, even when the actor has
// left combat; a second roll of the same use is skipped with SkipNotConfirmed.
func (c *Classifier) AttackRolled(ctx context.Context, enc *combat.Encounter, actorID string, act Action, roll AttackRoll) (Outcome, error) {
	if !act.Kind.IsAttack() {
		return c.skip(SkipNotAnAttack, actorID, act), nil
	}
	// Take before the combat check: a confirmation belongs to one roll and
	// must not survive to the actor's next roll in a later encounter.
	if !c.gate.Take(act.ID) {
		return c.skip(SkipNotConfirmed, actorID, act), nil
	}
	if enc == nil || !enc.InCombat(actorID) {
		c.logger.Debug("attack confirmation discarded outside combat",
			zap.String("actor", actorID),
			zap.String("action", act.Name),
		)
		return c.skip(SkipNotInCombat, actorID, act), nil
	}
	turn, err := enc.CombatantForActor(actorID)
	if err != nil {
		return c.skip(SkipNoCombatant, actorID, act), nil
	}
	actor, _ := enc.Actor(actorID)
	return c.commit(enc, actor, turn, act.AttackCategory(), roll.Total, roll.MessageID)
}

func (c *Classifier) commit(enc *combat.Encounter, actor *combat.Actor, turn combat.Turn, cat initiative.Category, magnitude int, messageID string) (Outcome, error) {
	var tiebreak *int
	if c.dexTiebreaker {
		if dex, ok := actor.Score(combat.Dexterity); ok {
			tiebreak = &dex
		}
	}
	score, err := initiative.Encode(cat, magnitude, tiebreak)
	if err != nil {
		return Outcome{}, err
	}
	if err := enc.SetInitiative(turn.CombatantID, score, messageID); err != nil {
		return Outcome{}, fmt.Errorf("committing initiative: %w", err)
	}
	c.sink.RefreshTurnOrder()
	c.logger.Info("initiative set",
		zap.String("encounter", enc.ID),
		zap.String("combatant", turn.CombatantID),
		zap.Stringer("category", cat),
		zap.Stringer("score", score),
	)
	return Outcome{CombatantID: turn.CombatantID, Score: score, MessageID: messageID}, nil
}

func (c *Classifier) skip(reason Skip, actorID string, act Action) Outcome {
	c.logger.Debug("action leaves initiative unchanged",
		zap.String("actor", actorID),
		zap.String("action", act.Name),
		zap.String("reason", string(reason)),
	)
	return Outcome{Skipped: reason}
}

// resolveModifier returns the actor's spellcasting modifier, falling back to
// the action's save ability.
func resolveModifier(actor *combat.Actor, act Action) (int, bool) {
	if actor == nil {
		return 0, false
	}
	if mod, ok := actor.Modifier(actor.SpellcastingAbility); ok {
		return mod, true
	}
	return actor.Modifier(act.SaveAbility)
}
