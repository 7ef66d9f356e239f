// Package round drives what happens when a combat round begins: the elected
// controller clears token targets, resets the shared clock and every
// combatant's initiative, then restarts the round timer.
package round

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/targeting"
	"github.com/cory-johannsen/action-initiative/internal/render"
	"github.com/cory-johannsen/action-initiative/internal/timersync"
)

// Timer is the part of the timer synchronizer a round start needs.
type Timer interface {
	Reset(ctx context.Context) error
	Start(ctx context.Context) error
	BroadcastStart(ctx context.Context) error
}

// Result reports what one round-start delivery did.
type Result struct {
	Round int
	// Controller is true when this participant performed the reset.
	Controller bool
	// Duplicate is true when the round had already been handled.
	Duplicate bool
	// ClearedTargets lists the tokens whose non-empty target sets were cleared.
	ClearedTargets []string
	// ResetCombatants counts combatants whose initiative was cleared.
	ResetCombatants int
	// TimerStarted is true when the timer was anchored and started.
	TimerStarted bool
}

// Controller handles round-start events for one participant.
// All methods are safe for concurrent use.
type Controller struct {
	isController func() bool
	timer        Timer
	sink         render.Sink
	autoStart    bool
	logger       *zap.Logger

	mu      sync.Mutex
	handled map[string]int
}

// NewController creates a round Controller.
//
// Precondition: all arguments must be non-nil; isController is queried fresh on every event.
// Postcondition: when autoStart is false a round start only broadcasts the
// start signal over a cleared anchor, leaving the clock stopped.
func NewController(isController func() bool, timer Timer, sink render.Sink, autoStart bool, logger *zap.Logger) *Controller {
	return &Controller{
		isController: isController,
		timer:        timer,
		sink:         sink,
		autoStart:    autoStart,
		logger:       logger,
		handled:      make(map[string]int),
	}
}

// OnRoundStart reacts to enc entering its current round.
//
// Postcondition: the turn order refresh is always requested. Only the
// controller clears targets, resets the clock and initiatives, and restarts
// the timer, and it does so at most once per (encounter, round).
func (c *Controller) OnRoundStart(ctx context.Context, enc *combat.Encounter) (Result, error) {
	c.sink.RefreshTurnOrder()
	res := Result{Round: enc.Round()}
	if !c.isController() {
		return res, nil
	}
	res.Controller = true

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.handled[enc.ID]; ok && last == res.Round {
		res.Duplicate = true
		c.logger.Debug("round start already handled",
			zap.String("encounter", enc.ID),
			zap.Int("round", res.Round),
		)
		return res, nil
	}

	if enc.Scene != nil {
		res.ClearedTargets = targeting.ClearScene(enc.Scene, c.sink)
	}

	if err := c.timer.Reset(ctx); err != nil {
		return res, fmt.Errorf("round %d: %w", res.Round, err)
	}
	res.ResetCombatants = enc.ResetAll()
	c.handled[enc.ID] = res.Round
	c.sink.RefreshTurnOrder()

	c.logger.Info("round started",
		zap.String("encounter", enc.ID),
		zap.Int("round", res.Round),
		zap.Int("cleared_targets", len(res.ClearedTargets)),
		zap.Int("reset_combatants", res.ResetCombatants),
	)

	if c.autoStart {
		err := c.timer.Start(ctx)
		switch {
		case err == nil:
			res.TimerStarted = true
			return res, nil
		case errors.Is(err, timersync.ErrPaused):
			c.logger.Warn("round timer not started", zap.Error(err))
		default:
			return res, fmt.Errorf("round %d: %w", res.Round, err)
		}
	}
	if err := c.timer.BroadcastStart(ctx); err != nil {
		return res, fmt.Errorf("round %d: %w", res.Round, err)
	}
	return res, nil
}

// Forget drops the handled-round bookkeeping of an ended encounter.
func (c *Controller) Forget(encounterID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handled, encounterID)
}
