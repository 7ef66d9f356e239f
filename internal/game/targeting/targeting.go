// Package targeting keeps the per-token sets of targeted tokens that drive the
// secondary target indicators.
package targeting

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/game/scene"
	"github.com/cory-johannsen/action-initiative/internal/render"
)

// Tracker updates target sets from target toggles and serves hover and draw queries.
type Tracker struct {
	scene   *scene.Scene
	isOwner func(participantID string) bool
	sink    render.Sink
	logger  *zap.Logger
}

// NewTracker creates a Tracker over sc.
//
// Precondition: all arguments must be non-nil.
func NewTracker(sc *scene.Scene, isOwner func(participantID string) bool, sink render.Sink, logger *zap.Logger) *Tracker {
	return &Tracker{scene: sc, isOwner: isOwner, sink: sink, logger: logger}
}

// OnTargetToggled records that participantID targeted (or untargeted)
// targetID on every token the participant controls.
//
// Postcondition: Returns the ids of tokens whose target set changed; each was
// redrawn. Toggles by non-owners change nothing.
func (t *Tracker) OnTargetToggled(participantID, targetID string, targeted bool) []string {
	if !t.isOwner(participantID) {
		t.logger.Debug("target toggle ignored", zap.String("participant", participantID))
		return nil
	}
	var changed []string
	for _, tok := range t.scene.ControlledBy(participantID) {
		var ok bool
		var err error
		if targeted {
			ok, err = t.scene.AddTarget(tok.ID, targetID)
		} else {
			ok, err = t.scene.RemoveTarget(tok.ID, targetID)
		}
		if err != nil {
			// removed since ControlledBy was read
			continue
		}
		if ok {
			changed = append(changed, tok.ID)
			t.sink.RedrawTokenEffects(tok.ID)
		}
	}
	return changed
}

// OnHover highlights (or un-highlights) every token targeted by tokenID.
//
// Postcondition: Returns the number of tokens highlighted; stale ids are skipped.
func (t *Tracker) OnHover(tokenID string, hoverIn bool) int {
	n := 0
	for _, tok := range t.AdditionalTargets(tokenID) {
		t.sink.HighlightToken(tok.ID, hoverIn)
		n++
	}
	return n
}

// AdditionalTargets returns the resolvable tokens targeted by tokenID, for the
// renderer to draw as extra indicators.
func (t *Tracker) AdditionalTargets(tokenID string) []*scene.Token {
	var out []*scene.Token
	for _, id := range t.scene.TargetsOf(tokenID) {
		tok, ok := t.scene.Token(id)
		if !ok {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ClearAll empties every target set on the scene.
func (t *Tracker) ClearAll() []string {
	return ClearScene(t.scene, t.sink)
}

// ClearScene empties every non-empty target set on sc and redraws those tokens.
//
// Postcondition: Returns the ids of the cleared tokens; already-empty sets are untouched.
func ClearScene(sc *scene.Scene, sink render.Sink) []string {
	var cleared []string
	for _, tok := range sc.Tokens() {
		if sc.ClearTargets(tok.ID) {
			cleared = append(cleared, tok.ID)
			sink.RedrawTokenEffects(tok.ID)
		}
	}
	return cleared
}
