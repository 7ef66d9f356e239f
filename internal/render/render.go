// Package render defines the triggers the core emits for the presentation layer.
package render

import (
	"fmt"
	"sync"
)

// Sink receives render triggers. Implementations must be safe for concurrent
// use and must not block; the timer tick loop calls RefreshTimer every tick.
type Sink interface {
	// RefreshTurnOrder asks the tracker to re-read and re-sort the turn list.
	RefreshTurnOrder()
	// RefreshTimer replaces the countdown text ("--" or a two-digit number).
	RefreshTimer(text string)
	// RedrawTokenEffects asks for the effects layer of tokenID to be redrawn.
	RedrawTokenEffects(tokenID string)
	// HighlightToken toggles the hover highlight drawn on tokenID.
	HighlightToken(tokenID string, on bool)
	// Warn surfaces a user-visible warning.
	Warn(message string)
}

// Nop discards every trigger.
type Nop struct{}

func (Nop) RefreshTurnOrder() {}
func (Nop) RefreshTimer(string) {}
func (Nop) RedrawTokenEffects(string) {}
func (Nop) HighlightToken(string, bool) {}
func (Nop) Warn(string) {}

// Multi fans triggers out to several sinks in order.
type Multi []Sink

func (m Multi) RefreshTurnOrder() {
	for _, s := range m {
		s.RefreshTurnOrder()
	}
}

func (m Multi) RefreshTimer(text string) {
	for _, s := range m {
		s.RefreshTimer(text)
	}
}

func (m Multi) RedrawTokenEffects(tokenID string) {
	for _, s := range m {
		s.RedrawTokenEffects(tokenID)
	}
}

func (m Multi) HighlightToken(tokenID string, on bool) {
	for _, s := range m {
		s.HighlightToken(tokenID, on)
	}
}

func (m Multi) Warn(message string) {
	for _, s := range m {
		s.Warn(message)
	}
}

// Recorder keeps every trigger it receives. Used by replays and tests.
type Recorder struct {
	mu     sync.Mutex
	events []string
	timer  string
}

// Events returns a copy of the recorded triggers, formatted as "kind[:arg]".
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded triggers equal event.
func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

// TimerText returns the last timer text received, or "" if none.
func (r *Recorder) TimerText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer
}

// Reset forgets all recorded triggers.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.timer = ""
}

func (r *Recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) RefreshTurnOrder() { r.add("turn_order") }

func (r *Recorder) RefreshTimer(text string) {
	r.mu.Lock()
	r.timer = text
	r.mu.Unlock()
	r.add("timer:" + text)
}

func (r *Recorder) RedrawTokenEffects(tokenID string) { r.add("redraw:" + tokenID) }

func (r *Recorder) HighlightToken(tokenID string, on bool) {
	r.add(fmt.Sprintf("highlight:%s:%t", tokenID, on))
}

func (r *Recorder) Warn(message string) { r.add("warn:" + message) }
