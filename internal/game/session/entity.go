// Package session tracks the participants of the shared table session,
// elects the controller, and delivers broadcast signals to each participant.
package session

import (
	"fmt"
	"sync"
)

// Signal is a broadcast operation delivered to every participant.
type Signal string

const (
	// SignalStartTimer asks every participant to re-anchor its local countdown.
	SignalStartTimer Signal = "startTimer"
	// SignalPause stops every participant's countdown and marks the host paused.
	SignalPause Signal = "pause"
	// SignalResume clears the pause; the controller then re-anchors the round.
	SignalResume Signal = "resume"
)

// Known reports whether sig is one of the signals participants act on.
func (sig Signal) Known() bool {
	switch sig {
	case SignalStartTimer, SignalPause, SignalResume:
		return true
	}
	return false
}

// BridgeEntity routes broadcast signals to a Go channel, bridging the session
// system to whichever transport stream serves the participant.
type BridgeEntity struct {
	id      string
	signals chan Signal
	mu      sync.Mutex
	closed  bool
}

// NewBridgeEntity creates a BridgeEntity for the given participant ID.
//
// Precondition: id must be non-empty.
// Postcondition: Returns a BridgeEntity with an open signals channel.
func NewBridgeEntity(id string, bufferSize int) *BridgeEntity {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &BridgeEntity{
		id:      id,
		signals: make(chan Signal, bufferSize),
	}
}

// ID returns the participant identifier.
func (e *BridgeEntity) ID() string {
	return e.id
}

// Push enqueues sig for delivery.
//
// Postcondition: sig is enqueued, or an error if the entity is closed or full.
func (e *BridgeEntity) Push(sig Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("entity %s is closed", e.id)
	}
	select {
	case e.signals <- sig:
		return nil
	default:
		return fmt.Errorf("entity %s signal buffer full", e.id)
	}
}

// Signals returns the read-only signal channel. The transport stream reads from it.
func (e *BridgeEntity) Signals() <-chan Signal {
	return e.signals
}

// Close marks the entity as closed and closes the signals channel.
//
// Postcondition: The channel is closed. Further Push calls return an error.
func (e *BridgeEntity) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.signals)
	}
	return nil
}

// IsClosed reports whether the entity has been closed.
func (e *BridgeEntity) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
