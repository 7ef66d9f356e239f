// Package bus is the in-process broadcast transport: every registered
// participant handler receives each signal, the sender included.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/game/session"
)

// Handler reacts to one broadcast signal.
type Handler func(ctx context.Context, sig session.Signal) error

// PauseSignal maps a pause state onto the signal announcing it.
func PauseSignal(paused bool) session.Signal {
	if paused {
		return session.SignalPause
	}
	return session.SignalResume
}

// Bus fans signals out to registered participant handlers.
// All methods are safe for concurrent use.
type Bus struct {
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// New creates an empty Bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{logger: logger, handlers: make(map[string]Handler)}
}

// Register installs h as the handler of participantID, replacing any previous one.
//
// Postcondition: Returns a function removing the registration.
func (b *Bus) Register(participantID string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[participantID] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, participantID)
	}
}

// Len returns the number of registered participants.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// BroadcastStartTimer delivers startTimer to every registered handler.
func (b *Bus) BroadcastStartTimer(ctx context.Context) error {
	return b.Broadcast(ctx, session.SignalStartTimer)
}

// BroadcastPause delivers pause or resume to every registered handler.
func (b *Bus) BroadcastPause(ctx context.Context, paused bool) error {
	return b.Broadcast(ctx, PauseSignal(paused))
}

// Broadcast invokes every registered handler with sig.
//
// Precondition: sig must be a known signal.
// Postcondition: every handler ran once; handler failures are joined into
// the returned error and do not stop delivery to the others.
func (b *Bus) Broadcast(ctx context.Context, sig session.Signal) error {
	if !sig.Known() {
		return fmt.Errorf("unknown signal %q", sig)
	}
	b.mu.Lock()
	targets := make(map[string]Handler, len(b.handlers))
	for id, h := range b.handlers {
		targets[id] = h
	}
	b.mu.Unlock()

	var errs []error
	for id, h := range targets {
		if err := h(ctx, sig); err != nil {
			b.logger.Warn("signal handler failed",
				zap.String("participant", id), zap.String("signal", string(sig)), zap.Error(err))
			errs = append(errs, fmt.Errorf("participant %s: %w", id, err))
		}
	}
	b.logger.Debug("signal broadcast", zap.String("signal", string(sig)), zap.Int("participants", len(targets)))
	return errors.Join(errs...)
}
