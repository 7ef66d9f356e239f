// Package timersync keeps every participant's round countdown in lockstep.
//
// The elected controller owns the wall-clock anchor stored in the shared
// settings; every participant derives the remaining time locally from that
// anchor and the round duration, re-anchoring whenever a start signal is
// broadcast.
package timersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/game/session"
	"github.com/cory-johannsen/action-initiative/internal/render"
	"github.com/cory-johannsen/action-initiative/internal/settings"
	"github.com/cory-johannsen/action-initiative/internal/transport/bus"
)

// Idle is the timer text shown when no countdown is running.
const Idle = "--"

var (
	// ErrPaused is returned when the timer is started while the session is paused.
	ErrPaused = errors.New("cannot start timer while game is paused")
	// ErrNotController is returned when a non-controller attempts a controller operation.
	ErrNotController = errors.New("participant is not the timer controller")
)

// Broadcaster fires signals to every participant, the sender included.
type Broadcaster interface {
	BroadcastStartTimer(ctx context.Context) error
	BroadcastPause(ctx context.Context, paused bool) error
}

// PauseFlag is the participant-local copy of the host-wide pause state.
type PauseFlag interface {
	SetPaused(paused bool) bool
}

// Options tunes the tick cadence and the settle delays.
type Options struct {
	TickInterval time.Duration
	// SettleDelay is waited after writing the anchor and before broadcasting start.
	SettleDelay time.Duration
	// ResumeDelay is waited after re-anchoring on resume and before broadcasting start.
	ResumeDelay time.Duration
}

// DefaultOptions returns the standard 100ms cadence with 500ms and 1s settle delays.
func DefaultOptions() Options {
	return Options{
		TickInterval: 100 * time.Millisecond,
		SettleDelay:  500 * time.Millisecond,
		ResumeDelay:  time.Second,
	}
}

// Sync is one participant's view of the shared round timer.
// All methods are safe for concurrent use.
type Sync struct {
	store        *settings.Store
	bus          Broadcaster
	isController func() bool
	isPaused     func() bool
	sink         render.Sink
	clock        Clock
	opts         Options
	logger       *zap.Logger

	baseCtx     context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu      sync.Mutex
	gen     uint64
	stop    func()
	anchor  int64
	display string
	closed  bool

	loops atomic.Int32
}

// New creates a Sync for one participant.
//
// Precondition: store, bus, sink, clock, and logger must be non-nil;
// isController and isPaused are queried fresh on every use and must be non-nil.
// Postcondition: Returns a Sync with no running tick loop.
func New(
	store *settings.Store,
	bus Broadcaster,
	isController func() bool,
	isPaused func() bool,
	sink render.Sink,
	clock Clock,
	opts Options,
	logger *zap.Logger,
) *Sync {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sync{
		store:        store,
		bus:          bus,
		isController: isController,
		isPaused:     isPaused,
		sink:         sink,
		clock:        clock,
		opts:         opts,
		logger:       logger,
		baseCtx:      ctx,
		cancel:       cancel,
	}
	s.unsubscribe = store.OnChange(s.settingChanged)
	return s
}

// Start anchors the round timer at now and broadcasts the start signal once
// the settle delay has passed.
//
// Precondition: the session must not be paused; the caller must be the controller.
// Postcondition: timerStartTime == now and timerCurrentTime == 0, then every
// participant received startTimer. Returns ErrPaused or ErrNotController
// without changing any state.
func (s *Sync) Start(ctx context.Context) error {
	if s.isPaused() {
		s.sink.Warn(ErrPaused.Error())
		s.logger.Warn("timer start rejected", zap.Error(ErrPaused))
		return ErrPaused
	}
	if !s.isController() {
		return ErrNotController
	}
	if _, err := s.store.TimerDuration(ctx); err != nil {
		return fmt.Errorf("starting timer: %w", err)
	}
	anchor := s.clock.Now().UnixMilli()
	if err := s.store.SetTimerStartTime(ctx, anchor); err != nil {
		return fmt.Errorf("starting timer: %w", err)
	}
	if err := s.store.SetTimerCurrentTime(ctx, 0); err != nil {
		return fmt.Errorf("starting timer: %w", err)
	}
	s.logger.Debug("timer anchored", zap.Int64("anchor", anchor))
	return s.broadcastAfter(ctx, s.opts.SettleDelay)
}

// HandleStart is the startTimer broadcast handler. It clears any running tick
// loop, then installs a new one when an anchor is stored and the session is
// not paused.
//
// Postcondition: at most one tick loop runs for this participant.
func (s *Sync) HandleStart(ctx context.Context) error {
	anchor, err := s.store.TimerStartTime(ctx)
	if err != nil {
		return fmt.Errorf("handling start: %w", err)
	}

	s.mu.Lock()
	s.clearLocked()
	s.anchor = anchor
	if s.closed || anchor == 0 || s.isPaused() {
		s.mu.Unlock()
		if anchor == 0 {
			s.show(Idle)
		}
		return nil
	}
	s.gen++
	gen := s.gen
	done := make(chan struct{})
	var once sync.Once
	s.stop = func() { once.Do(func() { close(done) }) }
	s.mu.Unlock()

	s.logger.Debug("tick loop installed", zap.Int64("anchor", anchor), zap.Uint64("gen", gen))
	s.loops.Add(1)
	go func() {
		defer s.loops.Add(-1)
		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.tick(s.baseCtx, gen); err != nil {
					s.logger.Warn("timer tick failed", zap.Error(err))
				}
			case <-done:
				return
			case <-s.baseCtx.Done():
				return
			}
		}
	}()
	return nil
}

// Tick recomputes the remaining time from the current anchor and publishes
// the timer text. While paused the display holds.
//
// Postcondition: Returns the displayed text: Idle, or the remaining seconds zero-padded to two digits.
func (s *Sync) Tick(ctx context.Context) (string, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.tick(ctx, gen)
}

func (s *Sync) tick(ctx context.Context, gen uint64) (string, error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return s.Display(), nil
	}
	anchor := s.anchor
	s.mu.Unlock()
	if s.isPaused() {
		return s.Display(), nil
	}

	if anchor == 0 {
		s.show(Idle)
		return Idle, nil
	}
	duration, err := s.store.TimerDuration(ctx)
	if err != nil {
		return s.Display(), fmt.Errorf("reading duration: %w", err)
	}
	remaining := Remaining(duration, anchor, s.clock.Now())
	if remaining > 0 {
		text := fmt.Sprintf("%02d", remaining)
		s.show(text)
		return text, nil
	}

	s.mu.Lock()
	if gen != s.gen {
		// A start or pause replaced this loop while the tick was in flight.
		s.mu.Unlock()
		return s.Display(), nil
	}
	s.clearLocked()
	s.anchor = 0
	s.mu.Unlock()
	s.show(Idle)

	if !s.isController() {
		return Idle, nil
	}
	stored, err := s.store.TimerStartTime(ctx)
	if err != nil {
		return Idle, fmt.Errorf("reading anchor on expiry: %w", err)
	}
	if stored != anchor {
		s.logger.Debug("expired anchor already replaced", zap.Int64("expired", anchor), zap.Int64("stored", stored))
		return Idle, nil
	}
	if err := s.store.SetTimerStartTime(ctx, 0); err != nil {
		return Idle, fmt.Errorf("clearing expired anchor: %w", err)
	}
	s.sink.RefreshTurnOrder()
	s.logger.Debug("round timer expired")
	return Idle, nil
}

// Pause reacts to the host-wide pause turning on. Every participant stops its
// tick loop and holds its display; the controller additionally freezes the
// remaining time when a countdown is running. Pausing twice freezes once.
//
// Postcondition: no tick loop runs; timerCurrentTime holds the frozen
// remaining seconds (clamped to >= 0) when the controller paused a running timer.
func (s *Sync) Pause(ctx context.Context) error {
	s.mu.Lock()
	s.clearLocked()
	anchor := s.anchor
	s.mu.Unlock()

	if !s.isController() {
		// The controller's snapshot may not be written yet; the local anchor
		// yields the same value.
		if anchor == 0 {
			return s.showFrozen(ctx)
		}
		duration, err := s.store.TimerDuration(ctx)
		if err != nil {
			return fmt.Errorf("pausing timer: %w", err)
		}
		s.showRemaining(max(Remaining(duration, anchor, s.clock.Now()), 0))
		return nil
	}

	clock, err := s.store.Clock(ctx)
	if err != nil {
		return fmt.Errorf("pausing timer: %w", err)
	}
	if clock.Running() && clock.Remaining == 0 {
		remaining := max(Remaining(clock.Duration, clock.StartAnchor, s.clock.Now()), 0)
		if err := s.store.SetTimerCurrentTime(ctx, remaining); err != nil {
			return fmt.Errorf("pausing timer: %w", err)
		}
		s.logger.Debug("timer paused", zap.Int64("remaining", remaining))
	}
	return s.showFrozen(ctx)
}

// Resume reacts to the host-wide pause turning off. The controller re-anchors
// the clock so the frozen remaining time continues, waits for the resume
// delay, and broadcasts start. Other participants wait for that broadcast,
// unless it already arrived while they still considered the session paused.
//
// Postcondition: when a positive snapshot existed, timerStartTime ==
// now - 1000*(duration - snapshot) and timerCurrentTime == 0.
func (s *Sync) Resume(ctx context.Context) error {
	clock, err := s.store.Clock(ctx)
	if err != nil {
		return fmt.Errorf("resuming timer: %w", err)
	}
	if !s.isController() {
		if clock.Running() && clock.Remaining == 0 && !s.Running() {
			return s.HandleStart(ctx)
		}
		return nil
	}
	if clock.Remaining <= 0 {
		return nil
	}
	anchor := s.clock.Now().UnixMilli() - 1000*(clock.Duration-clock.Remaining)
	if err := s.store.SetTimerStartTime(ctx, anchor); err != nil {
		return fmt.Errorf("resuming timer: %w", err)
	}
	if err := s.store.SetTimerCurrentTime(ctx, 0); err != nil {
		return fmt.Errorf("resuming timer: %w", err)
	}
	s.logger.Debug("timer re-anchored", zap.Int64("anchor", anchor), zap.Int64("remaining", clock.Remaining))
	return s.broadcastAfter(ctx, s.opts.ResumeDelay)
}

// Reset stops the local tick loop and, on the controller, clears the anchor and
// the frozen remaining time.
//
// Postcondition: no tick loop runs; on the controller timerStartTime == 0 and timerCurrentTime == 0.
func (s *Sync) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.clearLocked()
	s.anchor = 0
	s.mu.Unlock()

	if !s.isController() {
		return ErrNotController
	}
	if err := s.store.SetTimerStartTime(ctx, 0); err != nil {
		return fmt.Errorf("resetting timer: %w", err)
	}
	if err := s.store.SetTimerCurrentTime(ctx, 0); err != nil {
		return fmt.Errorf("resetting timer: %w", err)
	}
	return nil
}

// RequestPause asks every participant, this one included, to pause or resume.
// Each participant's Signals handler then records the flag and reacts.
func (s *Sync) RequestPause(ctx context.Context, paused bool) error {
	if err := s.bus.BroadcastPause(ctx, paused); err != nil {
		return fmt.Errorf("broadcasting %s: %w", bus.PauseSignal(paused), err)
	}
	return nil
}

// Signals returns this participant's bus handler. startTimer re-anchors the
// local countdown; pause and resume first record the state in flag.
func (s *Sync) Signals(flag PauseFlag) bus.Handler {
	return func(ctx context.Context, sig session.Signal) error {
		switch sig {
		case session.SignalStartTimer:
			return s.HandleStart(ctx)
		case session.SignalPause:
			flag.SetPaused(true)
			return s.Pause(ctx)
		case session.SignalResume:
			flag.SetPaused(false)
			return s.Resume(ctx)
		}
		return fmt.Errorf("unknown signal %q", sig)
	}
}

// BroadcastStart sends the start signal without touching the anchor.
func (s *Sync) BroadcastStart(ctx context.Context) error {
	if err := s.bus.BroadcastStartTimer(ctx); err != nil {
		return fmt.Errorf("broadcasting start: %w", err)
	}
	return nil
}

// Resync re-enters the tick loop when joining a session whose timer is already running.
func (s *Sync) Resync(ctx context.Context) error {
	anchor, err := s.store.TimerStartTime(ctx)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	if anchor == 0 {
		return s.showFrozen(ctx)
	}
	return s.HandleStart(ctx)
}

// CanStart reports whether the start control should be offered to this participant:
// only the controller sees it, and only while no remaining time is frozen.
func (s *Sync) CanStart(ctx context.Context) (bool, error) {
	if !s.isController() {
		return false, nil
	}
	cur, err := s.store.TimerCurrentTime(ctx)
	if err != nil {
		return false, err
	}
	return cur == 0, nil
}

// Running reports whether a tick loop is installed.
func (s *Sync) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// ActiveLoops returns the number of tick goroutines still alive.
func (s *Sync) ActiveLoops() int {
	return int(s.loops.Load())
}

// Display returns the last published timer text.
func (s *Sync) Display() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.display == "" {
		return Idle
	}
	return s.display
}

// Close stops the tick loop and rejects further starts.
//
// Postcondition: no tick goroutine outlives Close for longer than one tick.
func (s *Sync) Close() {
	s.mu.Lock()
	s.closed = true
	s.clearLocked()
	s.mu.Unlock()
	s.unsubscribe()
	s.cancel()
}

// Remaining computes the whole seconds left of a duration-second round anchored
// at anchorMillis.
//
// Postcondition: Returns duration - floor((now - anchor) / 1000).
func Remaining(duration, anchorMillis int64, now time.Time) int64 {
	delta := now.UnixMilli() - anchorMillis
	elapsed := delta / 1000
	if delta%1000 != 0 && delta < 0 {
		elapsed--
	}
	return duration - elapsed
}

// settingChanged republishes a running countdown as soon as the round
// duration changes instead of on the next tick.
func (s *Sync) settingChanged(ch settings.Change) {
	if ch.Key != settings.KeyTimerDuration || !s.Running() {
		return
	}
	if _, err := s.Tick(s.baseCtx); err != nil {
		s.logger.Warn("refreshing timer after duration change", zap.Error(err))
	}
}

func (s *Sync) broadcastAfter(ctx context.Context, delay time.Duration) error {
	if delay > 0 {
		if err := s.clock.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("waiting for settings to settle: %w", err)
		}
	}
	return s.BroadcastStart(ctx)
}

// clearLocked stops the current tick loop. Caller must hold s.mu.
func (s *Sync) clearLocked() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.gen++
}

func (s *Sync) showFrozen(ctx context.Context) error {
	cur, err := s.store.TimerCurrentTime(ctx)
	if err != nil {
		return fmt.Errorf("reading frozen time: %w", err)
	}
	s.showRemaining(cur)
	return nil
}

func (s *Sync) showRemaining(seconds int64) {
	if seconds > 0 {
		s.show(fmt.Sprintf("%02d", seconds))
		return
	}
	s.show(Idle)
}

func (s *Sync) show(text string) {
	s.mu.Lock()
	changed := s.display != text
	s.display = text
	s.mu.Unlock()
	if changed {
		s.sink.RefreshTimer(text)
	}
}
