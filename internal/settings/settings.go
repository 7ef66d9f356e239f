// Package settings provides the world-scoped, strongly typed key/value
// settings shared by every participant of the session.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Setting keys as persisted by every backend.
const (
	KeyTimerDuration    = "timerDuration"
	KeyTimerStartTime   = "timerStartTime"
	KeyTimerCurrentTime = "timerCurrentTime"
)

// DefaultTimerDuration is the round duration in seconds when none is configured.
const DefaultTimerDuration int64 = 60

// ErrNegative is returned when a non-negative setting is given a negative value.
var ErrNegative = errors.New("value must not be negative")

// Backend persists raw integer settings.
type Backend interface {
	// Get returns the stored value and true, or false when the key was never set.
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, value int64) error
}

// Change describes one committed setting update.
type Change struct {
	Key string
	Old int64
	New int64
}

// RoundClock is the shared timer state read by every participant.
type RoundClock struct {
	// StartAnchor is the epoch-millis anchor; 0 means the clock is not running.
	StartAnchor int64
	// Duration is the round length in seconds.
	Duration int64
	// Remaining is the frozen remaining seconds while paused or stopped.
	Remaining int64
}

// Running reports whether an anchor is set.
func (c RoundClock) Running() bool {
	return c.StartAnchor != 0
}

// Store exposes typed accessors over a Backend and notifies subscribers of changes.
// All methods are safe for concurrent use.
type Store struct {
	backend         Backend
	logger          *zap.Logger
	defaultDuration int64

	mu     sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// NewStore creates a Store over backend.
//
// Precondition: backend and logger must be non-nil; defaultDuration must be >= 0.
// Postcondition: Returns a Store whose TimerDuration falls back to defaultDuration.
func NewStore(backend Backend, logger *zap.Logger, defaultDuration int64) *Store {
	if defaultDuration < 0 {
		defaultDuration = DefaultTimerDuration
	}
	return &Store{
		backend:         backend,
		logger:          logger,
		defaultDuration: defaultDuration,
		subs:            make(map[int]func(Change)),
	}
}

// TimerDuration returns the configured round duration in seconds.
func (s *Store) TimerDuration(ctx context.Context) (int64, error) {
	return s.get(ctx, KeyTimerDuration, s.defaultDuration)
}

// SetTimerDuration stores the round duration and resets the frozen remaining time.
//
// Precondition: seconds must be >= 0.
// Postcondition: timerDuration == seconds and timerCurrentTime == 0, or an error.
func (s *Store) SetTimerDuration(ctx context.Context, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("%s=%d: %w", KeyTimerDuration, seconds, ErrNegative)
	}
	if err := s.set(ctx, KeyTimerDuration, seconds, s.defaultDuration); err != nil {
		return err
	}
	return s.set(ctx, KeyTimerCurrentTime, 0, 0)
}

// TimerStartTime returns the epoch-millis anchor, 0 when not running.
func (s *Store) TimerStartTime(ctx context.Context) (int64, error) {
	return s.get(ctx, KeyTimerStartTime, 0)
}

// SetTimerStartTime stores the epoch-millis anchor.
func (s *Store) SetTimerStartTime(ctx context.Context, millis int64) error {
	return s.set(ctx, KeyTimerStartTime, millis, 0)
}

// TimerCurrentTime returns the frozen remaining seconds.
func (s *Store) TimerCurrentTime(ctx context.Context) (int64, error) {
	return s.get(ctx, KeyTimerCurrentTime, 0)
}

// SetTimerCurrentTime stores the frozen remaining seconds.
//
// Precondition: seconds must be >= 0.
func (s *Store) SetTimerCurrentTime(ctx context.Context, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("%s=%d: %w", KeyTimerCurrentTime, seconds, ErrNegative)
	}
	return s.set(ctx, KeyTimerCurrentTime, seconds, 0)
}

// Clock reads the three timer settings together.
func (s *Store) Clock(ctx context.Context) (RoundClock, error) {
	var c RoundClock
	var err error
	if c.StartAnchor, err = s.TimerStartTime(ctx); err != nil {
		return RoundClock{}, err
	}
	if c.Duration, err = s.TimerDuration(ctx); err != nil {
		return RoundClock{}, err
	}
	if c.Remaining, err = s.TimerCurrentTime(ctx); err != nil {
		return RoundClock{}, err
	}
	return c, nil
}

// OnChange registers fn to be called after every committed change.
//
// Postcondition: Returns a function that removes the subscription.
func (s *Store) OnChange(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) get(ctx context.Context, key string, def int64) (int64, error) {
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("reading setting %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

func (s *Store) set(ctx context.Context, key string, value, def int64) error {
	old, err := s.get(ctx, key, def)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key, value); err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	s.logger.Debug("setting changed",
		zap.String("key", key),
		zap.Int64("old", old),
		zap.Int64("new", value),
	)
	if old == value {
		return nil
	}

	s.mu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	ch := Change{Key: key, Old: old, New: value}
	for _, fn := range subs {
		fn(ch)
	}
	return nil
}

// Memory is an in-process Backend.
type Memory struct {
	mu     sync.RWMutex
	values map[string]int64
}

// NewMemory creates an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]int64)}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
