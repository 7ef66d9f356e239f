// Package chatlog records the shared log entries produced by initiative rolls.
package chatlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a message id does not resolve.
	ErrNotFound = errors.New("chat message not found")
	// ErrDuplicate is returned when a message id was already published.
	ErrDuplicate = errors.New("chat message already published")
)

// Message is one published log entry.
type Message struct {
	ID string
	// Speaker is the token or actor name the message is attributed to.
	Speaker string
	Flavor  string
	// Formula is the dice expression rolled, e.g. "1d20+3".
	Formula string
	Dice    []int
	Total   int
	Created time.Time
}

// Log publishes and retrieves messages.
type Log interface {
	// Publish stores msg, assigning ID and Created when unset.
	Publish(ctx context.Context, msg Message) (Message, error)
	Get(ctx context.Context, id string) (Message, error)
}

// Prepare fills in the id and timestamp of an unpublished message.
//
// Postcondition: msg.ID and msg.Created are non-zero.
func Prepare(msg Message, now time.Time) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Created.IsZero() {
		msg.Created = now.UTC()
	}
	return msg
}

// Memory is an in-process Log.
type Memory struct {
	mu       sync.RWMutex
	messages map[string]Message
	order    []string
}

// NewMemory creates an empty Memory log.
func NewMemory() *Memory {
	return &Memory{messages: make(map[string]Message)}
}

// Publish implements Log.
func (m *Memory) Publish(_ context.Context, msg Message) (Message, error) {
	msg = Prepare(msg, time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.messages[msg.ID]; exists {
		return Message{}, fmt.Errorf("%s: %w", msg.ID, ErrDuplicate)
	}
	msg.Dice = append([]int(nil), msg.Dice...)
	m.messages[msg.ID] = msg
	m.order = append(m.order, msg.ID)
	return msg, nil
}

// Get implements Log.
func (m *Memory) Get(_ context.Context, id string) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return msg, nil
}

// All returns every published message in publication order.
func (m *Memory) All() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.messages[id])
	}
	return out
}
