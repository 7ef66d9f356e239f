package session

import (
	"errors"
	"fmt"
	"sync"
)

// Participant is one connected (or previously connected) member of the session.
type Participant struct {
	ID   string
	Name string
	// Owner marks a session owner; only active owners can be elected controller.
	Owner bool
	// Active is false once the participant has left.
	Active bool
	// Entity receives broadcast signals while the participant is active.
	Entity *BridgeEntity

	seq uint64
}

// Manager tracks session participants, the host-wide pause flag, and
// controller election.
// All methods are safe for concurrent use.
type Manager struct {
	mu           sync.RWMutex
	participants map[string]*Participant
	nextSeq      uint64
	paused       bool
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{participants: make(map[string]*Participant)}
}

// Join marks participant id active, registering it on first join.
// A returning participant keeps its original join position.
//
// Precondition: id must be non-empty.
// Postcondition: Returns the participant, or an error if it is already active.
func (m *Manager) Join(id, name string, owner bool) (*Participant, error) {
	if id == "" {
		return nil, errors.New("participant id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.participants[id]
	if exists && p.Active {
		return nil, fmt.Errorf("participant %q already connected", id)
	}
	if !exists {
		m.nextSeq++
		p = &Participant{ID: id, seq: m.nextSeq}
		m.participants[id] = p
	}
	p.Name = name
	p.Owner = owner
	p.Active = true
	p.Entity = NewBridgeEntity(id, 16)
	return p, nil
}

// Leave marks participant id inactive and closes its entity.
//
// Postcondition: Returns an error if the participant is unknown.
func (m *Manager) Leave(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.participants[id]
	if !exists {
		return fmt.Errorf("participant %q not found", id)
	}
	p.Active = false
	if p.Entity != nil {
		_ = p.Entity.Close()
	}
	return nil
}

// Get returns the participant with id.
func (m *Manager) Get(id string) (*Participant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[id]
	return p, ok
}

// Controller returns the elected controller: the earliest-joined participant
// that is both an owner and active.
//
// Postcondition: Returns (id, true), or ("", false) when no owner is present.
func (m *Manager) Controller() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *Participant
	for _, p := range m.participants {
		if !p.Owner || !p.Active {
			continue
		}
		if best == nil || p.seq < best.seq {
			best = p
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// IsController reports whether id is the elected controller right now.
func (m *Manager) IsController(id string) bool {
	c, ok := m.Controller()
	return ok && c == id
}

// ControllerFunc returns a predicate re-evaluating the election on every call.
func (m *Manager) ControllerFunc(id string) func() bool {
	return func() bool { return m.IsController(id) }
}

// IsOwner reports whether id is a registered owner.
func (m *Manager) IsOwner(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[id]
	return ok && p.Owner
}

// Broadcast pushes sig to every active participant, the sender included.
//
// Postcondition: Returns the number of participants reached and the joined
// delivery errors of those that could not be reached.
func (m *Manager) Broadcast(sig Signal) (int, error) {
	m.mu.RLock()
	entities := make([]*BridgeEntity, 0, len(m.participants))
	for _, p := range m.participants {
		if p.Active && p.Entity != nil {
			entities = append(entities, p.Entity)
		}
	}
	m.mu.RUnlock()

	var errs []error
	delivered := 0
	for _, e := range entities {
		if err := e.Push(sig); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// ActiveCount returns the number of active participants.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.participants {
		if p.Active {
			n++
		}
	}
	return n
}

// SetPaused records the host-wide pause flag.
//
// Postcondition: Returns true iff the flag changed.
func (m *Manager) SetPaused(paused bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused == paused {
		return false
	}
	m.paused = paused
	return true
}

// Paused reports the host-wide pause flag.
func (m *Manager) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}
