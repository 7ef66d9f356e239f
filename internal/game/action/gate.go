package action

import "sync"

// Gate holds one-shot "set initiative on this attack" flags keyed by action-use id.
// All methods are safe for concurrent use.
type Gate struct {
	mu    sync.Mutex
	armed map[string]struct{}
}

// NewGate creates an empty Gate.
func NewGate() *Gate {
	return &Gate{armed: make(map[string]struct{})}
}

// Arm sets the flag for id.
func (g *Gate) Arm(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed[id] = struct{}{}
}

// Armed reports whether the flag for id is set.
func (g *Gate) Armed(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.armed[id]
	return ok
}

// Take consumes the flag for id.
//
// Postcondition: Returns true exactly once per Arm.
func (g *Gate) Take(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.armed[id]; !ok {
		return false
	}
	delete(g.armed, id)
	return true
}
