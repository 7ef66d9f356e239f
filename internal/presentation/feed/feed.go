// Package feed publishes render triggers to browser clients over a websocket
// and serves the ordered tracker as JSON.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/timersync"
)

const (
	writeWait      = 5 * time.Second
	clientQueueLen = 64
)

// Encounters resolves the encounter shown on the tracker.
type Encounters interface {
	Active() (*combat.Encounter, bool)
}

// Event is one render trigger as sent to websocket clients.
type Event struct {
	Type    string   `json:"type"`
	TokenID string   `json:"token_id,omitempty"`
	On      *bool    `json:"on,omitempty"`
	Text    string   `json:"text,omitempty"`
	Tracker *Tracker `json:"tracker,omitempty"`
}

// Tracker is the JSON view of the turn order.
type Tracker struct {
	EncounterID string  `json:"encounter_id,omitempty"`
	Round       int     `json:"round"`
	Timer       string  `json:"timer"`
	Turns       []Entry `json:"turns"`
}

// Entry is one row of the tracker.
type Entry struct {
	CombatantID string `json:"combatant_id"`
	Name        string `json:"name"`
	TokenID     string `json:"token_id,omitempty"`
	// Group is the color group: melee, ranged, or declared.
	Group string `json:"group"`
	// Initiative is the magnitude as displayed; empty until the combatant acts.
	Initiative string `json:"initiative,omitempty"`
	Value      string `json:"value,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Feed implements render.Sink by fanning triggers out to connected clients.
// No method blocks on a slow client; its queue overflows and it is dropped.
type Feed struct {
	encounters Encounters
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	timer   string
}

// New creates a Feed reading the tracker from encounters.
//
// Precondition: encounters and logger must be non-nil.
func New(encounters Encounters, logger *zap.Logger) *Feed {
	return &Feed{
		encounters: encounters,
		logger:     logger,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:    make(map[*client]struct{}),
		timer:      timersync.Idle,
	}
}

// Router returns the HTTP routes served by the feed.
func (f *Feed) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", f.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/tracker", f.handleTracker).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return r
}

// Snapshot builds the current tracker view.
//
// Postcondition: Turns is in turn order and never nil.
func (f *Feed) Snapshot() Tracker {
	f.mu.Lock()
	t := Tracker{Timer: f.timer, Turns: []Entry{}}
	f.mu.Unlock()

	enc, ok := f.encounters.Active()
	if !ok {
		return t
	}
	t.EncounterID = enc.ID
	t.Round = enc.Round()
	for _, turn := range enc.Turns() {
		e := Entry{
			CombatantID: turn.CombatantID,
			Name:        turn.Name,
			TokenID:     turn.TokenID,
			Group:       turn.Group().String(),
		}
		if turn.Initiative != nil {
			e.Initiative = turn.Initiative.Display()
			e.Value = turn.Initiative.String()
		}
		t.Turns = append(t.Turns, e)
	}
	return t
}

// Clients returns the number of connected websocket clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close disconnects every client.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		delete(f.clients, c)
		c.close()
	}
}

// RefreshTurnOrder implements render.Sink.
func (f *Feed) RefreshTurnOrder() {
	snap := f.Snapshot()
	f.publish(Event{Type: "turn_order", Tracker: &snap})
}

// RefreshTimer implements render.Sink.
func (f *Feed) RefreshTimer(text string) {
	f.mu.Lock()
	f.timer = text
	f.mu.Unlock()
	f.publish(Event{Type: "timer", Text: text})
}

// RedrawTokenEffects implements render.Sink.
func (f *Feed) RedrawTokenEffects(tokenID string) {
	f.publish(Event{Type: "redraw", TokenID: tokenID})
}

// HighlightToken implements render.Sink.
func (f *Feed) HighlightToken(tokenID string, on bool) {
	f.publish(Event{Type: "highlight", TokenID: tokenID, On: &on})
}

// Warn implements render.Sink.
func (f *Feed) Warn(message string) {
	f.publish(Event{Type: "warn", Text: message})
}

func (f *Feed) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error("encoding feed event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			f.logger.Warn("feed client too slow, dropping", zap.String("remote", c.conn.RemoteAddr().String()))
			delete(f.clients, c)
			c.close()
		}
	}
}

func (f *Feed) handleTracker(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(f.Snapshot()); err != nil {
		f.logger.Warn("writing tracker", zap.Error(err))
	}
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientQueueLen)}

	// The first frame is the current tracker so late joiners render at once.
	snap := f.Snapshot()
	first, err := json.Marshal(Event{Type: "turn_order", Tracker: &snap})
	if err == nil {
		c.send <- first
	}

	f.mu.Lock()
	f.clients[c] = struct{}{}
	n := len(f.clients)
	f.mu.Unlock()
	f.logger.Debug("feed client connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("clients", n),
	)

	go f.writePump(c)
	f.readPump(c)
}

// readPump discards client frames and unregisters the client when it goes away.
func (f *Feed) readPump(c *client) {
	defer func() {
		f.mu.Lock()
		if _, ok := f.clients[c]; ok {
			delete(f.clients, c)
			c.close()
		}
		f.mu.Unlock()
		f.logger.Debug("feed client disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			f.logger.Debug("feed write failed", zap.Error(err))
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
