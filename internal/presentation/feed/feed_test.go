package feed_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/initiative"
	"github.com/cory-johannsen/action-initiative/internal/game/scene"
	"github.com/cory-johannsen/action-initiative/internal/presentation/feed"
	"github.com/cory-johannsen/action-initiative/internal/render"
)

var _ render.Sink = (*feed.Feed)(nil)

func newEngine(t *testing.T) (*combat.Engine, *combat.Encounter) {
	t.Helper()
	sc := scene.New()
	enc := combat.NewEncounter("enc-1", sc)
	for _, id := range []string{"knight", "archer", "cleric", "idle"} {
		require.NoError(t, sc.Place(&scene.Token{ID: "tok-" + id, Name: id, ActorID: "actor-" + id}))
		require.NoError(t, enc.Add(&combat.Combatant{ID: "c-" + id, Name: id, ActorID: "actor-" + id, TokenID: "tok-" + id}, nil))
	}
	require.NoError(t, enc.SetInitiative("c-knight", initiative.MustEncode(initiative.Melee, 18, nil), "m1"))
	require.NoError(t, enc.SetInitiative("c-archer", initiative.MustEncode(initiative.Ranged, 7, nil), "m2"))
	require.NoError(t, enc.SetInitiative("c-cleric", initiative.MustEncode(initiative.Declared, 4, nil), "m3"))
	enc.NextRound()

	eng := combat.NewEngine()
	require.NoError(t, eng.Start(enc))
	return eng, enc
}

func startServer(t *testing.T, f *feed.Feed) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.Router())
	t.Cleanup(func() {
		f.Close()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) feed.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev feed.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestSnapshot_OrdersAndGroups(t *testing.T) {
	eng, _ := newEngine(t)
	f := feed.New(eng, zap.NewNop())

	snap := f.Snapshot()
	assert.Equal(t, "enc-1", snap.EncounterID)
	assert.Equal(t, 1, snap.Round)
	assert.Equal(t, "--", snap.Timer)
	require.Len(t, snap.Turns, 4)

	var ids, groups, shown []string
	for _, e := range snap.Turns {
		ids = append(ids, e.CombatantID)
		groups = append(groups, e.Group)
		shown = append(shown, e.Initiative)
	}
	assert.Equal(t, []string{"c-cleric", "c-archer", "c-knight", "c-idle"}, ids)
	assert.Equal(t, []string{"declared", "ranged", "melee", "declared"}, groups)
	assert.Equal(t, []string{"04", "07", "18", ""}, shown)
	assert.Equal(t, "2.07", snap.Turns[1].Value)
}

func TestSnapshot_NoActiveEncounter(t *testing.T) {
	f := feed.New(combat.NewEngine(), zap.NewNop())
	snap := f.Snapshot()
	assert.Empty(t, snap.EncounterID)
	assert.NotNil(t, snap.Turns)
	assert.Empty(t, snap.Turns)
}

func TestTrackerEndpoint(t *testing.T) {
	eng, _ := newEngine(t)
	f := feed.New(eng, zap.NewNop())
	f.RefreshTimer("42")
	srv := startServer(t, f)

	resp, err := http.Get(srv.URL + "/tracker")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap feed.Tracker
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "42", snap.Timer)
	assert.Len(t, snap.Turns, 4)
}

func TestTrackerEndpoint_RejectsPost(t *testing.T) {
	eng, _ := newEngine(t)
	srv := startServer(t, feed.New(eng, zap.NewNop()))
	resp, err := http.Post(srv.URL+"/tracker", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := startServer(t, feed.New(combat.NewEngine(), zap.NewNop()))
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWebsocket_StreamsTriggers(t *testing.T) {
	eng, enc := newEngine(t)
	f := feed.New(eng, zap.NewNop())
	srv := startServer(t, f)
	conn := dial(t, srv)

	first := readEvent(t, conn)
	assert.Equal(t, "turn_order", first.Type)
	require.NotNil(t, first.Tracker)
	assert.Len(t, first.Tracker.Turns, 4)
	assert.Equal(t, 1, f.Clients())

	f.RefreshTimer("59")
	ev := readEvent(t, conn)
	assert.Equal(t, "timer", ev.Type)
	assert.Equal(t, "59", ev.Text)

	f.HighlightToken("tok-archer", true)
	ev = readEvent(t, conn)
	assert.Equal(t, "highlight", ev.Type)
	assert.Equal(t, "tok-archer", ev.TokenID)
	require.NotNil(t, ev.On)
	assert.True(t, *ev.On)

	f.RedrawTokenEffects("tok-knight")
	ev = readEvent(t, conn)
	assert.Equal(t, "redraw", ev.Type)
	assert.Equal(t, "tok-knight", ev.TokenID)

	f.Warn("cannot start timer while game is paused")
	ev = readEvent(t, conn)
	assert.Equal(t, "warn", ev.Type)

	enc.ResetAll()
	f.RefreshTurnOrder()
	ev = readEvent(t, conn)
	assert.Equal(t, "turn_order", ev.Type)
	require.NotNil(t, ev.Tracker)
	for _, e := range ev.Tracker.Turns {
		assert.Empty(t, e.Initiative)
		assert.Equal(t, "declared", e.Group)
	}
}

func TestWebsocket_DisconnectUnregisters(t *testing.T) {
	eng, _ := newEngine(t)
	f := feed.New(eng, zap.NewNop())
	srv := startServer(t, f)
	conn := dial(t, srv)
	readEvent(t, conn)
	require.Equal(t, 1, f.Clients())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return f.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSink_NoClientsDoesNotBlock(t *testing.T) {
	eng, _ := newEngine(t)
	f := feed.New(eng, zap.NewNop())
	for i := 0; i < 1000; i++ {
		f.RefreshTimer("10")
	}
	assert.Equal(t, "10", f.Snapshot().Timer)
}
