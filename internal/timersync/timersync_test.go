package timersync_test

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/action-initiative/internal/game/session"
	"github.com/cory-johannsen/action-initiative/internal/render"
	"github.com/cory-johannsen/action-initiative/internal/settings"
	"github.com/cory-johannsen/action-initiative/internal/timersync"
	"github.com/cory-johannsen/action-initiative/internal/transport/bus"
)

var t0 = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

type participant struct {
	sync *timersync.Sync
	rec  *render.Recorder
	ctl  *atomic.Bool
}

// pauseFlag is one process's copy of the host-wide pause state.
type pauseFlag struct{ atomic.Bool }

func (f *pauseFlag) SetPaused(paused bool) bool { return f.Swap(paused) != paused }

type table struct {
	store  *settings.Store
	bus    *bus.Bus
	clock  *timersync.ManualClock
	paused pauseFlag
}

func newTable(t *testing.T) *table {
	t.Helper()
	return &table{
		store: settings.NewStore(settings.NewMemory(), zaptest.NewLogger(t), 60),
		bus:   bus.New(zaptest.NewLogger(t)),
		clock: timersync.NewManualClock(t0),
	}
}

func (tb *table) join(t *testing.T, id string, controller bool, opts timersync.Options) participant {
	t.Helper()
	return tb.joinWith(t, id, controller, opts, &tb.paused)
}

// joinProcess joins a participant that keeps its own pause flag, the way a
// separate process does.
func (tb *table) joinProcess(t *testing.T, id string, controller bool) (participant, *pauseFlag) {
	t.Helper()
	flag := &pauseFlag{}
	return tb.joinWith(t, id, controller, slowTicks(), flag), flag
}

func (tb *table) joinWith(t *testing.T, id string, controller bool, opts timersync.Options, flag *pauseFlag) participant {
	t.Helper()
	ctl := &atomic.Bool{}
	ctl.Store(controller)
	rec := &render.Recorder{}
	s := timersync.New(tb.store, tb.bus, ctl.Load, flag.Load, rec, tb.clock, opts, zaptest.NewLogger(t))
	tb.bus.Register(id, s.Signals(flag))
	t.Cleanup(s.Close)
	return participant{sync: s, rec: rec, ctl: ctl}
}

// slowTicks keeps the background loop out of the way so tests drive Tick by hand.
func slowTicks() timersync.Options {
	opts := timersync.DefaultOptions()
	opts.TickInterval = time.Hour
	return opts
}

func remainingOf(t *testing.T, text string) int {
	t.Helper()
	n, err := strconv.Atoi(text)
	require.NoError(t, err, "timer text %q", text)
	return n
}

func TestStart_RejectedWhilePaused(t *testing.T) {
	tb := newTable(t)
	gm := tb.join(t, "gm", true, slowTicks())
	tb.paused.Store(true)

	err := gm.sync.Start(context.Background())
	require.ErrorIs(t, err, timersync.ErrPaused)
	assert.Equal(t, 1, gm.rec.Count("warn:"+timersync.ErrPaused.Error()))

	anchor, err := tb.store.TimerStartTime(context.Background())
	require.NoError(t, err)
	assert.Zero(t, anchor, "no state change")
	assert.False(t, gm.sync.Running())
}

func TestStart_RejectedForNonController(t *testing.T) {
	tb := newTable(t)
	p := tb.join(t, "p1", false, slowTicks())
	require.ErrorIs(t, p.sync.Start(context.Background()), timersync.ErrNotController)
}

func TestStart_AnchorsAndStartsEveryParticipant(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	p1 := tb.join(t, "p1", false, slowTicks())
	require.NoError(t, tb.store.SetTimerCurrentTime(ctx, 12))

	require.NoError(t, gm.sync.Start(ctx))

	clock, err := tb.store.Clock(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.UnixMilli(), clock.StartAnchor)
	assert.Zero(t, clock.Remaining)
	assert.Equal(t, t0.Add(500*time.Millisecond), tb.clock.Now(), "settle delay waited before broadcasting")

	assert.True(t, gm.sync.Running())
	assert.True(t, p1.sync.Running())

	tb.clock.Advance(15 * time.Second)
	gmText, err := gm.sync.Tick(ctx)
	require.NoError(t, err)
	p1Text, err := p1.sync.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "45", gmText)
	assert.Equal(t, gmText, p1Text)
	assert.Equal(t, "45", p1.rec.TimerText())
}

func TestStart_TwiceLeavesOneTickLoop(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	opts := timersync.DefaultOptions()
	opts.TickInterval = 5 * time.Millisecond
	gm := tb.join(t, "gm", true, opts)

	require.NoError(t, gm.sync.Start(ctx))
	require.NoError(t, gm.sync.Start(ctx))

	require.Eventually(t, func() bool { return gm.sync.ActiveLoops() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, gm.sync.Running())

	gm.sync.Close()
	require.Eventually(t, func() bool { return gm.sync.ActiveLoops() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTick_DisplaysIdleWithoutAnchor(t *testing.T) {
	tb := newTable(t)
	gm := tb.join(t, "gm", true, slowTicks())
	text, err := gm.sync.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, timersync.Idle, text)
	assert.Equal(t, timersync.Idle, gm.sync.Display())
}

func TestTick_ZeroPadsRemaining(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))

	tb.clock.Advance(52 * time.Second)
	text, err := gm.sync.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "08", text)
}

func TestTick_ExpiryStopsAndControllerClearsAnchor(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	p1 := tb.join(t, "p1", false, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))
	tb.clock.Advance(60 * time.Second)

	text, err := p1.sync.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, timersync.Idle, text)
	assert.False(t, p1.sync.Running())
	assert.Zero(t, p1.rec.Count("turn_order"), "only the controller refreshes on expiry")
	anchor, _ := tb.store.TimerStartTime(ctx)
	assert.NotZero(t, anchor, "non-controllers never write the anchor")

	text, err = gm.sync.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, timersync.Idle, text)
	assert.False(t, gm.sync.Running())
	assert.Equal(t, 1, gm.rec.Count("turn_order"))
	anchor, _ = tb.store.TimerStartTime(ctx)
	assert.Zero(t, anchor)
}

func TestPauseResume_ContinuesFromFrozenRemaining(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	p1 := tb.join(t, "p1", false, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))

	// 500ms settle + 19.5s puts the clock at exactly 20s elapsed.
	tb.clock.Advance(19500 * time.Millisecond)
	text, err := gm.sync.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, "40", text)

	tb.paused.Store(true)
	require.NoError(t, gm.sync.Pause(ctx))
	require.NoError(t, p1.sync.Pause(ctx))
	assert.False(t, gm.sync.Running())
	assert.False(t, p1.sync.Running())
	cur, _ := tb.store.TimerCurrentTime(ctx)
	assert.Equal(t, int64(40), cur)
	assert.Equal(t, "40", gm.sync.Display(), "paused display shows the snapshot")
	ok, err := gm.sync.CanStart(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "start control hidden while time is frozen")

	tb.clock.Advance(5 * time.Minute)

	tb.paused.Store(false)
	require.NoError(t, p1.sync.Resume(ctx))
	assert.False(t, p1.sync.Running(), "non-controllers wait for the broadcast")
	require.NoError(t, gm.sync.Resume(ctx))
	assert.True(t, gm.sync.Running())
	assert.True(t, p1.sync.Running())

	text, err = p1.sync.Tick(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 40, remainingOf(t, text), 1, "resume continues near 40s, not 60s or 0s")
	cur, _ = tb.store.TimerCurrentTime(ctx)
	assert.Zero(t, cur)
}

func TestRequestPause_FreezesEveryProcess(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm, gmFlag := tb.joinProcess(t, "gm", true)
	p1, p1Flag := tb.joinProcess(t, "p1", false)
	require.NoError(t, gm.sync.Start(ctx))
	tb.clock.Advance(19500 * time.Millisecond)
	text, err := p1.sync.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, "40", text)

	require.NoError(t, gm.sync.RequestPause(ctx, true))
	assert.True(t, gmFlag.Load())
	assert.True(t, p1Flag.Load(), "pause reaches the other process")
	assert.False(t, p1.sync.Running())

	tb.clock.Advance(15 * time.Second)
	text, err = p1.sync.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "40", text, "no decrement while paused")
	assert.Equal(t, "40", gm.sync.Display())
	assert.False(t, p1.sync.Running())

	require.NoError(t, p1.sync.RequestPause(ctx, false))
	assert.False(t, gmFlag.Load())
	assert.False(t, p1Flag.Load())
	assert.True(t, gm.sync.Running())
	assert.True(t, p1.sync.Running())
	text, err = p1.sync.Tick(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 40, remainingOf(t, text), 1)
}

func TestPause_TwiceFreezesOnce(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))
	tb.clock.Advance(19500 * time.Millisecond)

	tb.paused.Store(true)
	require.NoError(t, gm.sync.Pause(ctx))
	tb.clock.Advance(10 * time.Second)
	require.NoError(t, gm.sync.Pause(ctx))
	cur, _ := tb.store.TimerCurrentTime(ctx)
	assert.Equal(t, int64(40), cur)
}

func TestTick_ExpiryKeepsNewerAnchor(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))
	tb.clock.Advance(60 * time.Second)

	fresh := tb.clock.Now().UnixMilli()
	require.NoError(t, tb.store.SetTimerStartTime(ctx, fresh))
	text, err := gm.sync.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, timersync.Idle, text)
	anchor, _ := tb.store.TimerStartTime(ctx)
	assert.Equal(t, fresh, anchor, "only the expired anchor is cleared")
	assert.Zero(t, gm.rec.Count("turn_order"))

	require.NoError(t, gm.sync.HandleStart(ctx))
	assert.True(t, gm.sync.Running())
	text, err = gm.sync.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "60", text)
}

func TestDurationChange_RefreshesRunningCountdown(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	p1 := tb.join(t, "p1", false, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))
	tb.clock.Advance(9500 * time.Millisecond)

	require.NoError(t, tb.store.SetTimerDuration(ctx, 90))
	assert.Equal(t, "80", p1.rec.TimerText(), "pushed without waiting for a tick")
	assert.Equal(t, "80", gm.sync.Display())

	require.NoError(t, gm.sync.Reset(ctx))
	before := gm.rec.Count("timer:80")
	require.NoError(t, tb.store.SetTimerDuration(ctx, 30))
	assert.Equal(t, before, gm.rec.Count("timer:80"), "stopped timers are left alone")
	assert.Equal(t, "80", gm.sync.Display())
}

func TestPause_WithoutRunningTimerWritesNoSnapshot(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	tb.paused.Store(true)
	require.NoError(t, gm.sync.Pause(ctx))
	cur, _ := tb.store.TimerCurrentTime(ctx)
	assert.Zero(t, cur)

	var broadcasts atomic.Int32
	tb.bus.Register("observer", func(context.Context, session.Signal) error {
		broadcasts.Add(1)
		return nil
	})
	tb.paused.Store(false)
	require.NoError(t, gm.sync.Resume(ctx))
	assert.Zero(t, broadcasts.Load(), "nothing to resume")
}

func TestPause_ClampsExpiredSnapshotToZero(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))
	tb.clock.Advance(2 * time.Minute)

	tb.paused.Store(true)
	require.NoError(t, gm.sync.Pause(ctx))
	cur, _ := tb.store.TimerCurrentTime(ctx)
	assert.Zero(t, cur)
}

func TestHandleStart_IgnoredWhilePaused(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	p1 := tb.join(t, "p1", false, slowTicks())
	require.NoError(t, tb.store.SetTimerStartTime(ctx, t0.UnixMilli()))
	tb.paused.Store(true)
	require.NoError(t, p1.sync.HandleStart(ctx))
	assert.False(t, p1.sync.Running())
}

func TestHandleStart_ZeroAnchorStopsLoop(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))
	require.True(t, gm.sync.Running())

	require.NoError(t, tb.store.SetTimerStartTime(ctx, 0))
	require.NoError(t, gm.sync.HandleStart(ctx))
	assert.False(t, gm.sync.Running())
	assert.Equal(t, timersync.Idle, gm.rec.TimerText())
}

func TestReset_ClearsClockAndStopsLoop(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))
	require.NoError(t, tb.store.SetTimerCurrentTime(ctx, 9))

	require.NoError(t, gm.sync.Reset(ctx))
	assert.False(t, gm.sync.Running())
	clock, err := tb.store.Clock(ctx)
	require.NoError(t, err)
	assert.Zero(t, clock.StartAnchor)
	assert.Zero(t, clock.Remaining)
}

func TestReset_NonControllerOnlyStopsLocally(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	p1 := tb.join(t, "p1", false, slowTicks())
	require.NoError(t, gm.sync.Start(ctx))

	require.ErrorIs(t, p1.sync.Reset(ctx), timersync.ErrNotController)
	assert.False(t, p1.sync.Running())
	anchor, _ := tb.store.TimerStartTime(ctx)
	assert.NotZero(t, anchor)
}

func TestResync_JoinsRunningTimer(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	require.NoError(t, tb.store.SetTimerStartTime(ctx, t0.UnixMilli()))
	late := tb.join(t, "late", false, slowTicks())

	require.NoError(t, late.sync.Resync(ctx))
	assert.True(t, late.sync.Running())
	tb.clock.Advance(10 * time.Second)
	text, err := late.sync.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "50", text)
}

func TestResync_ShowsFrozenTimeWhenStopped(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	require.NoError(t, tb.store.SetTimerCurrentTime(ctx, 7))
	late := tb.join(t, "late", false, slowTicks())
	require.NoError(t, late.sync.Resync(ctx))
	assert.False(t, late.sync.Running())
	assert.Equal(t, "07", late.sync.Display())
}

func TestCanStart(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	gm := tb.join(t, "gm", true, slowTicks())
	p1 := tb.join(t, "p1", false, slowTicks())

	ok, err := gm.sync.CanStart(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p1.sync.CanStart(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	gm.ctl.Store(false)
	p1.ctl.Store(true)
	ok, _ = p1.sync.CanStart(ctx)
	assert.True(t, ok, "election is queried fresh")
}

type failingBus struct{}

func (failingBus) BroadcastStartTimer(context.Context) error { return errors.New("transport down") }

func (failingBus) BroadcastPause(context.Context, bool) error { return errors.New("transport down") }

func TestStart_BroadcastFailureLeavesAnchor(t *testing.T) {
	store := settings.NewStore(settings.NewMemory(), zaptest.NewLogger(t), 60)
	clock := timersync.NewManualClock(t0)
	s := timersync.New(store, failingBus{}, func() bool { return true }, func() bool { return false },
		render.Nop{}, clock, slowTicks(), zaptest.NewLogger(t))
	t.Cleanup(s.Close)

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "transport down")
	anchor, _ := store.TimerStartTime(context.Background())
	assert.Equal(t, t0.UnixMilli(), anchor, "last written state is kept")
	assert.False(t, s.Running())
}

func TestStart_CancelledDuringSettle(t *testing.T) {
	tb := newTable(t)
	gm := tb.join(t, "gm", true, slowTicks())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gm.sync.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, gm.sync.Running())
}

func TestRemaining(t *testing.T) {
	anchor := t0.UnixMilli()
	assert.Equal(t, int64(60), timersync.Remaining(60, anchor, t0.Add(999*time.Millisecond)))
	assert.Equal(t, int64(59), timersync.Remaining(60, anchor, t0.Add(time.Second)))
	assert.Equal(t, int64(61), timersync.Remaining(60, anchor, t0.Add(-time.Millisecond)))
}

func TestPropertyRemainingFloorsElapsedSeconds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		duration := rapid.Int64Range(0, 3600).Draw(rt, "duration")
		secs := rapid.Int64Range(-120, 7200).Draw(rt, "secs")
		frac := rapid.Int64Range(0, 999).Draw(rt, "frac_ms")
		now := t0.Add(time.Duration(secs)*time.Second + time.Duration(frac)*time.Millisecond)
		got := timersync.Remaining(duration, t0.UnixMilli(), now)
		if got != duration-secs {
			rt.Fatalf("Remaining(%d, +%ds%dms) = %d, want %d", duration, secs, frac, got, duration-secs)
		}
	})
}
