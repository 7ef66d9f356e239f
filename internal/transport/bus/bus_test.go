package bus_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/action-initiative/internal/game/session"
	"github.com/cory-johannsen/action-initiative/internal/transport/bus"
)

func TestBus_BroadcastReachesEveryone(t *testing.T) {
	b := bus.New(zaptest.NewLogger(t))
	var calls atomic.Int32
	for _, id := range []string{"gm", "p1", "p2"} {
		b.Register(id, func(context.Context, session.Signal) error {
			calls.Add(1)
			return nil
		})
	}
	require.NoError(t, b.BroadcastStartTimer(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, b.Len())
}

func TestBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	b := bus.New(zaptest.NewLogger(t))
	var calls atomic.Int32
	b.Register("bad", func(context.Context, session.Signal) error { return errors.New("offline") })
	b.Register("good", func(context.Context, session.Signal) error {
		calls.Add(1)
		return nil
	})
	err := b.BroadcastStartTimer(context.Background())
	assert.ErrorContains(t, err, "offline")
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_Unregister(t *testing.T) {
	b := bus.New(zaptest.NewLogger(t))
	var calls atomic.Int32
	unregister := b.Register("p1", func(context.Context, session.Signal) error {
		calls.Add(1)
		return nil
	})
	unregister()
	require.NoError(t, b.BroadcastStartTimer(context.Background()))
	assert.Zero(t, calls.Load())
	assert.Zero(t, b.Len())
}

func TestBus_PauseAndResumeCarryTheirSignal(t *testing.T) {
	b := bus.New(zaptest.NewLogger(t))
	var got []session.Signal
	b.Register("p1", func(_ context.Context, sig session.Signal) error {
		got = append(got, sig)
		return nil
	})
	ctx := context.Background()
	require.NoError(t, b.BroadcastPause(ctx, true))
	require.NoError(t, b.BroadcastPause(ctx, false))
	require.NoError(t, b.BroadcastStartTimer(ctx))
	assert.Equal(t, []session.Signal{session.SignalPause, session.SignalResume, session.SignalStartTimer}, got)
}

func TestBus_RejectsUnknownSignal(t *testing.T) {
	b := bus.New(zaptest.NewLogger(t))
	var calls atomic.Int32
	b.Register("p1", func(context.Context, session.Signal) error {
		calls.Add(1)
		return nil
	})
	assert.Error(t, b.Broadcast(context.Background(), session.Signal("explode")))
	assert.Zero(t, calls.Load())
}
