package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	name    string
	started atomic.Bool
	stopped atomic.Bool
	startFn func(ctx context.Context) error
	stops   *stopLog
}

type stopLog struct {
	mu    sync.Mutex
	names []string
}

func (l *stopLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (m *mockService) Start(ctx context.Context) error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) Stop(ctx context.Context) {
	m.stopped.Store(true)
	if m.stops != nil {
		m.stops.add(m.name)
	}
}

func runAsync(ctx context.Context, lc *Lifecycle) <-chan error {
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	return done
}

func TestLifecycle_StartsAndStopsInReverse(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	stops := &stopLog{}
	bus := &mockService{name: "bus", stops: stops}
	feed := &mockService{name: "feed", stops: stops}
	lc.Add("bus", bus)
	lc.Add("feed", feed)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, lc)

	require.Eventually(t, func() bool {
		return bus.started.Load() && feed.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.Equal(t, []string{"feed", "bus"}, stops.names)
}

func TestLifecycle_ServiceFailureStopsAll(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	healthy := &mockService{name: "feed"}
	broken := &mockService{name: "bus", startFn: func(context.Context) error {
		return errors.New("address in use")
	}}
	lc.Add("feed", healthy)
	lc.Add("bus", broken)

	select {
	case err := <-runAsync(context.Background(), lc):
		require.Error(t, err)
		assert.Contains(t, err.Error(), "service bus: address in use")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not stop after a failure")
	}
	assert.True(t, healthy.stopped.Load())
	assert.True(t, broken.stopped.Load())
}

func TestLifecycle_StopReceivesDeadline(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	lc.SetStopTimeout(time.Second)
	var hadDeadline atomic.Bool
	lc.Add("svc", &FuncService{
		StartFn: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		StopFn: func(ctx context.Context) {
			_, ok := ctx.Deadline()
			hadDeadline.Store(ok)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, lc)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, hadDeadline.Load())
}

func TestFuncService(t *testing.T) {
	var started, stopped bool
	svc := &FuncService{
		StartFn: func(context.Context) error {
			started = true
			return nil
		},
		StopFn: func(context.Context) { stopped = true },
	}
	assert.NoError(t, svc.Start(context.Background()))
	svc.Stop(context.Background())
	assert.True(t, started)
	assert.True(t, stopped)

	// A nil StopFn is a no-op.
	(&FuncService{StartFn: svc.StartFn}).Stop(context.Background())
}
