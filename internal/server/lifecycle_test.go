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
	events  *eventLog
	started atomic.Bool
	stopped atomic.Bool
	initErr error
	runErr  error
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (m *mockService) Init(ctx context.Context) error {
	m.events.add("init " + m.name)
	return m.initErr
}

func (m *mockService) Run(ctx context.Context) error {
	m.started.Store(true)
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return nil
}

func (m *mockService) Shutdown(ctx context.Context) error {
	m.stopped.Store(true)
	m.events.add("shutdown " + m.name)
	return nil
}

func waitStarted(t *testing.T, svcs ...*mockService) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range svcs {
			if !s.started.Load() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond, "services did not start in time")
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	logger := zaptest.NewLogger(t)
	lc := NewLifecycle(logger)

	events := &eventLog{}
	svc1 := &mockService{name: "svc1", events: events}
	svc2 := &mockService{name: "svc2", events: events}

	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- lc.Run(ctx)
	}()

	waitStarted(t, svc1, svc2)

	// Trigger shutdown
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
	assert.Equal(t, []string{"init svc1", "init svc2", "shutdown svc2", "shutdown svc1"}, events.all())
}

func TestLifecycleInitFailureStopsStartedServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	events := &eventLog{}
	svc1 := &mockService{name: "svc1", events: events}
	svc2 := &mockService{name: "svc2", events: events, initErr: errors.New("no data folder")}
	svc3 := &mockService{name: "svc3", events: events}
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)
	lc.Add("svc3", svc3)

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service svc2")
	assert.Contains(t, err.Error(), "no data folder")
	assert.Equal(t, []string{"init svc1", "init svc2", "shutdown svc1"}, events.all())
	assert.False(t, svc3.started.Load())
}

func TestLifecycleServiceFailureShutsDown(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	events := &eventLog{}
	healthy := &mockService{name: "healthy", events: events}
	broken := &mockService{name: "broken", events: events, runErr: errors.New("listen failed")}
	lc.Add("healthy", healthy)
	lc.Add("broken", broken)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listen failed")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down after a service failure")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycleStopTimeout(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	lc.SetStopTimeout(20 * time.Millisecond)
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	lc.Add("stuck", &FuncService{RunFn: func(ctx context.Context) error {
		<-stuck
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle waited past the stop timeout")
	}
}

func TestFuncService(t *testing.T) {
	inited := false
	stopped := false

	svc := &FuncService{
		InitFn: func(ctx context.Context) error {
			inited = true
			return nil
		},
		ShutdownFn: func(ctx context.Context) error {
			stopped = true
			return nil
		},
	}

	assert.NoError(t, svc.Init(context.Background()))
	assert.True(t, inited)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, svc.Run(ctx))

	assert.NoError(t, svc.Shutdown(context.Background()))
	assert.True(t, stopped)
}
