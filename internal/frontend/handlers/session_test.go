package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/foundation/internal/config"
	"github.com/cory-johannsen/foundation/internal/frontend/telnet"
	"github.com/cory-johannsen/foundation/internal/plugin"
	"github.com/cory-johannsen/foundation/internal/scheduler"
	"github.com/cory-johannsen/foundation/internal/testutil"
)

const readTimeout = 3 * time.Second

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) PlayerJoined(_ context.Context, p *Player) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "join "+p.Name())
	return nil
}

func (l *recordingListener) PlayerQuit(_ context.Context, p *Player) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "quit "+p.Name())
	return nil
}

func (l *recordingListener) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fixture struct {
	plugin *plugin.Plugin
	addr   string
	logs   *observer.ObservedLogs
	// stopScheduler ends the scheduler while the acceptor keeps running.
	stopScheduler func()
}

// startServer runs a plugin, a scheduler and a Telnet acceptor wired to a
// SessionHandler. Everything stops when the test ends.
func startServer(t *testing.T, listener PlayerListener, operators ...string) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	schedCtx, schedCancel := context.WithCancel(ctx)
	sched := scheduler.New(zaptest.NewLogger(t), 0)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(schedCtx)
	}()

	p := plugin.New(plugin.Options{
		Description: plugin.Description{Name: "Shop", Version: "1.0.0"},
		DataDir:     t.TempDir(),
	}, zaptest.NewLogger(t))
	require.NoError(t, sched.Await(ctx, func() error { return p.Start(ctx) }))

	core, logs := observer.New(zap.DebugLevel)
	handler := NewSessionHandler(p, sched, operators, listener, zap.New(core))
	acc := telnet.NewAcceptor(config.TelnetConfig{
		Enabled:      true,
		Host:         "127.0.0.1",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, handler, zaptest.NewLogger(t))
	accDone := make(chan struct{})
	go func() {
		defer close(accDone)
		_ = acc.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return acc.IsRunning() && acc.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond, "acceptor did not start in time")

	t.Cleanup(func() {
		cancel()
		<-accDone
		<-schedDone
		_ = p.Stop(context.Background())
	})
	return &fixture{plugin: p, addr: acc.Addr(), logs: logs, stopScheduler: func() {
		schedCancel()
		<-schedDone
	}}
}

func login(t *testing.T, f *fixture, name string) *testutil.TelnetClient {
	t.Helper()
	c := testutil.NewTelnetClient(t, f.addr)
	c.Login(name, readTimeout)
	return c
}

func TestSession_LoginRunsCommands(t *testing.T) {
	f := startServer(t, nil, "Alex")
	c := login(t, f, "alex")

	require.Eventually(t, func() bool {
		_, ok := f.plugin.Players().Find("alex")
		return ok
	}, time.Second, 10*time.Millisecond)

	c.Send("fd reload")
	out := c.ReadUntil("has been reloaded.", readTimeout)
	assert.Contains(t, out, "Shop 1.0.0")

	c.Send("/fd reload")
	c.ReadUntil("has been reloaded.", readTimeout)

	c.Send("quit")
	c.ReadUntil("Goodbye!", readTimeout)
	assert.Eventually(t, func() bool {
		return f.plugin.Players().Len() == 0
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.logs.FilterMessage("player logged out").Len() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSession_NonOperatorLacksPermission(t *testing.T) {
	f := startServer(t, nil, "Alex")
	c := login(t, f, "sam")

	p, ok := f.plugin.Players().Find("sam")
	require.True(t, ok)
	assert.False(t, p.HasPermission("anything"))

	c.Send("fd reload")
	out := c.ReadUntil("> ", readTimeout)
	assert.NotContains(t, out, "has been reloaded.")
}

func TestSession_UnknownCommand(t *testing.T) {
	f := startServer(t, nil)
	c := login(t, f, "alex")

	c.Send("nosuchcommand")
	c.ReadUntil("Unknown command.", readTimeout)
}

func TestSession_InvalidNames(t *testing.T) {
	f := startServer(t, nil)
	c := testutil.NewTelnetClient(t, f.addr)

	for _, name := range []string{"x", "bad name", "!!!"} {
		c.ReadUntil("Name: ", readTimeout)
		c.Send(name)
	}
	c.ReadUntil("Too many invalid names.", readTimeout)
	assert.Equal(t, 0, f.plugin.Players().Len())
}

func TestSession_DuplicateNameRejected(t *testing.T) {
	f := startServer(t, nil)
	login(t, f, "alex")

	second := testutil.NewTelnetClient(t, f.addr)
	second.ReadUntil("Name: ", readTimeout)
	second.Send("ALEX")
	second.ReadUntil("already online.", readTimeout)
	assert.Equal(t, 1, f.plugin.Players().Len())
}

func TestSession_TabCompletesLabels(t *testing.T) {
	f := startServer(t, nil)
	c := login(t, f, "alex")

	c.Send("foun\t")
	c.ReadUntil("foundation", readTimeout)
}

func TestSession_ListenerNotified(t *testing.T) {
	listener := &recordingListener{}
	f := startServer(t, listener)
	c := login(t, f, "alex")

	c.Send("exit")
	c.ReadUntil("Goodbye!", readTimeout)
	assert.Eventually(t, func() bool {
		return len(listener.all()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"join alex", "quit alex"}, listener.all())
}

func TestSession_LeavesWhenSchedulerStopped(t *testing.T) {
	f := startServer(t, nil)
	c := login(t, f, "alex")
	require.Equal(t, 1, f.plugin.Players().Len())

	f.stopScheduler()
	c.Close()
	assert.Eventually(t, func() bool {
		return f.plugin.Players().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
