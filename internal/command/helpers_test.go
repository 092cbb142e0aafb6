package command

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.minekube.com/common/minecraft/component"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/lang"
	"github.com/cory-johannsen/foundation/internal/observability"
	"github.com/cory-johannsen/foundation/internal/settings"
	"github.com/cory-johannsen/foundation/internal/variables"
)

type testSender struct {
	name   string
	id     uuid.UUID
	player bool
	perms  map[string]bool

	mu       sync.Mutex
	messages []component.Component
}

func newSender(name string, perms ...string) *testSender {
	s := &testSender{name: name, id: uuid.New(), player: true, perms: map[string]bool{}}
	for _, p := range perms {
		s.perms[p] = true
	}
	return s
}

func (s *testSender) Name() string        { return s.name }
func (s *testSender) UniqueID() uuid.UUID { return s.id }
func (s *testSender) IsPlayer() bool      { return s.player }
func (s *testSender) HasPermission(perm string) bool {
	return s.perms["*"] || s.perms[perm]
}

func (s *testSender) SendMessage(msg component.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// lines returns every received message as plain text.
func (s *testSender) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = chat.Plain(m)
	}
	return out
}

func (s *testSender) text() string { return strings.Join(s.lines(), "\n") }

func (s *testSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

type testHost struct {
	state     string
	settings  *settings.Settings
	messages  *lang.Messages
	logger    *zap.Logger
	logs      *observer.ObservedLogs
	lag       *observability.LagCatcher
	players   map[string]*testSender
	vanished  map[string]bool
	reloadErr error
	reloads   int
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	return &testHost{
		settings: &settings.Settings{
			Help:      settings.HelpSettings{PageSize: 12, Triggers: []string{"help", "?"}},
			Messenger: chat.Messenger{Enabled: false},
		},
		messages: lang.Default(),
		logger:   logger,
		logs:     logs,
		lag:      observability.NewLagCatcher(logger, func() time.Duration { return -1 }),
		players:  map[string]*testSender{},
		vanished: map[string]bool{},
	}
}

func (h *testHost) Name() string      { return "Shop" }
func (h *testHost) Version() string   { return "1.0.0" }
func (h *testHost) Authors() []string { return []string{"kangarko", "alex"} }
func (h *testHost) Credits() string   { return "" }

func (h *testHost) Available() (string, bool) {
	if h.state != "" {
		return h.state, false
	}
	return "enabled", true
}

func (h *testHost) Settings() *settings.Settings   { return h.settings }
func (h *testHost) Messages() *lang.Messages       { return h.messages }
func (h *testHost) Variables() *variables.Replacer { return nil }
func (h *testHost) Logger() *zap.Logger            { return h.logger }
func (h *testHost) Lag() *observability.LagCatcher { return h.lag }

func (h *testHost) Player(name string) (Sender, bool) {
	p, ok := h.players[strings.ToLower(name)]
	return p, ok
}

func (h *testHost) PlayerNames(viewer Sender) []string {
	var names []string
	for _, p := range h.players {
		if !h.vanished[p.name] {
			names = append(names, p.name)
		}
	}
	return names
}

func (h *testHost) Reload(ctx context.Context) error {
	h.reloads++
	return h.reloadErr
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// recordingHandler remembers the invocation it was last called with.
type recordingHandler struct {
	calls int
	last  *Invocation
	err   error
}

func (h *recordingHandler) OnCommand(inv *Invocation) error {
	h.calls++
	h.last = inv
	return h.err
}
