package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.minekube.com/common/minecraft/component"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/command"
	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

type player struct {
	name    string
	id      uuid.UUID
	console bool
	perms   map[string]bool

	mu       sync.Mutex
	messages []string
}

func newPlayer(name string, perms ...string) *player {
	p := &player{name: name, id: uuid.New(), perms: map[string]bool{}}
	for _, perm := range perms {
		p.perms[perm] = true
	}
	return p
}

func (p *player) Name() string                   { return p.name }
func (p *player) UniqueID() uuid.UUID            { return p.id }
func (p *player) IsPlayer() bool                 { return !p.console }
func (p *player) HasPermission(perm string) bool { return p.perms["*"] || p.perms[perm] }

func (p *player) SendMessage(msg component.Component) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, chat.Plain(msg))
	return nil
}

func (p *player) text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.messages, "\n")
}

func newPlugin(t *testing.T, hooks Hooks) (*Plugin, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	p := New(Options{
		Description: Description{Name: "Shop", Version: "1.0.0", Authors: []string{"kangarko"}},
		DataDir:     t.TempDir(),
		Hooks:       hooks,
	}, zap.New(core))
	return p, logs
}

func TestPlugin_StartExtractsDefaults(t *testing.T) {
	p, logs := newPlugin(t, Hooks{})
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	for _, name := range []string{"settings.yml", "localization/messages_en.yml", "variables/greeting.yml"} {
		_, err := os.Stat(filepath.Join(p.DataDir(), filepath.FromSlash(name)))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, StateEnabled, p.State())
	state, ok := p.Available()
	assert.True(t, ok)
	assert.Equal(t, "enabled", state)
	assert.Equal(t, "en", p.Messages().Locale())
	assert.NotNil(t, p.Variables())
	assert.NotNil(t, p.Scripts())
	assert.Equal(t, 1, logs.FilterMessage("plugin enabled").Len())
}

func TestPlugin_StartTwiceFails(t *testing.T) {
	p, _ := newPlugin(t, Hooks{})
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	assert.Error(t, p.Start(context.Background()))
}

func TestPlugin_MainGroupGetsDefaultSubcommands(t *testing.T) {
	var custom bool
	p, _ := newPlugin(t, Hooks{OnStart: func(ctx context.Context, p *Plugin) error {
		require.NotNil(t, p.MainGroup())
		p.MainGroup().Add(&command.SubCommand{
			Sublabels: []string{"buy"},
			Command: command.Command{
				Description: "Buy an item.",
				Usage:       "<item>",
				Handler: command.HandlerFunc(func(inv *command.Invocation) error {
					custom = true
					return inv.Tell("bought " + inv.Arg(0))
				}),
			},
		})
		return nil
	}})
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	g := p.MainGroup()
	assert.True(t, g.Registered())
	assert.Equal(t, "foundation", g.Label)
	var labels []string
	for _, s := range g.Subcommands() {
		labels = append(labels, s.Sublabel())
	}
	assert.Equal(t, []string{"buy", "debug", "perms", "reload"}, labels)

	cmd, ok := p.Registry().Resolve("fd")
	require.True(t, ok)
	assert.Same(t, g.Main(), cmd)

	admin := newPlayer("Alex", "*")
	require.NoError(t, p.Registry().Dispatch(context.Background(), admin, "/fd buy apple"))
	assert.True(t, custom)
	assert.Contains(t, admin.text(), "bought apple")
}

func TestPlugin_ReloadThroughCommand(t *testing.T) {
	reloads := 0
	p, logs := newPlugin(t, Hooks{OnReload: func(ctx context.Context, p *Plugin) error {
		reloads++
		state, ok := p.Available()
		assert.False(t, ok)
		assert.Equal(t, "reloading", state)
		return nil
	}})
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	admin := newPlayer("Alex", "*")
	require.NoError(t, p.Registry().Dispatch(context.Background(), admin, "/fd rl"))
	assert.Equal(t, 1, reloads)
	assert.Contains(t, admin.text(), "Shop 1.0.0 has been reloaded.")
	assert.Equal(t, StateEnabled, p.State())
	assert.Equal(t, 1, logs.FilterMessage("plugin reloaded").Len())
}

func TestPlugin_ReloadPicksUpSettingsChanges(t *testing.T) {
	p, _ := newPlugin(t, Hooks{})
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	path := filepath.Join(p.DataDir(), "settings.yml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), "page_size: 12", "page_size: 5", 1))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	require.NoError(t, p.Reload(context.Background()))
	assert.Equal(t, 5, p.Settings().Help.PageSize)
}

func TestPlugin_ReloadErrorKeepsPreviousSettings(t *testing.T) {
	p, logs := newPlugin(t, Hooks{OnReload: func(ctx context.Context, p *Plugin) error {
		return errors.New("hook broke")
	}})
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	path := filepath.Join(p.DataDir(), "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("help:\n  page_size: 0\n"), 0o644))

	err := p.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook broke")
	assert.Contains(t, err.Error(), "page_size")
	assert.Equal(t, 12, p.Settings().Help.PageSize)
	assert.Equal(t, StateEnabled, p.State())
	assert.Equal(t, 1, logs.FilterMessage("plugin reload failed").Len())
}

func TestPlugin_ReloadWhenDisabled(t *testing.T) {
	p, _ := newPlugin(t, Hooks{})
	assert.ErrorIs(t, p.Reload(context.Background()), ErrNotEnabled)
}

func TestPlugin_StartHookErrorLeavesDisabled(t *testing.T) {
	p, _ := newPlugin(t, Hooks{OnStart: func(ctx context.Context, p *Plugin) error {
		return errors.New("no database")
	}})
	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
	assert.Equal(t, StateDisabled, p.State())
}

func TestPlugin_StopSavesDataAndUnregisters(t *testing.T) {
	stopped := false
	p, _ := newPlugin(t, Hooks{OnStop: func(ctx context.Context, p *Plugin) { stopped = true }})
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Data(func(cfg *yamlconfig.Config) error {
		cfg.Set("visits.alex", 3)
		return nil
	}))
	require.NoError(t, p.Stop(context.Background()))

	assert.True(t, stopped)
	assert.Equal(t, StateDisabled, p.State())
	assert.Empty(t, p.Registry().Commands())
	assert.Equal(t, "disabled", func() string { s, _ := p.Available(); return s }())

	data, err := os.ReadFile(filepath.Join(p.DataDir(), DataFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "alex: 3")

	require.NoError(t, p.Stop(context.Background()))
}

func TestPlugin_LegacyDataFileRenamed(t *testing.T) {
	p, logs := newPlugin(t, Hooks{})
	legacy := filepath.Join(p.DataDir(), LegacyDataFile)
	require.NoError(t, os.WriteFile(legacy, []byte("visits:\n  sam: 7\n"), 0o644))

	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	_, err := os.Stat(legacy)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, p.Data(func(cfg *yamlconfig.Config) error {
		assert.Equal(t, 7, cfg.GetInt("visits.sam"))
		return nil
	}))
	assert.Equal(t, 1, logs.FilterMessage("renamed legacy data file").Len())
}

func TestPlugin_UnavailableWhileDisabled(t *testing.T) {
	p, _ := newPlugin(t, Hooks{})
	require.NoError(t, p.Start(context.Background()))
	p.state.Store(int32(StateDisabled))
	t.Cleanup(func() {
		p.state.Store(int32(StateEnabled))
		_ = p.Stop(context.Background())
	})

	admin := newPlayer("Alex", "*")
	require.NoError(t, p.Registry().Dispatch(context.Background(), admin, "/fd perms"))
	assert.Contains(t, admin.text(), "Cannot use this command while the plugin is disabled.")
}
