// Package plugin ties the framework together into one running plugin: its
// data folder, settings, localization, variables, scripts, command registry
// and online players.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/command"
	"github.com/cory-johannsen/foundation/internal/configitems"
	"github.com/cory-johannsen/foundation/internal/lang"
	"github.com/cory-johannsen/foundation/internal/observability"
	"github.com/cory-johannsen/foundation/internal/scripting"
	"github.com/cory-johannsen/foundation/internal/settings"
	"github.com/cory-johannsen/foundation/internal/variables"
	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

// ScriptDir holds *.lua library files below the data folder.
const ScriptDir = "scripts"

// ErrNotEnabled is returned by Reload when the plugin is not enabled.
var ErrNotEnabled = errors.New("plugin is not enabled")

// State is the lifecycle state of a plugin.
type State int32

const (
	StateDisabled State = iota
	StateEnabled
	StateReloading
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateReloading:
		return "reloading"
	default:
		return "disabled"
	}
}

// Description names a plugin.
type Description struct {
	Name    string
	Version string
	Authors []string
	Credits string
	// ServerName is what {server_name} expands to.
	ServerName string
}

// Hooks are the plugin's own lifecycle callbacks. Any may be nil.
type Hooks struct {
	// OnStart runs after the framework is loaded, before the plugin is
	// enabled. Commands are usually registered here.
	OnStart func(ctx context.Context, p *Plugin) error
	// OnReload runs after settings, localization and variables reloaded.
	OnReload func(ctx context.Context, p *Plugin) error
	// OnStop runs before data is saved on shutdown.
	OnStop func(ctx context.Context, p *Plugin)
}

// Options configure a Plugin.
type Options struct {
	Description
	// DataDir is the plugin's data folder, created on Start.
	DataDir string
	// SettingsFS holds the default settings.yml; defaults to settings.Resources().
	SettingsFS fs.FS
	// LocalizationFS holds localization/messages_<locale>.yml; defaults to lang.Builtin().
	LocalizationFS fs.FS
	// Sections bind plugin-specific parts of settings.yml after the core sections.
	Sections []settings.Section
	Hooks    Hooks
}

var _ command.Host = (*Plugin)(nil)

// Plugin is a loaded plugin. It implements command.Host.
//
// Plugin is safe for concurrent use once started.
type Plugin struct {
	desc    Description
	opts    Options
	logger  *zap.Logger
	state   atomic.Int32
	started time.Time

	settings *settings.Store
	lang     *lang.Store
	engine   *scripting.Engine
	vars     *configitems.Items[variables.Variable]
	replacer *variables.Replacer
	lag      *observability.LagCatcher
	registry *command.Registry
	main     *command.Group
	data     *yamlconfig.Config
	dataMu   sync.Mutex

	players *Players
}

// New creates a disabled plugin.
//
// Precondition: opts.Name and opts.DataDir must be non-empty; logger must be non-nil.
func New(opts Options, logger *zap.Logger) *Plugin {
	if opts.Name == "" {
		panic("plugin.New: name must not be empty")
	}
	if opts.DataDir == "" {
		panic("plugin.New: data dir must not be empty")
	}
	if opts.SettingsFS == nil {
		opts.SettingsFS = settings.Resources()
	}
	if opts.LocalizationFS == nil {
		opts.LocalizationFS = lang.Builtin()
	}
	if opts.ServerName == "" {
		opts.ServerName = opts.Name
	}
	p := &Plugin{
		desc:   opts.Description,
		opts:   opts,
		logger: logger.With(zap.String("plugin", opts.Name)),
	}
	p.players = newPlayers(p)
	p.registry, _ = command.NewRegistry(p)
	return p
}

func (p *Plugin) Name() string      { return p.desc.Name }
func (p *Plugin) Version() string   { return p.desc.Version }
func (p *Plugin) Authors() []string { return append([]string(nil), p.desc.Authors...) }
func (p *Plugin) Credits() string   { return p.desc.Credits }

// DataDir returns the plugin's data folder.
func (p *Plugin) DataDir() string { return p.opts.DataDir }

// State returns the current lifecycle state.
func (p *Plugin) State() State { return State(p.state.Load()) }

// Available reports whether commands may run.
func (p *Plugin) Available() (string, bool) {
	s := p.State()
	return s.String(), s == StateEnabled
}

// Settings returns the active settings snapshot.
//
// Precondition: Start must have succeeded.
func (p *Plugin) Settings() *settings.Settings { return p.settings.Get() }

// Messages returns the active localization.
//
// Precondition: Start must have succeeded.
func (p *Plugin) Messages() *lang.Messages { return p.lang.Get() }

func (p *Plugin) Variables() *variables.Replacer { return p.replacer }
func (p *Plugin) Logger() *zap.Logger            { return p.logger }
func (p *Plugin) Lag() *observability.LagCatcher { return p.lag }

// Scripts returns the scripting engine shared by variables and plugin code.
func (p *Plugin) Scripts() *scripting.Engine { return p.engine }

// Registry returns the plugin's command map.
func (p *Plugin) Registry() *command.Registry { return p.registry }

// MainGroup returns the group registered under the first of the configured
// command aliases, or nil when none is configured. OnStart hooks add the
// plugin's subcommands to it; reload, perms and debug are added after.
func (p *Plugin) MainGroup() *command.Group { return p.main }

// Players returns the online player list.
func (p *Plugin) Players() *Players { return p.players }

// Player finds an online player by name.
func (p *Plugin) Player(name string) (command.Sender, bool) {
	return p.players.Find(name)
}

// PlayerNames lists online players viewer can see.
func (p *Plugin) PlayerNames(viewer command.Sender) []string {
	return p.players.Names(viewer)
}

// Uptime returns how long the plugin has been enabled.
func (p *Plugin) Uptime() time.Duration {
	if p.State() == StateDisabled {
		return 0
	}
	return time.Since(p.started)
}

// Start loads the data folder and enables the plugin.
//
// Precondition: The plugin must be disabled.
// Postcondition: On success the plugin is enabled; on error it stays disabled.
func (p *Plugin) Start(ctx context.Context) error {
	if p.State() != StateDisabled {
		return fmt.Errorf("starting %s: already %s", p.desc.Name, p.State())
	}
	start := time.Now()
	if err := os.MkdirAll(p.opts.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data folder: %w", err)
	}

	store, err := settings.NewStore(func() (*settings.Settings, error) {
		return settings.Load(p.opts.SettingsFS, p.opts.DataDir, p.logger, p.opts.Sections...)
	})
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	p.settings = store
	p.lag = observability.NewLagCatcher(p.logger, func() time.Duration {
		return p.settings.Get().LagThreshold
	})

	msgs, err := lang.Load(p.opts.LocalizationFS, p.opts.DataDir, p.settings.Get().Locale, p.logger)
	if err != nil {
		return fmt.Errorf("loading localization: %w", err)
	}
	p.lang = lang.NewStore(msgs)

	p.engine = scripting.NewEngine(p.settings.Get().Variables.ScriptInstructionLimit, p.logger)
	if err := p.engine.LoadDir(ctx, filepath.Join(p.opts.DataDir, ScriptDir)); err != nil {
		p.engine.Close()
		return fmt.Errorf("loading scripts: %w", err)
	}

	p.vars = variables.NewCollection(p.opts.DataDir, p.logger)
	if err := p.vars.Load(); err != nil {
		p.engine.Close()
		return fmt.Errorf("loading variables: %w", err)
	}
	p.replacer = variables.NewReplacer(variables.Info{
		PluginName:    p.desc.Name,
		PluginVersion: p.desc.Version,
		ServerName:    p.desc.ServerName,
	}, p.settings, p.engine, p.vars, p.logger)

	data, err := p.loadData()
	if err != nil {
		p.engine.Close()
		return err
	}
	p.data = data

	p.main = nil
	if aliases := p.Settings().CommandAliases; len(aliases) > 0 {
		p.main = command.NewGroup(aliases[0], aliases[1:]...)
		p.main.Description = p.desc.Name + " commands"
	}

	if h := p.opts.Hooks.OnStart; h != nil {
		if err := h(ctx, p); err != nil {
			p.engine.Close()
			return fmt.Errorf("starting %s: %w", p.desc.Name, err)
		}
	}
	if err := p.registerMainGroup(); err != nil {
		p.engine.Close()
		return err
	}

	p.started = time.Now()
	p.state.Store(int32(StateEnabled))
	p.logger.Info("plugin enabled",
		zap.String("version", p.desc.Version),
		zap.String("locale", p.Messages().Locale()),
		zap.Int("commands", len(p.registry.Commands())),
		zap.Int("variables", p.vars.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Reload re-reads settings, localization, scripts, variables and data, then
// runs the plugin's OnReload hook. Commands are unavailable while reloading.
//
// Precondition: The plugin must be enabled.
// Postcondition: The plugin is enabled again; the returned error joins every failed step.
func (p *Plugin) Reload(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateEnabled), int32(StateReloading)) {
		return ErrNotEnabled
	}
	defer p.state.Store(int32(StateEnabled))
	start := time.Now()

	var errs []error
	if err := p.settings.Reload(); err != nil {
		errs = append(errs, fmt.Errorf("settings: %w", err))
	}
	msgs, err := lang.Load(p.opts.LocalizationFS, p.opts.DataDir, p.Settings().Locale, p.logger)
	if err != nil {
		errs = append(errs, fmt.Errorf("localization: %w", err))
	} else {
		p.lang.Set(msgs)
	}
	if err := p.engine.LoadDir(ctx, filepath.Join(p.opts.DataDir, ScriptDir)); err != nil {
		errs = append(errs, fmt.Errorf("scripts: %w", err))
	}
	if err := p.vars.Load(); err != nil {
		errs = append(errs, fmt.Errorf("variables: %w", err))
	}
	if err := p.reloadData(); err != nil {
		errs = append(errs, fmt.Errorf("data: %w", err))
	}
	if h := p.opts.Hooks.OnReload; h != nil {
		if err := h(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		p.logger.Error("plugin reload failed", zap.Error(err))
		return err
	}
	p.logger.Info("plugin reloaded", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Stop runs the OnStop hook, saves data.yml, unregisters every command and
// disables the plugin.
//
// Postcondition: The plugin is disabled; returns the data save error, if any.
func (p *Plugin) Stop(ctx context.Context) error {
	if p.State() == StateDisabled {
		return nil
	}
	p.state.Store(int32(StateDisabled))
	if h := p.opts.Hooks.OnStop; h != nil {
		h(ctx, p)
	}
	err := p.SaveData()
	if p.main != nil && p.main.Registered() {
		if uerr := p.main.Unregister(p.registry); uerr != nil {
			p.logger.Warn("unregistering main command", zap.String("label", p.main.Label), zap.Error(uerr))
		}
	}
	for _, cmd := range p.registry.Commands() {
		if uerr := p.registry.Unregister(cmd); uerr != nil {
			p.logger.Warn("unregistering command", zap.String("label", cmd.Label), zap.Error(uerr))
		}
	}
	p.engine.Close()
	p.logger.Info("plugin disabled", zap.Duration("uptime", time.Since(p.started)))
	return err
}

// registerMainGroup adds the default subcommands the plugin did not
// override and registers the main group.
func (p *Plugin) registerMainGroup() error {
	if p.main == nil {
		return nil
	}
	for _, sub := range command.DefaultSubcommands(p.main, p.registry) {
		if _, taken := p.main.Find(sub.Sublabel()); taken {
			continue
		}
		p.main.Add(sub)
	}
	if err := p.main.Register(p.registry); err != nil {
		return fmt.Errorf("registering /%s: %w", p.main.Label, err)
	}
	return nil
}
