// Package settings binds settings.yml into an immutable Settings value.
//
// A Settings value is built by running section binders, in order, against a
// throwaway yamlconfig.Config, then published through a Store. Reloading
// builds a fresh value and swaps it in, so readers always see a complete
// snapshot.
package settings

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

// FileName is the settings file below the data folder.
const FileName = "settings.yml"

//go:embed settings.yml
var resources embed.FS

// Resources returns an fs.FS holding the built-in settings.yml.
func Resources() fs.FS { return resources }

// HelpSettings controls generated help pages.
type HelpSettings struct {
	PageSize int
	Triggers []string
}

// VariableSettings controls custom variables.
type VariableSettings struct {
	ReplaceScript          bool
	ScriptInstructionLimit int
}

// Settings is a snapshot of settings.yml.
type Settings struct {
	Version         int
	Locale          string
	Prefix          string
	TimestampFormat string
	CommandAliases  []string
	// LagThreshold is negative when lag logging is disabled.
	LagThreshold time.Duration
	Debug        []string
	Help         HelpSettings
	Messenger    chat.Messenger
	Variables    VariableSettings

	extensions map[string]any
}

// IsDebug reports whether section has debug output enabled.
func (s *Settings) IsDebug(section string) bool {
	for _, d := range s.Debug {
		if d == "*" || strings.EqualFold(d, section) {
			return true
		}
	}
	return false
}

// MainLabel returns the main command label, or "" when none is configured.
func (s *Settings) MainLabel() string {
	if len(s.CommandAliases) == 0 {
		return ""
	}
	return s.CommandAliases[0]
}

// SetExtension stores a value bound by a plugin section.
func (s *Settings) SetExtension(name string, v any) {
	if s.extensions == nil {
		s.extensions = make(map[string]any)
	}
	s.extensions[name] = v
}

// Extension returns the value a plugin section stored under name.
func Extension[T any](s *Settings, name string) (T, bool) {
	v, ok := s.extensions[name].(T)
	return v, ok
}

// Section binds one part of settings.yml. Sections run in the order given
// to Load; Prefix scopes the config's relative lookups while Bind runs.
type Section struct {
	Name        string
	Prefix      string
	Uncommented []string
	Bind        func(cfg *yamlconfig.Config, s *Settings) error
}

// CoreSections bind the keys every plugin shares.
func CoreSections() []Section {
	return []Section{
		{Name: "core", Bind: bindCore},
		{Name: "help", Prefix: "help", Bind: bindHelp},
		{Name: "messenger", Prefix: "messenger", Bind: bindMessenger},
		{Name: "variables", Prefix: "variables", Bind: bindVariables},
	}
}

func bindCore(cfg *yamlconfig.Config, s *Settings) error {
	s.Version = cfg.GetInt("version")
	s.Locale = cfg.GetString("locale")
	s.Prefix = cfg.GetString("prefix")
	s.TimestampFormat = cfg.GetString("timestamp_format")
	s.CommandAliases = cfg.GetStringList("command_aliases")
	if ms := cfg.GetInt("log_lag_over_millis"); ms < 0 {
		s.LagThreshold = -1
	} else {
		s.LagThreshold = time.Duration(ms) * time.Millisecond
	}
	s.Debug = cfg.GetStringList("debug")
	return nil
}

func bindHelp(cfg *yamlconfig.Config, s *Settings) error {
	s.Help.PageSize = cfg.GetInt("page_size")
	s.Help.Triggers = cfg.GetStringList("triggers")
	if s.Help.PageSize < 1 {
		return fmt.Errorf("help.page_size must be >= 1, got %d", s.Help.PageSize)
	}
	return nil
}

func bindMessenger(cfg *yamlconfig.Config, s *Settings) error {
	m := chat.NewMessenger()
	m.Enabled = cfg.GetBool("enabled")
	for _, level := range chat.Levels() {
		if cfg.IsSet(level.String()) {
			m.Prefixes[level] = cfg.GetString(level.String())
		}
	}
	s.Messenger = m
	return nil
}

func bindVariables(cfg *yamlconfig.Config, s *Settings) error {
	s.Variables.ReplaceScript = cfg.GetBool("replace_script")
	s.Variables.ScriptInstructionLimit = cfg.GetInt("script_instruction_limit")
	return nil
}

// Load binds dataDir/settings.yml, extracting it from fsys on first run and
// merging in new keys on later runs. The core sections run first, then
// extra in order.
//
// Precondition: fsys must contain settings.yml.
// Postcondition: Returns a complete Settings or an error naming every failed section.
func Load(fsys fs.FS, dataDir string, logger *zap.Logger, extra ...Section) (*Settings, error) {
	sections := append(CoreSections(), extra...)

	cfg := yamlconfig.New(logger)
	var uncommented []string
	for _, sec := range sections {
		uncommented = append(uncommented, sec.Uncommented...)
	}
	cfg.SetUncommentedSections(uncommented...)
	if err := cfg.LoadResource(fsys, FileName, dataDir); err != nil {
		return nil, err
	}

	s := &Settings{}
	var errs []error
	err := cfg.Batch(func() error {
		for _, sec := range sections {
			cfg.SetPathPrefix(sec.Prefix)
			if err := sec.Bind(cfg, s); err != nil {
				errs = append(errs, fmt.Errorf("settings section %s: %w", sec.Name, err))
			}
		}
		cfg.SetPathPrefix("")
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	logger.Debug("settings loaded",
		zap.String("file", cfg.File()),
		zap.String("locale", s.Locale),
		zap.Int("sections", len(sections)),
	)
	return s, nil
}

// Store publishes the active Settings.
type Store struct {
	current atomic.Pointer[Settings]
	load    func() (*Settings, error)
}

// NewStore loads the initial settings with load and keeps load for Reload.
//
// Postcondition: Returns a store with a non-nil snapshot, or the load error.
func NewStore(load func() (*Settings, error)) (*Store, error) {
	s := &Store{load: load}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the active snapshot.
func (s *Store) Get() *Settings { return s.current.Load() }

// Reload builds a fresh snapshot and swaps it in. On error the previous
// snapshot stays active.
func (s *Store) Reload() error {
	next, err := s.load()
	if err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}
