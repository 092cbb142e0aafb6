// Package lang loads localized messages from messages_<locale>.yml files
// and publishes them through an atomically swapped Store.
package lang

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.minekube.com/common/minecraft/component"
	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

// DefaultLocale is used when no file exists for the requested locale.
const DefaultLocale = "en"

// Dir is the directory below the data folder holding localization files.
const Dir = "localization"

//go:embed localization/*.yml
var builtin embed.FS

// Builtin returns the localization files shipped with the framework.
func Builtin() fs.FS { return builtin }

// Messages is an immutable table of localized messages.
type Messages struct {
	locale   string
	messages map[string]string
}

// FileName returns the localization file name for locale.
func FileName(locale string) string {
	return "messages_" + locale + ".yml"
}

// Load reads localization/messages_<locale>.yml from dataDir, creating or
// updating it from the matching file in fsys. When fsys has no file for
// locale, the default locale's file supplies the defaults.
//
// Precondition: fsys must contain localization/messages_en.yml.
// Postcondition: Returns messages containing every default key.
func Load(fsys fs.FS, dataDir, locale string, logger *zap.Logger) (*Messages, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	name := Dir + "/" + FileName(locale)
	cfg := yamlconfig.New(logger)

	if _, err := fs.Stat(fsys, name); err == nil {
		if err := cfg.LoadResource(fsys, name, dataDir); err != nil {
			return nil, err
		}
		return fromConfig(locale, cfg)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("locating %s: %w", name, err)
	}

	logger.Warn("no built-in localization for locale, using defaults",
		zap.String("locale", locale),
		zap.String("fallback", DefaultLocale),
	)
	data, err := fs.ReadFile(fsys, Dir+"/"+FileName(DefaultLocale))
	if err != nil {
		return nil, fmt.Errorf("reading default localization: %w", err)
	}
	defaults := yamlconfig.New(logger)
	if err := defaults.LoadBytes(data); err != nil {
		return nil, fmt.Errorf("default localization: %w", err)
	}
	cfg.SetDefaults(defaults)
	if err := cfg.LoadFile(filepath.Join(dataDir, Dir, FileName(locale))); err != nil {
		return nil, err
	}
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return fromConfig(locale, cfg)
}

// Parse builds messages from a single YAML document without touching disk.
func Parse(locale string, data []byte, logger *zap.Logger) (*Messages, error) {
	cfg := yamlconfig.New(logger)
	if err := cfg.LoadBytes(data); err != nil {
		return nil, err
	}
	return fromConfig(locale, cfg)
}

// Default returns the built-in English messages.
//
// Postcondition: Never returns nil; panics if the embedded file is malformed.
func Default() *Messages {
	data, err := fs.ReadFile(builtin, Dir+"/"+FileName(DefaultLocale))
	if err != nil {
		panic(fmt.Sprintf("lang.Default: %v", err))
	}
	m, err := Parse(DefaultLocale, data, zap.NewNop())
	if err != nil {
		panic(fmt.Sprintf("lang.Default: %v", err))
	}
	return m
}

func fromConfig(locale string, cfg *yamlconfig.Config) (*Messages, error) {
	m := &Messages{locale: locale, messages: make(map[string]string)}
	root := cfg.Root()
	for _, key := range root.Keys(true) {
		switch v := root.Get(key).(type) {
		case *yamlconfig.Section:
		case []any:
			lines := make([]string, len(v))
			for i, line := range v {
				lines[i] = fmt.Sprint(line)
			}
			m.messages[key] = strings.Join(lines, "\n")
		case nil:
			m.messages[key] = ""
		default:
			m.messages[key] = fmt.Sprint(v)
		}
	}
	return m, nil
}

// Locale returns the locale the messages were loaded for.
func (m *Messages) Locale() string { return m.locale }

// Has reports whether key exists.
func (m *Messages) Has(key string) bool {
	_, ok := m.messages[key]
	return ok
}

// Len returns the number of messages.
func (m *Messages) Len() int { return len(m.messages) }

// Of returns the message at key with {placeholder} pairs replaced. A
// missing key yields the key itself so the gap is visible in game.
func (m *Messages) Of(key string, pairs ...any) string {
	msg, ok := m.messages[key]
	if !ok {
		return key
	}
	return chat.Replace(msg, pairs...)
}

// Component returns Of parsed into a chat component.
func (m *Messages) Component(key string, pairs ...any) component.Component {
	return chat.Parse(m.Of(key, pairs...))
}

// Store publishes the active Messages. Readers never observe a partially
// loaded table.
type Store struct {
	current atomic.Pointer[Messages]
}

// NewStore creates a store holding m.
func NewStore(m *Messages) *Store {
	s := &Store{}
	s.current.Store(m)
	return s
}

// Get returns the active messages.
func (s *Store) Get() *Messages { return s.current.Load() }

// Set replaces the active messages.
func (s *Store) Set(m *Messages) { s.current.Store(m) }
