// Package configitems loads named items from YAML: either one file per item
// in a folder, or one top-level key per item in a single file.
package configitems

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

// Errors returned by item collections.
var (
	ErrExists   = errors.New("item already exists")
	ErrNotFound = errors.New("item not found")
)

// Loader builds an item from its config. In single-file mode cfg is scoped
// to the item's key with a path prefix.
type Loader[T any] func(name string, cfg *yamlconfig.Config) (T, error)

// Items is a named collection of items of type T. Names are matched
// case-insensitively.
//
// Items is safe for concurrent use.
type Items[T any] struct {
	kind   string
	target string
	single bool
	load   Loader[T]
	logger *zap.Logger

	defaults    fs.FS
	defaultsDir string

	mu    sync.RWMutex
	names []string
	items map[string]T
	file  *yamlconfig.Config
}

// NewFolder creates a collection stored as dir/<name>.yml files.
//
// Precondition: kind names the item type in logs and errors; load must be non-nil.
func NewFolder[T any](kind, dir string, load Loader[T], logger *zap.Logger) *Items[T] {
	return &Items[T]{kind: kind, target: dir, load: load, logger: logger, items: map[string]T{}}
}

// NewFile creates a collection stored as top-level keys of one file.
func NewFile[T any](kind, file string, load Loader[T], logger *zap.Logger) *Items[T] {
	return &Items[T]{kind: kind, target: file, single: true, load: load, logger: logger, items: map[string]T{}}
}

// WithDefaults sets where built-in items live in fsys: a directory of files
// in folder mode, or the default file in single-file mode. Folder items are
// merged against their default file on every load; a single file is only
// extracted when missing, since its keys belong to the user.
func (c *Items[T]) WithDefaults(fsys fs.FS, name string) *Items[T] {
	c.defaults = fsys
	c.defaultsDir = name
	return c
}

// Load (re)reads every item. Default items are extracted the first time the
// folder or file does not exist. On error the previous items stay active.
//
// Postcondition: Returns nil, or an error naming the item that failed.
func (c *Items[T]) Load() error {
	var (
		names []string
		items map[string]T
		file  *yamlconfig.Config
		err   error
	)
	if c.single {
		names, items, file, err = c.loadFile()
	} else {
		names, items, err = c.loadFolder()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.names, c.items, c.file = names, items, file
	c.mu.Unlock()

	c.logger.Debug("loaded config items",
		zap.String("kind", c.kind),
		zap.String("source", c.target),
		zap.Int("count", len(names)),
	)
	return nil
}

func (c *Items[T]) loadFolder() ([]string, map[string]T, error) {
	if _, err := os.Stat(c.target); errors.Is(err, fs.ErrNotExist) {
		if err := c.extractDefaults(); err != nil {
			return nil, nil, err
		}
	}
	entries, err := os.ReadDir(c.target)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("reading %s folder %s: %w", c.kind, c.target, err)
	}

	var names []string
	items := make(map[string]T)
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		key := strings.ToLower(name)
		if _, dup := items[key]; dup {
			return nil, nil, fmt.Errorf("%s %q: %w", c.kind, name, ErrExists)
		}
		item, err := c.loadOne(name, filepath.Join(c.target, entry.Name()))
		if err != nil {
			return nil, nil, err
		}
		names = append(names, name)
		items[key] = item
	}
	return names, items, nil
}

func (c *Items[T]) loadOne(name, file string) (T, error) {
	var zero T
	cfg := yamlconfig.New(c.logger)
	if c.defaults != nil {
		if data, err := fs.ReadFile(c.defaults, path.Join(c.defaultsDir, filepath.Base(file))); err == nil {
			defaults := yamlconfig.New(c.logger)
			if err := defaults.LoadBytes(data); err != nil {
				return zero, fmt.Errorf("default %s %q: %w", c.kind, name, err)
			}
			cfg.SetDefaults(defaults)
		}
	}
	if err := cfg.LoadFile(file); err != nil {
		return zero, fmt.Errorf("%s %q: %w", c.kind, name, err)
	}
	var item T
	err := cfg.Batch(func() error {
		var err error
		item, err = c.load(name, cfg)
		return err
	})
	if err != nil {
		return zero, fmt.Errorf("%s %q: %w", c.kind, name, err)
	}
	return item, nil
}

func (c *Items[T]) loadFile() ([]string, map[string]T, *yamlconfig.Config, error) {
	if _, err := os.Stat(c.target); errors.Is(err, fs.ErrNotExist) && c.defaults != nil {
		data, err := fs.ReadFile(c.defaults, c.defaultsDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading default %s file: %w", c.kind, err)
		}
		if err := os.MkdirAll(filepath.Dir(c.target), 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("creating %s: %w", filepath.Dir(c.target), err)
		}
		if err := os.WriteFile(c.target, data, 0o644); err != nil {
			return nil, nil, nil, fmt.Errorf("extracting default %s file: %w", c.kind, err)
		}
	}
	cfg := yamlconfig.New(c.logger)
	if err := cfg.LoadFile(c.target); err != nil {
		return nil, nil, nil, fmt.Errorf("%s file %s: %w", c.kind, c.target, err)
	}

	var names []string
	items := make(map[string]T)
	err := cfg.Batch(func() error {
		for _, name := range cfg.Root().Keys(false) {
			key := strings.ToLower(name)
			if _, dup := items[key]; dup {
				return fmt.Errorf("%s %q: %w", c.kind, name, ErrExists)
			}
			cfg.SetPathPrefix(name)
			item, err := c.load(name, cfg)
			cfg.SetPathPrefix("")
			if err != nil {
				return fmt.Errorf("%s %q: %w", c.kind, name, err)
			}
			names = append(names, name)
			items[key] = item
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return names, items, cfg, nil
}

func (c *Items[T]) extractDefaults() error {
	if c.defaults == nil {
		return nil
	}
	entries, err := fs.ReadDir(c.defaults, c.defaultsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("listing default %s items: %w", c.kind, err)
	}
	if err := os.MkdirAll(c.target, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.target, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		data, err := fs.ReadFile(c.defaults, path.Join(c.defaultsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading default %s %s: %w", c.kind, entry.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(c.target, entry.Name()), data, 0o644); err != nil {
			return fmt.Errorf("extracting default %s %s: %w", c.kind, entry.Name(), err)
		}
	}
	return nil
}

// Find returns the item named name.
func (c *Items[T]) Find(name string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[strings.ToLower(name)]
	return item, ok
}

// Names returns item names in load order.
func (c *Items[T]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.names...)
}

// Items returns the items in load order.
func (c *Items[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.items[strings.ToLower(name)])
	}
	return out
}

// Len returns the number of items.
func (c *Items[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// Create writes a new item initialised by init and adds it to the collection.
//
// Postcondition: Returns ErrExists when an item with the same name is loaded.
func (c *Items[T]) Create(name string, init func(cfg *yamlconfig.Config)) (T, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	if _, dup := c.items[key]; dup {
		return zero, fmt.Errorf("%s %q: %w", c.kind, name, ErrExists)
	}

	var item T
	if c.single {
		if c.file == nil {
			c.file = yamlconfig.New(c.logger)
			c.file.SetFile(c.target)
		}
		c.file.SetPathPrefix(name)
		init(c.file)
		var err error
		item, err = c.load(name, c.file)
		c.file.SetPathPrefix("")
		if err != nil {
			c.file.Root().Set(name, nil)
			return zero, fmt.Errorf("%s %q: %w", c.kind, name, err)
		}
		if err := c.file.Save(); err != nil {
			return zero, err
		}
	} else {
		cfg := yamlconfig.New(c.logger)
		cfg.SetFile(filepath.Join(c.target, name+".yml"))
		init(cfg)
		var err error
		item, err = c.load(name, cfg)
		if err != nil {
			return zero, fmt.Errorf("%s %q: %w", c.kind, name, err)
		}
		if err := cfg.Save(); err != nil {
			return zero, err
		}
	}
	c.names = append(c.names, name)
	c.items[key] = item
	return item, nil
}

// Remove deletes the item's file, or its key in single-file mode.
func (c *Items[T]) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := c.items[key]; !ok {
		return fmt.Errorf("%s %q: %w", c.kind, name, ErrNotFound)
	}
	idx := -1
	for i, n := range c.names {
		if strings.ToLower(n) == key {
			idx = i
			break
		}
	}
	stored := c.names[idx]

	if c.single {
		c.file.Root().Set(stored, nil)
		if err := c.file.Save(); err != nil {
			return err
		}
	} else {
		for _, ext := range []string{".yml", ".yaml"} {
			err := os.Remove(filepath.Join(c.target, stored+ext))
			if err == nil {
				break
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("removing %s %q: %w", c.kind, name, err)
			}
		}
	}
	c.names = append(c.names[:idx], c.names[idx+1:]...)
	delete(c.items, key)
	return nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
