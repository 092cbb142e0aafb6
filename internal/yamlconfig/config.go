// Package yamlconfig provides YAML-backed configuration files with ordered,
// comment-preserving round trips and merging against a defaults file.
//
// A Config owns a tree of Sections. When a defaults Config is attached,
// saving writes keys in the defaults' order with the defaults' comments,
// keeps the user's values, backfills missing keys, and moves keys that no
// longer exist in the defaults into unused/<filename> next to the file.
// Paths under an uncommented section keep the user's own ordering and
// comments and are never moved.
//
// A Config is not safe for concurrent use.
package yamlconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// UnusedDir is the directory, next to a config file, receiving keys that
// are no longer present in the defaults.
const UnusedDir = "unused"

// Config is a YAML configuration file.
type Config struct {
	file        string
	root        *Section
	defaults    *Config
	pathPrefix  string
	uncommented []string
	header      []string
	footer      []string
	logger      *zap.Logger

	batch  bool
	dirty  bool
	err    error
	unused *Config
}

// New creates an empty config.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a Config with an empty root section and no backing file.
func New(logger *zap.Logger) *Config {
	c := &Config{logger: logger}
	c.root = newSection(c, nil, "")
	return c
}

// Root returns the root section.
func (c *Config) Root() *Section { return c.root }

// File returns the backing file path, or "" when the config is memory-only.
func (c *Config) File() string { return c.file }

// SetFile sets the backing file used by Save.
func (c *Config) SetFile(path string) { c.file = path }

// Defaults returns the defaults companion, or nil.
func (c *Config) Defaults() *Config { return c.defaults }

// SetDefaults attaches the config holding default values, canonical key
// order and comments.
func (c *Config) SetDefaults(defaults *Config) { c.defaults = defaults }

// SetUncommentedSections lists path prefixes whose contents are managed by
// the user: they are never moved to unused/ and keep their own comments.
func (c *Config) SetUncommentedSections(prefixes ...string) {
	c.uncommented = cloneStrings(prefixes)
}

// Header returns the file header lines.
func (c *Config) Header() []string { return cloneStrings(c.header) }

// SetHeader replaces the file header lines.
func (c *Config) SetHeader(lines ...string) { c.header = cloneStrings(lines) }

// PathPrefix returns the prefix prepended to relative lookups.
func (c *Config) PathPrefix() string { return c.pathPrefix }

// SetPathPrefix scopes subsequent getters and setters under prefix.
// The empty prefix restores root-relative access.
func (c *Config) SetPathPrefix(prefix string) {
	c.pathPrefix = strings.Trim(prefix, ".")
}

// Err returns the first conversion error recorded by a getter since the
// last Load or ClearErr.
func (c *Config) Err() error { return c.err }

// ClearErr forgets the recorded conversion error.
func (c *Config) ClearErr() { c.err = nil }

// LoadFile reads path into the config and makes it the backing file. A
// missing file leaves the config empty; it is created on Save.
//
// Postcondition: Returns nil or a parse error naming the file.
func (c *Config) LoadFile(path string) error {
	c.file = path
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.LoadBytes(nil)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return c.LoadBytes(data)
}

// LoadResource loads name from fsys as the defaults and dir/name as the
// live file. On first run the default file is written out as-is; on later
// runs new default keys are merged into the existing file.
//
// Precondition: fsys must contain name.
// Postcondition: The file at dir/name exists and contains every default key.
func (c *Config) LoadResource(fsys fs.FS, name, dir string) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("reading default resource %s: %w", name, err)
	}
	defaults := New(c.logger)
	if err := defaults.LoadBytes(data); err != nil {
		return fmt.Errorf("default resource %s: %w", name, err)
	}
	c.defaults = defaults

	path := filepath.Join(dir, filepath.FromSlash(name))
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
	}
	if err := c.LoadFile(path); err != nil {
		return err
	}
	return c.Save()
}

// LoadReader reads a YAML document from r.
func (c *Config) LoadReader(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	return c.LoadBytes(data)
}

// LoadString parses a YAML document.
func (c *Config) LoadString(s string) error {
	return c.LoadBytes([]byte(s))
}

// LoadBytes parses a YAML document, replacing the current tree, header and footer.
//
// Postcondition: On error the previous tree is left untouched.
func (c *Config) LoadBytes(data []byte) error {
	header, body := splitHeader(data)

	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", c.name(), err)
	}

	root := newSection(c, nil, "")
	var footer []string
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		d := &decoder{root: c, active: make(map[*yaml.Node]bool)}
		n, release, err := d.enter(doc.Content[0])
		if err != nil {
			return fmt.Errorf("parsing %s: %w", c.name(), err)
		}
		switch {
		case n.Kind == yaml.MappingNode:
			if err := d.fill(root, n); err != nil {
				release()
				return fmt.Errorf("parsing %s: %w", c.name(), err)
			}
		case n.Kind == yaml.ScalarNode && n.Tag == "!!null":
		default:
			release()
			return fmt.Errorf("parsing %s: %w", c.name(), ErrNotMapping)
		}
		release()
		// Comments above the first key that yaml.v3 keeps on the document.
		lead := append(commentLines(doc.HeadComment), commentLines(n.HeadComment)...)
		if len(lead) > 0 && len(root.keys) > 0 {
			first := root.entries[root.keys[0]]
			first.Comments = append(lead, first.Comments...)
		}
		footer = append(commentLines(n.FootComment), commentLines(doc.FootComment)...)
	}

	c.root = root
	c.header = header
	c.footer = footer
	c.err = nil
	c.dirty = false
	return nil
}

// Reload re-reads the backing file.
func (c *Config) Reload() error {
	if c.file == "" {
		return ErrNoFile
	}
	return c.LoadFile(c.file)
}

// Batch runs fn with immediate backfill saves suspended, then saves once if
// any default was backfilled. It returns fn's error, the first getter
// conversion error, or the save error.
func (c *Config) Batch(fn func() error) error {
	prev := c.batch
	c.batch = true
	err := fn()
	c.batch = prev
	if err != nil {
		return err
	}
	if c.err != nil {
		return c.err
	}
	if !prev && c.dirty && c.file != "" {
		return c.Save()
	}
	return nil
}

// Save merges the tree against the defaults and writes the backing file.
//
// Postcondition: Keys absent from the defaults (outside uncommented
// sections) have been moved to unused/<filename>.
func (c *Config) Save() error {
	if c.file == "" {
		return ErrNoFile
	}
	if c.defaults != nil {
		if err := c.moveUnused(); err != nil {
			return err
		}
	}
	data, err := c.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.file), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(c.file), err)
	}
	if err := os.WriteFile(c.file, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.file, err)
	}
	c.dirty = false
	return nil
}

// SaveToString renders the config as it would be written, without touching disk.
func (c *Config) SaveToString() (string, error) {
	data, err := c.Render()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Render serializes the tree, merging against the defaults when present.
func (c *Config) Render() ([]byte, error) {
	var mapping *yaml.Node
	var err error
	if c.defaults == nil {
		mapping, err = sectionNode(c.root)
	} else {
		mapping, err = c.mergeNode(c.root, c.defaults.root, "", true)
	}
	if err != nil {
		return nil, err
	}
	header := c.header
	if len(header) == 0 && c.defaults != nil {
		header = c.defaults.header
	}
	footer := c.footer
	if len(footer) == 0 && c.defaults != nil {
		footer = c.defaults.footer
	}
	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		Content:     []*yaml.Node{mapping},
		FootComment: commentText(footer),
	}
	return render(header, doc)
}

// mergeNode builds the mapping for live, ordered and commented by defs while
// pull is set, or by live itself below an uncommented section.
func (c *Config) mergeNode(live, defs *Section, prefix string, pull bool) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range c.mergeKeys(live, defs, prefix, pull) {
		path := join(prefix, key)
		childPull := pull && !c.isUncommented(path)

		var defData *PathData
		if defs != nil {
			defData = defs.entries[key]
		}
		liveData := live.entries[key]

		if (liveData == nil || liveData.Data == nil) && defData != nil && defData.Data != nil {
			live.setLocal(key, cloneValue(defData.Data))
			liveData = live.entries[key]
			liveData.Comments = cloneStrings(defData.Comments)
			liveData.InlineComments = cloneStrings(defData.InlineComments)
			liveData.FootComments = cloneStrings(defData.FootComments)
		}
		if liveData == nil {
			continue
		}

		var defChild *Section
		if defData != nil && defData.Data != nil && liveData.Data != nil {
			var liveIsSection, defIsSection bool
			_, liveIsSection = liveData.Data.(*Section)
			defChild, defIsSection = defData.Data.(*Section)
			if liveIsSection != defIsSection {
				return nil, &ShapeError{File: c.name(), Path: path, Stored: liveData.Data, Default: defData.Data}
			}
		}

		source := liveData
		if childPull && defData != nil {
			source = defData
		}

		var value *yaml.Node
		var err error
		if sec, ok := liveData.Data.(*Section); ok {
			value, err = c.mergeNode(sec, defChild, path, childPull)
		} else {
			value, err = valueNode(liveData.Data)
		}
		if err != nil {
			return nil, err
		}
		appendPair(n, key, value, source)
	}
	return n, nil
}

// mergeKeys returns the write order for one level: the defaults' keys while
// pulling from defaults, followed by live-only keys that sit under an
// uncommented section; otherwise the live keys.
func (c *Config) mergeKeys(live, defs *Section, prefix string, pull bool) []string {
	if !pull || defs == nil {
		return append([]string(nil), live.keys...)
	}
	keys := append([]string(nil), defs.keys...)
	for _, k := range live.keys {
		if _, inDefaults := defs.entries[k]; inDefaults {
			continue
		}
		if c.isUncommented(join(prefix, k)) {
			keys = append(keys, k)
		}
	}
	return keys
}

// moveUnused relocates keys missing from the defaults into unused/<file>.
func (c *Config) moveUnused() error {
	var missing, moved []string
	values := make(map[string]any)
	for _, path := range c.root.Keys(true) {
		if c.isUncommented(path) || c.defaults.root.Contains(path) || c.belowDefaultValue(path) {
			continue
		}
		missing = append(missing, path)
		v := c.root.Get(path)
		if _, isSection := v.(*Section); isSection || v == nil {
			continue
		}
		values[path] = v
		moved = append(moved, path)
	}
	for _, path := range missing {
		c.root.Set(path, nil)
	}
	if len(moved) == 0 {
		return nil
	}

	unused, err := c.unusedConfig()
	if err != nil {
		return err
	}
	for _, path := range moved {
		unused.root.Set(path, values[path])
	}
	if err := unused.Save(); err != nil {
		return fmt.Errorf("saving unused keys of %s: %w", c.file, err)
	}
	c.logger.Warn("moved keys missing from defaults to unused file",
		zap.String("file", c.file),
		zap.String("destination", unused.file),
		zap.Strings("keys", moved),
	)
	return nil
}

func (c *Config) unusedConfig() (*Config, error) {
	if c.unused != nil {
		return c.unused, nil
	}
	u := New(c.logger)
	path := filepath.Join(filepath.Dir(c.file), UnusedDir, filepath.Base(c.file))
	if err := u.LoadFile(path); err != nil {
		return nil, err
	}
	c.unused = u
	return u, nil
}

func (c *Config) isUncommented(path string) bool {
	for _, prefix := range c.uncommented {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// belowDefaultValue reports whether an ancestor of path is a non-section
// value in the defaults. Such paths are left for the shape check.
func (c *Config) belowDefaultValue(path string) bool {
	for i := strings.Index(path, "."); i >= 0; i = nextDot(path, i) {
		ancestor := path[:i]
		if c.defaults.root.Contains(ancestor) && !c.defaults.root.IsSection(ancestor) {
			return true
		}
	}
	return false
}

func nextDot(path string, i int) int {
	j := strings.Index(path[i+1:], ".")
	if j < 0 {
		return -1
	}
	return i + 1 + j
}

func (c *Config) name() string {
	if c.file == "" {
		return "config"
	}
	return c.file
}

// String renders the config for debugging.
func (c *Config) String() string {
	data, err := c.Render()
	if err != nil {
		return fmt.Sprintf("<%s: %v>", c.name(), err)
	}
	return string(bytes.TrimSpace(data))
}
