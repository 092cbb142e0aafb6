package yamlconfig

import (
	"sort"
	"strings"
)

// PathData is a stored value together with the comments attached to its key.
type PathData struct {
	// Data is a scalar, a []any or a nested *Section. Mappings read from list
	// items are detached sections with no parent.
	Data any
	// Comments are the block comment lines written above the key.
	Comments []string
	// InlineComments are written on the same line as the key.
	InlineComments []string
	// FootComments are written after the key's value block.
	FootComments []string
}

func (d *PathData) clone() *PathData {
	return &PathData{
		Data:           d.Data,
		Comments:       cloneStrings(d.Comments),
		InlineComments: cloneStrings(d.InlineComments),
		FootComments:   cloneStrings(d.FootComments),
	}
}

// Section is one level of a configuration tree. Keys keep their insertion
// order, which is also the order they are written to disk.
//
// A Section is not safe for concurrent use.
type Section struct {
	keys     []string
	entries  map[string]*PathData
	root     *Config
	parent   *Section
	path     string
	fullPath string
}

func newSection(root *Config, parent *Section, path string) *Section {
	full := path
	if parent != nil && parent.fullPath != "" {
		full = parent.fullPath + "." + path
	}
	return &Section{
		entries:  make(map[string]*PathData),
		root:     root,
		parent:   parent,
		path:     path,
		fullPath: full,
	}
}

// Path returns the key of this section within its parent.
func (s *Section) Path() string { return s.path }

// FullPath returns the dotted path of this section from the root.
func (s *Section) FullPath() string { return s.fullPath }

// Parent returns the owning section, or nil for the root.
func (s *Section) Parent() *Section { return s.parent }

// Config returns the config owning this section.
func (s *Section) Config() *Config { return s.root }

// Len returns the number of direct keys.
func (s *Section) Len() int { return len(s.keys) }

// Get returns the value stored at the dotted path, or nil when any segment
// is missing. The empty path returns the section itself.
func (s *Section) Get(path string) any {
	if path == "" {
		return s
	}
	d := s.data(path)
	if d == nil {
		return nil
	}
	return d.Data
}

// Contains reports whether the key at path exists, even if it holds null.
func (s *Section) Contains(path string) bool {
	return s.data(path) != nil
}

// IsSection reports whether path holds a nested section.
func (s *Section) IsSection(path string) bool {
	_, ok := s.Get(path).(*Section)
	return ok
}

// Section returns the nested section at path, or nil.
func (s *Section) Section(path string) *Section {
	sec, _ := s.Get(path).(*Section)
	return sec
}

// Set stores value at the dotted path. Missing intermediate sections are
// created only when value is non-nil; storing nil removes the key, and is a
// no-op when the path does not exist.
//
// Postcondition: map[string]any values are stored as nested sections.
func (s *Section) Set(path string, value any) {
	parent, key := s.walk(path, value != nil)
	if parent == nil {
		return
	}
	parent.setLocal(key, value)
}

// CreateSection creates (or replaces with) an empty section at path and returns it.
func (s *Section) CreateSection(path string) *Section {
	parent, key := s.walk(path, true)
	child := newSection(s.root, parent, key)
	parent.put(key, &PathData{Data: child})
	return child
}

// Keys lists the keys of this section. With deep set, nested keys are listed
// as dotted paths relative to this section, each parent before its children.
func (s *Section) Keys(deep bool) []string {
	var out []string
	s.collectKeys("", deep, &out)
	return out
}

func (s *Section) collectKeys(prefix string, deep bool, out *[]string) {
	for _, k := range s.keys {
		p := join(prefix, k)
		*out = append(*out, p)
		if !deep {
			continue
		}
		if child, ok := s.entries[k].Data.(*Section); ok {
			child.collectKeys(p, deep, out)
		}
	}
}

// Values returns the values of this section keyed by relative path. With
// deep set, nested sections are included both as *Section values and through
// their children.
func (s *Section) Values(deep bool) map[string]any {
	out := make(map[string]any)
	for _, k := range s.Keys(deep) {
		out[k] = s.Get(k)
	}
	return out
}

// Map converts the section into plain nested maps, suitable for decoding.
func (s *Section) Map() map[string]any {
	out := make(map[string]any, len(s.keys))
	for _, k := range s.keys {
		out[k] = plain(s.entries[k].Data)
	}
	return out
}

// Comments returns the block comments above the key at path.
func (s *Section) Comments(path string) []string {
	if d := s.data(path); d != nil {
		return cloneStrings(d.Comments)
	}
	return nil
}

// SetComments replaces the block comments above the key at path.
func (s *Section) SetComments(path string, lines ...string) {
	if d := s.data(path); d != nil {
		d.Comments = cloneStrings(lines)
	}
}

// InlineComments returns the same-line comments of the key at path.
func (s *Section) InlineComments(path string) []string {
	if d := s.data(path); d != nil {
		return cloneStrings(d.InlineComments)
	}
	return nil
}

// SetInlineComments replaces the same-line comments of the key at path.
func (s *Section) SetInlineComments(path string, lines ...string) {
	if d := s.data(path); d != nil {
		d.InlineComments = cloneStrings(lines)
	}
}

// data returns the PathData at path without creating anything.
func (s *Section) data(path string) *PathData {
	if path == "" {
		return nil
	}
	sec := s
	segs := strings.Split(path, ".")
	for _, seg := range segs[:len(segs)-1] {
		d := sec.entries[seg]
		if d == nil {
			return nil
		}
		child, ok := d.Data.(*Section)
		if !ok {
			return nil
		}
		sec = child
	}
	return sec.entries[segs[len(segs)-1]]
}

// walk descends to the parent of the last path segment. When create is set,
// missing or non-section intermediate segments are replaced by new sections.
func (s *Section) walk(path string, create bool) (*Section, string) {
	segs := strings.Split(path, ".")
	sec := s
	for _, seg := range segs[:len(segs)-1] {
		d := sec.entries[seg]
		var child *Section
		if d != nil {
			child, _ = d.Data.(*Section)
		}
		if child == nil {
			if !create {
				return nil, ""
			}
			child = newSection(s.root, sec, seg)
			if d != nil {
				d.Data = child
			} else {
				sec.put(seg, &PathData{Data: child})
			}
		}
		sec = child
	}
	return sec, segs[len(segs)-1]
}

func (s *Section) setLocal(key string, value any) {
	if value == nil {
		s.remove(key)
		return
	}
	value = s.adopt(key, value)
	if d, ok := s.entries[key]; ok {
		d.Data = value
		return
	}
	s.put(key, &PathData{Data: value})
}

// adopt converts maps into sections and re-parents sections from other trees.
func (s *Section) adopt(key string, value any) any {
	switch v := value.(type) {
	case map[string]any:
		child := newSection(s.root, s, key)
		for _, k := range sortedKeys(v) {
			child.setLocal(k, v[k])
		}
		return child
	case *Section:
		if v.parent == s && v.path == key && v.root == s.root {
			return v
		}
		return v.copyInto(s.root, s, key)
	default:
		return value
	}
}

// copyInto deep-copies the section, comments included, under a new parent.
func (s *Section) copyInto(root *Config, parent *Section, key string) *Section {
	out := newSection(root, parent, key)
	for _, k := range s.keys {
		d := s.entries[k].clone()
		if child, ok := d.Data.(*Section); ok {
			d.Data = child.copyInto(root, out, k)
		} else {
			d.Data = cloneValue(d.Data)
		}
		out.put(k, d)
	}
	return out
}

func (s *Section) put(key string, d *PathData) {
	if _, exists := s.entries[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.entries[key] = d
}

func (s *Section) remove(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + "." + key
}

func plain(v any) any {
	switch t := v.(type) {
	case *Section:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Section:
		if t.parent == nil {
			return t.copyInto(t.root, nil, "")
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
