package yamlconfig

import (
	"bytes"
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// splitHeader separates the file header from the document body. The leading
// run of comment and blank lines is split on its last blank line: lines above
// it form the header, lines below it stay with the first key.
func splitHeader(data []byte) ([]string, []byte) {
	lines := strings.Split(string(data), "\n")
	lastBlank := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			lastBlank = i
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
	}
	if lastBlank < 0 {
		return nil, data
	}
	var header []string
	for _, line := range lines[:lastBlank] {
		header = append(header, stripComment(line))
	}
	header = trimBlank(header)
	body := strings.Join(lines[lastBlank+1:], "\n")
	return header, []byte(body)
}

// commentLines converts a yaml.v3 comment string into bare lines.
func commentLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		out = append(out, stripComment(line))
	}
	return trimBlank(out)
}

func stripComment(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "#")
	line = strings.TrimPrefix(line, " ")
	return strings.TrimRight(line, " \t")
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

// commentText renders bare lines back into a yaml.v3 comment string.
func commentText(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if line == "" {
			out[i] = "#"
		} else {
			out[i] = "# " + line
		}
	}
	return strings.Join(out, "\n")
}

// decoder turns a yaml.v3 node tree into sections and plain values.
type decoder struct {
	root *Config
	// active holds alias targets currently being expanded.
	active map[*yaml.Node]bool
}

func (d *decoder) fill(sec *Section, n *yaml.Node) error {
	return d.fillKeys(sec, n, false)
}

// fillKeys adds the pairs of mapping n to sec. With merging set, keys that
// already exist in sec are left alone.
func (d *decoder) fillKeys(sec *Section, n *yaml.Node, merging bool) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Tag == "!!merge" || k.Value == "<<" {
			if err := d.merge(sec, v); err != nil {
				return err
			}
			continue
		}
		key := k.Value
		if _, exists := sec.entries[key]; merging && exists {
			continue
		}
		value, err := d.value(sec, key, v)
		if err != nil {
			return fmt.Errorf("key %q: %w", join(sec.fullPath, key), err)
		}
		inline := commentLines(k.LineComment)
		if len(inline) == 0 {
			inline = commentLines(v.LineComment)
		}
		sec.put(key, &PathData{
			Data:           value,
			Comments:       commentLines(k.HeadComment),
			InlineComments: inline,
			FootComments:   commentLines(k.FootComment),
		})
	}
	return nil
}

// merge applies a "<<" merge key: keys from the referenced mapping are added
// unless already present.
func (d *decoder) merge(sec *Section, v *yaml.Node) error {
	target, release, err := d.enter(v)
	if err != nil {
		return err
	}
	defer release()
	if target.Kind != yaml.MappingNode {
		return fmt.Errorf("merge key in %q must reference a mapping", sec.fullPath)
	}
	return d.fillKeys(sec, target, true)
}

// enter dereferences aliases, refusing to expand an alias inside itself.
func (d *decoder) enter(n *yaml.Node) (*yaml.Node, func(), error) {
	if n.Kind != yaml.AliasNode {
		return n, func() {}, nil
	}
	target := n.Alias
	if target == nil {
		return nil, nil, fmt.Errorf("alias %q has no anchor", n.Value)
	}
	if d.active[target] {
		return nil, nil, fmt.Errorf("%w: *%s", ErrCyclicAlias, n.Value)
	}
	d.active[target] = true
	inner, release, err := d.enter(target)
	if err != nil {
		delete(d.active, target)
		return nil, nil, err
	}
	return inner, func() {
		release()
		delete(d.active, target)
	}, nil
}

func (d *decoder) value(parent *Section, key string, n *yaml.Node) (any, error) {
	n, release, err := d.enter(n)
	if err != nil {
		return nil, err
	}
	defer release()

	switch n.Kind {
	case yaml.MappingNode:
		if isTyped(n) {
			m, err := d.mapping(n)
			if err != nil {
				return nil, err
			}
			return deserialize(m)
		}
		child := newSection(d.root, parent, key)
		if err := d.fill(child, n); err != nil {
			return nil, err
		}
		return child, nil
	case yaml.SequenceNode:
		return d.sequence(n, true)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported yaml node kind %d", n.Kind)
	}
}

// plainValue decodes the inside of typed objects: mappings become
// map[string]any, nested typed objects are rebuilt. With ordered set, untyped
// mappings become detached sections instead, keeping key order and comments.
func (d *decoder) plainValue(n *yaml.Node, ordered bool) (any, error) {
	n, release, err := d.enter(n)
	if err != nil {
		return nil, err
	}
	defer release()

	switch n.Kind {
	case yaml.MappingNode:
		if ordered && !isTyped(n) {
			item := newSection(d.root, nil, "")
			if err := d.fill(item, n); err != nil {
				return nil, err
			}
			return item, nil
		}
		m, err := d.mapping(n)
		if err != nil {
			return nil, err
		}
		if _, ok := m[TypeKey]; ok {
			return deserialize(m)
		}
		return m, nil
	case yaml.SequenceNode:
		return d.sequence(n, ordered)
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (d *decoder) mapping(n *yaml.Node) (map[string]any, error) {
	m := make(map[string]any, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		v, err := d.plainValue(n.Content[i+1], false)
		if err != nil {
			return nil, err
		}
		m[n.Content[i].Value] = v
	}
	return m, nil
}

func (d *decoder) sequence(n *yaml.Node, ordered bool) ([]any, error) {
	out := make([]any, 0, len(n.Content))
	for _, e := range n.Content {
		v, err := d.plainValue(e, ordered)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func isTyped(n *yaml.Node) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == TypeKey {
			return true
		}
	}
	return false
}

// valueNode encodes a non-section value.
func valueNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case *Section:
		return sectionNode(t)
	case Serializable:
		m := t.Serialize()
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		n.Content = append(n.Content, keyNode(TypeKey), &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.SerializedType()})
		if err := appendMap(n, m); err != nil {
			return nil, err
		}
		return n, nil
	case time.Duration:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.String()}, nil
	case encoding.TextMarshaler:
		text, err := t.MarshalText()
		if err != nil {
			return nil, err
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(text)}, nil
	case map[string]any:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if err := appendMap(n, t); err != nil {
			return nil, err
		}
		return n, nil
	case []any:
		return sequenceNode(t)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return sequenceNode(items)
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

func sequenceNode(items []any) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, e := range items {
		en, err := valueNode(e)
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, en)
	}
	return n, nil
}

func appendMap(n *yaml.Node, m map[string]any) error {
	for _, k := range sortedKeys(m) {
		vn, err := valueNode(m[k])
		if err != nil {
			return err
		}
		n.Content = append(n.Content, keyNode(k), vn)
	}
	return nil
}

// sectionNode encodes a section using its own order and comments.
func sectionNode(s *Section) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range s.keys {
		d := s.entries[k]
		vn, err := valueNode(d.Data)
		if err != nil {
			return nil, err
		}
		appendPair(n, k, vn, d)
	}
	return n, nil
}

func keyNode(key string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
}

// appendPair adds key/value to a mapping, attaching the comments of d.
// Inline comments sit on scalar values, or on the key for block values.
func appendPair(n *yaml.Node, key string, value *yaml.Node, d *PathData) {
	kn := keyNode(key)
	if d != nil {
		kn.HeadComment = commentText(d.Comments)
		kn.FootComment = commentText(d.FootComments)
		if len(d.InlineComments) > 0 {
			inline := "# " + strings.Join(d.InlineComments, " ")
			if value.Kind == yaml.ScalarNode {
				value.LineComment = inline
			} else {
				kn.LineComment = inline
			}
		}
	}
	n.Content = append(n.Content, kn, value)
}

// render writes the header followed by the document.
func render(header []string, doc *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	if len(header) > 0 {
		for _, line := range header {
			if line == "" {
				buf.WriteString("#\n")
			} else {
				buf.WriteString("# " + line + "\n")
			}
		}
		buf.WriteString("\n")
	}
	if len(doc.Content) == 0 || len(doc.Content[0].Content) == 0 {
		if doc.FootComment != "" {
			buf.WriteString(doc.FootComment + "\n")
		}
		return buf.Bytes(), nil
	}
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return buf.Bytes(), nil
}
