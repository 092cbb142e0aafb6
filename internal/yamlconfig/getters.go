package yamlconfig

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/timeutil"
)

// Get returns the value at path, resolved against the path prefix. A value
// missing locally but present in the defaults is copied into the tree with
// its comments and persisted: immediately, or at the end of the enclosing
// Batch.
//
// Postcondition: Returns nil only when neither the tree nor the defaults hold path.
func (c *Config) Get(path string) any {
	full := c.resolve(path)
	if v := c.root.Get(full); v != nil {
		return v
	}
	if c.defaults == nil {
		return nil
	}
	d := c.defaults.root.data(full)
	if d == nil || d.Data == nil {
		return nil
	}
	c.backfill(full, d)
	return c.root.Get(full)
}

func (c *Config) backfill(full string, d *PathData) {
	c.root.Set(full, cloneValue(d.Data))
	if stored := c.root.data(full); stored != nil {
		stored.Comments = cloneStrings(d.Comments)
		stored.InlineComments = cloneStrings(d.InlineComments)
		stored.FootComments = cloneStrings(d.FootComments)
	}
	c.dirty = true
	if c.batch || c.file == "" {
		return
	}
	if err := c.Save(); err != nil {
		c.logger.Error("saving backfilled default",
			zap.String("file", c.file),
			zap.String("path", full),
			zap.Error(err),
		)
	}
}

// Set stores value at path, resolved against the path prefix.
func (c *Config) Set(path string, value any) {
	c.root.Set(c.resolve(path), value)
}

// IsSet reports whether path holds a value in the tree or the defaults.
func (c *Config) IsSet(path string) bool {
	full := c.resolve(path)
	if c.root.Contains(full) {
		return true
	}
	return c.defaults != nil && c.defaults.root.Contains(full)
}

// Keys lists the keys below path, or below the prefix root when path is empty.
func (c *Config) Keys(path string, deep bool) []string {
	sec := c.GetSection(path)
	if sec == nil {
		return nil
	}
	return sec.Keys(deep)
}

// GetSection returns the section at path, or nil.
func (c *Config) GetSection(path string) *Section {
	if c.resolve(path) == "" {
		return c.root
	}
	sec, _ := c.Get(path).(*Section)
	return sec
}

// GetString returns the value at path as a string. Scalars are converted;
// a section records a conversion error and yields "".
func (c *Config) GetString(path string) string {
	v := c.Get(path)
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		c.fail(path, "string", v, err)
	}
	return s
}

// GetInt returns the value at path as an int, or 0.
func (c *Config) GetInt(path string) int {
	v := c.Get(path)
	if v == nil {
		return 0
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		c.fail(path, "int", v, err)
	}
	return n
}

// GetFloat returns the value at path as a float64, or 0.
func (c *Config) GetFloat(path string) float64 {
	v := c.Get(path)
	if v == nil {
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		c.fail(path, "float", v, err)
	}
	return f
}

// GetBool returns the value at path as a bool, or false.
func (c *Config) GetBool(path string) bool {
	v := c.Get(path)
	if v == nil {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		c.fail(path, "bool", v, err)
	}
	return b
}

// GetDuration returns the value at path as a duration. Integers are
// seconds; strings may use Go syntax or words ("1 hour 30 minutes").
func (c *Config) GetDuration(path string) time.Duration {
	v := c.Get(path)
	if v == nil {
		return 0
	}
	d, err := toDuration(v)
	if err != nil {
		c.fail(path, "duration", v, err)
	}
	return d
}

// GetStringList returns the list at path as strings. A single scalar is
// returned as a one-element list.
func (c *Config) GetStringList(path string) []string {
	v := c.Get(path)
	if v == nil {
		return nil
	}
	if _, isList := v.([]any); !isList {
		if _, isSection := v.(*Section); !isSection {
			v = []any{v}
		}
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		c.fail(path, "string list", v, err)
		return nil
	}
	return out
}

// GetList returns the list at path, or nil.
func (c *Config) GetList(path string) []any {
	v := c.Get(path)
	if v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		c.fail(path, "list", v, nil)
		return nil
	}
	return list
}

// GetMap returns the section at path as plain nested maps, or nil.
func (c *Config) GetMap(path string) map[string]any {
	v := c.Get(path)
	switch t := v.(type) {
	case nil:
		return nil
	case *Section:
		return t.Map()
	case map[string]any:
		return t
	default:
		c.fail(path, "map", v, nil)
		return nil
	}
}

// Decode decodes the value at path into out using mapstructure. Keys are
// matched case-insensitively and scalars are weakly converted; durations
// accept the same forms as GetDuration.
//
// Precondition: out must be a non-nil pointer.
func (c *Config) Decode(path string, out any) error {
	v := c.Get(path)
	if v == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationHook,
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("decoding %s: %w", c.resolve(path), err)
	}
	if err := dec.Decode(plain(v)); err != nil {
		return fmt.Errorf("decoding %s: %w", c.resolve(path), err)
	}
	return nil
}

func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) || from == to {
		return data, nil
	}
	return toDuration(data)
}

func toDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case string:
		return timeutil.ParseDuration(t)
	}
	secs, err := cast.ToInt64E(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

func (c *Config) fail(path, want string, v any, cause error) {
	if c.err != nil {
		return
	}
	if cause != nil {
		c.err = fmt.Errorf("%w: %s: %s holds %s, not a %s: %v", ErrConversion, c.name(), c.resolve(path), describe(v), want, cause)
		return
	}
	c.err = fmt.Errorf("%w: %s: %s holds %s, not a %s", ErrConversion, c.name(), c.resolve(path), describe(v), want)
}

func (c *Config) resolve(path string) string {
	return join(c.pathPrefix, path)
}
