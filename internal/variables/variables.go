// Package variables replaces {placeholders} in outgoing text: built-in
// variables describing the sender, plugin and server, and custom variables
// loaded from variables/*.yml whose values may be Lua scripts.
package variables

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.minekube.com/common/minecraft/component"
	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/configitems"
	"github.com/cory-johannsen/foundation/internal/scripting"
	"github.com/cory-johannsen/foundation/internal/settings"
	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

// Dir is the custom variable folder below the data folder.
const Dir = "variables"

//go:embed variables
var resources embed.FS

// Resources returns an fs.FS holding the built-in variables folder.
func Resources() fs.FS { return resources }

var (
	placeholder = regexp.MustCompile(`\{[A-Za-z0-9_.\-]+\}`)
	validKey    = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
)

// Subject is whoever a message is being prepared for.
type Subject interface {
	Name() string
	UniqueID() uuid.UUID
	HasPermission(permission string) bool
	IsPlayer() bool
}

// Info describes the running plugin and server for built-in variables.
type Info struct {
	PluginName    string
	PluginVersion string
	ServerName    string
}

// Variable is one custom variable.
type Variable struct {
	Key              string
	Value            string
	Script           bool
	SenderPermission string
	SenderCondition  string
	Hover            []string
	SuggestCommand   string
}

// Interactive reports whether the variable renders with hover or click actions.
func (v Variable) Interactive() bool {
	return len(v.Hover) > 0 || v.SuggestCommand != ""
}

func loadVariable(name string, cfg *yamlconfig.Config) (Variable, error) {
	v := Variable{
		Key:              cfg.GetString("key"),
		Value:            cfg.GetString("value"),
		Script:           cfg.GetBool("script"),
		SenderPermission: cfg.GetString("sender_permission"),
		SenderCondition:  cfg.GetString("sender_condition"),
		Hover:            cfg.GetStringList("hover"),
		SuggestCommand:   cfg.GetString("suggest_command"),
	}
	if err := cfg.Err(); err != nil {
		return Variable{}, err
	}
	if v.Key == "" {
		v.Key = name
	}
	if !validKey.MatchString(v.Key) {
		return Variable{}, fmt.Errorf("invalid variable key %q", v.Key)
	}
	return v, nil
}

// NewCollection returns the custom variables stored in dataDir/variables.
// The built-in variables are extracted the first time the folder is missing.
func NewCollection(dataDir string, logger *zap.Logger) *configitems.Items[Variable] {
	return configitems.NewFolder("variable", filepath.Join(dataDir, Dir), loadVariable, logger).
		WithDefaults(resources, Dir)
}

// Replacer substitutes built-in and custom variables.
//
// Replacer is safe for concurrent use.
type Replacer struct {
	info     Info
	settings *settings.Store
	engine   *scripting.Engine
	vars     *configitems.Items[Variable]
	logger   *zap.Logger
	now      func() time.Time
}

// NewReplacer creates a Replacer.
//
// Precondition: store and logger must be non-nil. engine may be nil, in
// which case script values and conditions never pass. vars may be nil when
// the plugin has no custom variables.
func NewReplacer(info Info, store *settings.Store, engine *scripting.Engine, vars *configitems.Items[Variable], logger *zap.Logger) *Replacer {
	return &Replacer{info: info, settings: store, engine: engine, vars: vars, logger: logger, now: time.Now}
}

// SetClock replaces the clock used for {date}.
func (r *Replacer) SetClock(now func() time.Time) { r.now = now }

// Variables returns the custom variable collection, or nil.
func (r *Replacer) Variables() *configitems.Items[Variable] { return r.vars }

// Replace returns text with every known variable substituted. Unknown
// placeholders are left as they are.
func (r *Replacer) Replace(ctx context.Context, subject Subject, text string) string {
	text = r.builtins(subject, text)
	if r.vars == nil {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		v, ok := r.find(m[1 : len(m)-1])
		if !ok {
			return m
		}
		value, ok := r.resolve(ctx, subject, v)
		if !ok {
			return m
		}
		return value
	})
}

// ReplaceComponent replaces variables in text and parses the result. Custom
// variables with hover lines or a suggested command become their own
// interactive child components.
func (r *Replacer) ReplaceComponent(ctx context.Context, subject Subject, text string) component.Component {
	text = r.builtins(subject, text)
	if r.vars == nil {
		return chat.Parse(text)
	}

	var (
		parts   []component.Component
		pending strings.Builder
		last    int
	)
	for _, loc := range placeholder.FindAllStringIndex(text, -1) {
		pending.WriteString(text[last:loc[0]])
		last = loc[1]
		m := text[loc[0]:loc[1]]

		v, ok := r.find(m[1 : len(m)-1])
		if !ok {
			pending.WriteString(m)
			continue
		}
		value, ok := r.resolve(ctx, subject, v)
		if !ok {
			pending.WriteString(m)
			continue
		}
		if !v.Interactive() || value == "" {
			pending.WriteString(value)
			continue
		}
		if pending.Len() > 0 {
			parts = append(parts, chat.Parse(pending.String()))
			pending.Reset()
		}
		parts = append(parts, r.interactive(subject, v, value))
	}
	pending.WriteString(text[last:])
	if pending.Len() > 0 {
		parts = append(parts, chat.Parse(pending.String()))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return chat.Join(parts...)
}

func (r *Replacer) interactive(subject Subject, v Variable, value string) component.Component {
	content := chat.Parse(value)
	var hover component.Component
	if len(v.Hover) > 0 {
		hover = chat.Parse(r.builtins(subject, strings.Join(v.Hover, "\n")))
	}
	if v.SuggestCommand != "" {
		return chat.Suggesting(content, r.builtins(subject, v.SuggestCommand), hover)
	}
	return &component.Text{
		Extra: []component.Component{content},
		S:     component.Style{HoverEvent: component.ShowText(hover)},
	}
}

func (r *Replacer) find(key string) (Variable, bool) {
	for _, v := range r.vars.Items() {
		if strings.EqualFold(v.Key, key) {
			return v, true
		}
	}
	return Variable{}, false
}

// resolve computes v's value for subject. A variable the subject may not see
// resolves to "". ok is false when the placeholder must stay untouched.
func (r *Replacer) resolve(ctx context.Context, subject Subject, v Variable) (value string, ok bool) {
	if v.SenderPermission != "" && (subject == nil || !subject.HasPermission(v.SenderPermission)) {
		return "", true
	}
	if v.SenderCondition != "" {
		if r.engine == nil {
			return "", true
		}
		pass, err := r.engine.EvalBool(ctx, v.SenderCondition, r.bindings(subject))
		if err != nil {
			r.logger.Warn("variable condition failed",
				zap.String("variable", v.Key),
				zap.Error(err),
			)
			return "", true
		}
		if !pass {
			return "", true
		}
	}

	if !v.Script {
		return r.builtins(subject, v.Value), true
	}
	if r.engine == nil || !r.settings.Get().Variables.ReplaceScript {
		return "", false
	}
	out, err := r.engine.EvalString(ctx, v.Value, r.bindings(subject))
	if err != nil {
		r.logger.Warn("variable script failed",
			zap.String("variable", v.Key),
			zap.Error(err),
		)
		return "", false
	}
	return r.builtins(subject, out), true
}

func (r *Replacer) builtins(subject Subject, text string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	s := r.settings.Get()
	layout := s.TimestampFormat
	if layout == "" {
		layout = time.DateTime
	}
	pairs := []any{
		"prefix", s.Prefix,
		"date", r.now().Format(layout),
		"plugin_name", r.info.PluginName,
		"plugin_version", r.info.PluginVersion,
		"server_name", r.info.ServerName,
	}
	if subject != nil {
		pairs = append(pairs, "player", subject.Name(), "player_name", subject.Name())
	}
	return chat.Replace(text, pairs...)
}

func (r *Replacer) bindings(subject Subject) map[string]any {
	b := map[string]any{
		"prefix":      r.settings.Get().Prefix,
		"plugin_name": r.info.PluginName,
		"server_name": r.info.ServerName,
	}
	if subject != nil {
		b["player"] = map[string]any{
			"name":           subject.Name(),
			"uuid":           subject.UniqueID().String(),
			"is_player":      subject.IsPlayer(),
			"has_permission": subject.HasPermission,
		}
	}
	return b
}
